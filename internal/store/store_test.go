package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mctl-dev/mctl/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetProject(t *testing.T) {
	s := newTestStore(t)

	created, err := s.CreateProject("webapp", "/home/dev/webapp")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated project ID")
	}

	got, err := s.GetProjectByPath("/home/dev/webapp")
	if err != nil {
		t.Fatalf("GetProjectByPath: %v", err)
	}
	if got == nil {
		t.Fatal("expected project, got nil")
	}
	if got.Name != "webapp" {
		t.Errorf("Name = %q, want %q", got.Name, "webapp")
	}

	missing, err := s.GetProjectByPath("/nope")
	if err != nil {
		t.Fatalf("GetProjectByPath missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown path, got %+v", missing)
	}
}

func TestUpsertProjectKeyedByPath(t *testing.T) {
	s := newTestStore(t)

	p := models.Project{Name: "old", Path: "/p", LastUsedAt: time.Now().UTC()}
	if err := s.UpsertProject(p); err != nil {
		t.Fatalf("UpsertProject: %v", err)
	}
	p.Name = "new"
	p.Favorite = true
	if err := s.UpsertProject(p); err != nil {
		t.Fatalf("UpsertProject update: %v", err)
	}

	projects, err := s.ListProjects()
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(projects) != 1 {
		t.Fatalf("expected 1 project, got %d", len(projects))
	}
	if projects[0].Name != "new" || !projects[0].Favorite {
		t.Errorf("upsert did not replace fields: %+v", projects[0])
	}
}

func TestSessionRoundTripWithTasks(t *testing.T) {
	s := newTestStore(t)

	started := time.Now().UTC().Truncate(time.Second)
	sess := models.Session{
		ID:          "sess-1",
		Name:        "auth refactor",
		ProjectPath: "/home/dev/webapp",
		Status:      models.SessionStatusActive,
		CreatedAt:   started,
		Tasks: []models.Task{
			{ID: "task-1", Title: "Add OAuth flow", Status: models.TaskStatusInProgress, StartedAt: &started},
			{ID: "task-2", Title: "Write tests", Status: models.TaskStatusPending, DependsOn: []string{"task-1"}},
		},
	}
	if err := s.UpsertSession(sess); err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}

	got, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got == nil {
		t.Fatal("expected session, got nil")
	}
	if len(got.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(got.Tasks))
	}
	if got.Tasks[0].Title != "Add OAuth flow" {
		t.Errorf("task order not preserved: %+v", got.Tasks)
	}
	if len(got.Tasks[1].DependsOn) != 1 || got.Tasks[1].DependsOn[0] != "task-1" {
		t.Errorf("DependsOn not round-tripped: %+v", got.Tasks[1])
	}

	missing, err := s.GetSession("ghost")
	if err != nil {
		t.Fatalf("GetSession missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown session, got %+v", missing)
	}
}

func TestReplaceAgentsSwapsCache(t *testing.T) {
	s := newTestStore(t)

	if err := s.UpsertAgent(models.Agent{ID: "stale", SessionID: "s1", Status: models.AgentStatusThinking}); err != nil {
		t.Fatalf("UpsertAgent: %v", err)
	}

	fresh := []models.Agent{
		{ID: "a1", SessionID: "s1", Status: models.AgentStatusImplementing, Cost: 1.5,
			Logs: []models.LogEntry{{Timestamp: time.Now().UTC(), Message: "starting"}}},
		{ID: "a2", SessionID: "s2", Status: models.AgentStatusTesting},
	}
	if err := s.ReplaceAgents(fresh); err != nil {
		t.Fatalf("ReplaceAgents: %v", err)
	}

	agents, err := s.ListAgents()
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("expected 2 agents after replace, got %d", len(agents))
	}
	for _, a := range agents {
		if a.ID == "stale" {
			t.Error("stale agent survived ReplaceAgents")
		}
	}
	if len(agents[0].Logs) != 1 || agents[0].Logs[0].Message != "starting" {
		t.Errorf("logs not round-tripped: %+v", agents[0])
	}
}

func TestMarkAgentsIdle(t *testing.T) {
	s := newTestStore(t)

	if err := s.ReplaceAgents([]models.Agent{
		{ID: "a1", SessionID: "s1", Status: models.AgentStatusImplementing},
		{ID: "a2", SessionID: "s1", Status: models.AgentStatusTesting},
	}); err != nil {
		t.Fatalf("ReplaceAgents: %v", err)
	}

	if err := s.MarkAgentsIdle([]string{"a1"}); err != nil {
		t.Fatalf("MarkAgentsIdle: %v", err)
	}
	if err := s.MarkAgentsIdle(nil); err != nil {
		t.Fatalf("MarkAgentsIdle empty: %v", err)
	}

	agents, err := s.ListAgents()
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	byID := map[string]models.AgentStatus{}
	for _, a := range agents {
		byID[a.ID] = a.Status
	}
	if byID["a1"] != models.AgentStatusIdle {
		t.Errorf("a1 status = %s, want idle", byID["a1"])
	}
	if byID["a2"] != models.AgentStatusTesting {
		t.Errorf("a2 status = %s, want testing", byID["a2"])
	}
}

func TestSubscribeReceivesChangeSignals(t *testing.T) {
	s := newTestStore(t)

	changes, cancel := s.Subscribe()
	defer cancel()

	if _, err := s.CreateProject("p", "/p"); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("no change signal after mutation")
	}

	// Signals coalesce; multiple mutations never block the writer.
	for i := 0; i < 5; i++ {
		if err := s.UpsertAgent(models.Agent{SessionID: "s"}); err != nil {
			t.Fatalf("UpsertAgent: %v", err)
		}
	}
	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("no coalesced signal")
	}

	cancel()
	if _, err := s.CreateProject("q", "/q"); err != nil {
		t.Fatalf("CreateProject after cancel: %v", err)
	}
}

func TestReadSnapshot(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.CreateProject("webapp", "/w"); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if err := s.UpsertSession(models.Session{ID: "s1", Name: "work", ProjectPath: "/w", Status: models.SessionStatusActive, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}
	if err := s.UpsertAgent(models.Agent{ID: "a1", SessionID: "s1", Status: models.AgentStatusThinking}); err != nil {
		t.Fatalf("UpsertAgent: %v", err)
	}

	snap, err := s.ReadSnapshot()
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if len(snap.Projects) != 1 || len(snap.Sessions) != 1 || len(snap.Agents) != 1 {
		t.Errorf("snapshot counts = %d/%d/%d, want 1/1/1",
			len(snap.Projects), len(snap.Sessions), len(snap.Agents))
	}
}
