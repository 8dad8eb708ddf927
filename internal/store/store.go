// Package store provides the SQLite-backed entity cache for mctl.
//
// The remote backend owns the authoritative state; this store holds the local
// snapshot used for display context and as the fallback data source when the
// backend is unreachable. Each mutation broadcasts a change notification so
// consumers can recompute derived views without polling the database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mctl-dev/mctl/internal/models"
)

// Store provides access to the mctl SQLite cache.
type Store struct {
	db *sql.DB

	mu   sync.Mutex
	subs map[int]chan struct{}
	next int
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Open with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, subs: make(map[int]chan struct{})}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		path TEXT NOT NULL UNIQUE,
		favorite INTEGER NOT NULL DEFAULT 0,
		last_used_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		project_path TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME NOT NULL,
		last_resumed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		title TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		depends_on TEXT,
		started_at DATETIME,
		completed_at DATETIME,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		task_id TEXT,
		status TEXT NOT NULL DEFAULT 'idle',
		tokens INTEGER NOT NULL DEFAULT 0,
		cost REAL NOT NULL DEFAULT 0,
		logs TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_project_path ON sessions(project_path);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_session_id ON tasks(session_id);
	CREATE INDEX IF NOT EXISTS idx_agents_session_id ON agents(session_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Change Notifications ---

// Subscribe registers a change listener. The returned channel receives a
// signal after every mutation; slow listeners are not blocked on (pending
// signals coalesce). The cancel func must be called to release the listener.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
	return ch, cancel
}

// notify broadcasts a change signal to all listeners without blocking.
func (s *Store) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// --- Project Operations ---

// CreateProject registers a project.
func (s *Store) CreateProject(name, path string) (*models.Project, error) {
	project := &models.Project{
		ID:         uuid.New().String(),
		Name:       name,
		Path:       path,
		LastUsedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO projects (id, name, path, favorite, last_used_at) VALUES (?, ?, ?, 0, ?)`,
		project.ID, project.Name, project.Path, project.LastUsedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	s.notify()
	return project, nil
}

// UpsertProject inserts or replaces a project keyed by path.
func (s *Store) UpsertProject(p models.Project) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	_, err := s.db.Exec(
		`INSERT INTO projects (id, name, path, favorite, last_used_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET name = excluded.name, favorite = excluded.favorite, last_used_at = excluded.last_used_at`,
		p.ID, p.Name, p.Path, boolToInt(p.Favorite), p.LastUsedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert project: %w", err)
	}
	s.notify()
	return nil
}

// ListProjects returns all projects ordered by favorite then recency.
func (s *Store) ListProjects() ([]models.Project, error) {
	rows, err := s.db.Query(
		`SELECT id, name, path, favorite, last_used_at FROM projects ORDER BY favorite DESC, last_used_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var p models.Project
		var fav int
		if err := rows.Scan(&p.ID, &p.Name, &p.Path, &fav, &p.LastUsedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.Favorite = fav != 0
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// GetProjectByPath retrieves a project by filesystem path.
func (s *Store) GetProjectByPath(path string) (*models.Project, error) {
	p := &models.Project{}
	var fav int
	err := s.db.QueryRow(
		`SELECT id, name, path, favorite, last_used_at FROM projects WHERE path = ?`,
		path,
	).Scan(&p.ID, &p.Name, &p.Path, &fav, &p.LastUsedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query project: %w", err)
	}
	p.Favorite = fav != 0
	return p, nil
}

// --- Session Operations ---

// UpsertSession inserts or replaces a session.
func (s *Store) UpsertSession(sess models.Session) error {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO sessions (id, name, project_path, status, created_at, last_resumed_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Name, sess.ProjectPath, sess.Status, sess.CreatedAt, nullableTime(sess.LastResumedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	for _, task := range sess.Tasks {
		if err := s.upsertTask(sess.ID, task); err != nil {
			return err
		}
	}
	s.notify()
	return nil
}

// ListSessions returns all sessions with their embedded task lists.
func (s *Store) ListSessions() ([]models.Session, error) {
	rows, err := s.db.Query(
		`SELECT id, name, project_path, status, created_at, last_resumed_at FROM sessions ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var sess models.Session
		var resumed sql.NullTime
		if err := rows.Scan(&sess.ID, &sess.Name, &sess.ProjectPath, &sess.Status, &sess.CreatedAt, &resumed); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if resumed.Valid {
			t := resumed.Time
			sess.LastResumedAt = &t
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sessions {
		tasks, err := s.tasksForSession(sessions[i].ID)
		if err != nil {
			return nil, err
		}
		sessions[i].Tasks = tasks
	}
	return sessions, nil
}

// GetSession retrieves a session by ID, with its task list.
func (s *Store) GetSession(id string) (*models.Session, error) {
	sess := &models.Session{}
	var resumed sql.NullTime
	err := s.db.QueryRow(
		`SELECT id, name, project_path, status, created_at, last_resumed_at FROM sessions WHERE id = ?`,
		id,
	).Scan(&sess.ID, &sess.Name, &sess.ProjectPath, &sess.Status, &sess.CreatedAt, &resumed)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	if resumed.Valid {
		t := resumed.Time
		sess.LastResumedAt = &t
	}

	tasks, err := s.tasksForSession(sess.ID)
	if err != nil {
		return nil, err
	}
	sess.Tasks = tasks
	return sess, nil
}

// --- Task Operations ---

func (s *Store) upsertTask(sessionID string, task models.Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	dependsJSON, _ := json.Marshal(task.DependsOn)
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO tasks (id, session_id, title, status, depends_on, started_at, completed_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		task.ID, sessionID, task.Title, task.Status, string(dependsJSON), nullableTime(task.StartedAt), nullableTime(task.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}
	return nil
}

// tasksForSession returns the ordered task list for one session.
func (s *Store) tasksForSession(sessionID string) ([]models.Task, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, title, status, depends_on, started_at, completed_at FROM tasks WHERE session_id = ? ORDER BY rowid`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var task models.Task
		var dependsJSON sql.NullString
		var started, completed sql.NullTime
		if err := rows.Scan(&task.ID, &task.SessionID, &task.Title, &task.Status, &dependsJSON, &started, &completed); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if dependsJSON.Valid && dependsJSON.String != "" {
			json.Unmarshal([]byte(dependsJSON.String), &task.DependsOn)
		}
		if started.Valid {
			t := started.Time
			task.StartedAt = &t
		}
		if completed.Valid {
			t := completed.Time
			task.CompletedAt = &t
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// --- Agent Operations ---

// UpsertAgent inserts or replaces a cached agent.
func (s *Store) UpsertAgent(agent models.Agent) error {
	if agent.ID == "" {
		agent.ID = uuid.New().String()
	}
	logsJSON, _ := json.Marshal(agent.Logs)
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO agents (id, session_id, task_id, status, tokens, cost, logs) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		agent.ID, agent.SessionID, agent.TaskID, agent.Status, agent.Tokens, agent.Cost, string(logsJSON),
	)
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	s.notify()
	return nil
}

// ReplaceAgents swaps the whole agent cache for a fresh backend snapshot.
func (s *Store) ReplaceAgents(agents []models.Agent) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM agents`); err != nil {
		return fmt.Errorf("clear agents: %w", err)
	}
	for _, agent := range agents {
		if agent.ID == "" {
			agent.ID = uuid.New().String()
		}
		logsJSON, _ := json.Marshal(agent.Logs)
		_, err := tx.Exec(
			`INSERT INTO agents (id, session_id, task_id, status, tokens, cost, logs) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			agent.ID, agent.SessionID, agent.TaskID, agent.Status, agent.Tokens, agent.Cost, string(logsJSON),
		)
		if err != nil {
			return fmt.Errorf("insert agent: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	s.notify()
	return nil
}

// ListAgents returns all cached agents.
func (s *Store) ListAgents() ([]models.Agent, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, task_id, status, tokens, cost, logs FROM agents ORDER BY rowid`,
	)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer rows.Close()

	var agents []models.Agent
	for rows.Next() {
		var agent models.Agent
		var taskID sql.NullString
		var logsJSON sql.NullString
		if err := rows.Scan(&agent.ID, &agent.SessionID, &taskID, &agent.Status, &agent.Tokens, &agent.Cost, &logsJSON); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		if taskID.Valid {
			agent.TaskID = taskID.String
		}
		if logsJSON.Valid && logsJSON.String != "" {
			json.Unmarshal([]byte(logsJSON.String), &agent.Logs)
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// MarkAgentsIdle flips the given agents to idle. Used when the backend reaps
// executions the cache still considers running.
func (s *Store) MarkAgentsIdle(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.Exec(`UPDATE agents SET status = ? WHERE id = ?`, models.AgentStatusIdle, id); err != nil {
			return fmt.Errorf("mark agent idle: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	s.notify()
	return nil
}

// --- Snapshot ---

// Snapshot is a consistent read of the whole cache.
type Snapshot struct {
	Projects []models.Project
	Sessions []models.Session
	Agents   []models.Agent
}

// ReadSnapshot loads projects, sessions (with tasks), and agents in one pass.
func (s *Store) ReadSnapshot() (*Snapshot, error) {
	projects, err := s.ListProjects()
	if err != nil {
		return nil, err
	}
	sessions, err := s.ListSessions()
	if err != nil {
		return nil, err
	}
	agents, err := s.ListAgents()
	if err != nil {
		return nil, err
	}
	return &Snapshot{Projects: projects, Sessions: sessions, Agents: agents}, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
