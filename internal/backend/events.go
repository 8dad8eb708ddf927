package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Subscription is a disposable handle to one push-event stream.
type Subscription interface {
	Close() error
}

// streamSub cancels the SSE request on Close. Close is safe to call more
// than once.
type streamSub struct {
	cancel context.CancelFunc
}

func (s *streamSub) Close() error {
	s.cancel()
	return nil
}

// Subscribe opens a server-sent-events stream for one named push event and
// invokes fn with each event payload. The handle must be closed to release
// the stream. Events arriving after Close are dropped by the transport; the
// caller still guards its own teardown state.
func (c *Client) Subscribe(event string, fn func(payload json.RawMessage)) (Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())

	endpoint := c.baseURL + "/api/events?name=" + url.QueryEscape(event)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")

	// Event streams are long-lived; bypass the client-wide request timeout.
	stream := &http.Client{Transport: c.httpClient.Transport}
	resp, err := stream.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("subscribe %s: %s", event, string(body))
	}

	go func() {
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			fn(json.RawMessage(payload))
		}
	}()

	return &streamSub{cancel: cancel}, nil
}
