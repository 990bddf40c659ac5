package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const (
	replayTTL     = 24 * time.Hour
	replayEntries = 4096
)

type replayed struct {
	status int
	body   []byte
	at     time.Time
}

// replayCache remembers responses to mutating requests by idempotency key,
// so a client retrying a queued command does not pay twice.
type replayCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	limit int
	now   func() time.Time
	items map[string]replayed
	order []string
	// busy holds scopes whose first request is still running.
	busy map[string]chan struct{}
}

func newReplayCache(ttl time.Duration, limit int) *replayCache {
	return &replayCache{
		ttl:   ttl,
		limit: limit,
		now:   time.Now,
		items: make(map[string]replayed),
		busy:  make(map[string]chan struct{}),
	}
}

func (c *replayCache) get(key string) (replayed, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookup(key)
}

func (c *replayCache) lookup(key string) (replayed, bool) {
	e, ok := c.items[key]
	if !ok || c.now().Sub(e.at) > c.ttl {
		return replayed{}, false
	}
	return e, true
}

// claim returns the cached reply for key, or marks key in flight and
// returns a release func the caller must run once its reply is stored.
// Requests sharing a key in flight wait for the first one to finish.
func (c *replayCache) claim(ctx context.Context, key string) (replayed, bool, func(), error) {
	for {
		c.mu.Lock()
		if hit, ok := c.lookup(key); ok {
			c.mu.Unlock()
			return hit, true, nil, nil
		}
		wait, running := c.busy[key]
		if !running {
			done := make(chan struct{})
			c.busy[key] = done
			c.mu.Unlock()
			return replayed{}, false, func() {
				c.mu.Lock()
				delete(c.busy, key)
				c.mu.Unlock()
				close(done)
			}, nil
		}
		c.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return replayed{}, false, nil, ctx.Err()
		}
	}
}

func (c *replayCache) put(key string, status int, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[key]; !ok {
		c.order = append(c.order, key)
	}
	c.items[key] = replayed{status: status, body: bytes.Clone(body), at: c.now()}
	for len(c.order) > c.limit {
		delete(c.items, c.order[0])
		c.order = c.order[1:]
	}
}

func (s *Server) replayMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		supplied := strings.TrimSpace(r.Header.Get("Idempotency-Key")) != ""
		key := idempotencyKey(r)
		w.Header().Set("Idempotency-Key", key)
		if !supplied {
			next.ServeHTTP(w, r)
			return
		}

		scope := r.Method + " " + r.URL.Path + " " + key
		hit, ok, release, err := s.replay.claim(r.Context(), scope)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "request with this idempotency key still in progress")
			return
		}
		if ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(hit.status)
			_, _ = w.Write(hit.body)
			return
		}
		defer release()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		var body bytes.Buffer
		ww.Tee(&body)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if status < http.StatusInternalServerError {
			s.replay.put(scope, status, body.Bytes())
		}
	})
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
