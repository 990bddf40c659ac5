// Package syncq keeps mutating CLI requests that could not reach the API
// so `southbag sync` can replay them later under the same idempotency key.
package syncq

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"southbag/internal/cli"

	"github.com/google/uuid"
)

type Command struct {
	Method         string         `json:"method"`
	Path           string         `json:"path"`
	Body           map[string]any `json:"body,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
	QueuedAt       time.Time      `json:"queued_at"`
	Attempts       int            `json:"attempts,omitempty"`
}

// New stamps a command with a fresh idempotency key.
func New(method, path string, body map[string]any) Command {
	return Command{
		Method:         method,
		Path:           path,
		Body:           body,
		IdempotencyKey: uuid.NewString(),
		QueuedAt:       time.Now().UTC(),
	}
}

func queuePath() (string, error) {
	dir, err := cli.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "queue.json"), nil
}

func Load() ([]Command, error) {
	path, err := queuePath()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Command{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Command{}, nil
	}
	var out []Command
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func Save(commands []Command) error {
	path, err := queuePath()
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

func Push(cmd Command) error {
	commands, err := Load()
	if err != nil {
		return err
	}
	commands = append(commands, cmd)
	return Save(commands)
}

// Failure is a queued command that did not go through on replay.
type Failure struct {
	Command Command
	Err     error
	// Dropped commands were refused by the bank and will not be retried.
	Dropped bool
}

// Replay sends every queued command in order. Commands that fail with a
// retryable error stay queued; the rest are removed.
func Replay(ctx context.Context, send func(context.Context, Command) error) (int, []Failure, error) {
	queue, err := Load()
	if err != nil {
		return 0, nil, err
	}
	var (
		sent      int
		failures  []Failure
		remaining = make([]Command, 0, len(queue))
	)
	for _, q := range queue {
		if ctx.Err() != nil {
			remaining = append(remaining, q)
			continue
		}
		err := send(ctx, q)
		switch {
		case err == nil:
			sent++
		case cli.Retryable(err):
			q.Attempts++
			remaining = append(remaining, q)
			failures = append(failures, Failure{Command: q, Err: err})
		default:
			failures = append(failures, Failure{Command: q, Err: err, Dropped: true})
		}
	}
	return sent, failures, Save(remaining)
}
