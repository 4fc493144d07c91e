package rollout

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mfateev/agent-rollout/internal/models"
)

// Recorder appends rollout records to a JSONL file, one line per record,
// oldest-first. The first line is always the session metadata. The
// production agent loop owns its own writer; this one exists for the CLI,
// fixtures, and tests.
type Recorder struct {
	f    *os.File
	path string
	id   string
}

// NewRecorder creates a rollout file named rollout-<timestamp>-<id>.jsonl
// under dir and writes the session_meta head line. An empty meta.ID gets
// a fresh UUID; a non-empty one must be a UUID and is normalized to its
// canonical form so the filename matches what ListSessions looks for.
func NewRecorder(dir string, meta models.SessionMetaItem) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create sessions directory: %w", err)
	}
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	} else {
		id, err := uuid.Parse(meta.ID)
		if err != nil {
			return nil, fmt.Errorf("session id %q is not a UUID: %w", meta.ID, err)
		}
		meta.ID = id.String()
	}
	now := time.Now().UTC()
	if meta.CreatedAt == "" {
		meta.CreatedAt = now.Format(time.RFC3339)
	}
	name := fmt.Sprintf("rollout-%s-%s.jsonl", now.Format("2006-01-02T15-04-05"), meta.ID)
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("create rollout file: %w", err)
	}
	r := &Recorder{f: f, path: path, id: meta.ID}
	if err := r.Record(models.NewSessionMetaRolloutItem(meta)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return r, nil
}

// Record appends items in log order.
func (r *Recorder) Record(items ...models.RolloutItem) error {
	for _, item := range items {
		line, err := EncodeItem(item)
		if err != nil {
			return err
		}
		line.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
		data, err := json.Marshal(line)
		if err != nil {
			return fmt.Errorf("encode rollout line: %w", err)
		}
		if _, err := r.f.Write(append(data, '\n')); err != nil {
			return models.NewTransientError("write rollout line", err)
		}
	}
	return nil
}

// Path returns the rollout file path.
func (r *Recorder) Path() string {
	return r.path
}

// SessionID returns the session identifier written to the head line.
func (r *Recorder) SessionID() string {
	return r.id
}

// Close flushes and closes the rollout file.
func (r *Recorder) Close() error {
	if err := r.f.Sync(); err != nil {
		r.f.Close()
		return fmt.Errorf("sync rollout file: %w", err)
	}
	return r.f.Close()
}
