package rollout

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mfateev/agent-rollout/internal/models"
)

// SessionEntry describes one rollout file found in a sessions directory.
type SessionEntry struct {
	ID         string
	Path       string
	ModifiedAt time.Time
	SizeBytes  int64
	Meta       *models.SessionMetaItem
}

var rolloutFileRe = regexp.MustCompile(`^rollout-(.+)-([0-9a-fA-F-]{36})\.jsonl(\.zst)?$`)

// ListSessions enumerates rollout files in dir, newest-first by mtime.
// Session metadata is read from each file's head line when available.
func ListSessions(dir string) ([]SessionEntry, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read sessions directory: %w", err)
	}
	var entries []SessionEntry
	for _, de := range dirents {
		if de.IsDir() {
			continue
		}
		entry, ok := sessionEntryFor(filepath.Join(dir, de.Name()))
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ModifiedAt.After(entries[j].ModifiedAt)
	})
	return entries, nil
}

func sessionEntryFor(path string) (SessionEntry, bool) {
	m := rolloutFileRe.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return SessionEntry{}, false
	}
	st, err := os.Stat(path)
	if err != nil {
		return SessionEntry{}, false
	}
	entry := SessionEntry{
		ID:         m[2],
		Path:       path,
		ModifiedAt: st.ModTime(),
		SizeBytes:  st.Size(),
	}
	if meta := readSessionMeta(path); meta != nil {
		entry.Meta = meta
		if meta.ID != "" {
			entry.ID = meta.ID
		}
	}
	return entry, true
}

// readSessionMeta reads the head session_meta line of a plain rollout
// file. Best effort: archives and malformed heads return nil.
func readSessionMeta(path string) *models.SessionMetaItem {
	if strings.HasSuffix(path, ".zst") {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !sc.Scan() {
		return nil
	}
	var line Line
	if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
		return nil
	}
	if models.RolloutItemType(line.Type) != models.RolloutItemSessionMeta {
		return nil
	}
	var meta models.SessionMetaItem
	if err := json.Unmarshal(line.Payload, &meta); err != nil {
		return nil
	}
	return &meta
}

// WatchSessions invokes fn for each rollout file created in dir until ctx
// is cancelled. Used by resume pickers that stay open while new sessions
// finish.
func WatchSessions(ctx context.Context, dir string, fn func(SessionEntry)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create sessions watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch sessions directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, open := <-watcher.Events:
			if !open {
				return nil
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if entry, ok := sessionEntryFor(event.Name); ok {
				fn(entry)
			}
		case err, open := <-watcher.Errors:
			if !open {
				return nil
			}
			return fmt.Errorf("sessions watcher: %w", err)
		}
	}
}
