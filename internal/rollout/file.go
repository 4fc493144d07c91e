package rollout

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/mfateev/agent-rollout/internal/models"
)

const defaultBlockSize = 32 * 1024

// FileSource reads a JSONL rollout file newest-first without scanning it
// eagerly: blocks are read backward from the requested position and split
// into lines on demand. Cursors are byte offsets of line starts.
//
// Zstd-compressed archives (*.zst) are supported by decompressing into
// memory on open, since a zstd stream cannot be seeked backward.
type FileSource struct {
	reader    io.ReaderAt
	closer    io.Closer
	size      int64
	path      string
	blockSize int
	logger    *slog.Logger

	// Serializes readers sharing this handle.
	mu sync.Mutex
}

// NewFileSource opens a rollout file for reverse reading. A nil logger
// falls back to slog.Default().
func NewFileSource(path string, logger *slog.Logger) (*FileSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.HasSuffix(path, ".zst") {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open rollout archive: %w", err)
		}
		defer f.Close()
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open rollout archive: %w", err)
		}
		defer dec.Close()
		data, err := io.ReadAll(dec)
		if err != nil {
			return nil, fmt.Errorf("decompress rollout archive: %w", err)
		}
		return &FileSource{
			reader:    bytes.NewReader(data),
			size:      int64(len(data)),
			path:      path,
			blockSize: defaultBlockSize,
			logger:    logger,
		}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rollout file: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat rollout file: %w", err)
	}
	return &FileSource{
		reader:    f,
		closer:    f,
		size:      st.Size(),
		path:      path,
		blockSize: defaultBlockSize,
		logger:    logger,
	}, nil
}

// Close releases the underlying file handle.
func (s *FileSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// LoadEarlier implements Source.
func (s *FileSource) LoadEarlier(ctx context.Context, before *Cursor, limit int) (*Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.NewTransientError("rollout file: load cancelled", err)
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	end := s.size
	if before != nil {
		end = int64(*before)
	}
	if end <= 0 {
		return &Chunk{ReachedStart: true}, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, models.NewTransientError("rollout file: load cancelled", err)
		}
		lines, reached, err := s.readLinesBefore(end, limit)
		if err != nil {
			return nil, err
		}
		chunk := &Chunk{ReachedStart: reached}
		for _, ln := range lines {
			item, ok, err := DecodeLineBytes(ln.data)
			if err != nil {
				return nil, err
			}
			if !ok {
				s.logger.Debug("skipping rollout record",
					"path", s.path, "offset", ln.off, "reason", "unknown or non-history kind")
				continue
			}
			chunk.Items = append(chunk.Items, StampedItem{Cursor: Cursor(ln.off), Item: item})
		}
		if reached || len(chunk.Items) > 0 {
			return chunk, nil
		}
		if len(lines) == 0 {
			// Only blank space before the requested position.
			return &Chunk{ReachedStart: true}, nil
		}
		// Every line in this page was skipped; keep paging older.
		end = lines[len(lines)-1].off
	}
}

type rawLine struct {
	off  int64
	data []byte
}

// readLinesBefore returns up to limit complete lines ending before the
// byte offset end, newest-first, reading backward block by block.
func (s *FileSource) readLinesBefore(end int64, limit int) ([]rawLine, bool, error) {
	var lines []rawLine
	pos := end
	var tail []byte // bytes of [pos, pos+len(tail)) not yet split into lines

	for pos > 0 && len(lines) < limit {
		n := int64(s.blockSize)
		if pos < n {
			n = pos
		}
		block := make([]byte, n)
		if _, err := s.reader.ReadAt(block, pos-n); err != nil {
			return nil, false, models.NewTransientError("rollout file read", err)
		}
		buf := append(block, tail...)
		base := pos - n

		i := len(buf)
		for len(lines) < limit {
			j := bytes.LastIndexByte(buf[:i], '\n')
			if j < 0 {
				break
			}
			line := buf[j+1 : i]
			if len(bytes.TrimSpace(line)) > 0 {
				lines = append(lines, rawLine{off: base + int64(j) + 1, data: append([]byte(nil), line...)})
			}
			i = j
		}
		tail = append([]byte(nil), buf[:i]...)
		pos = base
	}

	if pos == 0 && len(lines) < limit {
		if len(bytes.TrimSpace(tail)) > 0 {
			lines = append(lines, rawLine{off: 0, data: tail})
		}
		return lines, true, nil
	}
	reached := len(lines) > 0 && lines[len(lines)-1].off == 0
	return lines, reached, nil
}
