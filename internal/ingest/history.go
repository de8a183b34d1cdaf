package ingest

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/bibmerge/internal/model"
)

// History appends every accepted record to a JSONL file so the canonical
// state can be rebuilt by replaying history files in name order.
type History struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *bufio.Writer
	n    int
}

// OpenHistory creates a new history file in dir. File names sort in
// creation order.
func OpenHistory(dir string, now time.Time) (*History, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "ingest: create history dir %s", dir)
	}
	name := now.UTC().Format("20060102T150405.000Z") + "-" + uuid.NewString()[:8] + ".jsonl"
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open history %s", path)
	}
	return &History{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

// Path returns the history file path.
func (h *History) Path() string { return h.path }

// Len returns the number of records appended.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.n
}

// Append writes rec as one line.
func (h *History) Append(rec model.RawRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "ingest: marshal history record")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.w.Write(append(b, '\n')); err != nil {
		return eris.Wrap(err, "ingest: write history")
	}
	h.n++
	return nil
}

// Close flushes and closes the file. An empty history file is removed.
func (h *History) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.w.Flush(); err != nil {
		_ = h.f.Close()
		return eris.Wrap(err, "ingest: flush history")
	}
	if err := h.f.Close(); err != nil {
		return eris.Wrap(err, "ingest: close history")
	}
	if h.n == 0 {
		if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
			return eris.Wrap(err, "ingest: remove empty history")
		}
	}
	return nil
}

// HistoryFiles lists the JSONL files in dir in replay order.
func HistoryFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "ingest: read history dir %s", dir)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
