package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

type memoryFile struct {
	content string
	version string
}

// MemoryHost is an in-memory, thread-safe Host and RawReader. It enforces
// the same version-token precondition as a real host, which makes it
// suitable for tests and for single-process development setups.
type MemoryHost struct {
	mu      sync.RWMutex
	files   map[string]*memoryFile
	commits []string
}

// NewMemoryHost creates an empty MemoryHost.
func NewMemoryHost() *MemoryHost {
	return &MemoryHost{files: make(map[string]*memoryFile)}
}

func memoryKey(path, branch string) string {
	return branch + ":" + path
}

// Get implements Host.
func (h *MemoryHost) Get(_ context.Context, path, branch string) (*Snapshot, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	f, ok := h.files[memoryKey(path, branch)]
	if !ok {
		return &Snapshot{}, nil
	}
	return &Snapshot{Content: f.content, VersionToken: f.version, Exists: true}, nil
}

// Put implements Host.
func (h *MemoryHost) Put(_ context.Context, path string, req PutRequest) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := memoryKey(path, req.Branch)
	f, exists := h.files[key]
	switch {
	case exists && req.VersionToken == "":
		return "", &WriteError{Path: path, Status: http.StatusUnprocessableEntity, Err: errors.New("version token required to update existing file")}
	case exists && req.VersionToken != f.version:
		return "", &WriteError{Path: path, Status: http.StatusConflict, Err: fmt.Errorf("version token %s does not match %s", req.VersionToken, f.version)}
	case !exists && req.VersionToken != "":
		return "", &WriteError{Path: path, Status: http.StatusConflict, Err: errors.New("file does not exist")}
	}

	writeID := digest(fmt.Sprintf("%d|%s|%s|%s", len(h.commits), key, req.Message, req.Content))[:40]
	h.files[key] = &memoryFile{content: req.Content, version: digest(req.Content)[:40]}
	h.commits = append(h.commits, writeID)
	return writeID, nil
}

// ReadRaw implements RawReader.
func (h *MemoryHost) ReadRaw(_ context.Context, path, branch string) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	f, ok := h.files[memoryKey(path, branch)]
	if !ok {
		return "", &FetchError{Path: path, Status: http.StatusNotFound, Err: errors.New("not found")}
	}
	return f.content, nil
}

// CommitURL implements CommitLinker.
func (h *MemoryHost) CommitURL(writeID string) string {
	return "memory://commit/" + writeID
}

// Commits returns the write ids issued so far, oldest first.
func (h *MemoryHost) Commits() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, len(h.commits))
	copy(out, h.commits)
	return out
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
