package cloud

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"sync"

	"extranef/internal/nef"
)

// MemoryStore is an in-memory implementation of the CloudStore interface,
// making it useful for testing. Ids are slash-separated paths like the
// filesystem store's. This implementation is safe for concurrent use.
type MemoryStore struct {
	mu        sync.RWMutex
	folders   map[string]bool
	objects   map[string][]byte // id -> content
	mimeTypes map[string]string // id -> mime type
	failWith  error
}

// NewMemoryStore creates an empty store. The root folder "" always exists.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		folders:   map[string]bool{"": true},
		objects:   make(map[string][]byte),
		mimeTypes: make(map[string]string),
	}
}

// FailWith makes every subsequent call return err. A nil err clears it.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

func (m *MemoryStore) EnsureFolder(ctx context.Context, parentID, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validateName(name); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return "", m.failWith
	}
	if !m.folders[parentID] {
		return "", fmt.Errorf("folder not found: %s", parentID)
	}
	id := path.Join(parentID, name)
	m.folders[id] = true
	return id, nil
}

func (m *MemoryStore) Upload(ctx context.Context, parentID, name, mimeType string, r io.Reader) (*nef.RemoteObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	if !m.folders[parentID] {
		return nil, fmt.Errorf("folder not found: %s", parentID)
	}
	id := path.Join(parentID, name)
	m.objects[id] = data
	m.mimeTypes[id] = mimeType
	return &nef.RemoteObject{ID: id, Name: name, Link: "memory://" + id}, nil
}

// Object returns the content and mime type stored under id.
func (m *MemoryStore) Object(id string) (data []byte, mimeType string, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok = m.objects[id]
	return data, m.mimeTypes[id], ok
}

// Folders returns every folder id except the root, sorted.
func (m *MemoryStore) Folders() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for id := range m.folders {
		if id != "" {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Compile-time check that MemoryStore implements nef.CloudStore interface
var _ nef.CloudStore = (*MemoryStore)(nil)
