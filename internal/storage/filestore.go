package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pfrederiksen/pokertour/internal/cache"
)

// cacheDocument is the on-disk layout of FileStore
type cacheDocument struct {
	Entries   map[string]cache.Entry `json:"entries"`
	UpdatedAt string                 `json:"updated_at"`
}

// FileStore persists cache entries in a single JSON document keyed by filter signature.
// It implements cache.Persister.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a FileStore writing to path. The parent directory is created.
func NewFileStore(path string) (*FileStore, error) {
	path, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Path returns the resolved document path
func (f *FileStore) Path() string {
	return f.path
}

// Load returns every stored entry, expired or not
func (f *FileStore) Load() ([]cache.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return nil, err
	}

	entries := make([]cache.Entry, 0, len(doc.Entries))
	for key, entry := range doc.Entries {
		entry.Key = key
		entries = append(entries, entry)
	}
	return entries, nil
}

// Save stores or replaces an entry
func (f *FileStore) Save(entry cache.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}
	doc.Entries[entry.Key] = entry
	return f.write(doc)
}

// Delete removes an entry
func (f *FileStore) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}
	if _, exists := doc.Entries[key]; !exists {
		return nil
	}
	delete(doc.Entries, key)
	return f.write(doc)
}

// Clear removes every entry
func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.write(&cacheDocument{Entries: make(map[string]cache.Entry)})
}

func (f *FileStore) read() (*cacheDocument, error) {
	doc := &cacheDocument{Entries: make(map[string]cache.Entry)}

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return nil, fmt.Errorf("reading cache file: %w", err)
	}

	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parsing cache file: %w", err)
	}
	if doc.Entries == nil {
		doc.Entries = make(map[string]cache.Entry)
	}
	return doc, nil
}

func (f *FileStore) write(doc *cacheDocument) error {
	doc.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache file: %w", err)
	}
	if err := writeFileAtomic(f.path, data); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	return nil
}
