package typesetd

import "sync"

// FileStore is the virtual filesystem overlay of caller-uploaded auxiliary
// files. Entries live for the lifetime of the worker process; there is no
// delete operation. A nil value is a placeholder: it stays in the store
// but is skipped when loading an engine instance.
type FileStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

// NewFileStore returns an empty store.
func NewFileStore() *FileStore {
	return &FileStore{files: make(map[string][]byte)}
}

// Put inserts or overwrites the entry at path. Re-uploading a path
// replaces the previous bytes wholesale.
func (fs *FileStore) Put(path string, data []byte) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.files[path] = data
}

// Snapshot returns a copy of the current mapping for consumption by one
// engine preparation. Later Puts do not affect a taken snapshot.
func (fs *FileStore) Snapshot() map[string][]byte {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make(map[string][]byte, len(fs.files))
	for path, data := range fs.files {
		out[path] = data
	}
	return out
}

// Len reports the number of entries, placeholders included.
func (fs *FileStore) Len() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.files)
}
