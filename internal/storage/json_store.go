package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/kisanai/backend/internal/logger"
)

// KV is the durable key-value boundary used by client-side state
// (preferences, the session token).
type KV interface {
	// Get reports ok=false for a key that was never set.
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
}

// FileStore persists all pairs as a single JSON document. Every write
// replaces the file through a temp file and rename.
type FileStore struct {
	mu       sync.Mutex
	filePath string
	log      *logger.Logger
}

// NewFileStore creates the data directory if needed.
func NewFileStore(dataDir, filename string, log *logger.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &FileStore{
		filePath: filepath.Join(dataDir, filename),
		log:      log,
	}, nil
}

// Open returns a FileStore, or a MemoryStore when the environment has no
// writable storage. The second case keeps working for the process lifetime.
func Open(dataDir, filename string, log *logger.Logger) KV {
	if log == nil {
		log = logger.Nop()
	}
	if dataDir == "" {
		log.Warn("no data directory configured, preferences will not survive restart")
		return NewMemoryStore()
	}
	fs, err := NewFileStore(dataDir, filename, log)
	if err != nil {
		log.Warn("durable storage unavailable, falling back to memory", "dir", dataDir, "error", err)
		return NewMemoryStore()
	}
	return fs
}

func (s *FileStore) Path() string { return s.filePath }

func (s *FileStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return "", false, err
	}
	v, ok := data[key]
	return v, ok, nil
}

func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	data[key] = value
	return s.save(data)
}

func (s *FileStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := data[key]; !ok {
		return nil
	}
	delete(data, key)
	return s.save(data)
}

// load reads the document. A missing file is empty; a corrupt one is logged
// and treated as empty so callers fall back to their defaults.
func (s *FileStore) load() (map[string]string, error) {
	data := make(map[string]string)

	file, err := os.Open(s.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return data, nil
		}
		return nil, err
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&data); err != nil {
		s.log.Warn("ignoring unreadable storage file", "path", s.filePath, "error", err)
		return make(map[string]string), nil
	}
	return data, nil
}

func (s *FileStore) save(data map[string]string) error {
	tempFile := s.filePath + ".tmp"
	file, err := os.Create(tempFile)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		file.Close()
		os.Remove(tempFile)
		return err
	}

	if err := file.Close(); err != nil {
		os.Remove(tempFile)
		return err
	}

	return os.Rename(tempFile, s.filePath)
}

// MemoryStore is the non-durable KV used when no storage is available and
// in tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryStore) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
