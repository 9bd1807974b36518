package calibration

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/san-kum/crawlerctl/internal/vehicle"
	"gopkg.in/yaml.v3"
)

const DefaultNamespace = "rc-crawler"

// FileStore keeps trims in a YAML file, one mapping per namespace:
//
//	rc-crawler:
//	  trim: 2.5
//	  ttrim: -1
type FileStore struct {
	path      string
	namespace string
}

func NewFileStore(path, namespace string) *FileStore {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &FileStore{path: path, namespace: namespace}
}

// Load returns zero trims when the file or the namespace does not exist yet.
func (s *FileStore) Load() (vehicle.Trims, error) {
	all, err := s.readAll()
	if err != nil {
		return vehicle.Trims{}, err
	}
	return all[s.namespace], nil
}

// Save rewrites the file, keeping the other namespaces.
func (s *FileStore) Save(t vehicle.Trims) error {
	all, err := s.readAll()
	if err != nil {
		return err
	}
	all[s.namespace] = t

	data, err := yaml.Marshal(all)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) readAll() (map[string]vehicle.Trims, error) {
	all := make(map[string]vehicle.Trims)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return all, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	if all == nil {
		all = make(map[string]vehicle.Trims)
	}
	return all, nil
}

// MemoryStore keeps trims in memory.
type MemoryStore struct {
	mu    sync.Mutex
	trims vehicle.Trims
	saves int
	err   error
}

func NewMemoryStore(initial vehicle.Trims) *MemoryStore {
	return &MemoryStore{trims: initial}
}

// FailWith makes Save return err until cleared with nil.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *MemoryStore) Load() (vehicle.Trims, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trims, nil
}

func (s *MemoryStore) Save(t vehicle.Trims) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.trims = t
	s.saves++
	return nil
}

func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
