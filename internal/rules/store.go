package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// Store persists the ordered rule list.
// List fails open: an absent or unreadable store yields an empty slice.
type Store interface {
	List(ctx context.Context) []Rule
	Save(ctx context.Context, rules []Rule) error
	Add(ctx context.Context, rule Rule) error
	Remove(ctx context.Context, index int) error
}

// FileStore keeps rules in a single JSON file, rewritten on every mutation.
// Mutations within one process are serialised; writers in other processes
// still race.
type FileStore struct {
	mu     sync.Mutex
	path   string
	logger zerolog.Logger
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string, logger zerolog.Logger) *FileStore {
	return &FileStore{path: path, logger: logger.With().Str("component", "rule_store").Logger()}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// List reads the persisted rules.
func (s *FileStore) List(_ context.Context) []Rule {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("rule store unreadable; treating as empty")
		}
		return []Rule{}
	}

	var rules []Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("rule store corrupt; treating as empty")
		return []Rule{}
	}
	if rules == nil {
		return []Rule{}
	}
	for i := range rules {
		rules[i] = rules[i].Normalize()
	}
	return rules
}

// Save overwrites the store with rules, normalised as List returns them.
func (s *FileStore) Save(_ context.Context, rules []Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(rules)
}

func (s *FileStore) save(rules []Rule) error {
	normalized := make([]Rule, len(rules))
	for i, r := range rules {
		normalized[i] = r.Normalize()
	}
	data, err := json.MarshalIndent(normalized, "", "  ")
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	return writeFileReplace(s.path, append(data, '\n'))
}

// Add appends rule to the stored list.
func (s *FileStore) Add(ctx context.Context, rule Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(append(s.List(ctx), rule))
}

// Remove deletes the rule at index. Out of range indexes are ignored.
func (s *FileStore) Remove(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.List(ctx)
	if index < 0 || index >= len(current) {
		return nil
	}
	return s.save(append(current[:index:index], current[index+1:]...))
}

// writeFileReplace writes to a sibling temp file and renames it over path,
// so a failed write leaves the previous content in place.
func writeFileReplace(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create store directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// WriteFileReplace exposes the temp-and-rename writer to sibling stores.
func WriteFileReplace(path string, data []byte) error {
	return writeFileReplace(path, data)
}

var _ Store = (*FileStore)(nil)
