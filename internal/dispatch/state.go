package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog"

	"cockpit-alerts/internal/rules"
)

// State is the last dispatched fingerprint. Only the latest is kept.
type State struct {
	LastFingerprint string    `json:"last_fp"`
	SentAt          time.Time `json:"sent_at"`
}

// StateStore persists dispatch state. Load fails open to the zero State.
type StateStore interface {
	Load(ctx context.Context) State
	Save(ctx context.Context, state State) error
}

// FileStateStore keeps the state in a small JSON file.
type FileStateStore struct {
	path   string
	logger zerolog.Logger
}

// NewFileStateStore returns a state store backed by path.
func NewFileStateStore(path string, logger zerolog.Logger) *FileStateStore {
	return &FileStateStore{path: path, logger: logger.With().Str("component", "dispatch_state").Logger()}
}

func (s *FileStateStore) Load(_ context.Context) State {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("dispatch state unreadable; assuming none")
		}
		return State{}
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("dispatch state corrupt; assuming none")
		return State{}
	}
	return st
}

func (s *FileStateStore) Save(_ context.Context, state State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dispatch state: %w", err)
	}
	return rules.WriteFileReplace(s.path, append(data, '\n'))
}

var _ StateStore = (*FileStateStore)(nil)
