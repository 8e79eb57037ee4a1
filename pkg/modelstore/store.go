// Package modelstore persists trained model artifacts to a fixed directory.
// Artifacts are gob-encoded files named {kind}_model_{YYYYMMDD_HHMMSS}.gob;
// a counter suffix disambiguates fits completing within the same second, so
// concurrent writers never collide.
package modelstore

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Kind tags the three model kinds the store manages. Operations dispatching
// on Kind switch exhaustively over these values and reject anything else.
type Kind string

const (
	KindClustering Kind = "clustering"
	KindAnomaly    Kind = "anomaly"
	KindPrediction Kind = "prediction"
)

// Kinds lists every valid model kind.
func Kinds() []Kind {
	return []Kind{KindClustering, KindAnomaly, KindPrediction}
}

// Valid reports whether k is one of the three known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindClustering, KindAnomaly, KindPrediction:
		return true
	default:
		return false
	}
}

const fileExt = ".gob"

// Store is a filesystem-backed model store. Artifacts accumulate until
// externally pruned; the store never expires them.
type Store struct {
	dir    string
	mu     sync.Mutex
	logger zerolog.Logger
}

// New creates the store directory if needed and returns a Store over it.
func New(dir string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create model directory: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: logger.With().Str("component", "model_store").Logger(),
	}, nil
}

// Dir returns the store's directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save gob-encodes the artifact under a timestamp-qualified name and
// returns that name. Names follow {kind}_model_{YYYYMMDD_HHMMSS}.gob; when
// two saves land in the same second the later ones get _1, _2, ... before
// the extension.
func (s *Store) Save(kind Kind, artifact interface{}) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("unknown model kind: %s", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	base := fmt.Sprintf("%s_model_%s", kind, time.Now().Format("20060102_150405"))
	name := base + fileExt
	for i := 1; ; i++ {
		if _, err := os.Stat(filepath.Join(s.dir, name)); os.IsNotExist(err) {
			break
		}
		name = fmt.Sprintf("%s_%d%s", base, i, fileExt)
	}

	file, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("failed to create model file: %w", err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(artifact); err != nil {
		os.Remove(filepath.Join(s.dir, name))
		return "", fmt.Errorf("failed to encode model: %w", err)
	}

	s.logger.Info().Str("kind", string(kind)).Str("model", name).Msg("Model saved")
	return name, nil
}

// Load decodes the named artifact into the provided value, which must be a
// pointer to the concrete model type for the artifact's kind.
func (s *Store) Load(name string, artifact interface{}) error {
	file, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("model file not found: %s", name)
	}
	defer file.Close()

	if err := gob.NewDecoder(file).Decode(artifact); err != nil {
		return fmt.Errorf("failed to decode model %s: %w", name, err)
	}

	s.logger.Info().Str("model", name).Msg("Model loaded")
	return nil
}

// List enumerates stored model names of the given kind by filename prefix,
// sorted ascending (oldest first).
func (s *Store) List(kind Kind) ([]string, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown model kind: %s", kind)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	prefix := string(kind) + "_model_"
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, fileExt) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// ListAll enumerates stored model names for every kind.
func (s *Store) ListAll() (map[Kind][]string, error) {
	all := make(map[Kind][]string, 3)
	for _, kind := range Kinds() {
		names, err := s.List(kind)
		if err != nil {
			return nil, err
		}
		all[kind] = names
	}
	return all, nil
}
