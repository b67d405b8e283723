package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/vitals/internal/atomicfile"
	"github.com/woozymasta/vitals/internal/models"
)

// FileStore keeps all snapshots in one JSON document keyed by server id.
// Every write is a read-modify-write of the whole document serialized by a mutex,
// and the document is replaced atomically so readers never observe a torn file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by the JSON file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// LoadSnapshots returns every stored document. A missing file is an empty store.
// A corrupted file is reported as an error, it is never silently replaced by readers.
func (s *FileStore) LoadSnapshots(_ context.Context) (map[string]models.Document, error) {
	return s.read()
}

// PutSnapshot replaces the document stored under id.
func (s *FileStore) PutSnapshot(_ context.Context, id string, doc models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.read()
	if err != nil {
		all, err = s.quarantine(err)
		if err != nil {
			return err
		}
	}

	all[id] = doc
	return atomicfile.WriteJSON(s.path, all, 0o644)
}

// DeleteSnapshot removes the document stored under id; deleting a missing id is a no-op.
func (s *FileStore) DeleteSnapshot(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := all[id]; !ok {
		return nil
	}

	delete(all, id)
	return atomicfile.WriteJSON(s.path, all, 0o644)
}

func (s *FileStore) read() (map[string]models.Document, error) {
	all := make(map[string]models.Document)
	err := atomicfile.ReadJSON(s.path, &all)
	if os.IsNotExist(err) {
		return make(map[string]models.Document), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot store %s: %w", s.path, err)
	}
	if all == nil {
		all = make(map[string]models.Document)
	}

	return all, nil
}

// quarantine moves an undecodable store aside so writes can continue with an empty one.
// Errors other than decoding failures are returned unchanged.
func (s *FileStore) quarantine(cause error) (map[string]models.Document, error) {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if !errors.As(cause, &syntaxErr) && !errors.As(cause, &typeErr) {
		return nil, cause
	}

	aside := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
	if err := os.Rename(s.path, aside); err != nil {
		return nil, fmt.Errorf("quarantine corrupted store: %w", err)
	}

	log.Error().
		Err(cause).
		Str("path", s.path).
		Str("moved_to", aside).
		Msg("Snapshot store corrupted, starting a new one")

	return make(map[string]models.Document), nil
}
