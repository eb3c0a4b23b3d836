package settings

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
)

// FileStore keeps the settings in a JSON document keyed by Key. Writes go
// through a temp file and rename so a crash never leaves a partial record.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) Load(ctx context.Context) (CaseSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return CaseSettings{}, err
	}
	raw, ok := doc[Key]
	if !ok {
		def := Defaults()
		if err := s.write(doc, def); err != nil {
			return CaseSettings{}, err
		}
		return def, nil
	}
	return decode(raw)
}

func (s *FileStore) Save(ctx context.Context, cs CaseSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	return s.write(doc, cs)
}

func (s *FileStore) read() (map[string]json.RawMessage, error) {
	blob, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, eris.Wrap(err, "read settings file")
	}
	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal(blob, &doc); err != nil {
		return nil, eris.Wrap(err, "decode settings file")
	}
	return doc, nil
}

func (s *FileStore) write(doc map[string]json.RawMessage, cs CaseSettings) error {
	val, err := json.Marshal(cs)
	if err != nil {
		return eris.Wrap(err, "encode settings")
	}
	doc[Key] = val
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return eris.Wrap(err, "create settings dir")
	}
	blob, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return eris.Wrap(err, "encode settings file")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return eris.Wrap(err, "write settings file")
	}
	return eris.Wrap(os.Rename(tmp, s.path), "replace settings file")
}
