package voicenote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"callbridge/pkg/jsonl"
)

const indexFile = "voice-notes.jsonl"

var ErrInvalidNote = errors.New("voicenote: id and caller number are required")

// Index records note metadata.
type Index interface {
	Save(ctx context.Context, n Note) error
}

// FileStore keeps audio files next to a JSONL index in one directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore { return &FileStore{dir: dir} }

func (s *FileStore) Dir() string       { return s.dir }
func (s *FileStore) IndexPath() string { return filepath.Join(s.dir, indexFile) }

// SaveAudio writes wav under a name derived from id and returns that name.
func (s *FileStore) SaveAudio(id string, wav []byte) (string, error) {
	if id == "" || filepath.Base(id) != id {
		return "", fmt.Errorf("voicenote: bad audio id %q", id)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("voicenote: mkdir: %w", err)
	}
	name := id + ".wav"
	tmp := filepath.Join(s.dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, wav, 0o644); err != nil {
		return "", fmt.Errorf("voicenote: write audio: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("voicenote: write audio: %w", err)
	}
	return name, nil
}

func (s *FileStore) Save(ctx context.Context, n Note) error {
	if n.ID == "" || n.CallerNumber == "" {
		return ErrInvalidNote
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := jsonl.Append(s.IndexPath(), n); err != nil {
		return fmt.Errorf("voicenote: index: %w", err)
	}
	return nil
}

// List returns notes newest first.
func (s *FileStore) List(ctx context.Context) ([]Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	notes, _, err := jsonl.ReadAll[Note](s.IndexPath())
	if err != nil {
		return nil, fmt.Errorf("voicenote: list: %w", err)
	}
	sort.SliceStable(notes, func(i, j int) bool { return notes[i].CreatedAt.After(notes[j].CreatedAt) })
	return notes, nil
}
