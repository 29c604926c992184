package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// ErrUploadNotFound is returned when a session has no raw file in a slot.
var ErrUploadNotFound = errors.New("uploaded file not found")

const (
	slotSep    = "__"
	metaSuffix = ".meta"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._ -]`)

// RawFile describes an uploaded file waiting for final import.
type RawFile struct {
	Slot string `json:"slot"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Uploads keeps raw uploaded bytes on disk until they are imported. Files
// live at dir/<session>/<slot>__<filename>.
type Uploads struct {
	dir string
}

// NewUploads creates dir if needed.
func NewUploads(dir string) (*Uploads, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Uploads{dir: dir}, nil
}

func (u *Uploads) sessionDir(session string) (string, error) {
	if !ValidSession(session) {
		return "", fmt.Errorf("%w: session %q", ErrInvalidKey, session)
	}
	return filepath.Join(u.dir, session), nil
}

// SanitizeFilename strips directories and characters that are unsafe in a
// path, keeping the name recognizable.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return "upload.csv"
	}
	return name
}

// Put stores data in slot, replacing any earlier file in that slot.
func (u *Uploads) Put(session, slot, filename string, data []byte) error {
	dir, err := u.sessionDir(session)
	if err != nil {
		return err
	}
	if !namePattern.MatchString(slot) || strings.Contains(slot, slotSep) {
		return fmt.Errorf("%w: slot %q", ErrInvalidKey, slot)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := u.Remove(session, slot); err != nil && !errors.Is(err, ErrUploadNotFound) {
		return err
	}
	p := filepath.Join(dir, slot+slotSep+SanitizeFilename(filename))
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write upload: %w", err)
	}
	return nil
}

// List returns the raw files of a session ordered by slot.
func (u *Uploads) List(session string) ([]RawFile, error) {
	dir, err := u.sessionDir(session)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	var files []RawFile
	for _, e := range entries {
		slot, name, ok := strings.Cut(e.Name(), slotSep)
		if e.IsDir() || !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, RawFile{Slot: slot, Name: name, Size: info.Size()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Slot < files[j].Slot })
	return files, nil
}

func (u *Uploads) find(session, slot string) (RawFile, string, error) {
	files, err := u.List(session)
	if err != nil {
		return RawFile{}, "", err
	}
	for _, f := range files {
		if f.Slot == slot {
			return f, filepath.Join(u.dir, session, f.Slot+slotSep+f.Name), nil
		}
	}
	return RawFile{}, "", fmt.Errorf("%w: %s/%s", ErrUploadNotFound, session, slot)
}

// Get returns the file in slot and its bytes.
func (u *Uploads) Get(session, slot string) (RawFile, []byte, error) {
	f, p, err := u.find(session, slot)
	if err != nil {
		return RawFile{}, nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return RawFile{}, nil, fmt.Errorf("read upload: %w", err)
	}
	return f, data, nil
}

// Remove deletes the file in slot.
func (u *Uploads) Remove(session, slot string) error {
	_, p, err := u.find(session, slot)
	if err != nil {
		return err
	}
	return os.Remove(p)
}

// PutMeta stores a small JSON document alongside the session's uploads.
func (u *Uploads) PutMeta(session, name string, v any) error {
	dir, err := u.sessionDir(session)
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, name+metaSuffix), data, 0o644)
}

// GetMeta decodes a document written by PutMeta. A missing document leaves v
// untouched and returns nil.
func (u *Uploads) GetMeta(session, name string, v any) error {
	dir, err := u.sessionDir(session)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(filepath.Join(dir, name+metaSuffix))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	return json.Unmarshal(data, v)
}

// RemoveSession deletes every raw file and document of session.
func (u *Uploads) RemoveSession(session string) error {
	dir, err := u.sessionDir(session)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}
