package storage

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/afero"
)

var (
	ErrNotExist    = errors.New("storage: document does not exist")
	ErrInvalidName = errors.New("storage: invalid document name")
)

// FileStore keeps the rendered .xml documents of every site under
// <dir>/<site>/<name>, so the archive path can serve them without
// touching the origin cache.
type FileStore struct {
	fs  afero.Fs
	dir string
}

func NewFileStore(fsys afero.Fs, dir string) *FileStore {
	return &FileStore{fs: fsys, dir: dir}
}

// NewOsFileStore is a FileStore on the local disk.
func NewOsFileStore(dir string) *FileStore {
	return NewFileStore(afero.NewOsFs(), dir)
}

func (s *FileStore) siteDir(site uint64) string {
	return filepath.Join(s.dir, strconv.FormatUint(site, 10))
}

// 只接受单层文件名，防止路径穿越
func (s *FileStore) path(site uint64, name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", pkgerrors.Wrapf(ErrInvalidName, "name=%q", name)
	}
	return filepath.Join(s.siteDir(site), name), nil
}

// Write replaces the document atomically and stamps it with mod.
func (s *FileStore) Write(site uint64, name string, body []byte, mod time.Time) error {
	p, err := s.path(site, name)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(s.siteDir(site), 0o755); err != nil {
		return pkgerrors.Wrapf(err, "storage mkdir site=%d", site)
	}
	tmp := p + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, body, 0o644); err != nil {
		return pkgerrors.Wrapf(err, "storage write %s", tmp)
	}
	if err := s.fs.Rename(tmp, p); err != nil {
		_ = s.fs.Remove(tmp)
		return pkgerrors.Wrapf(err, "storage rename %s", p)
	}
	if !mod.IsZero() {
		if err := s.fs.Chtimes(p, mod, mod); err != nil {
			return pkgerrors.Wrapf(err, "storage chtimes %s", p)
		}
	}
	return nil
}

// Read returns the document body and its modification time.
func (s *FileStore) Read(site uint64, name string) ([]byte, time.Time, error) {
	p, err := s.path(site, name)
	if err != nil {
		return nil, time.Time{}, err
	}
	info, err := s.fs.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, time.Time{}, ErrNotExist
		}
		return nil, time.Time{}, pkgerrors.Wrapf(err, "storage stat %s", p)
	}
	body, err := afero.ReadFile(s.fs, p)
	if err != nil {
		return nil, time.Time{}, pkgerrors.Wrapf(err, "storage read %s", p)
	}
	return body, info.ModTime(), nil
}

// Purge removes every document of site.
func (s *FileStore) Purge(site uint64) error {
	return pkgerrors.Wrapf(s.fs.RemoveAll(s.siteDir(site)), "storage purge site=%d", site)
}
