package preview2

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	hosterrors "github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/resource"
)

// FSError is a filesystem failure carrying a WASI error-code case name.
type FSError struct {
	Err  error
	Code string
}

func (e *FSError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Err.Error()
	}
	return e.Code
}

func (e *FSError) Unwrap() error { return e.Err }

// ErrorCode maps err to a wasi:filesystem error-code case.
func ErrorCode(err error) string {
	var fe *FSError
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, hosterrors.ErrInvalidHandle):
		return "bad-descriptor"
	case errors.Is(err, fs.ErrNotExist):
		return "no-entry"
	case errors.Is(err, fs.ErrPermission):
		return "access"
	case errors.Is(err, fs.ErrExist):
		return "exist"
	case errors.Is(err, fs.ErrInvalid):
		return "invalid"
	}
	return "io"
}

func fsError(code string, err error) *FSError {
	return &FSError{Code: code, Err: err}
}

// Descriptor is an open file or directory inside an allow-listed host
// directory. Every path is resolved through the directory's os.Root, so
// nothing outside it is reachable. Descriptors are read-only.
type Descriptor struct {
	root *os.Root
	path string
	dir  bool
}

// NewDescriptor creates a descriptor for p, relative to root.
func NewDescriptor(root *os.Root, p string, dir bool) *Descriptor {
	return &Descriptor{root: root, path: p, dir: dir}
}

func (d *Descriptor) Kind() resource.Kind { return resource.KindDescriptor }

// Path returns the descriptor's path relative to its preopen.
func (d *Descriptor) Path() string { return d.path }

// IsDir reports whether the descriptor is a directory.
func (d *Descriptor) IsDir() bool { return d.dir }

// Type returns the descriptor-type case name.
func (d *Descriptor) Type() (string, error) {
	info, err := d.root.Lstat(d.path)
	if err != nil {
		return "", err
	}
	return fileType(info.Mode()), nil
}

// Stat returns file information.
func (d *Descriptor) Stat() (fs.FileInfo, error) {
	return d.root.Stat(d.path)
}

// OpenAt opens p relative to this directory. Paths that are absolute or
// climb out of the preopen are rejected.
func (d *Descriptor) OpenAt(p string, directory, create bool) (*Descriptor, error) {
	if !d.dir {
		return nil, fsError("not-directory", nil)
	}
	if create {
		return nil, fsError("read-only", nil)
	}
	if !filepath.IsLocal(filepath.FromSlash(p)) && p != "." {
		return nil, fsError("not-permitted", errors.New("path escapes the preopened directory"))
	}

	target := path.Join(d.path, p)
	info, err := d.root.Stat(target)
	if err != nil {
		return nil, err
	}
	if directory && !info.IsDir() {
		return nil, fsError("not-directory", nil)
	}
	return &Descriptor{root: d.root, path: target, dir: info.IsDir()}, nil
}

// Read reads up to length bytes at offset and reports whether the end of
// the file was reached.
func (d *Descriptor) Read(length, offset uint64) ([]byte, bool, error) {
	if d.dir {
		return nil, false, fsError("is-directory", nil)
	}
	f, err := d.root.Open(d.path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	buf := make([]byte, min(length, MaxReadSize))
	n, err := f.ReadAt(buf, int64(offset))
	switch {
	case errors.Is(err, io.EOF):
		return buf[:n], true, nil
	case err != nil:
		return nil, false, err
	}
	return buf[:n], false, nil
}

// ReadDirectory lists the directory sorted by name.
func (d *Descriptor) ReadDirectory() (*DirectoryEntryStream, error) {
	if !d.dir {
		return nil, fsError("not-directory", nil)
	}
	f, err := d.root.Open(d.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	list, err := f.ReadDir(-1)
	if err != nil {
		return nil, err
	}
	entries := make([]DirEntry, 0, len(list))
	for _, e := range list {
		entries = append(entries, DirEntry{Name: e.Name(), Type: fileType(e.Type())})
	}
	slices.SortFunc(entries, func(a, b DirEntry) int { return strings.Compare(a.Name, b.Name) })
	return &DirectoryEntryStream{entries: entries}, nil
}

func fileType(mode fs.FileMode) string {
	switch {
	case mode.IsRegular():
		return "regular-file"
	case mode.IsDir():
		return "directory"
	case mode&fs.ModeSymlink != 0:
		return "symbolic-link"
	case mode&fs.ModeNamedPipe != 0:
		return "fifo"
	case mode&fs.ModeSocket != 0:
		return "socket"
	case mode&fs.ModeCharDevice != 0:
		return "character-device"
	case mode&fs.ModeDevice != 0:
		return "block-device"
	}
	return "unknown"
}

// DirEntry is one directory-entry.
type DirEntry struct {
	Type string
	Name string
}

// DirectoryEntryStream iterates over a directory listing.
type DirectoryEntryStream struct {
	entries []DirEntry
	offset  int
}

func (s *DirectoryEntryStream) Kind() resource.Kind { return resource.KindDirectoryStream }

// Next returns the next entry, or false at the end.
func (s *DirectoryEntryStream) Next() (DirEntry, bool) {
	if s.offset >= len(s.entries) {
		return DirEntry{}, false
	}
	e := s.entries[s.offset]
	s.offset++
	return e, true
}
