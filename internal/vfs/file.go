package vfs

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"
)

// ErrInval is returned by every mutating operation: the tree is
// read-only for the remainder of the workload's lifetime.
var ErrInval = errors.New("vfs: invalid operation on a read-only file")

// File is a borrow into the archive's backing buffer. It remembers the
// tar entry it was populated from by name and occurrence index, not by
// a cached byte range, and re-scans the archive on every read.
type File struct {
	buf        []byte
	entryName  string
	occurrence int
}

// locate re-scans buf from the start, returns the matching tar.Header
// and a reader positioned at the start of its payload.
func (f *File) locate() (*tar.Header, *tar.Reader, error) {
	tr := tar.NewReader(bytes.NewReader(f.buf))
	seen := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, nil, fmt.Errorf("vfs: archive entry %q (#%d) no longer present", f.entryName, f.occurrence)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("vfs: %w", err)
		}
		if hdr.Name != f.entryName {
			continue
		}
		if seen == f.occurrence {
			return hdr, tr, nil
		}
		seen++
	}
}

// Size returns the entry's declared length, or 0 if the archive can no
// longer be scanned — callers needing a precise size on the error path
// must check that condition themselves, per contract.
func (f *File) Size() int64 {
	hdr, _, err := f.locate()
	if err != nil {
		return 0
	}
	return hdr.Size
}

// Pread reads len(buf) bytes (or fewer, at EOF) starting at offset,
// returning the number of bytes read.
func (f *File) Pread(buf []byte, offset int64) (int, error) {
	hdr, tr, err := f.locate()
	if err != nil {
		return 0, err
	}
	if offset >= hdr.Size {
		return 0, nil
	}
	if offset > 0 {
		if _, err := io.CopyN(io.Discard, tr, offset); err != nil {
			return 0, fmt.Errorf("vfs: %w", err)
		}
	}
	remaining := hdr.Size - offset
	want := int64(len(buf))
	if want > remaining {
		want = remaining
	}
	n, err := io.ReadFull(tr, buf[:want])
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return n, fmt.Errorf("vfs: %w", err)
	}
	return n, nil
}

// Preadv loops Pread across iovs, advancing offset by each slice's length.
func (f *File) Preadv(iovs [][]byte, offset int64) (int, error) {
	total := 0
	for _, iov := range iovs {
		n, err := f.Pread(iov, offset)
		total += n
		offset += int64(n)
		if err != nil {
			return total, err
		}
		if n < len(iov) {
			break
		}
	}
	return total, nil
}

// Pwrite, Pwritev and Resize all reject with ErrInval: the tree is
// immutable for the remainder of the workload's lifetime.
func (f *File) Pwrite([]byte, int64) (int, error)    { return 0, ErrInval }
func (f *File) Pwritev([][]byte, int64) (int, error) { return 0, ErrInval }
func (f *File) Resize(int64) error                   { return ErrInval }

// ReadAt implements io.ReaderAt over Pread, returning io.EOF on a short
// read. The WASI FS mount does not use it: Tree.FS hands out fsFile
// wrappers instead.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	n, err := f.Pread(p, off)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// fsFile adapts *File to io/fs.File for callers that want the stdlib
// filesystem interface rather than the raw pread contract above.
type fsFile struct {
	f      *File
	name   string
	offset int64
}

func (ff *fsFile) Stat() (fs.FileInfo, error) {
	hdr, _, err := ff.f.locate()
	if err != nil {
		return nil, err
	}
	return tarFileInfo{hdr: hdr, name: ff.name}, nil
}

func (ff *fsFile) Read(p []byte) (int, error) {
	n, err := ff.f.Pread(p, ff.offset)
	ff.offset += int64(n)
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

func (ff *fsFile) Close() error { return nil }

type tarFileInfo struct {
	hdr  *tar.Header
	name string
}

func (i tarFileInfo) Name() string       { return i.name }
func (i tarFileInfo) Size() int64        { return i.hdr.Size }
func (i tarFileInfo) Mode() fs.FileMode  { return fs.FileMode(i.hdr.Mode) & fs.ModePerm }
func (i tarFileInfo) ModTime() time.Time { return i.hdr.ModTime }
func (i tarFileInfo) IsDir() bool        { return false }
func (i tarFileInfo) Sys() any           { return i.hdr }
