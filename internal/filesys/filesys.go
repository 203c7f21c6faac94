// Package filesys provides the tiny file system surface the config
// loader needs, so it can be unit-tested against an in-memory
// implementation instead of the real disk.
package filesys

import (
	"io/fs"
	"os"
)

// ReadWriteFS is the surface internal/config needs: read an existing
// file, and create the directory that holds it if missing. It is
// intentionally smaller than os.File since the loader never needs
// random-access writes or directory iteration.
type ReadWriteFS interface {
	Stat(string) (fs.FileInfo, error)
	MkdirAll(string, os.FileMode) error
	Open(string) (*os.File, error)
}

// OS returns a ReadWriteFS that delegates to the standard library.
func OS() OsFS { return OsFS{} }

// OsFS implements ReadWriteFS against the local disk.
type OsFS struct{}

func (OsFS) Stat(p string) (fs.FileInfo, error)     { return os.Stat(p) }
func (OsFS) MkdirAll(p string, m os.FileMode) error { return os.MkdirAll(p, m) }
func (OsFS) Open(p string) (*os.File, error)        { return os.Open(p) }

var _ ReadWriteFS = OsFS{}
