package gcsfs

import (
	"path"
	"time"

	"github.com/tonimelisma/gcsfs/internal/gcs"
)

// Entry is one listing or metadata result: either a *FileEntry backed by an
// object or a *DirEntry synthesized from a prefix. Names are relative to the
// listed directory.
type Entry interface {
	Name() string
	IsDir() bool
	isEntry()
}

// FileEntry is a stored object.
type FileEntry struct {
	name       string
	Size       int64
	Modified   time.Time
	MediaURL   string // direct download link, when the server reports one
	Generation int64
	CRC32C     string
}

// DirEntry is a directory: a common key prefix, a "dir/" marker object or a
// directory created in this process.
type DirEntry struct {
	name string
}

func (e *FileEntry) Name() string { return e.name }
func (e *FileEntry) IsDir() bool  { return false }
func (e *FileEntry) isEntry()     {}

func (e *DirEntry) Name() string { return e.name }
func (e *DirEntry) IsDir() bool  { return true }
func (e *DirEntry) isEntry()     {}

func newFileEntry(name string, obj *gcs.Object) *FileEntry {
	return &FileEntry{
		name:       name,
		Size:       obj.Size,
		Modified:   obj.Updated,
		MediaURL:   obj.MediaLink,
		Generation: obj.Generation,
		CRC32C:     obj.CRC32C,
	}
}

// baseName returns the last path segment of a resolved key.
func baseName(key string) string {
	if key == "" {
		return ""
	}

	return path.Base(key)
}
