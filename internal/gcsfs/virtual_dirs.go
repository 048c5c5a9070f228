package gcsfs

import (
	"slices"
	"strings"
)

// VirtualDirectorySet records directories created explicitly in this
// process. Cloud Storage has no directory objects, so these exist only
// until the FileSystem is discarded. Keys are resolved object keys without
// trailing slashes. Not safe for concurrent mutation.
type VirtualDirectorySet struct {
	dirs map[string]struct{}
}

// NewVirtualDirectorySet returns an empty set.
func NewVirtualDirectorySet() *VirtualDirectorySet {
	return &VirtualDirectorySet{dirs: make(map[string]struct{})}
}

// Add records key and every ancestor of key. It reports whether key was new.
func (s *VirtualDirectorySet) Add(key string) bool {
	if key == "" {
		return false
	}

	if _, ok := s.dirs[key]; ok {
		return false
	}

	s.dirs[key] = struct{}{}

	for i := range len(key) {
		if key[i] == '/' {
			s.dirs[key[:i]] = struct{}{}
		}
	}

	return true
}

// Contains reports whether key was created as a directory.
func (s *VirtualDirectorySet) Contains(key string) bool {
	_, ok := s.dirs[key]
	return ok
}

// Remove forgets key. Its descendants stay.
func (s *VirtualDirectorySet) Remove(key string) {
	delete(s.dirs, key)
}

// RemoveTree forgets key and every directory below it.
func (s *VirtualDirectorySet) RemoveTree(key string) {
	if key == "" {
		clear(s.dirs)
		return
	}

	delete(s.dirs, key)

	prefix := key + "/"
	for d := range s.dirs {
		if strings.HasPrefix(d, prefix) {
			delete(s.dirs, d)
		}
	}
}

// Children returns the names of the direct child directories of parent,
// sorted. An empty parent means the bucket root.
func (s *VirtualDirectorySet) Children(parent string) []string {
	prefix := ""
	if parent != "" {
		prefix = parent + "/"
	}

	var names []string

	for d := range s.dirs {
		rest, ok := strings.CutPrefix(d, prefix)
		if !ok || rest == "" || strings.Contains(rest, "/") {
			continue
		}

		names = append(names, rest)
	}

	slices.Sort(names)

	return names
}

// Len returns the number of recorded directories.
func (s *VirtualDirectorySet) Len() int {
	return len(s.dirs)
}
