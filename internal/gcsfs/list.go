package gcsfs

import (
	"context"
	"iter"
	"log/slog"
	"strings"

	"github.com/tonimelisma/gcsfs/internal/gcs"
)

// List enumerates the directory at p lazily, one page at a time. Each call
// paginates from the start and the sequence stops at the first error.
//
// A non-recursive listing yields the direct children: files, directories
// implied by deeper keys, zero-byte "name/" markers as directories and
// directories created with CreateDirectory. A recursive listing yields every
// file below p with names relative to p and no directory entries.
func (f *FileSystem) List(ctx context.Context, p string, recursive bool) iter.Seq2[Entry, error] {
	dir := f.Resolve(p)

	if recursive {
		return f.listRecursive(ctx, dir)
	}

	return f.listChildren(ctx, dir)
}

func (f *FileSystem) listChildren(ctx context.Context, dir string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		prefix := dirPrefix(dir)
		seen := make(map[string]struct{})

		emitDir := func(name string) bool {
			if _, dup := seen[name]; dup {
				return true
			}

			seen[name] = struct{}{}

			return yield(&DirEntry{name: name}, nil)
		}

		for page, err := range f.pages(ctx, gcs.ListQuery{Prefix: prefix, Delimiter: "/"}) {
			if err != nil {
				yield(nil, err)
				return
			}

			for _, p := range page.Prefixes {
				if len(p) <= len(prefix) {
					continue
				}

				name := strings.TrimSuffix(p[len(prefix):], "/")
				if name != "" && !emitDir(name) {
					return
				}
			}

			for i := range page.Objects {
				obj := &page.Objects[i]
				rel := strings.TrimPrefix(obj.Name, prefix)

				switch {
				case obj.Size == 0 && strings.HasSuffix(rel, "/"):
					if name := strings.TrimSuffix(rel, "/"); name != "" && !emitDir(name) {
						return
					}
				case rel == "":
					continue
				default:
					if !yield(newFileEntry(rel, obj), nil) {
						return
					}
				}
			}
		}

		for _, name := range f.dirs.Children(dir) {
			if !emitDir(name) {
				return
			}
		}
	}
}

func (f *FileSystem) listRecursive(ctx context.Context, dir string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		prefix := dirPrefix(dir)

		for page, err := range f.pages(ctx, gcs.ListQuery{Prefix: prefix}) {
			if err != nil {
				yield(nil, err)
				return
			}

			for i := range page.Objects {
				obj := &page.Objects[i]
				rel := strings.TrimPrefix(obj.Name, prefix)

				if rel == "" {
					continue
				}

				var e Entry = newFileEntry(rel, obj)
				if obj.Size == 0 && strings.HasSuffix(rel, "/") {
					e = &DirEntry{name: strings.TrimSuffix(rel, "/")}
				}

				if !yield(e, nil) {
					return
				}
			}
		}
	}
}

// pages follows continuation tokens until the server stops returning one.
// Cancellation is checked between pages.
func (f *FileSystem) pages(ctx context.Context, q gcs.ListQuery) iter.Seq2[*gcs.ListPage, error] {
	return func(yield func(*gcs.ListPage, error) bool) {
		for n := 1; ; n++ {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			page, err := f.client.ListObjects(ctx, q)
			if err != nil {
				yield(nil, err)
				return
			}

			f.logger.Debug("listed page",
				slog.String("prefix", q.Prefix),
				slog.Int("page", n),
				slog.Int("objects", len(page.Objects)),
				slog.Int("prefixes", len(page.Prefixes)),
			)

			if !yield(page, nil) || page.NextPageToken == "" {
				return
			}

			q.PageToken = page.NextPageToken
		}
	}
}

// GetDirectorySize sums the sizes of the files in the directory at p,
// including every file below it when recursive is set.
func (f *FileSystem) GetDirectorySize(ctx context.Context, p string, recursive bool) (int64, error) {
	var total int64

	for e, err := range f.List(ctx, p, recursive) {
		if err != nil {
			return 0, err
		}

		if fe, ok := e.(*FileEntry); ok {
			total += fe.Size
		}
	}

	return total, nil
}
