package gcsfs

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/gcsfs/internal/gcs"
)

// Move renames the file at src to dst on the server. Unless overwrite is
// set, an existing dst fails with ErrExists.
func (f *FileSystem) Move(ctx context.Context, src, dst string, overwrite bool) error {
	srcKey, dstKey := f.Resolve(src), f.Resolve(dst)

	if err := f.checkTarget(ctx, dstKey, overwrite); err != nil {
		return err
	}

	if _, err := f.client.MoveObject(ctx, srcKey, dstKey); err != nil {
		return fmt.Errorf("gcsfs: moving %q to %q: %w", src, dst, err)
	}

	return nil
}

// Copy duplicates the file at src as dst with a server-side rewrite. Unless
// overwrite is set, an existing dst fails with ErrExists.
func (f *FileSystem) Copy(ctx context.Context, src, dst string, overwrite bool) error {
	srcKey, dstKey := f.Resolve(src), f.Resolve(dst)

	if err := f.checkTarget(ctx, dstKey, overwrite); err != nil {
		return err
	}

	if _, err := f.client.CopyObject(ctx, srcKey, dstKey); err != nil {
		return fmt.Errorf("gcsfs: copying %q to %q: %w", src, dst, err)
	}

	return nil
}

func (f *FileSystem) checkTarget(ctx context.Context, key string, overwrite bool) error {
	if overwrite {
		return nil
	}

	found, err := f.exists(ctx, key)
	if err != nil {
		return err
	}

	if found {
		return fmt.Errorf("%w: %s", ErrExists, key)
	}

	return nil
}

// CreateDirectory records p and its ancestors as directories for the
// lifetime of this FileSystem. Nothing is stored remotely; a directory
// becomes durable once an object is written below it.
func (f *FileSystem) CreateDirectory(p string) {
	key := f.Resolve(p)

	if f.dirs.Add(key) {
		f.logger.Debug("created virtual directory", slog.String("key", key))
	}
}

// CreateDirectoryMarker records p like CreateDirectory and also stores a
// zero-byte "p/" marker object, so the directory outlives this process.
func (f *FileSystem) CreateDirectoryMarker(ctx context.Context, p string) error {
	key := f.Resolve(p)
	if key == "" {
		return nil
	}

	f.dirs.Add(key)

	w := f.client.NewWriter(ctx, key+"/", "application/x-directory")
	defer w.Close()

	if err := w.Complete(); err != nil {
		return fmt.Errorf("gcsfs: creating directory marker %q: %w", p, err)
	}

	return nil
}

// CreateFile starts a streaming upload to p. The object exists once the
// returned writer completes.
func (f *FileSystem) CreateFile(ctx context.Context, p, contentType string) *gcs.ObjectWriter {
	return f.client.NewWriter(ctx, f.Resolve(p), contentType)
}

// DeleteFile deletes the file at p. A missing file is not an error.
func (f *FileSystem) DeleteFile(ctx context.Context, p string) error {
	return f.deleteKey(ctx, f.Resolve(p))
}

func (f *FileSystem) deleteKey(ctx context.Context, key string) error {
	err := f.client.DeleteObject(ctx, key)
	if err == nil || gcs.IsNotFound(err) {
		return nil
	}

	return fmt.Errorf("gcsfs: deleting %q: %w", key, err)
}

// DeleteDirectory removes the directory at p. Without recursive only the
// virtual directory record is dropped, since an empty directory has no
// remote form. With recursive, every object below p is listed and deleted
// with bounded parallelism; a missing directory is a no-op.
func (f *FileSystem) DeleteDirectory(ctx context.Context, p string, recursive bool) error {
	key := f.Resolve(p)

	if !recursive {
		f.dirs.Remove(key)
		return nil
	}

	var keys []string

	for page, err := range f.pages(ctx, gcs.ListQuery{Prefix: dirPrefix(key)}) {
		if err != nil {
			return fmt.Errorf("gcsfs: listing %q for delete: %w", p, err)
		}

		for i := range page.Objects {
			keys = append(keys, page.Objects[i].Name)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.deleteConcurrency)

	for _, k := range keys {
		g.Go(func() error {
			return f.deleteKey(gctx, k)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	f.dirs.RemoveTree(key)

	f.logger.Info("deleted directory",
		slog.String("key", key),
		slog.Int("objects", len(keys)),
	)

	return nil
}

// GetInfo describes the file or directory at p, or returns nil, nil when
// nothing exists there. Directories are recognized from virtual directory
// records and from keys stored below p.
func (f *FileSystem) GetInfo(ctx context.Context, p string) (Entry, error) {
	key := f.Resolve(p)
	if key == "" {
		return &DirEntry{}, nil
	}

	obj, err := f.client.GetObject(ctx, key)
	if err == nil {
		return newFileEntry(baseName(key), obj), nil
	}

	if !gcs.IsNotFound(err) {
		return nil, fmt.Errorf("gcsfs: stat %q: %w", p, err)
	}

	if f.dirs.Contains(key) {
		return &DirEntry{name: baseName(key)}, nil
	}

	page, err := f.client.ListObjects(ctx, gcs.ListQuery{Prefix: dirPrefix(key), Delimiter: "/", MaxResults: 1})
	if err != nil {
		return nil, fmt.Errorf("gcsfs: stat %q: %w", p, err)
	}

	if len(page.Objects) > 0 || len(page.Prefixes) > 0 {
		return &DirEntry{name: baseName(key)}, nil
	}

	return nil, nil
}
