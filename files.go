package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/gcsfs/internal/gcsfs"
)

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List files and directories",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}

	cmd.Flags().BoolP("recursive", "r", false, "list every file below path")

	return cmd
}

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Display file or directory metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  runStat,
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <remote-path> [local-path]",
		Short: "Download a file, resuming an earlier partial download",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runGet,
	}
}

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <local-path> [remote-path]",
		Short: "Upload a file; large files resume after interruption",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runPut,
	}
}

func newCatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat <path>",
		Short: "Write a file to stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  runCat,
	}

	cmd.Flags().Int64("offset", 0, "start reading at this byte offset")
	cmd.Flags().Int64("length", -1, "read at most this many bytes")

	return cmd
}

func newRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file or directory",
		Long: `Delete a file, or with --recursive (-r) a directory and everything below it.
Deleting a path that does not exist is not an error.`,
		Args: cobra.ExactArgs(1),
		RunE: runRm,
	}

	cmd.Flags().BoolP("recursive", "r", false, "delete directories and their contents")

	return cmd
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a directory marker",
		Args:  cobra.ExactArgs(1),
		RunE:  runMkdir,
	}
}

func newCpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cp <src> <dst>",
		Short: "Copy a file within the bucket",
		Args:  cobra.ExactArgs(2), //nolint:mnd // src and dst
		RunE:  runCp,
	}

	cmd.Flags().BoolP("force", "f", false, "overwrite an existing destination")

	return cmd
}

func newMvCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mv <src> <dst>",
		Short: "Rename a file within the bucket",
		Args:  cobra.ExactArgs(2), //nolint:mnd // src and dst
		RunE:  runMv,
	}

	cmd.Flags().BoolP("force", "f", false, "overwrite an existing destination")

	return cmd
}

func newDuCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "du [path]",
		Short: "Show the total size of the files in a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDu,
	}

	cmd.Flags().Bool("shallow", false, "count only the files directly inside path")

	return cmd
}

// pathArg returns args[0], or the root when no path was given.
func pathArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}

	return "/"
}

// entryJSON is the JSON output schema for a listing or stat entry.
type entryJSON struct {
	Name       string `json:"name"`
	IsDir      bool   `json:"is_dir"`
	Size       int64  `json:"size,omitempty"`
	Modified   string `json:"modified,omitempty"`
	Generation int64  `json:"generation,omitempty"`
	CRC32C     string `json:"crc32c,omitempty"`
	MediaURL   string `json:"media_url,omitempty"`
}

func toEntryJSON(e gcsfs.Entry) entryJSON {
	out := entryJSON{Name: e.Name(), IsDir: e.IsDir()}

	if fe, ok := e.(*gcsfs.FileEntry); ok {
		out.Size = fe.Size
		out.Generation = fe.Generation
		out.CRC32C = fe.CRC32C
		out.MediaURL = fe.MediaURL

		if !fe.Modified.IsZero() {
			out.Modified = fe.Modified.UTC().Format(time.RFC3339)
		}
	}

	return out
}

func runLs(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	recursive, _ := cmd.Flags().GetBool("recursive")

	fsys, err := cc.fileSystem()
	if err != nil {
		return err
	}

	var entries []gcsfs.Entry

	for e, err := range fsys.List(cmd.Context(), pathArg(args), recursive) {
		if err != nil {
			return fmt.Errorf("listing %q: %w", pathArg(args), err)
		}

		entries = append(entries, e)
	}

	// Directories first, then by name.
	slices.SortFunc(entries, func(a, b gcsfs.Entry) int {
		if a.IsDir() != b.IsDir() {
			if a.IsDir() {
				return -1
			}

			return 1
		}

		return strings.Compare(a.Name(), b.Name())
	})

	if cc.Flags.JSON {
		out := make([]entryJSON, 0, len(entries))
		for _, e := range entries {
			out = append(out, toEntryJSON(e))
		}

		return printJSON(cc.Stdout, out)
	}

	rows := make([][]string, 0, len(entries))

	for _, e := range entries {
		if fe, ok := e.(*gcsfs.FileEntry); ok {
			rows = append(rows, []string{fe.Name(), formatSize(fe.Size), formatTime(fe.Modified)})
			continue
		}

		rows = append(rows, []string{e.Name() + "/", "-", "-"})
	}

	printTable(cc.Stdout, []string{"NAME", "SIZE", "MODIFIED"}, rows)

	return nil
}

func runStat(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	fsys, err := cc.fileSystem()
	if err != nil {
		return err
	}

	e, err := fsys.GetInfo(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if e == nil {
		return fmt.Errorf("%s: %w", args[0], errNotFound)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, toEntryJSON(e))
	}

	fe, ok := e.(*gcsfs.FileEntry)
	if !ok {
		fmt.Fprintf(cc.Stdout, "Name:       %s\nType:       directory\n", e.Name())
		return nil
	}

	fmt.Fprintf(cc.Stdout, "Name:       %s\n", fe.Name())
	fmt.Fprintf(cc.Stdout, "Type:       file\n")
	fmt.Fprintf(cc.Stdout, "Size:       %s (%d bytes)\n", formatSize(fe.Size), fe.Size)
	fmt.Fprintf(cc.Stdout, "Modified:   %s\n", formatTime(fe.Modified))
	fmt.Fprintf(cc.Stdout, "Generation: %d\n", fe.Generation)

	if fe.CRC32C != "" {
		fmt.Fprintf(cc.Stdout, "CRC32C:     %s\n", fe.CRC32C)
	}

	return nil
}

// statFile returns the file entry at p, failing for directories and missing
// paths.
func statFile(cmd *cobra.Command, fsys *gcsfs.FileSystem, p string) (*gcsfs.FileEntry, error) {
	e, err := fsys.GetInfo(cmd.Context(), p)
	if err != nil {
		return nil, err
	}

	if e == nil {
		return nil, fmt.Errorf("%s: %w", p, errNotFound)
	}

	fe, ok := e.(*gcsfs.FileEntry)
	if !ok {
		return nil, fmt.Errorf("%q is a directory, not a file", p)
	}

	return fe, nil
}

func runGet(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	remotePath := args[0]

	fsys, err := cc.fileSystem()
	if err != nil {
		return err
	}

	fe, err := statFile(cmd, fsys, remotePath)
	if err != nil {
		return err
	}

	localPath := fe.Name()
	if len(args) > 1 {
		localPath = args[1]
	}

	tm := gcsfs.NewTransferManager(fsys, fsys, nil, gcsfs.TransferOptions{}, cc.Logger)

	res, err := tm.DownloadToFile(cmd.Context(), remotePath, localPath, gcsfs.DownloadOpts{
		RemoteCRC32C: fe.CRC32C,
		RemoteMtime:  fe.Modified,
		RemoteSize:   fe.Size,
	})
	if err != nil {
		if _, statErr := os.Stat(localPath + ".partial"); statErr == nil {
			cc.Statusf("Partial download saved: %s.partial\nRe-run the same command to resume.\n", localPath)
		}

		return err
	}

	verb := "Downloaded"
	if res.Resumed {
		verb = "Resumed and downloaded"
	}

	cc.Statusf("%s %s (%s)\n", verb, localPath, formatSize(res.Size))

	return nil
}

func runPut(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	localPath := args[0]

	fi, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stating local file: %w", err)
	}

	if fi.IsDir() {
		return fmt.Errorf("%q is a directory, not a file", localPath)
	}

	remotePath := filepath.Base(localPath)
	if len(args) > 1 {
		remotePath = args[1]
		if strings.HasSuffix(remotePath, "/") {
			remotePath = path.Join(remotePath, filepath.Base(localPath))
		}
	}

	fsys, err := cc.fileSystem()
	if err != nil {
		return err
	}

	var store *gcsfs.SessionStore
	if fi.Size() > cc.Cfg.SimpleUploadMaxSize {
		store = cc.sessionStore(cmd.Context())
		if store != nil {
			defer store.Close()
		}
	}

	tm := gcsfs.NewTransferManager(fsys, fsys, store, gcsfs.TransferOptions{
		SimpleUploadMaxSize: cc.Cfg.SimpleUploadMaxSize,
		CommitInterval:      cc.Cfg.CommitInterval,
	}, cc.Logger)

	absLocal, err := filepath.Abs(localPath)
	if err != nil {
		return fmt.Errorf("resolving %q: %w", localPath, err)
	}

	res, err := tm.UploadFile(cmd.Context(), absLocal, remotePath)
	if err != nil {
		return err
	}

	verb := "Uploaded"
	if res.Resumed {
		verb = "Resumed and uploaded"
	}

	cc.Statusf("%s %s (%s)\n", verb, remotePath, formatSize(res.Size))

	return nil
}

func runCat(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	offset, _ := cmd.Flags().GetInt64("offset")
	length, _ := cmd.Flags().GetInt64("length")

	if offset < 0 {
		return fmt.Errorf("--offset must not be negative")
	}

	fsys, err := cc.fileSystem()
	if err != nil {
		return err
	}

	hint := gcsfs.Sequential
	if offset > 0 || length >= 0 {
		hint = gcsfs.RandomAccess
	}

	rc, err := fsys.OpenRead(cmd.Context(), args[0], hint)
	if err != nil {
		return err
	}

	if rc == nil {
		return fmt.Errorf("%s: %w", args[0], errNotFound)
	}
	defer rc.Close()

	var r io.Reader = rc

	if hint == gcsfs.RandomAccess {
		seeker, ok := rc.(io.Seeker)
		if !ok {
			return fmt.Errorf("reader for %q is not seekable", args[0])
		}

		if _, err := seeker.Seek(offset, io.SeekStart); err != nil {
			return err
		}

		if length >= 0 {
			r = io.LimitReader(rc, length)
		}
	}

	if _, err := io.Copy(cc.Stdout, r); err != nil {
		return fmt.Errorf("reading %q: %w", args[0], err)
	}

	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	recursive, _ := cmd.Flags().GetBool("recursive")

	fsys, err := cc.fileSystem()
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	e, err := fsys.GetInfo(ctx, args[0])
	if err != nil {
		return err
	}

	if e == nil {
		cc.Logger.Debug("rm: nothing to delete", "path", args[0])
		return nil
	}

	if !e.IsDir() {
		if err := fsys.DeleteFile(ctx, args[0]); err != nil {
			return err
		}

		cc.Statusf("Deleted %s\n", args[0])

		return nil
	}

	if !recursive {
		return fmt.Errorf("%q is a directory, use -r to delete it and its contents", args[0])
	}

	if err := fsys.DeleteDirectory(ctx, args[0], true); err != nil {
		return err
	}

	cc.Statusf("Deleted %s/\n", strings.TrimSuffix(args[0], "/"))

	return nil
}

func runMkdir(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	fsys, err := cc.fileSystem()
	if err != nil {
		return err
	}

	if err := fsys.CreateDirectoryMarker(cmd.Context(), args[0]); err != nil {
		return err
	}

	cc.Statusf("Created %s/\n", strings.TrimSuffix(args[0], "/"))

	return nil
}

func runCp(cmd *cobra.Command, args []string) error {
	return runTransferWithin(cmd, args, "Copied", (*gcsfs.FileSystem).Copy)
}

func runMv(cmd *cobra.Command, args []string) error {
	return runTransferWithin(cmd, args, "Moved", (*gcsfs.FileSystem).Move)
}

// runTransferWithin runs a server-side copy or move between two paths.
func runTransferWithin(
	cmd *cobra.Command, args []string, verb string,
	op func(*gcsfs.FileSystem, context.Context, string, string, bool) error,
) error {
	cc := mustCLIContext(cmd.Context())
	force, _ := cmd.Flags().GetBool("force")

	fsys, err := cc.fileSystem()
	if err != nil {
		return err
	}

	if _, err := statFile(cmd, fsys, args[0]); err != nil {
		return err
	}

	if err := op(fsys, cmd.Context(), args[0], args[1], force); err != nil {
		if errors.Is(err, gcsfs.ErrExists) {
			return fmt.Errorf("%w (use --force to overwrite)", err)
		}

		return err
	}

	cc.Statusf("%s %s -> %s\n", verb, args[0], args[1])

	return nil
}

func runDu(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	shallow, _ := cmd.Flags().GetBool("shallow")

	fsys, err := cc.fileSystem()
	if err != nil {
		return err
	}

	total, err := fsys.GetDirectorySize(cmd.Context(), pathArg(args), !shallow)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, map[string]any{"path": pathArg(args), "size": total})
	}

	fmt.Fprintf(cc.Stdout, "%s\t%s\n", formatSize(total), pathArg(args))

	return nil
}
