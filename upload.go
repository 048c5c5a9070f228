package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Upload state files hold the opaque blob returned by each commit. They are
// the only thing needed to continue an upload from another process.
const stateFilePerm = 0o600

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Drive a resumable upload step by step",
		Long: `Run a resumable upload across several invocations. "begin" opens a session
and writes its state to --state; each "write" appends data and refreshes the
state; "complete" finalizes the object and "cancel" discards it.`,
	}

	cmd.PersistentFlags().String("state", "", "file holding the upload state (required)")
	_ = cmd.MarkPersistentFlagRequired("state")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "begin <remote-path>",
			Short: "Open an upload session",
			Args:  cobra.ExactArgs(1),
			RunE:  runUploadBegin,
		},
		newUploadWriteCmd(),
		&cobra.Command{
			Use:   "complete <remote-path>",
			Short: "Send the remaining data and finalize the object",
			Args:  cobra.ExactArgs(1),
			RunE:  runUploadComplete,
		},
		&cobra.Command{
			Use:   "cancel <remote-path>",
			Short: "Discard the upload session",
			Args:  cobra.ExactArgs(1),
			RunE:  runUploadCancel,
		},
	)

	return cmd
}

func newUploadWriteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write <remote-path>",
		Short: "Append data from --from or stdin and commit it",
		Args:  cobra.ExactArgs(1),
		RunE:  runUploadWrite,
	}

	cmd.Flags().String("from", "", "local file to append (default stdin)")

	return cmd
}

func statePath(cmd *cobra.Command) string {
	p, _ := cmd.Flags().GetString("state")
	return p
}

func readState(cmd *cobra.Command) ([]byte, error) {
	state, err := os.ReadFile(statePath(cmd))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no upload state at %s: run \"gcsfs upload begin\" first", statePath(cmd))
		}

		return nil, fmt.Errorf("reading upload state: %w", err)
	}

	return state, nil
}

func runUploadBegin(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	if _, err := os.Stat(statePath(cmd)); err == nil {
		return fmt.Errorf("upload state %s already exists", statePath(cmd))
	}

	fsys, err := cc.fileSystem()
	if err != nil {
		return err
	}

	up, err := fsys.BeginResumableUpload(ctx, args[0])
	if err != nil {
		return err
	}
	defer up.Close()

	state, err := up.Commit(ctx)
	if err != nil {
		return err
	}

	if err := os.WriteFile(statePath(cmd), state, stateFilePerm); err != nil {
		return fmt.Errorf("saving upload state: %w", err)
	}

	cc.Statusf("Upload of %s started, state saved to %s\n", args[0], statePath(cmd))

	return nil
}

func runUploadWrite(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	state, err := readState(cmd)
	if err != nil {
		return err
	}

	var src io.Reader = cmd.InOrStdin()

	if from, _ := cmd.Flags().GetString("from"); from != "" {
		f, err := os.Open(from)
		if err != nil {
			return fmt.Errorf("opening %s: %w", from, err)
		}
		defer f.Close()

		src = f
	}

	fsys, err := cc.fileSystem()
	if err != nil {
		return err
	}

	up, err := fsys.ContinueResumableUpload(args[0], state)
	if err != nil {
		return err
	}
	defer up.Close()

	if _, err := io.Copy(up, src); err != nil {
		return fmt.Errorf("buffering upload data: %w", err)
	}

	next, err := up.Commit(ctx)
	if err != nil {
		return err
	}

	if err := os.WriteFile(statePath(cmd), next, stateFilePerm); err != nil {
		return fmt.Errorf("saving upload state: %w", err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, map[string]int64{"committed": up.Offset(), "written": up.Written()})
	}

	fmt.Fprintf(cc.Stdout, "%d bytes written, %d committed\n", up.Written(), up.Offset())

	return nil
}

func runUploadComplete(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	state, err := readState(cmd)
	if err != nil {
		return err
	}

	fsys, err := cc.fileSystem()
	if err != nil {
		return err
	}

	fe, err := fsys.CompleteResumableUpload(cmd.Context(), args[0], state)
	if err != nil {
		return err
	}

	if err := os.Remove(statePath(cmd)); err != nil {
		cc.Logger.Warn("could not remove upload state", "path", statePath(cmd), "error", err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, toEntryJSON(fe))
	}

	cc.Statusf("Uploaded %s (%s)\n", args[0], formatSize(fe.Size))

	return nil
}

func runUploadCancel(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	state, err := readState(cmd)
	if err != nil {
		return err
	}

	fsys, err := cc.fileSystem()
	if err != nil {
		return err
	}

	if err := fsys.CancelResumableUpload(cmd.Context(), args[0], state); err != nil {
		return err
	}

	if err := os.Remove(statePath(cmd)); err != nil {
		cc.Logger.Warn("could not remove upload state", "path", statePath(cmd), "error", err)
	}

	cc.Statusf("Upload of %s canceled\n", args[0])

	return nil
}
