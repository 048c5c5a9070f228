package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/gcsfs/internal/config"
	"github.com/tonimelisma/gcsfs/internal/gcsfs"
)

// version is set at build time via ldflags.
var version = "dev"

// CLIFlags holds the persistent flags shared by every command.
type CLIFlags struct {
	ConfigPath  string
	Bucket      string
	Prefix      string
	Credentials string
	JSON        bool
	Verbose     bool
	Quiet       bool
}

// CLIContext is built once per invocation by the root pre-run and carried in
// the command context.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Resolved
	Logger *slog.Logger
	Stdout io.Writer
	Stderr io.Writer

	provider *gcsfs.Provider
	stop     func()
}

// close releases the token cache and the signal handler.
func (cc *CLIContext) close() {
	if cc.provider != nil {
		cc.provider.Close()
	}

	if cc.stop != nil {
		cc.stop()
	}
}

type cliContextKey struct{}

// mustCLIContext returns the CLIContext installed by the root pre-run.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("gcsfs: command run without CLI context")
	}

	return cc
}

// skipConfigCommands lists commands that must work without a valid config.
var skipConfigCommands = map[string]bool{
	"gcsfs config init": true,
}

// newRootCmd builds the root command with all subcommands registered.
func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:   "gcsfs",
		Short: "File-system style access to a Cloud Storage bucket",
		Long: `gcsfs treats a Cloud Storage bucket (optionally below a key prefix) as a
directory tree: list, stat, copy, move and delete paths, stream files in and
out, and run resumable uploads that survive restarts.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupCLIContext(cmd, flags)
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if cc, ok := cmd.Context().Value(cliContextKey{}).(*CLIContext); ok {
				cc.close()
			}
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "config file path")
	pf.StringVar(&flags.Bucket, "bucket", "", "bucket name")
	pf.StringVar(&flags.Prefix, "prefix", "", "object name prefix all paths are joined under")
	pf.StringVar(&flags.Credentials, "credentials", "", "service-account JSON key file")
	pf.BoolVar(&flags.JSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(
		newLsCmd(),
		newStatCmd(),
		newGetCmd(),
		newPutCmd(),
		newCatCmd(),
		newRmCmd(),
		newMkdirCmd(),
		newCpCmd(),
		newMvCmd(),
		newDuCmd(),
		newUploadCmd(),
		newSessionsCmd(),
		newConfigCmd(),
	)

	return cmd
}

// setupCLIContext resolves configuration, builds the logger and installs the
// CLIContext and a signal-aware context on cmd.
func setupCLIContext(cmd *cobra.Command, flags CLIFlags) error {
	cc := &CLIContext{
		Flags:  flags,
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
	}

	if !skipConfigCommands[cmd.CommandPath()] {
		resolved, err := config.Resolve(config.ReadEnvOverrides(), config.CLIOverrides{
			ConfigPath:  flags.ConfigPath,
			Bucket:      flags.Bucket,
			Prefix:      flags.Prefix,
			Credentials: flags.Credentials,
		})
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		cc.Cfg = resolved
	}

	cc.Logger = buildLogger(cc.Cfg, flags, cc.Stderr)
	slog.SetDefault(cc.Logger)

	ctx, stop := shutdownContext(context.WithValue(cmd.Context(), cliContextKey{}, cc), cc.Logger)
	cc.stop = stop
	cmd.SetContext(ctx)

	return nil
}

// buildLogger creates the logger from config and flags. The config level is
// the baseline; --verbose and --quiet win. Format "auto" picks text on a
// terminal and JSON otherwise.
func buildLogger(cfg *config.Resolved, flags CLIFlags, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	format := "auto"

	if cfg != nil {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}

		format = cfg.LogFormat
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == "json" || (format == "auto" && !isTerminal(w)) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// httpClient applies the network timeouts. There is no overall request
// timeout because uploads and downloads may legitimately run for hours.
func (cc *CLIContext) httpClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: cc.Cfg.ConnectTimeout}).DialContext
	transport.ResponseHeaderTimeout = cc.Cfg.DataTimeout

	return &http.Client{Transport: transport}
}

// fileSystem opens the configured bucket.
func (cc *CLIContext) fileSystem() (*gcsfs.FileSystem, error) {
	if err := cc.Cfg.RequireBucket(); err != nil {
		return nil, err
	}

	var secret []byte

	if cc.Cfg.CredentialsFile != "" {
		data, err := os.ReadFile(cc.Cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("reading credentials: %w", err)
		}

		secret = data
	}

	if cc.provider == nil {
		userAgent := cc.Cfg.UserAgent
		if userAgent == "" {
			userAgent = "gcsfs/" + version
		}

		cc.provider = gcsfs.NewProvider(cc.Cfg.Endpoint, cc.httpClient(), userAgent, cc.Logger)
	}

	return cc.provider.FileSystem(secret, cc.Cfg.Bucket, gcsfs.Options{
		Prefix:            cc.Cfg.Prefix,
		NormalizeUnicode:  cc.Cfg.NormalizeUnicode,
		DeleteConcurrency: cc.Cfg.DeleteConcurrency,
		Logger:            cc.Logger,
	})
}

// sessionStore opens the upload session database. A failure is logged and
// returns nil, which disables cross-process resume but not uploads.
func (cc *CLIContext) sessionStore(ctx context.Context) *gcsfs.SessionStore {
	if cc.Cfg.SessionDB == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cc.Cfg.SessionDB), 0o700); err != nil { //nolint:mnd // owner-only
		cc.Logger.Warn("cannot create session directory", slog.String("error", err.Error()))
		return nil
	}

	store, err := gcsfs.OpenSessionStore(ctx, cc.Cfg.SessionDB, cc.Logger)
	if err != nil {
		cc.Logger.Warn("upload sessions unavailable", slog.String("error", err.Error()))
		return nil
	}

	return store
}

// errNotFound is returned by commands whose path argument does not exist.
var errNotFound = errors.New("no such file or directory")
