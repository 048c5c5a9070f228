package config

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
)

// RenderEffective writes the resolved configuration as an annotated summary.
// This powers "config show".
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	if r.ConfigPath != "" {
		ew.printf("# Effective configuration (file: %s)\n\n", r.ConfigPath)
	}

	ew.printf("[storage]\n")
	ew.printf("  bucket            = %q\n", r.Bucket)
	ew.printf("  prefix            = %q\n", r.Prefix)

	if r.Endpoint != "" {
		ew.printf("  endpoint          = %q\n", r.Endpoint)
	}

	ew.printf("  credentials_file  = %q\n", r.CredentialsFile)
	ew.printf("  normalize_unicode = %t\n\n", r.NormalizeUnicode)

	ew.printf("[transfers]\n")
	ew.printf("  simple_upload_max_size = %q # %d bytes\n", humanize.IBytes(uint64(r.SimpleUploadMaxSize)),
		r.SimpleUploadMaxSize)
	ew.printf("  commit_interval        = %q # %d bytes\n", humanize.IBytes(uint64(r.CommitInterval)),
		r.CommitInterval)
	ew.printf("  delete_concurrency     = %d\n", r.DeleteConcurrency)
	ew.printf("  session_db             = %q\n\n", r.SessionDB)

	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", r.LogLevel)
	ew.printf("  log_format = %q\n\n", r.LogFormat)

	ew.printf("[network]\n")
	ew.printf("  connect_timeout = %q\n", r.ConnectTimeout)
	ew.printf("  data_timeout    = %q\n", r.DataTimeout)

	if r.UserAgent != "" {
		ew.printf("  user_agent      = %q\n", r.UserAgent)
	}

	return ew.err
}

// errWriter captures the first write error so callers can chain printf
// calls without checking each one.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
