// Package gcsfs exposes one bucket, scoped to a path prefix, as a
// hierarchical file system on top of the gcs client.
//
// FileSystem resolves caller paths under the prefix, virtualizes directories
// over the flat key namespace (server-reported prefixes, zero-byte "dir/"
// markers and directories created explicitly in this process) and maps the
// client's operations onto file-system semantics: not-found is an absent
// result for GetInfo and OpenRead and is swallowed by deletes.
//
// Provider shares a single token cache between every FileSystem it builds.
// TransferManager and SessionStore add file-level downloads and uploads with
// .partial files and upload sessions that survive process restarts.
package gcsfs
