package gcsfs

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/gcsfs/internal/gcs"
)

// memRemote serves one file from memory.
type memRemote struct {
	data       []byte
	rangeCalls []int64
	failRange  bool
}

func (m *memRemote) Download(_ context.Context, _ string, w io.Writer) (int64, error) {
	n, err := w.Write(m.data)
	return int64(n), err
}

func (m *memRemote) DownloadRange(_ context.Context, _ string, w io.Writer, offset int64) (int64, error) {
	m.rangeCalls = append(m.rangeCalls, offset)

	if m.failRange {
		return 0, errors.New("range not supported")
	}

	n, err := w.Write(m.data[offset:])

	return int64(n), err
}

func crcOf(data []byte) string {
	return encodeCRC32C(crc32.Checksum(data, castagnoli))
}

func testData(n int) []byte {
	rng := rand.New(rand.NewPCG(7, 11)) //nolint:gosec // deterministic test data
	buf := make([]byte, n)

	for i := range buf {
		buf[i] = byte(rng.UintN(256))
	}

	return buf
}

func TestFileCRC32C(t *testing.T) {
	p := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(p, []byte("hello world"), 0o600))

	sum, err := FileCRC32C(p)
	require.NoError(t, err)
	// Known Castagnoli checksum of "hello world" (0xc99465aa).
	assert.Equal(t, "yZRlqg==", sum)

	_, err = FileCRC32C(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestDownloadToFile_Verified(t *testing.T) {
	remote := &memRemote{data: []byte("remote file content")}
	tm := NewTransferManager(remote, nil, nil, TransferOptions{}, nil)

	target := filepath.Join(t.TempDir(), "sub", "out.txt")
	mtime := time.Date(2025, 12, 24, 18, 0, 0, 0, time.UTC)

	res, err := tm.DownloadToFile(context.Background(), "out.txt", target, DownloadOpts{
		RemoteCRC32C: crcOf(remote.data),
		RemoteMtime:  mtime,
		RemoteSize:   int64(len(remote.data)),
	})
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.False(t, res.Resumed)
	assert.Equal(t, int64(len(remote.data)), res.Size)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, remote.data, got)

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime))

	_, err = os.Stat(target + ".partial")
	assert.True(t, os.IsNotExist(err))
}

func TestDownloadToFile_ResumesPartial(t *testing.T) {
	remote := &memRemote{data: []byte("0123456789")}
	tm := NewTransferManager(remote, nil, nil, TransferOptions{}, nil)

	target := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, os.WriteFile(target+".partial", []byte("0123"), 0o600))

	res, err := tm.DownloadToFile(context.Background(), "out.bin", target, DownloadOpts{
		RemoteCRC32C: crcOf(remote.data),
	})
	require.NoError(t, err)
	assert.True(t, res.Resumed)
	assert.Equal(t, []int64{4}, remote.rangeCalls)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(got))
}

func TestDownloadToFile_RangeFailureStartsFresh(t *testing.T) {
	remote := &memRemote{data: []byte("0123456789"), failRange: true}
	tm := NewTransferManager(remote, nil, nil, TransferOptions{}, nil)

	target := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, os.WriteFile(target+".partial", []byte("stale"), 0o600))

	res, err := tm.DownloadToFile(context.Background(), "out.bin", target, DownloadOpts{})
	require.NoError(t, err)
	assert.False(t, res.Resumed)
	assert.False(t, res.Verified)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(got))
}

func TestDownloadToFile_ChecksumMismatch(t *testing.T) {
	remote := &memRemote{data: []byte("corrupted")}
	tm := NewTransferManager(remote, nil, nil, TransferOptions{}, nil)

	target := filepath.Join(t.TempDir(), "out.bin")

	_, err := tm.DownloadToFile(context.Background(), "out.bin", target, DownloadOpts{
		RemoteCRC32C: crcOf([]byte("expected")),
	})
	require.ErrorIs(t, err, ErrChecksumMismatch)

	_, err = os.Stat(target)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(target + ".partial")
	assert.True(t, os.IsNotExist(err))
}

func TestDownloadToFile_Emulator(t *testing.T) {
	server := newFakeGCS(t, object("remote/data.txt", "emulated bytes"))
	fsys := newEmulatedFS(t, server, Options{})
	tm := NewTransferManager(fsys, fsys, nil, TransferOptions{}, nil)

	target := filepath.Join(t.TempDir(), "data.txt")

	res, err := tm.DownloadToFile(context.Background(), "remote/data.txt", target, DownloadOpts{
		RemoteCRC32C: crcOf([]byte("emulated bytes")),
	})
	require.NoError(t, err)
	assert.True(t, res.Verified)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "emulated bytes", string(got))
}

func TestUploadFile_SimpleUpload(t *testing.T) {
	server := newFakeGCS(t)
	fsys := newEmulatedFS(t, server, Options{})
	tm := NewTransferManager(fsys, fsys, nil, TransferOptions{}, nil)

	local := filepath.Join(t.TempDir(), "small.txt")
	require.NoError(t, os.WriteFile(local, []byte("small payload"), 0o600))

	res, err := tm.UploadFile(context.Background(), local, "up/small.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(13), res.Size)
	assert.False(t, res.Resumed)
	assert.Equal(t, crcOf([]byte("small payload")), res.LocalCRC32C)
	assert.Equal(t, "small.txt", res.File.Name())

	stored, err := server.GetObject(testBucket, "up/small.txt")
	require.NoError(t, err)
	assert.Equal(t, "small payload", string(stored.Content))
}

func TestUploadFile_RejectsEmptyPaths(t *testing.T) {
	tm := NewTransferManager(nil, nil, nil, TransferOptions{}, nil)

	_, err := tm.UploadFile(context.Background(), "", "x")
	require.Error(t, err)
}

// uploadSessions emulates resumable upload sessions, one per POST.
type uploadSessions struct {
	t   *testing.T
	url string

	mu       sync.Mutex
	received map[string][]byte
	starts   map[string][]int
	opened   int
	finished []string
	failPut  int // fail the n-th PUT across all sessions; 0 disables
	puts     int
}

func newUploadSessions(t *testing.T) *uploadSessions {
	t.Helper()

	us := &uploadSessions{t: t, received: map[string][]byte{}, starts: map[string][]int{}}

	srv := httptest.NewServer(http.HandlerFunc(us.serve))
	t.Cleanup(srv.Close)
	us.url = srv.URL

	return us
}

func (us *uploadSessions) serve(w http.ResponseWriter, r *http.Request) {
	us.mu.Lock()
	defer us.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/upload/storage/v1/b/test-bucket/o"):
		assert.Equal(us.t, "resumable", r.URL.Query().Get("uploadType"))
		us.opened++
		w.Header().Set("Location", fmt.Sprintf("%s/session/%d", us.url, us.opened))

	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/session/"):
		us.put(w, r)

	default:
		assert.Failf(us.t, "unexpected request", "%s %s", r.Method, r.URL)
		w.WriteHeader(http.StatusTeapot)
	}
}

func (us *uploadSessions) put(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Path
	body, err := io.ReadAll(r.Body)
	assert.NoError(us.t, err)

	us.puts++
	if us.puts == us.failPut {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	rangeSpec, _ := strings.CutPrefix(r.Header.Get("Content-Range"), "bytes ")
	rangePart, totalPart, _ := strings.Cut(rangeSpec, "/")

	if rangePart != "*" {
		startStr, _, _ := strings.Cut(rangePart, "-")
		start, _ := strconv.Atoi(startStr)
		assert.Equal(us.t, len(us.received[id]), start, "range must continue the session")

		us.starts[id] = append(us.starts[id], start)
		us.received[id] = append(us.received[id], body...)
	}

	if totalPart == "*" {
		w.WriteHeader(http.StatusPermanentRedirect)
		return
	}

	us.finished = append(us.finished, id)
	fmt.Fprintf(w, `{"name":"big.bin","size":"%s","generation":"3"}`, totalPart)
}

func TestUploadFile_ResumableSessionResumesAfterFailure(t *testing.T) {
	us := newUploadSessions(t)
	fsys := newHTTPTestFS(t, us.url, Options{})
	store := newTestSessionStore(t)

	tm := NewTransferManager(fsys, fsys, store, TransferOptions{
		SimpleUploadMaxSize: 1,
		CommitInterval:      gcs.ChunkSize + 17,
	}, nil)

	data := testData(2*gcs.ChunkSize + 1000)
	local := filepath.Join(t.TempDir(), "big.bin")
	require.NoError(t, os.WriteFile(local, data, 0o600))

	ctx := context.Background()

	us.failPut = 2
	_, err := tm.UploadFile(ctx, local, "big.bin")
	require.Error(t, err)

	saved, err := store.Load(ctx, testBucket, "big.bin", local)
	require.NoError(t, err)
	require.NotNil(t, saved, "interrupted session must stay recorded")

	us.mu.Lock()
	us.failPut = 0
	us.mu.Unlock()

	res, err := tm.UploadFile(ctx, local, "big.bin")
	require.NoError(t, err)
	assert.True(t, res.Resumed)
	assert.Equal(t, int64(len(data)), res.File.Size)

	us.mu.Lock()
	defer us.mu.Unlock()

	assert.Equal(t, 1, us.opened, "resume must reuse the session")
	assert.Equal(t, []string{"/session/1"}, us.finished)
	assert.Equal(t, data, us.received["/session/1"])
	assert.Equal(t, []int{0, gcs.ChunkSize, 2 * gcs.ChunkSize}, us.starts["/session/1"])

	left, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestUploadFile_ChangedFileStartsNewSession(t *testing.T) {
	us := newUploadSessions(t)
	fsys := newHTTPTestFS(t, us.url, Options{})
	store := newTestSessionStore(t)

	tm := NewTransferManager(fsys, fsys, store, TransferOptions{
		SimpleUploadMaxSize: 1,
		CommitInterval:      gcs.ChunkSize,
	}, nil)

	local := filepath.Join(t.TempDir(), "big.bin")
	require.NoError(t, os.WriteFile(local, testData(gcs.ChunkSize+10), 0o600))

	ctx := context.Background()

	us.failPut = 1
	_, err := tm.UploadFile(ctx, local, "big.bin")
	require.Error(t, err)

	changed := testData(gcs.ChunkSize + 10)
	changed[0] ^= 0xff
	require.NoError(t, os.WriteFile(local, changed, 0o600))

	res, err := tm.UploadFile(ctx, local, "big.bin")
	require.NoError(t, err)
	assert.False(t, res.Resumed)

	us.mu.Lock()
	defer us.mu.Unlock()

	assert.Equal(t, 2, us.opened)
	assert.Equal(t, changed, us.received["/session/2"])
}

// mediaBodies records media upload bodies that arrived complete.
type mediaBodies struct {
	mu     sync.Mutex
	bodies map[string]string
}

func newMediaBodies(t *testing.T) (*mediaBodies, string) {
	t.Helper()

	mb := &mediaBodies{bodies: map[string]string{}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return
		}

		name := r.URL.Query().Get("name")

		mb.mu.Lock()
		mb.bodies[name] = string(body)
		mb.mu.Unlock()

		fmt.Fprintf(w, `{"name":%q,"size":"%d","generation":"1"}`, name, len(body))
	}))
	t.Cleanup(srv.Close)

	return mb, srv.URL
}

func (mb *mediaBodies) get(name string) (string, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	b, ok := mb.bodies[name]

	return b, ok
}

func TestStreamUpload_ReadFailurePublishesNothing(t *testing.T) {
	mb, url := newMediaBodies(t)
	fsys := newHTTPTestFS(t, url, Options{})
	tm := NewTransferManager(fsys, fsys, nil, TransferOptions{}, nil)

	src := io.MultiReader(strings.NewReader("first half"), iotest.ErrReader(errors.New("disk gone")))

	_, err := tm.streamUpload(context.Background(), src, "dir/broken.bin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")

	_, stored := mb.get("dir/broken.bin")
	assert.False(t, stored, "a truncated body must not become an object")
}

func TestStreamUpload_EntryNameIsLastSegment(t *testing.T) {
	mb, url := newMediaBodies(t)
	fsys := newHTTPTestFS(t, url, Options{})
	tm := NewTransferManager(fsys, fsys, nil, TransferOptions{}, nil)

	entry, err := tm.streamUpload(context.Background(), strings.NewReader("payload"), "a/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, "c.txt", entry.Name())
	assert.Equal(t, int64(7), entry.Size)

	body, ok := mb.get("a/b/c.txt")
	require.True(t, ok)
	assert.Equal(t, "payload", body)
}
