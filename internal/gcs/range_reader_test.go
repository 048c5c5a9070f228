package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rangeServer serves byte ranges of content and records the requested ranges.
type rangeServer struct {
	mu       sync.Mutex
	content  []byte
	ranges   []string
	truncate int
}

func newRangeServer(t *testing.T, content []byte) (*rangeServer, *httptest.Server) {
	t.Helper()

	rs := &rangeServer{content: content}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/storage/v1/b/test-bucket/o/dir%2Fdata.bin", r.URL.EscapedPath())
		assert.Equal(t, "media", r.URL.Query().Get("alt"))
		assert.Equal(t, "42", r.URL.Query().Get("generation"))

		header := r.Header.Get("Range")

		rs.mu.Lock()
		rs.ranges = append(rs.ranges, header)
		truncate := rs.truncate
		rs.mu.Unlock()

		rangeSpec, _ := strings.CutPrefix(header, "bytes=")
		startStr, endStr, _ := strings.Cut(rangeSpec, "-")
		start, _ := strconv.Atoi(startStr)
		end, _ := strconv.Atoi(endStr)

		body := rs.content[start : end+1]
		body = body[:len(body)-min(truncate, len(body))]

		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(rs.content)))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	return rs, srv
}

func (rs *rangeServer) requested() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	return append([]string(nil), rs.ranges...)
}

func testObject(size int64) *Object {
	return &Object{Name: "dir/data.bin", Size: size, Generation: 42}
}

func TestRangeReader_ReadSequential(t *testing.T) {
	content := []byte("0123456789abcdef")
	rs, srv := newRangeServer(t, content)
	client := newTestClient(t, srv.URL)

	r := client.NewRangeReader(context.Background(), testObject(int64(len(content))))
	defer r.Close()

	assert.Equal(t, int64(16), r.Size())
	assert.Equal(t, int64(42), r.Generation())

	buf := make([]byte, 10)

	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(buf[:n]))

	n, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(buf[:n]))

	n, err = r.Read(buf)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)

	assert.Equal(t, []string{"bytes=0-9", "bytes=10-15"}, rs.requested())
}

func TestRangeReader_SeekAndReadAt(t *testing.T) {
	content := []byte("0123456789abcdef")
	rs, srv := newRangeServer(t, content)
	client := newTestClient(t, srv.URL)

	r := client.NewRangeReader(context.Background(), testObject(int64(len(content))))
	defer r.Close()

	pos, err := r.Seek(-4, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(12), pos)

	buf := make([]byte, 2)
	_, err = io.ReadFull(r, buf)
	require.NoError(t, err)
	assert.Equal(t, "cd", string(buf))

	pos, err = r.Seek(-10, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(4), pos)

	at := make([]byte, 3)
	n, err := r.ReadAt(at, 7)
	require.NoError(t, err)
	assert.Equal(t, "789", string(at[:n]))

	// ReadAt leaves the position alone.
	_, err = io.ReadFull(r, buf)
	require.NoError(t, err)
	assert.Equal(t, "45", string(buf))

	tail := make([]byte, 8)
	n, err = r.ReadAt(tail, 12)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "cdef", string(tail[:n]))

	assert.Equal(t, []string{"bytes=12-13", "bytes=7-9", "bytes=4-5", "bytes=12-15"}, rs.requested())
}

func TestRangeReader_SeekPastEndAndInvalid(t *testing.T) {
	client := newTestClient(t, "http://unused.invalid")
	r := client.NewRangeReader(context.Background(), testObject(5))

	pos, err := r.Seek(100, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(100), pos)

	n, err := r.Read(make([]byte, 4))
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)

	_, err = r.Seek(-1, io.SeekStart)
	assert.Error(t, err)

	_, err = r.Seek(0, 7)
	assert.Error(t, err)

	require.NoError(t, r.Close())

	_, err = r.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = r.Seek(0, io.SeekStart)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, r.Close(), ErrClosed)
}

func TestRangeReader_ShortBodyIsError(t *testing.T) {
	content := []byte("0123456789")
	rs, srv := newRangeServer(t, content)
	rs.truncate = 3

	client := newTestClient(t, srv.URL)
	r := client.NewRangeReader(context.Background(), testObject(int64(len(content))))
	defer r.Close()

	n, err := r.Read(make([]byte, 10))
	assert.Equal(t, 0, n)
	require.ErrorIs(t, err, ErrShortRead)
}

func TestRangeReader_MissingGenerationIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	r := client.NewRangeReader(context.Background(), testObject(10))
	defer r.Close()

	_, err := r.Read(make([]byte, 4))
	assert.True(t, IsNotFound(err))
}

func TestDownload_StreamsWholeObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/storage/v1/b/test-bucket/o/notes.txt", r.URL.EscapedPath())
		assert.Equal(t, "media", r.URL.Query().Get("alt"))
		assert.Empty(t, r.Header.Get("Range"))
		_, _ = w.Write([]byte("full content"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	var sb strings.Builder
	n, err := client.Download(context.Background(), "notes.txt", &sb)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	assert.Equal(t, "full content", sb.String())
}

func TestDownloadRange(t *testing.T) {
	content := "0123456789"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeSpec, _ := strings.CutPrefix(r.Header.Get("Range"), "bytes=")
		start, _ := strconv.Atoi(strings.TrimSuffix(rangeSpec, "-"))

		if start >= len(content) {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)

			return
		}

		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte(content[start:]))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	var sb strings.Builder
	n, err := client.DownloadRange(context.Background(), "f", &sb, 6)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, "6789", sb.String())

	n, err = client.DownloadRange(context.Background(), "f", &sb, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}
