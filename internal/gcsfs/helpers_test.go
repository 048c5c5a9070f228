package gcsfs

import (
	"context"
	"net/http"
	"testing"

	"github.com/fsouza/fake-gcs-server/fakestorage"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/gcsfs/internal/gcs"
)

const testBucket = "test-bucket"

// newFakeGCS starts an in-process Cloud Storage emulator holding objects.
func newFakeGCS(t *testing.T, objects ...fakestorage.Object) *fakestorage.Server {
	t.Helper()

	server, err := fakestorage.NewServerWithOptions(fakestorage.Options{
		InitialObjects: objects,
		Scheme:         "http",
	})
	require.NoError(t, err)
	t.Cleanup(server.Stop)

	if len(objects) == 0 {
		server.CreateBucketWithOpts(fakestorage.CreateBucketOpts{Name: testBucket})
	}

	return server
}

func object(name, content string) fakestorage.Object {
	return fakestorage.Object{
		ObjectAttrs: fakestorage.ObjectAttrs{BucketName: testBucket, Name: name},
		Content:     []byte(content),
	}
}

// newEmulatedFS returns a FileSystem talking to the emulator.
func newEmulatedFS(t *testing.T, server *fakestorage.Server, opts Options) *FileSystem {
	t.Helper()

	client := gcs.NewClient(server.URL(), testBucket, server.HTTPClient(), gcs.StaticTokenSource(""), nil, "")

	return New(client, opts)
}

// newHTTPTestFS returns a FileSystem talking to an httptest server URL.
func newHTTPTestFS(t *testing.T, url string, opts Options) *FileSystem {
	t.Helper()

	client := gcs.NewClient(url, testBucket, http.DefaultClient, gcs.StaticTokenSource("test-token"), nil, "")

	return New(client, opts)
}

type listed struct {
	name string
	dir  bool
}

// collect drains a listing into name/kind pairs.
func collect(t *testing.T, fsys *FileSystem, p string, recursive bool) []listed {
	t.Helper()

	var out []listed

	for e, err := range fsys.List(context.Background(), p, recursive) {
		require.NoError(t, err)
		out = append(out, listed{name: e.Name(), dir: e.IsDir()})
	}

	return out
}
