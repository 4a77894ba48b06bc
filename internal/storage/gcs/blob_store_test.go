package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

type upload struct {
	name string
	body string
}

func newTestStore(t *testing.T, status int, cfg Config) (*BlobStore, func() []upload) {
	t.Helper()

	var (
		mu      sync.Mutex
		uploads []upload
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		uploads = append(uploads, upload{name: r.URL.Query().Get("name"), body: string(body)})
		mu.Unlock()
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		fmt.Fprintf(w, `{"name": %q, "bucket": %q}`, r.URL.Query().Get("name"), cfg.Bucket)
	}))
	t.Cleanup(server.Close)

	store, err := Open(context.Background(), cfg,
		option.WithEndpoint(server.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	return store, func() []upload {
		mu.Lock()
		defer mu.Unlock()
		return append([]upload(nil), uploads...)
	}
}

func TestPutObjectUploadsWithPrefix(t *testing.T) {
	t.Parallel()

	store, uploads := newTestStore(t, http.StatusOK, Config{Bucket: "lead-exports", Prefix: "/leads/"})

	uri, err := store.PutObject(context.Background(), "batch-1.csv", "text/csv", strings.NewReader("URL\nhttps://a.test\n"))
	require.NoError(t, err)
	require.Equal(t, "gs://lead-exports/leads/batch-1.csv", uri)

	got := uploads()
	require.Len(t, got, 1)
	require.Equal(t, "leads/batch-1.csv", got[0].name)
	require.Contains(t, got[0].body, "https://a.test")
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, http.StatusForbidden, Config{Bucket: "lead-exports"})
	_, err := store.PutObject(context.Background(), "batch.csv", "text/csv", strings.NewReader("x"))
	require.Error(t, err)
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, http.StatusOK, Config{Bucket: "lead-exports"})
	_, err := store.PutObject(context.Background(), " ", "", strings.NewReader("x"))
	require.Error(t, err)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close()
	_, err = New(client, Config{})
	require.Error(t, err)

	store, err := New(client, Config{Bucket: "b"})
	require.NoError(t, err)
	require.NoError(t, store.Close())
}
