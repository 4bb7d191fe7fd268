package dockerv2

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T, auth string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/ocp/release/tags/list", func(w http.ResponseWriter, r *http.Request) {
		if auth != "" && r.Header.Get("Authorization") != "Basic "+auth {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"name":"ocp/release","tags":["4.1.0","4.2.0"]}`))
	})
	mux.HandleFunc("/v2/ocp/release/manifests/4.1.0", func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.Header.Get("Accept"), "manifest")
		w.Header().Set("Docker-Content-Digest", "sha256:abc")
		w.Write([]byte(`{"config":{"digest":"sha256:cfg"}}`))
	})
	mux.HandleFunc("/v2/ocp/release/blobs/sha256:cfg", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"kind":"cincinnati-metadata-v0","version":"4.1.0"}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestListTags(t *testing.T) {
	t.Parallel()

	server := newRegistry(t, "")
	client := NewHTTPClient(server.URL)

	tags, err := client.ListTags(context.Background(), "ocp/release")
	require.NoError(t, err)
	require.Equal(t, []string{"4.1.0", "4.2.0"}, tags)
}

func TestFetchManifestUsesHeaderDigest(t *testing.T) {
	t.Parallel()

	server := newRegistry(t, "")
	client := NewHTTPClient(server.URL)

	manifest, digest, err := client.FetchManifest(context.Background(), "ocp/release", "4.1.0")
	require.NoError(t, err)
	require.Equal(t, "sha256:abc", digest)
	require.Contains(t, string(manifest), "sha256:cfg")
}

func TestFetchBlob(t *testing.T) {
	t.Parallel()

	server := newRegistry(t, "")
	client := NewHTTPClient(server.URL)

	blob, err := client.FetchBlob(context.Background(), "ocp/release", "sha256:cfg")
	require.NoError(t, err)
	require.Contains(t, string(blob), "cincinnati-metadata-v0")
}

func TestNotFoundIsAnError(t *testing.T) {
	t.Parallel()

	server := newRegistry(t, "")
	client := NewHTTPClient(server.URL)

	_, err := client.FetchBlob(context.Background(), "ocp/release", "sha256:missing")
	require.ErrorContains(t, err, "404")
}

func TestCredentialsFile(t *testing.T) {
	t.Parallel()

	auth := base64.StdEncoding.EncodeToString([]byte("robot:hunter2"))
	server := newRegistry(t, auth)

	host := server.Listener.Addr().String()
	credentials := `{"auths":{"` + host + `":{"auth":"` + auth + `"}}}`
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(credentials), 0o600))

	client := NewHTTPClient(server.URL, WithCredentialsFile(path, host))
	tags, err := client.ListTags(context.Background(), "ocp/release")
	require.NoError(t, err)
	require.Len(t, tags, 2)

	// Without credentials the same call is rejected.
	_, err = NewHTTPClient(server.URL).ListTags(context.Background(), "ocp/release")
	require.Error(t, err)
}

func TestSchemeDefaultsToHTTPS(t *testing.T) {
	t.Parallel()

	client := NewHTTPClient("registry.example.com")
	require.Equal(t, "https://registry.example.com", client.base)

	client = NewHTTPClient("http://localhost:5000/")
	require.Equal(t, "http://localhost:5000", client.base)
}
