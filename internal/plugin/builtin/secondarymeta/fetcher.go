package secondarymeta

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/openshift/cincinnati/internal/dockerv2"
)

// Fetcher materializes the metadata repository into a directory. The graph
// core treats the repository layout as opaque; only the parse plugin reads
// it.
type Fetcher interface {
	Fetch(ctx context.Context, dst string) error
}

// GithubTarballFetcher downloads and extracts a gzipped tarball over HTTP.
// The top-level directory GitHub prepends to archives is stripped.
type GithubTarballFetcher struct {
	URL    string
	Client *http.Client
}

// Fetch implements Fetcher.
func (f *GithubTarballFetcher) Fetch(ctx context.Context, dst string) error {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch metadata tarball: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch metadata tarball: %s", resp.Status)
	}

	return extractTarGz(resp.Body, dst, 1)
}

// GitFetcher clones the metadata repository at a branch using go-git.
type GitFetcher struct {
	URL    string
	Branch string
}

// Fetch implements Fetcher. An existing checkout at dst is replaced.
func (f *GitFetcher) Fetch(ctx context.Context, dst string) error {
	if err := os.RemoveAll(dst); err != nil {
		return err
	}

	opts := &git.CloneOptions{
		URL:   f.URL,
		Depth: 1,
	}
	if f.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(f.Branch)
		opts.SingleBranch = true
	}

	if _, err := git.PlainCloneContext(ctx, dst, false, opts); err != nil {
		return fmt.Errorf("clone metadata repository %s: %w", f.URL, err)
	}
	return nil
}

// Dockerv2Fetcher extracts the metadata tarball shipped as the first layer
// of a container image.
type Dockerv2Fetcher struct {
	Client     dockerv2.Client
	Repository string
	Tag        string
}

// Fetch implements Fetcher.
func (f *Dockerv2Fetcher) Fetch(ctx context.Context, dst string) error {
	manifest, _, err := f.Client.FetchManifest(ctx, f.Repository, f.Tag)
	if err != nil {
		return fmt.Errorf("fetch metadata image manifest: %w", err)
	}

	var parsed struct {
		Layers []struct {
			Digest string `json:"digest"`
		} `json:"layers"`
	}
	if err := json.Unmarshal(manifest, &parsed); err != nil {
		return fmt.Errorf("decode metadata image manifest: %w", err)
	}
	if len(parsed.Layers) == 0 {
		return fmt.Errorf("metadata image %s:%s has no layers", f.Repository, f.Tag)
	}

	blob, err := f.Client.FetchBlob(ctx, f.Repository, parsed.Layers[0].Digest)
	if err != nil {
		return fmt.Errorf("fetch metadata layer: %w", err)
	}
	return extractTarGz(bytes.NewReader(blob), dst, 0)
}

// extractTarGz unpacks a gzipped tarball under dst, dropping strip leading
// path components. Entries escaping dst are rejected.
func extractTarGz(r io.Reader, dst string, strip int) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}

	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("decompress metadata tarball: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read metadata tarball: %w", err)
		}

		name := stripComponents(header.Name, strip)
		if name == "" {
			continue
		}
		target := filepath.Join(dst, filepath.FromSlash(name))
		if !strings.HasPrefix(target, filepath.Clean(dst)+string(os.PathSeparator)) {
			return fmt.Errorf("tarball entry %q escapes extraction directory", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		}
	}
}

func stripComponents(name string, strip int) string {
	parts := strings.Split(strings.TrimPrefix(name, "./"), "/")
	if len(parts) <= strip {
		return ""
	}
	return strings.Join(parts[strip:], "/")
}
