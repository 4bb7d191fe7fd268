// Package dockerv2 provides the thin registry capability the release
// scraper consumes: tag listing, manifest fetch, and blob fetch against a
// docker registry HTTP API v2 endpoint.
package dockerv2

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Client is the registry capability consumed by the scrape plugin.
type Client interface {
	// ListTags returns the tags of a repository.
	ListTags(ctx context.Context, repository string) ([]string, error)
	// FetchManifest returns the raw manifest bytes and its digest.
	FetchManifest(ctx context.Context, repository, reference string) ([]byte, string, error)
	// FetchBlob returns the raw bytes of a blob by digest.
	FetchBlob(ctx context.Context, repository, digest string) ([]byte, error)
}

const manifestMediaTypes = "application/vnd.docker.distribution.manifest.v2+json, application/vnd.oci.image.manifest.v1+json"

// HTTPClient talks to a registry over its HTTP API.
type HTTPClient struct {
	base   string
	client *http.Client
	auth   string
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithCredentialsFile loads a docker config JSON file and uses the auth
// entry matching the registry host, when present.
func WithCredentialsFile(path, host string) Option {
	return func(c *HTTPClient) {
		auth, err := readDockerAuth(path, host)
		if err == nil {
			c.auth = auth
		}
	}
}

// NewHTTPClient creates a client for the given registry. A registry without
// a scheme defaults to https.
func NewHTTPClient(registry string, opts ...Option) *HTTPClient {
	base := registry
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	c := &HTTPClient{
		base:   strings.TrimSuffix(base, "/"),
		client: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Client = (*HTTPClient)(nil)

// ListTags implements Client.
func (c *HTTPClient) ListTags(ctx context.Context, repository string) ([]string, error) {
	var body struct {
		Tags []string `json:"tags"`
	}
	data, _, err := c.get(ctx, fmt.Sprintf("%s/v2/%s/tags/list", c.base, repository), "")
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decode tag list for %s: %w", repository, err)
	}
	return body.Tags, nil
}

// FetchManifest implements Client. The digest is taken from the
// Docker-Content-Digest header when present, otherwise computed from the
// manifest bytes.
func (c *HTTPClient) FetchManifest(ctx context.Context, repository, reference string) ([]byte, string, error) {
	data, headers, err := c.get(ctx, fmt.Sprintf("%s/v2/%s/manifests/%s", c.base, repository, reference), manifestMediaTypes)
	if err != nil {
		return nil, "", err
	}
	digest := headers.Get("Docker-Content-Digest")
	if digest == "" {
		sum := sha256.Sum256(data)
		digest = "sha256:" + hex.EncodeToString(sum[:])
	}
	return data, digest, nil
}

// FetchBlob implements Client.
func (c *HTTPClient) FetchBlob(ctx context.Context, repository, digest string) ([]byte, error) {
	data, _, err := c.get(ctx, fmt.Sprintf("%s/v2/%s/blobs/%s", c.base, repository, digest), "")
	return data, err
}

func (c *HTTPClient) get(ctx context.Context, url, accept string) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if c.auth != "" {
		req.Header.Set("Authorization", "Basic "+c.auth)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return data, resp.Header, nil
}

// readDockerAuth extracts the base64 auth entry for host from a docker
// config JSON file.
func readDockerAuth(path, host string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var cfg struct {
		Auths map[string]struct {
			Auth     string `json:"auth"`
			Username string `json:"username"`
			Password string `json:"password"`
		} `json:"auths"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("decode credentials file %s: %w", path, err)
	}
	entry, ok := cfg.Auths[host]
	if !ok {
		return "", fmt.Errorf("no credentials for %s in %s", host, path)
	}
	if entry.Auth != "" {
		return entry.Auth, nil
	}
	return base64.StdEncoding.EncodeToString([]byte(entry.Username + ":" + entry.Password)), nil
}
