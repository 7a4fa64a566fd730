// Package gcs uploads product images to a Google Cloud Storage bucket over the JSON API.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
)

const (
	defaultAPIBase    = "https://storage.googleapis.com"
	defaultPublicBase = "https://storage.googleapis.com"
	pingTimeout       = 5 * time.Second
)

type Client struct {
	httpClient *http.Client
	bucket     string
	apiBase    string
	publicBase string
	tokens     *tokenSource
}

// New resolves credentials the same way as the other GCP clients: inline JSON,
// then a credentials file, then the metadata server.
func New(ctx context.Context, storage config.StorageConfig, gcp config.GCPConfig) (*Client, error) {
	if strings.TrimSpace(storage.GCSBucket) == "" {
		return nil, errors.New("gcs bucket name is required")
	}
	httpClient := &http.Client{Timeout: 30 * time.Second}

	var (
		ts  *tokenSource
		err error
	)
	switch {
	case gcp.CredentialsJSON != "":
		ts, err = serviceAccountTokenSource(httpClient, gcp.CredentialsJSON)
	case gcp.ApplicationCredentials != "":
		raw, readErr := os.ReadFile(gcp.ApplicationCredentials)
		if readErr != nil {
			return nil, fmt.Errorf("reading credentials file: %w", readErr)
		}
		ts, err = serviceAccountTokenSource(httpClient, string(raw))
	default:
		ts = metadataTokenSource(httpClient)
	}
	if err != nil {
		return nil, err
	}

	publicBase := defaultPublicBase + "/" + storage.GCSBucket
	if base := strings.TrimSpace(storage.PublicBaseURL); strings.HasPrefix(base, "http") {
		publicBase = strings.TrimRight(base, "/")
	}

	c := &Client{
		httpClient: httpClient,
		bucket:     storage.GCSBucket,
		apiBase:    defaultAPIBase,
		publicBase: publicBase,
		tokens:     ts,
	}
	if err := c.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}
	return c, nil
}

// Put uploads body as key with a simple media upload and returns the public URL.
func (c *Client) Put(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	endpoint := fmt.Sprintf("%s/upload/storage/v1/b/%s/o?uploadType=media&name=%s",
		c.apiBase, url.PathEscape(c.bucket), url.QueryEscape(key))
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	if err := c.do(req, http.StatusOK); err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}
	return c.PublicURL(key), nil
}

// Delete treats a missing object as already deleted.
func (c *Client) Delete(ctx context.Context, key string) error {
	endpoint := fmt.Sprintf("%s/storage/v1/b/%s/o/%s", c.apiBase, url.PathEscape(c.bucket), url.PathEscape(key))
	req, err := c.newRequest(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	if err := c.do(req, http.StatusNoContent, http.StatusNotFound); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Ping lists at most one object, which needs storage.objects.list on the bucket.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.tokens == nil {
		return errors.New("gcs client not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	endpoint := fmt.Sprintf("%s/storage/v1/b/%s/o?maxResults=1", c.apiBase, url.PathEscape(c.bucket))
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, http.StatusOK)
}

func (c *Client) PublicURL(key string) string {
	return c.publicBase + "/" + key
}

func (c *Client) Bucket() string {
	return c.bucket
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, accepted ...int) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	for _, code := range accepted {
		if resp.StatusCode == code {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if msg := strings.TrimSpace(string(detail)); msg != "" {
		return fmt.Errorf("gcs returned %s: %s", resp.Status, msg)
	}
	return fmt.Errorf("gcs returned %s", resp.Status)
}
