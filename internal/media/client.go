// Package media talks to the external streaming resolver: it turns song
// keys into adaptive-bitrate manifests for streamed playback and fetches
// raw audio bytes with live progress for downloads.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/theviolentghost/StudySync-sub000/internal/constants"
	"github.com/theviolentghost/StudySync-sub000/internal/logger"
	"github.com/theviolentghost/StudySync-sub000/internal/structures"
)

// Manifest describes an adaptive-bitrate stream for non-downloaded content.
type Manifest struct {
	PlaylistURL string `json:"playlist_url"`
	SessionID   string `json:"session_id"`
	Codec       string `json:"codec,omitempty"`
}

// Resolver is the collaborator interface consumed by the player and the
// download system. Tests substitute a fake.
type Resolver interface {
	ResolveManifest(ctx context.Context, key string) (*Manifest, error)
	OpenStream(ctx context.Context, manifest *Manifest) (io.ReadCloser, error)
	Download(ctx context.Context, id structures.SongID, opts *structures.DownloadOptions, progress func(structures.Progress)) ([]byte, string, error)
	FetchArtwork(ctx context.Context, artworkURL string) ([]byte, error)
}

// Client is the HTTP implementation of Resolver.
type Client struct {
	baseURL    string
	httpClient *http.Client
	dlClient   *http.Client
	// No overall timeout: stream bodies stay open for the whole track.
	streamClient *http.Client
}

// NewClient creates a resolver client against baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: constants.HTTPRequestTimeout},
		dlClient:     &http.Client{Timeout: constants.DownloadTimeout},
		streamClient: &http.Client{},
	}
}

// ResolveManifest asks the resolver for a streaming manifest for key.
func (c *Client) ResolveManifest(ctx context.Context, key string) (*Manifest, error) {
	u := fmt.Sprintf("%s/stream/manifest?key=%s", c.baseURL, url.QueryEscape(key))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build manifest request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("manifest request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("manifest request returned %s", resp.Status)
	}

	var manifest Manifest
	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	if manifest.PlaylistURL == "" {
		return nil, errors.New("manifest missing playlist URL")
	}

	logger.Debug("Resolved manifest for %s (session %s)", key, manifest.SessionID)
	return &manifest, nil
}

// OpenStream opens the manifest's playlist URL for streamed playback.
// The caller owns the returned body.
func (c *Client) OpenStream(ctx context.Context, manifest *Manifest) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifest.PlaylistURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build stream request: %w", err)
	}
	if manifest.SessionID != "" {
		req.Header.Set("X-Session-Id", manifest.SessionID)
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stream request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream request returned %s", resp.Status)
	}

	return resp.Body, nil
}

// Download fetches the raw audio bytes for a song, reporting
// {downloaded, total} deltas through progress as the body streams in.
// Returns the payload and its content type.
func (c *Client) Download(ctx context.Context, id structures.SongID, opts *structures.DownloadOptions, progress func(structures.Progress)) ([]byte, string, error) {
	q := url.Values{}
	q.Set("source", string(id.Source))
	q.Set("video_id", id.VideoID)
	if id.SourceID != "" {
		q.Set("source_id", id.SourceID)
	}
	if opts != nil {
		if opts.Quality != "" {
			q.Set("quality", opts.Quality)
		}
		if opts.Format != "" {
			q.Set("format", opts.Format)
		}
	}

	u := fmt.Sprintf("%s/download/audio?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := c.dlClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download request returned %s", resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	total := resp.ContentLength

	var payload []byte
	buf := make([]byte, 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		n, err := resp.Body.Read(buf)
		if n > 0 {
			payload = append(payload, buf[:n]...)
			if progress != nil {
				progress(structures.Progress{
					Downloaded: int64(len(payload)),
					Total:      total,
				})
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("download stream failed: %w", err)
		}
	}

	return payload, contentType, nil
}

// FetchArtwork is currently disabled; artwork blobs are captured from the
// download response when the resolver inlines them. Returns nil without
// error so callers can treat artwork as best-effort.
func (c *Client) FetchArtwork(ctx context.Context, artworkURL string) ([]byte, error) {
	return nil, nil
}
