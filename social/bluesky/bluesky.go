// Package bluesky posts chapter content through the AT Protocol XRPC API.
package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/communitykit/companion/social"
)

// Config holds Bluesky account settings.
type Config struct {
	// Identifier is the account handle or email. Falls back to the
	// BLUESKY_IDENTIFIER environment variable when empty.
	Identifier string

	// AppPassword authenticates the session. Falls back to the
	// BLUESKY_APP_PASSWORD environment variable when empty.
	AppPassword string

	// Host is the PDS endpoint.
	Host string

	// Timeout bounds each API call.
	Timeout time.Duration
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	Host:    "https://bsky.social",
	Timeout: 15 * time.Second,
}

// Client is a Bluesky platform client. Sessions are created lazily on first
// use and reused until the server rejects them.
type Client struct {
	config Config
	http   *http.Client

	mu        sync.Mutex
	accessJWT string
	did       string
}

// New creates a Bluesky client.
func New(cfg Config) (*Client, error) {
	if cfg.Identifier == "" {
		cfg.Identifier = os.Getenv("BLUESKY_IDENTIFIER")
	}
	if cfg.AppPassword == "" {
		cfg.AppPassword = os.Getenv("BLUESKY_APP_PASSWORD")
	}
	if cfg.Identifier == "" || cfg.AppPassword == "" {
		return nil, fmt.Errorf("bluesky: identifier and app password must be set")
	}
	if cfg.Host == "" {
		cfg.Host = DefaultConfig.Host
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig.Timeout
	}
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Platform returns "bluesky".
func (c *Client) Platform() string { return "bluesky" }

// ensureSession authenticates once and caches the access token and DID.
func (c *Client) ensureSession(ctx context.Context) (string, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessJWT != "" {
		return c.accessJWT, c.did, nil
	}

	var resp struct {
		AccessJWT string `json:"accessJwt"`
		DID       string `json:"did"`
	}
	body := map[string]string{
		"identifier": c.config.Identifier,
		"password":   c.config.AppPassword,
	}
	if err := c.xrpc(ctx, http.MethodPost, "com.atproto.server.createSession", "", body, &resp); err != nil {
		return "", "", fmt.Errorf("create session: %w", err)
	}
	c.accessJWT = resp.AccessJWT
	c.did = resp.DID
	return c.accessJWT, c.did, nil
}

type imageEmbed struct {
	Type   string       `json:"$type"`
	Images []embedImage `json:"images"`
}

type embedImage struct {
	Alt   string          `json:"alt"`
	Image json.RawMessage `json:"image"`
}

// Post publishes a feed post. A link is appended to the text; images are
// uploaded as blobs and embedded.
func (c *Client) Post(ctx context.Context, text string, images []social.Image, link string) (*social.PostResult, error) {
	token, did, err := c.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	if link != "" {
		text = text + "\n\n" + link
	}

	record := map[string]any{
		"$type":     "app.bsky.feed.post",
		"text":      text,
		"createdAt": time.Now().UTC().Format(time.RFC3339),
		"langs":     []string{"en"},
	}

	if len(images) > 0 {
		embed := imageEmbed{Type: "app.bsky.embed.images"}
		for _, img := range images {
			blob, err := c.uploadBlob(ctx, token, img.Path)
			if err != nil {
				return nil, fmt.Errorf("upload image %s: %w", img.Path, err)
			}
			embed.Images = append(embed.Images, embedImage{Alt: img.AltText, Image: blob})
		}
		record["embed"] = embed
	}

	var resp struct {
		URI string `json:"uri"`
		CID string `json:"cid"`
	}
	body := map[string]any{
		"repo":       did,
		"collection": "app.bsky.feed.post",
		"record":     record,
	}
	if err := c.xrpc(ctx, http.MethodPost, "com.atproto.repo.createRecord", token, body, &resp); err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}

	return &social.PostResult{
		Platform: c.Platform(),
		PostID:   resp.URI,
		URL:      webURL(did, resp.URI),
		PostedAt: time.Now().UTC(),
	}, nil
}

// Metrics fetches like, repost, and reply counts via the post thread view.
// Bluesky exposes no impression counter; it is reported as zero.
func (c *Client) Metrics(ctx context.Context, postURI string) (map[string]float64, error) {
	token, _, err := c.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Thread struct {
			Post struct {
				LikeCount   int `json:"likeCount"`
				RepostCount int `json:"repostCount"`
				ReplyCount  int `json:"replyCount"`
			} `json:"post"`
		} `json:"thread"`
	}
	query := "app.bsky.feed.getPostThread?uri=" + url.QueryEscape(postURI) + "&depth=0"
	if err := c.xrpc(ctx, http.MethodGet, query, token, nil, &resp); err != nil {
		return nil, fmt.Errorf("get post thread: %w", err)
	}
	return map[string]float64{
		"likes":       float64(resp.Thread.Post.LikeCount),
		"reposts":     float64(resp.Thread.Post.RepostCount),
		"replies":     float64(resp.Thread.Post.ReplyCount),
		"impressions": 0,
	}, nil
}

// uploadBlob sends raw image bytes and returns the blob reference to embed.
func (c *Client) uploadBlob(ctx context.Context, token, path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "image/jpeg"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.Host+"/xrpc/com.atproto.repo.uploadBlob", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", contentType)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		raw, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("bluesky API returned %d: %s", res.StatusCode, raw)
	}

	var resp struct {
		Blob json.RawMessage `json:"blob"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return resp.Blob, nil
}

// xrpc performs one XRPC call. The method string may carry a query string for
// GET calls.
func (c *Client) xrpc(ctx context.Context, httpMethod, method, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod, c.config.Host+"/xrpc/"+method, reader)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		raw, _ := io.ReadAll(res.Body)
		return fmt.Errorf("bluesky API returned %d: %s", res.StatusCode, raw)
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil && err != io.EOF {
			return fmt.Errorf("decode bluesky response: %w", err)
		}
	}
	return nil
}

// webURL converts an AT URI into a bsky.app permalink.
func webURL(did, uri string) string {
	parts := strings.Split(uri, "/")
	if len(parts) == 0 {
		return ""
	}
	return fmt.Sprintf("https://bsky.app/profile/%s/post/%s", did, parts[len(parts)-1])
}
