// Package linkedin posts chapter content through the LinkedIn UGC API.
package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/communitykit/companion/social"
)

// Config holds LinkedIn API settings.
type Config struct {
	// AccessToken authenticates API calls. Falls back to the
	// LINKEDIN_ACCESS_TOKEN environment variable when empty.
	AccessToken string

	// AuthorURN is the posting identity, e.g. "urn:li:organization:123".
	AuthorURN string

	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string

	// Timeout bounds each API call.
	Timeout time.Duration
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	BaseURL: "https://api.linkedin.com/v2",
	Timeout: 15 * time.Second,
}

// Client is a LinkedIn platform client.
type Client struct {
	config Config
	http   *http.Client
}

// New creates a LinkedIn client.
func New(cfg Config) (*Client, error) {
	if cfg.AccessToken == "" {
		cfg.AccessToken = os.Getenv("LINKEDIN_ACCESS_TOKEN")
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("linkedin: access token not set")
	}
	if cfg.AuthorURN == "" {
		return nil, fmt.Errorf("linkedin: author URN not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig.Timeout
	}
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Platform returns "linkedin".
func (c *Client) Platform() string { return "linkedin" }

type shareCommentary struct {
	Text string `json:"text"`
}

type shareMedia struct {
	Status      string           `json:"status"`
	Media       string           `json:"media,omitempty"`
	OriginalURL string           `json:"originalUrl,omitempty"`
	Title       *shareCommentary `json:"title,omitempty"`
	Description *shareCommentary `json:"description,omitempty"`
}

type shareContent struct {
	ShareCommentary    shareCommentary `json:"shareCommentary"`
	ShareMediaCategory string          `json:"shareMediaCategory"`
	Media              []shareMedia    `json:"media,omitempty"`
}

type ugcPost struct {
	Author          string                  `json:"author"`
	LifecycleState  string                  `json:"lifecycleState"`
	SpecificContent map[string]shareContent `json:"specificContent"`
	Visibility      map[string]string       `json:"visibility"`
}

// Post publishes a UGC post. Images are uploaded as assets first; a link is
// attached as an article share.
func (c *Client) Post(ctx context.Context, text string, images []social.Image, link string) (*social.PostResult, error) {
	content := shareContent{
		ShareCommentary:    shareCommentary{Text: text},
		ShareMediaCategory: "NONE",
	}

	switch {
	case len(images) > 0:
		content.ShareMediaCategory = "IMAGE"
		for _, img := range images {
			asset, err := c.uploadImage(ctx, img)
			if err != nil {
				return nil, fmt.Errorf("upload image %s: %w", img.Path, err)
			}
			media := shareMedia{Status: "READY", Media: asset}
			if img.Title != "" {
				media.Title = &shareCommentary{Text: img.Title}
			}
			content.Media = append(content.Media, media)
		}
	case link != "":
		content.ShareMediaCategory = "ARTICLE"
		content.Media = []shareMedia{{Status: "READY", OriginalURL: link}}
	}

	post := ugcPost{
		Author:         c.config.AuthorURN,
		LifecycleState: "PUBLISHED",
		SpecificContent: map[string]shareContent{
			"com.linkedin.ugc.ShareContent": content,
		},
		Visibility: map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	var resp struct {
		ID string `json:"id"`
	}
	header, err := c.call(ctx, http.MethodPost, "/ugcPosts", post, &resp)
	if err != nil {
		return nil, err
	}

	postID := header.Get("X-RestLi-Id")
	if postID == "" {
		postID = resp.ID
	}
	return &social.PostResult{
		Platform: c.Platform(),
		PostID:   postID,
		URL:      fmt.Sprintf("https://www.linkedin.com/feed/update/%s", postID),
		PostedAt: time.Now().UTC(),
	}, nil
}

// Metrics fetches social action counters for a post. LinkedIn's social
// actions endpoint exposes likes and comments; the remaining counters are
// reported as zero.
func (c *Client) Metrics(ctx context.Context, postID string) (map[string]float64, error) {
	var resp struct {
		LikesSummary struct {
			TotalLikes int `json:"totalLikes"`
		} `json:"likesSummary"`
		CommentsSummary struct {
			TotalFirstLevelComments int `json:"totalFirstLevelComments"`
		} `json:"commentsSummary"`
	}
	path := "/socialActions/" + url.PathEscape(postID)
	if _, err := c.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return map[string]float64{
		"likes":       float64(resp.LikesSummary.TotalLikes),
		"comments":    float64(resp.CommentsSummary.TotalFirstLevelComments),
		"shares":      0,
		"impressions": 0,
	}, nil
}

// uploadImage registers an upload, sends the image bytes, and returns the
// asset URN.
func (c *Client) uploadImage(ctx context.Context, img social.Image) (string, error) {
	register := map[string]any{
		"registerUploadRequest": map[string]any{
			"recipes": []string{"urn:li:digitalmediaRecipe:feedshare-image"},
			"owner":   c.config.AuthorURN,
			"serviceRelationships": []map[string]string{
				{"relationshipType": "OWNER", "identifier": "urn:li:userGeneratedContent"},
			},
		},
	}
	var resp struct {
		Value struct {
			Asset           string `json:"asset"`
			UploadMechanism map[string]struct {
				UploadURL string `json:"uploadUrl"`
			} `json:"uploadMechanism"`
		} `json:"value"`
	}
	if _, err := c.call(ctx, http.MethodPost, "/assets?action=registerUpload", register, &resp); err != nil {
		return "", err
	}

	var uploadURL string
	for _, mech := range resp.Value.UploadMechanism {
		uploadURL = mech.UploadURL
	}
	if uploadURL == "" {
		return "", fmt.Errorf("register upload returned no upload URL")
	}

	data, err := os.ReadFile(img.Path)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)
	res, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		return "", fmt.Errorf("upload returned %d: %s", res.StatusCode, body)
	}
	return resp.Value.Asset, nil
}

// call performs one JSON API request and decodes the response into out when
// out is non-nil.
func (c *Client) call(ctx context.Context, method, path string, body, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		raw, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("linkedin API returned %d: %s", res.StatusCode, raw)
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil && err != io.EOF {
			return nil, fmt.Errorf("decode linkedin response: %w", err)
		}
	}
	return res.Header, nil
}
