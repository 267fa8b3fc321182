// Package social defines the platform client contract and a fan-out service
// that publishes to every configured platform concurrently.
package social

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// Image is an attachment posted alongside text content.
type Image struct {
	Path    string
	AltText string
	Title   string
}

// PostResult identifies a published post on one platform.
type PostResult struct {
	Platform string    `json:"platform"`
	PostID   string    `json:"post_id"`
	URL      string    `json:"url"`
	PostedAt time.Time `json:"posted_at"`
}

// Client is one social platform integration.
type Client interface {
	// Platform returns the platform identifier, e.g. "linkedin".
	Platform() string

	// Post publishes text with optional images and link.
	Post(ctx context.Context, text string, images []Image, link string) (*PostResult, error)

	// Metrics fetches raw engagement counters for a published post.
	Metrics(ctx context.Context, postID string) (map[string]float64, error)
}

// Service fans posts out to the configured platform clients.
type Service struct {
	clients map[string]Client
}

// NewService creates a service over the given clients. Later clients with a
// duplicate platform name replace earlier ones.
func NewService(clients ...Client) *Service {
	s := &Service{clients: make(map[string]Client, len(clients))}
	for _, c := range clients {
		s.clients[c.Platform()] = c
	}
	return s
}

// Platforms lists the configured platform names, sorted.
func (s *Service) Platforms() []string {
	names := make([]string, 0, len(s.clients))
	for name := range s.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Client returns the client for one platform.
func (s *Service) Client(platform string) (Client, error) {
	c, ok := s.clients[platform]
	if !ok {
		return nil, fmt.Errorf("platform not configured: %s", platform)
	}
	return c, nil
}

// PostToAll publishes to the named platforms concurrently (all configured
// platforms when platforms is nil). Failures are per-platform: one platform
// rejecting the post does not stop the others, and the two returned maps
// partition the platforms into successes and failures.
func (s *Service) PostToAll(ctx context.Context, text string, images []Image, link string, platforms []string) (map[string]*PostResult, map[string]error) {
	if platforms == nil {
		platforms = s.Platforms()
	}

	results := make(map[string]*PostResult)
	errs := make(map[string]error)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, platform := range platforms {
		client, ok := s.clients[platform]
		if !ok {
			errs[platform] = fmt.Errorf("platform not configured: %s", platform)
			continue
		}
		wg.Add(1)
		go func(platform string, client Client) {
			defer wg.Done()
			result, err := client.Post(ctx, text, images, link)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("[SOCIAL] Post to %s failed: %v", platform, err)
				errs[platform] = err
				return
			}
			results[platform] = result
		}(platform, client)
	}
	wg.Wait()

	log.Printf("[SOCIAL] Posted to %d/%d platforms", len(results), len(platforms))
	return results, errs
}

// Metrics fetches engagement counters for one post on one platform.
func (s *Service) Metrics(ctx context.Context, platform, postID string) (map[string]float64, error) {
	client, err := s.Client(platform)
	if err != nil {
		return nil, err
	}
	metrics, err := client.Metrics(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("fetch %s metrics: %w", platform, err)
	}
	return metrics, nil
}
