// Package news fetches space-news headlines from RSS/Atom feeds.
//
// Each configured feed is polled as its own data source, so one Fetch is
// exactly one network request.
package news

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/mmcdole/gofeed"
)

// Feed is one configured headline feed.
type Feed struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Headline is a news item reduced to what the dashboard shows.
type Headline struct {
	ID        string
	Feed      string
	Title     string
	Summary   string
	URL       string
	Published time.Time
}

// Fetcher retrieves headlines from feeds.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a Fetcher with the given HTTP client timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch retrieves and parses one feed. Headlines come back newest first.
func (f *Fetcher) Fetch(ctx context.Context, feed Feed) ([]Headline, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("news %s: create request: %w", feed.Name, err)
	}
	req.Header.Set("User-Agent", "skywatch/0.1")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news %s: fetch feed: %w", feed.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news %s: HTTP error: %d", feed.Name, resp.StatusCode)
	}

	parsed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("news %s: parse feed: %w", feed.Name, err)
	}

	now := time.Now()
	headlines := make([]Headline, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		headlines = append(headlines, convertItem(item, feed, now))
	}

	sort.SliceStable(headlines, func(i, j int) bool {
		return headlines[i].Published.After(headlines[j].Published)
	})
	return headlines, nil
}

func convertItem(item *gofeed.Item, feed Feed, fetched time.Time) Headline {
	published := fetched
	if item.PublishedParsed != nil {
		published = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		published = *item.UpdatedParsed
	}

	summary := item.Description
	if summary == "" {
		summary = truncate(item.Content, 300)
	}

	return Headline{
		ID:        itemID(item),
		Feed:      feed.Name,
		Title:     item.Title,
		Summary:   summary,
		URL:       item.Link,
		Published: published,
	}
}

// itemID prefers the GUID, then the link, then title+date.
func itemID(item *gofeed.Item) string {
	key := item.GUID
	if key == "" {
		key = item.Link
	}
	if key == "" {
		key = item.Title
		if item.PublishedParsed != nil {
			key += item.PublishedParsed.String()
		}
	}
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:8])
}

// truncate shortens s to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
