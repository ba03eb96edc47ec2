package fetcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"sniper_bot/internal/model"
)

var (
	// Amount followed or preceded by a currency marker, e.g. "35,00 €" or "€ 35".
	priceAfterRe  = regexp.MustCompile(`(\d[\d.,\s]*)\s*(€|EUR|£|GBP|\$|USD|PLN|zł|RON|lei|CZK|Kč)`)
	priceBeforeRe = regexp.MustCompile(`(€|EUR|£|GBP|\$|USD)\s*(\d[\d.,]*)`)

	currencySymbols = map[string]string{
		"€": "EUR", "£": "GBP", "$": "USD", "zł": "PLN", "lei": "RON", "kč": "CZK",
	}
)

// FeedSearcher searches a marketplace through an RSS or Atom search feed.
// The URL template must contain one %s for the escaped search term.
type FeedSearcher struct {
	client   HTTPClient
	template string
	now      func() time.Time
	log      *slog.Logger
}

// NewFeedSearcher creates a FeedSearcher with the given HTTP client.
func NewFeedSearcher(client HTTPClient, template string, log *slog.Logger) (*FeedSearcher, error) {
	if strings.Count(template, "%s") != 1 {
		return nil, fmt.Errorf("feed url template must contain exactly one %%s: %q", template)
	}
	return &FeedSearcher{client: client, template: template, now: time.Now, log: log}, nil
}

// OpenSession returns the searcher itself; feeds need no session state.
func (f *FeedSearcher) OpenSession(_ context.Context) (model.SearchSession, error) {
	return f, nil
}

// Close is a no-op.
func (f *FeedSearcher) Close() {}

// Search fetches the feed for term and converts its items.
func (f *FeedSearcher) Search(ctx context.Context, term string) ([]model.Listing, error) {
	feed, err := f.Fetch(ctx, fmt.Sprintf(f.template, url.QueryEscape(term)))
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", term, err)
	}

	now := f.now()
	listings := make([]model.Listing, 0, len(feed.Items))
	for _, item := range feed.Items {
		l, err := Normalize(feedItemRaw(item), now)
		if err != nil {
			f.log.Debug("skip malformed feed item", "term", term, "error", err)
			continue
		}
		listings = append(listings, l)
	}
	return listings, nil
}

// Fetch downloads and parses a feed from the given URL.
func (f *FeedSearcher) Fetch(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), f.now()),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &model.HTTPError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// ItemGUID returns the GUID for a feed item.
// If the item has no GUID, a SHA-256 hash of title+link is used.
func ItemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

func feedItemRaw(item *gofeed.Item) RawItem {
	raw := RawItem{
		ID:          ItemGUID(item),
		Title:       item.Title,
		Description: item.Description,
		URL:         item.Link,
	}
	if item.PublishedParsed != nil {
		raw.CreatedAt = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		raw.CreatedAt = *item.UpdatedParsed
	}

	if item.Image != nil && item.Image.URL != "" {
		raw.PhotoURLs = append(raw.PhotoURLs, item.Image.URL)
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && !slices.Contains(raw.PhotoURLs, enc.URL) {
			raw.PhotoURLs = append(raw.PhotoURLs, enc.URL)
		}
	}

	raw.Price, raw.Currency = extractPrice(item.Title + " " + item.Description)
	return raw
}

// extractPrice finds the first amount with a currency marker in text.
func extractPrice(text string) (amount, currency string) {
	if m := priceAfterRe.FindStringSubmatch(text); m != nil {
		return cleanAmount(m[1]), currencyCode(m[2])
	}
	if m := priceBeforeRe.FindStringSubmatch(text); m != nil {
		return cleanAmount(m[2]), currencyCode(m[1])
	}
	return "", ""
}

func currencyCode(marker string) string {
	if code, ok := currencySymbols[strings.ToLower(marker)]; ok {
		return code
	}
	return strings.ToUpper(marker)
}

func cleanAmount(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), ".,")
}
