// Package fetcher searches the marketplace catalog and turns responses into Listings.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"sniper_bot/internal/model"
)

const (
	userAgent   = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	maxBodySize = 5 * 1024 * 1024
	perPage     = 96
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options tunes the catalog client. Zero values select the defaults.
type Options struct {
	// RequestInterval is the minimum gap between requests. Zero disables pacing.
	RequestInterval time.Duration
	Retries         uint64
	RetryBase       time.Duration
	Timeout         time.Duration
	Transport       http.RoundTripper
}

// Client searches a marketplace catalog. Each poll cycle opens its own session.
type Client struct {
	baseURL   *url.URL
	transport http.RoundTripper
	limiter   *rate.Limiter
	retries   uint64
	retryBase time.Duration
	timeout   time.Duration
	now       func() time.Time
	log       *slog.Logger
}

// New creates a Client for the marketplace at baseURL.
func New(baseURL string, opts Options, log *slog.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid marketplace url %q", baseURL)
	}

	c := &Client{
		baseURL:   u,
		transport: opts.Transport,
		limiter:   rate.NewLimiter(rate.Inf, 1),
		retries:   opts.Retries,
		retryBase: opts.RetryBase,
		timeout:   opts.Timeout,
		now:       time.Now,
		log:       log,
	}
	if opts.RequestInterval > 0 {
		c.limiter = rate.NewLimiter(rate.Every(opts.RequestInterval), 1)
	}
	if c.retries == 0 {
		c.retries = 2
	}
	if c.retryBase <= 0 {
		c.retryBase = time.Second
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	if c.transport == nil {
		c.transport = http.DefaultTransport
	}
	return c, nil
}

// OpenSession starts a cookie-carrying session and visits the home page so
// the catalog endpoints accept subsequent requests.
func (c *Client) OpenSession(ctx context.Context) (model.SearchSession, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	s := &session{
		client: c,
		http:   &http.Client{Transport: c.transport, Jar: jar, Timeout: c.timeout},
	}

	if _, err := s.get(ctx, c.baseURL.String(), "text/html"); err != nil {
		if model.IsRateLimited(err) {
			s.Close()
			return nil, fmt.Errorf("open session: %w", err)
		}
		c.log.Warn("session warm-up failed", "error", err)
	}
	return s, nil
}

type session struct {
	client *Client
	http   *http.Client
}

// Close releases idle connections held by the session.
func (s *session) Close() {
	s.http.CloseIdleConnections()
}

// Search returns the newest listings for term. The JSON catalog endpoint is
// tried first; the catalog page's embedded data is the fallback when the
// endpoint fails or comes back empty.
func (s *session) Search(ctx context.Context, term string) ([]model.Listing, error) {
	raws, err := s.searchAPI(ctx, term)
	switch {
	case model.IsRateLimited(err):
		return nil, err
	case err != nil:
		s.client.log.Debug("catalog api failed, trying catalog page", "term", term, "error", err)
		var pageErr error
		raws, pageErr = s.searchPage(ctx, term)
		if pageErr != nil {
			return nil, fmt.Errorf("search %q: %w", term, pageErr)
		}
	case len(raws) == 0:
		pageRaws, pageErr := s.searchPage(ctx, term)
		if model.IsRateLimited(pageErr) {
			return nil, pageErr
		}
		if pageErr != nil {
			s.client.log.Debug("catalog page fallback failed", "term", term, "error", pageErr)
		}
		raws = pageRaws
	}

	now := s.client.now()
	listings := make([]model.Listing, 0, len(raws))
	for _, raw := range raws {
		l, err := Normalize(raw, now)
		if err != nil {
			s.client.log.Debug("skip malformed listing", "term", term, "error", err)
			continue
		}
		listings = append(listings, l)
	}
	return listings, nil
}

func (s *session) searchAPI(ctx context.Context, term string) ([]RawItem, error) {
	u := s.client.baseURL.JoinPath("api", "v2", "catalog", "items")
	q := url.Values{}
	q.Set("search_text", term)
	q.Set("order", "newest_first")
	q.Set("per_page", strconv.Itoa(perPage))
	u.RawQuery = q.Encode()

	body, err := s.get(ctx, u.String(), "application/json")
	if err != nil {
		return nil, err
	}
	return parseCatalogJSON(body, s.client.baseURL)
}

func (s *session) searchPage(ctx context.Context, term string) ([]RawItem, error) {
	u := s.client.baseURL.JoinPath("catalog")
	q := url.Values{}
	q.Set("search_text", term)
	q.Set("order", "newest_first")
	u.RawQuery = q.Encode()

	body, err := s.get(ctx, u.String(), "text/html")
	if err != nil {
		return nil, err
	}
	return parseCatalogPage(body, s.client.baseURL)
}

// get fetches rawURL. Server errors and network failures are retried with
// exponential backoff; 429 is returned at once so the caller can back off.
func (s *session) get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	b := retry.NewExponential(s.client.retryBase)
	b = retry.WithJitterPercent(10, b)
	b = retry.WithMaxRetries(s.client.retries, b)

	var body []byte
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := s.client.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("wait for rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", accept)
		req.Header.Set("Accept-Language", "it-IT,it;q=0.9,en;q=0.8")

		resp, err := s.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retry.RetryableError(fmt.Errorf("http get: %w", err))
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return &model.HTTPError{
				StatusCode: resp.StatusCode,
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), s.client.now()),
			}
		case resp.StatusCode >= http.StatusInternalServerError:
			return retry.RetryableError(&model.HTTPError{StatusCode: resp.StatusCode})
		case resp.StatusCode != http.StatusOK:
			return &model.HTTPError{StatusCode: resp.StatusCode}
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return retry.RetryableError(fmt.Errorf("read body: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}
