package fetcher

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mmcdole/gofeed"
	"github.com/shopspring/decimal"

	"sniper_bot/internal/model"
)

type mockTransport struct {
	body       string
	statusCode int
	err        error
	lastURL    string
}

func (m *mockTransport) Do(req *http.Request) (*http.Response, error) {
	m.lastURL = req.URL.String()
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func TestFeedSearch(t *testing.T) {
	xml := loadFixture(t, "../../testdata/search_feed.xml")
	transport := &mockTransport{body: xml, statusCode: 200}

	f, err := NewFeedSearcher(transport, "https://market.example.com/search.rss?q=%s", testLogger())
	if err != nil {
		t.Fatalf("new feed searcher: %v", err)
	}
	f.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

	got, err := f.Search(context.Background(), "nike air")
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if diff := cmp.Diff("https://market.example.com/search.rss?q=nike+air", transport.lastURL); diff != "" {
		t.Errorf("request url mismatch (-want +got):\n%s", diff)
	}

	want := []model.Listing{
		{
			ID:          "item-1",
			Title:       "Nike Air Force 1 - 45,00 €",
			Description: "Taglia 43, ottime condizioni",
			Price:       decimal.RequireFromString("45"),
			Currency:    "EUR",
			HasImage:    true,
			AgeMinutes:  intp(10),
			URL:         "https://market.example.com/items/1",
			PhotoURLs:   []string{"https://images.example.com/1.jpg"},
		},
		{
			ID:          ItemGUID(&gofeed.Item{Title: "Nike Dunk Low", Link: "https://market.example.com/items/2"}),
			Title:       "Nike Dunk Low",
			Description: "Prezzo € 60. Mai usate.",
			Price:       decimal.RequireFromString("60"),
			Currency:    "EUR",
			AgeMinutes:  intp(180),
			URL:         "https://market.example.com/items/2",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Search mismatch (-want +got):\n%s", diff)
	}
}

func TestFeedFetchErrors(t *testing.T) {
	tests := []struct {
		name        string
		transport   *mockTransport
		rateLimited bool
	}{
		{name: "http error status", transport: &mockTransport{body: "not found", statusCode: 404}},
		{name: "network error", transport: &mockTransport{err: io.ErrUnexpectedEOF}},
		{name: "invalid xml", transport: &mockTransport{body: "not xml at all", statusCode: 200}},
		{name: "rate limited", transport: &mockTransport{statusCode: 429}, rateLimited: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFeedSearcher(tt.transport, "https://example.com/rss?q=%s", testLogger())
			if err != nil {
				t.Fatalf("new feed searcher: %v", err)
			}
			_, err = f.Search(context.Background(), "x")
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if diff := cmp.Diff(tt.rateLimited, model.IsRateLimited(err)); diff != "" {
				t.Errorf("rate limited mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNewFeedSearcherTemplate(t *testing.T) {
	if _, err := NewFeedSearcher(&mockTransport{}, "https://example.com/rss", testLogger()); err == nil {
		t.Fatal("expected error for template without placeholder")
	}
}

func TestItemGUID(t *testing.T) {
	tests := []struct {
		name string
		item *gofeed.Item
		want string
	}{
		{
			name: "has GUID",
			item: &gofeed.Item{GUID: "abc-123", Title: "Title", Link: "http://x.com"},
			want: "abc-123",
		},
		{
			name: "no GUID uses hash",
			item: &gofeed.Item{Title: "Title", Link: "http://x.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ItemGUID(tt.item)
			if tt.want != "" {
				if diff := cmp.Diff(tt.want, got); diff != "" {
					t.Errorf("mismatch (-want +got):\n%s", diff)
				}
				return
			}
			if !strings.HasPrefix(got, "sha256:") {
				t.Errorf("expected sha256 prefix, got %q", got)
			}
			if got != ItemGUID(tt.item) {
				t.Error("hash should be deterministic")
			}
		})
	}
}

func TestExtractPrice(t *testing.T) {
	tests := []struct {
		in           string
		wantAmount   string
		wantCurrency string
	}{
		{in: "Giacca - 35,00 €", wantAmount: "35,00", wantCurrency: "EUR"},
		{in: "Jacket £12.50", wantAmount: "12.50", wantCurrency: "GBP"},
		{in: "Kurtka 80 zł", wantAmount: "80", wantCurrency: "PLN"},
		{in: "price: 15 EUR.", wantAmount: "15", wantCurrency: "EUR"},
		{in: "no price here", wantAmount: "", wantCurrency: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			amount, currency := extractPrice(tt.in)
			if diff := cmp.Diff(tt.wantAmount, amount); diff != "" {
				t.Errorf("amount mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantCurrency, currency); diff != "" {
				t.Errorf("currency mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
