package fetcher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

type catalogResponse struct {
	Items []catalogItem `json:"items"`
}

type catalogItem struct {
	ID             json.RawMessage `json:"id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Price          json.RawMessage `json:"price"`
	TotalItemPrice json.RawMessage `json:"total_item_price"`
	Currency       string          `json:"currency"`
	BrandTitle     string          `json:"brand_title"`
	SizeTitle      string          `json:"size_title"`
	Status         string          `json:"status"`
	URL            string          `json:"url"`
	Path           string          `json:"path"`
	Photo          *catalogPhoto   `json:"photo"`
	Photos         []catalogPhoto  `json:"photos"`
	User           struct {
		Login        string `json:"login"`
		Business     *bool  `json:"business"`
		CountryTitle string `json:"country_title"`
		City         string `json:"city"`
	} `json:"user"`
}

type catalogPhoto struct {
	URL            string `json:"url"`
	FullSizeURL    string `json:"full_size_url"`
	HighResolution *struct {
		Timestamp int64 `json:"timestamp"`
	} `json:"high_resolution"`
}

type money struct {
	Amount       json.RawMessage `json:"amount"`
	CurrencyCode string          `json:"currency_code"`
}

func parseCatalogJSON(body []byte, base *url.URL) ([]RawItem, error) {
	var resp catalogResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}
	return convertItems(resp.Items, base), nil
}

// parseCatalogPage reads the item list embedded in the catalog page's
// __NEXT_DATA__ script.
func parseCatalogPage(body []byte, base *url.URL) ([]RawItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse catalog page: %w", err)
	}
	script := strings.TrimSpace(doc.Find("script#__NEXT_DATA__").First().Text())
	if script == "" {
		return nil, fmt.Errorf("catalog page has no embedded data")
	}

	var data struct {
		Props struct {
			PageProps struct {
				Items        []catalogItem `json:"items"`
				CatalogItems struct {
					Data []catalogItem `json:"data"`
				} `json:"catalogItems"`
				SearchResults struct {
					Items []catalogItem `json:"items"`
				} `json:"search_results"`
			} `json:"pageProps"`
		} `json:"props"`
	}
	if err := json.Unmarshal([]byte(script), &data); err != nil {
		return nil, fmt.Errorf("decode embedded data: %w", err)
	}

	pp := data.Props.PageProps
	switch {
	case len(pp.Items) > 0:
		return convertItems(pp.Items, base), nil
	case len(pp.CatalogItems.Data) > 0:
		return convertItems(pp.CatalogItems.Data, base), nil
	default:
		return convertItems(pp.SearchResults.Items, base), nil
	}
}

func convertItems(items []catalogItem, base *url.URL) []RawItem {
	out := make([]RawItem, 0, len(items))
	for _, it := range items {
		out = append(out, it.raw(base))
	}
	return out
}

func (it catalogItem) raw(base *url.URL) RawItem {
	amount, currency := readMoney(it.Price)
	if amount == "" {
		amount, currency = readMoney(it.TotalItemPrice)
	}
	if currency == "" {
		currency = it.Currency
	}

	var photos []string
	var createdAt time.Time
	for _, p := range it.Photos {
		photos = append(photos, p.bestURL())
	}
	if it.Photo != nil {
		if len(photos) == 0 {
			photos = append(photos, it.Photo.bestURL())
		}
		if hr := it.Photo.HighResolution; hr != nil && hr.Timestamp > 0 {
			createdAt = time.Unix(hr.Timestamp, 0)
		}
	}

	link := it.URL
	if link == "" && it.Path != "" {
		if ref, err := url.Parse(it.Path); err == nil {
			link = base.ResolveReference(ref).String()
		}
	}

	location := it.User.CountryTitle
	if it.User.City != "" {
		location = strings.TrimSpace(it.User.City + ", " + location)
		location = strings.TrimSuffix(location, ",")
	}

	return RawItem{
		ID:             rawString(it.ID),
		Title:          it.Title,
		Description:    it.Description,
		Price:          amount,
		Currency:       currency,
		Brand:          it.BrandTitle,
		Size:           it.SizeTitle,
		Condition:      it.Status,
		URL:            link,
		PhotoURLs:      photos,
		Location:       location,
		SellerLogin:    it.User.Login,
		SellerBusiness: it.User.Business,
		CreatedAt:      createdAt,
	}
}

func (p catalogPhoto) bestURL() string {
	if p.FullSizeURL != "" {
		return p.FullSizeURL
	}
	return p.URL
}

// readMoney accepts {"amount": "12.0", "currency_code": "EUR"} or a bare amount.
func readMoney(raw json.RawMessage) (amount, currency string) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", ""
	}
	var m money
	if err := json.Unmarshal(raw, &m); err == nil {
		return rawString(m.Amount), m.CurrencyCode
	}
	return rawString(raw), ""
}

// rawString renders a JSON string or number as plain text.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
