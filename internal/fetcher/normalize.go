package fetcher

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"sniper_bot/internal/filter"
	"sniper_bot/internal/model"
)

const defaultCurrency = "EUR"

// RawItem is a listing as extracted from a marketplace response, before validation.
type RawItem struct {
	ID             string
	Title          string
	Description    string
	Price          string
	Currency       string
	Brand          string
	Size           string
	Condition      string
	URL            string
	PhotoURLs      []string
	Location       string
	SellerLogin    string
	SellerBusiness *bool
	TimeAgo        string
	CreatedAt      time.Time
}

// Normalize validates raw and converts it to a Listing. The age comes from
// CreatedAt when known and from the relative TimeAgo text otherwise.
func Normalize(raw RawItem, now time.Time) (model.Listing, error) {
	id := strings.TrimSpace(raw.ID)
	if id == "" {
		return model.Listing{}, fmt.Errorf("listing has no id")
	}

	price, err := ParsePrice(raw.Price)
	if err != nil {
		return model.Listing{}, fmt.Errorf("listing %s: %w", id, err)
	}

	currency := strings.ToUpper(strings.TrimSpace(raw.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	var photos []string
	for _, p := range raw.PhotoURLs {
		if validPhotoURL(p) {
			photos = append(photos, strings.TrimSpace(p))
		}
	}

	l := model.Listing{
		ID:               id,
		Title:            strings.TrimSpace(raw.Title),
		Description:      strings.TrimSpace(raw.Description),
		Price:            price,
		Currency:         currency,
		Brand:            strings.TrimSpace(raw.Brand),
		Size:             strings.TrimSpace(raw.Size),
		Condition:        strings.TrimSpace(raw.Condition),
		HasImage:         len(photos) > 0,
		SellerIsBusiness: raw.SellerBusiness,
		URL:              strings.TrimSpace(raw.URL),
		PhotoURLs:        photos,
		Location:         strings.TrimSpace(raw.Location),
		SellerLogin:      strings.TrimSpace(raw.SellerLogin),
		TimeAgo:          strings.TrimSpace(raw.TimeAgo),
	}

	switch {
	case !raw.CreatedAt.IsZero():
		age := max(0, int(now.Sub(raw.CreatedAt).Minutes()))
		l.AgeMinutes = &age
	case l.TimeAgo != "":
		age := filter.ParseAgeMinutes(l.TimeAgo)
		l.AgeMinutes = &age
	}
	return l, nil
}

// ParsePrice reads amounts like "12.50", "12,50" or "1 234,00". Empty input is zero
// and negative amounts are clamped to zero.
func ParsePrice(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price %q: %w", s, err)
	}
	if d.IsNegative() {
		return decimal.Zero, nil
	}
	return d, nil
}

func validPhotoURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
