package bot

import (
	"fmt"
	"strings"

	"sniper_bot/internal/filter"
	"sniper_bot/internal/model"
)

const (
	maxTitleRunes       = 50
	maxDescriptionRunes = 300
	notAvailable        = "N/A"
)

var markdownStripper = strings.NewReplacer("_", "", "*", "", "`", "", "[", "", "]", "", "(", "", ")", "")

var locationFlags = []struct {
	names []string
	flag  string
}{
	{[]string{"italia", "italy"}, "🇮🇹"},
	{[]string{"francia", "france"}, "🇫🇷"},
	{[]string{"spagna", "spain", "españa"}, "🇪🇸"},
	{[]string{"belgio", "belgium"}, "🇧🇪"},
	{[]string{"olanda", "netherlands"}, "🇳🇱"},
	{[]string{"germania", "germany"}, "🇩🇪"},
	{[]string{"portogallo", "portugal"}, "🇵🇹"},
	{[]string{"lussemburgo", "luxembourg"}, "🇱🇺"},
	{[]string{"austria"}, "🇦🇹"},
}

var currencyFlags = map[string]string{
	"RON": "🇷🇴",
	"PLN": "🇵🇱",
	"CZK": "🇨🇿",
	"HUF": "🇭🇺",
	"GBP": "🇬🇧",
	"SEK": "🇸🇪",
}

// FormatCaption formats a listing as a Markdown notification caption.
func FormatCaption(l model.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎯 *%s*\n\n", truncate(stripMarkdown(l.Title), maxTitleRunes))
	fmt.Fprintf(&b, "💰 *Prezzo:* %s\n", formatPrice(l))
	fmt.Fprintf(&b, "🏷️ *Marca:* %s\n", orNA(l.Brand))
	fmt.Fprintf(&b, "📏 *Taglia:* %s\n", orNA(l.Size))
	fmt.Fprintf(&b, "✨ *Condizione:* %s", orNA(l.Condition))

	flag := CountryFlag(l.Location, l.Currency)
	if loc := stripMarkdown(l.Location); loc != "" {
		fmt.Fprintf(&b, "\n📍 *Località:* %s %s", loc, flag)
	} else {
		fmt.Fprintf(&b, "\n📍 *Origine:* %s", flag)
	}

	if t := formatAge(l); t != "" {
		fmt.Fprintf(&b, "\n🕒 *Caricato:* %s", t)
	}

	if desc := stripMarkdown(l.Description); desc != "" {
		fmt.Fprintf(&b, "\n\n━━━━━━━━━━━━━━\n📝 *Descrizione:*\n_%s_", truncate(desc, maxDescriptionRunes))
	}

	if l.URL != "" {
		fmt.Fprintf(&b, "\n\n[🔗 Apri annuncio](%s)", l.URL)
	}
	return b.String()
}

// CountryFlag guesses a flag emoji from the seller location, falling back to
// the listing currency and then to a globe.
func CountryFlag(location, currency string) string {
	loc := strings.ToLower(location)
	for _, lf := range locationFlags {
		for _, name := range lf.names {
			if strings.Contains(loc, name) {
				return lf.flag
			}
		}
	}
	if flag, ok := currencyFlags[strings.ToUpper(currency)]; ok {
		return flag
	}
	return "🌍"
}

func formatPrice(l model.Listing) string {
	if l.Price.IsZero() {
		return notAvailable
	}
	if l.Currency == "" || l.Currency == "EUR" {
		return "€" + l.Price.StringFixed(2)
	}
	return l.Price.StringFixed(2) + " " + l.Currency
}

func formatAge(l model.Listing) string {
	if t := stripMarkdown(l.TimeAgo); t != "" {
		return t
	}
	if l.AgeMinutes == nil || *l.AgeMinutes >= filter.UnknownAge {
		return ""
	}
	return fmt.Sprintf("%d min fa", *l.AgeMinutes)
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return stripMarkdown(s)
}

func stripMarkdown(s string) string {
	return strings.TrimSpace(markdownStripper.Replace(s))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
