package filter

import (
	"regexp"
	"strconv"
	"strings"
)

// UnknownAge is returned by ParseAgeMinutes when the text cannot be interpreted.
const UnknownAge = 9999

var (
	secondsWords = []string{"second", "secondi", "segundo", "seconde"}
	minutesRe    = regexp.MustCompile(`(\d+)\s*min`)
	hoursRe      = regexp.MustCompile(`(\d+)\s*(?:ora|ore|hour|hora|heure|stunde)`)
	oneHour      = []string{"an hour", "one hour", "un'ora", "un ora", "una hora", "une heure"}
	daysRe       = regexp.MustCompile(`(\d+)\s*(?:giorn|day|día|dia|jour|tag)`)
	oneDay       = []string{"a day", "one day", "un giorno", "un día", "un dia", "un jour"}
)

// ParseAgeMinutes converts localized relative-time text such as "3 ore fa" or
// "5 minutes ago" into minutes. The first matching rule wins.
func ParseAgeMinutes(text string) int {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return UnknownAge
	}

	for _, w := range secondsWords {
		if strings.Contains(t, w) {
			return 1
		}
	}
	if n, ok := leadingCount(minutesRe, t); ok {
		return n
	}
	if n, ok := leadingCount(hoursRe, t); ok {
		return n * 60
	}
	for _, w := range oneHour {
		if strings.Contains(t, w) {
			return 60
		}
	}
	if n, ok := leadingCount(daysRe, t); ok {
		return n * 24 * 60
	}
	for _, w := range oneDay {
		if strings.Contains(t, w) {
			return 24 * 60
		}
	}
	return UnknownAge
}

func leadingCount(re *regexp.Regexp, s string) (int, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
