// Package filter scores marketplace listings against a FilterPolicy and ranks them.
package filter

import (
	"fmt"
	"math"
	"strings"

	"sniper_bot/internal/model"
)

// Score weights.
const (
	brandBonus             = 20
	sizeBonus              = 15
	conditionNewBonus      = 25
	conditionVeryGoodBonus = 20
	conditionGoodBonus     = 15
	imageBonus             = 10
	passBonus              = 30
	keywordBonus           = 5
	freshBonus             = 20
	recentBonus            = 10

	freshMinutes  = 5
	recentMinutes = 15

	maxScore = 100
)

// Reasons reported for rejected listings.
const (
	ReasonPriceBelowMin       = "price below minimum"
	ReasonPriceAboveMax       = "price above maximum"
	ReasonBrandNotAllowed     = "brand not allowed"
	ReasonBrandExcluded       = "brand excluded"
	ReasonSizeNotAllowed      = "size not allowed"
	ReasonConditionNotAllowed = "condition not allowed"
	ReasonNoImage             = "no image"
	ReasonAgeExceeded         = "age exceeds maximum"
	NoteAgeUnknown            = "age unknown"
)

var desirableKeywords = []string{"vintage", "limited", "exclusive", "rare", "collector"}

// Evaluate checks a listing against the policy stage by stage and stops at the
// first failing stage. It has no side effects.
func Evaluate(l model.Listing, p model.FilterPolicy) model.FilterResult {
	var score float64
	var notes []string

	fail := func(reason string) model.FilterResult {
		return model.FilterResult{Passed: false, Reasons: []string{reason}, Score: clampScore(score)}
	}

	if p.MinPrice != nil && l.Price.LessThan(*p.MinPrice) {
		return fail(fmt.Sprintf("%s: %s < %s", ReasonPriceBelowMin, l.Price.StringFixed(2), p.MinPrice.StringFixed(2)))
	}
	if p.MaxPrice != nil {
		if l.Price.GreaterThan(*p.MaxPrice) {
			return fail(fmt.Sprintf("%s: %s > %s", ReasonPriceAboveMax, l.Price.StringFixed(2), p.MaxPrice.StringFixed(2)))
		}
		if p.MaxPrice.IsPositive() {
			ratio := l.Price.Div(*p.MaxPrice).InexactFloat64()
			score += math.Max(0, 100-ratio*50)
		}
	}

	title := strings.ToLower(l.Title)

	brandText := strings.ToLower(l.Brand) + " " + title
	if hasEntries(p.AllowedBrands) {
		if _, ok := firstContained(brandText, p.AllowedBrands); !ok {
			return fail(ReasonBrandNotAllowed)
		}
		score += brandBonus
	}
	if b, ok := firstContained(brandText, p.ExcludedBrands); ok {
		return fail(fmt.Sprintf("%s: %q", ReasonBrandExcluded, b))
	}

	if hasEntries(p.AllowedSizes) {
		sizeText := strings.ToLower(l.Size) + " " + title
		if _, ok := firstContained(sizeText, p.AllowedSizes); !ok {
			return fail(ReasonSizeNotAllowed)
		}
		score += sizeBonus
	}

	cond := NormalizeCondition(l.Condition)
	if hasEntries(p.AllowedConditions) {
		if !conditionAllowed(cond+" "+title, p.AllowedConditions) {
			return fail(ReasonConditionNotAllowed)
		}
		switch {
		case strings.Contains(cond, "new"):
			score += conditionNewBonus
		case strings.Contains(cond, "very_good"):
			score += conditionVeryGoodBonus
		case strings.Contains(cond, "good"):
			score += conditionGoodBonus
		}
	}
	if cond != "" {
		if c, ok := conditionExcluded(cond, p.ExcludedConditions); ok {
			return fail(fmt.Sprintf("condition %q excluded", c))
		}
	}

	text := title + " " + strings.ToLower(l.Description)
	if k, ok := firstContained(text, p.ExcludedKeywords); ok {
		return fail(fmt.Sprintf("contains excluded keyword %q", k))
	}

	if p.RequireImage && !l.HasImage {
		return fail(ReasonNoImage)
	}
	if l.HasImage {
		score += imageBonus
	}

	if p.MaxAgeMinutes != nil {
		if l.AgeMinutes == nil {
			notes = append(notes, NoteAgeUnknown)
		} else {
			age, limit := *l.AgeMinutes, *p.MaxAgeMinutes
			if age > limit {
				return fail(fmt.Sprintf("%s: %d > %d minutes", ReasonAgeExceeded, age, limit))
			}
			switch {
			case age <= freshMinutes:
				score += freshBonus
			case age <= recentMinutes:
				score += recentBonus
			}
		}
	}

	score += passBonus
	for _, kw := range desirableKeywords {
		if strings.Contains(title, kw) {
			score += keywordBonus
		}
	}

	return model.FilterResult{Passed: true, Reasons: notes, Score: clampScore(score)}
}

func clampScore(f float64) int {
	r := math.Round(f)
	switch {
	case r < 0:
		return 0
	case r > maxScore:
		return maxScore
	}
	return int(r)
}

// hasEntries reports whether the list has at least one usable entry.
func hasEntries(list []string) bool {
	for _, e := range list {
		if strings.TrimSpace(e) != "" {
			return true
		}
	}
	return false
}

// firstContained returns the first non-blank entry found in text, case-insensitively.
// text must already be lower-cased.
func firstContained(text string, entries []string) (string, bool) {
	for _, e := range entries {
		needle := strings.ToLower(strings.TrimSpace(e))
		if needle == "" {
			continue
		}
		if strings.Contains(text, needle) {
			return e, true
		}
	}
	return "", false
}

func conditionAllowed(text string, allowed []string) bool {
	for _, e := range allowed {
		needle := strings.ToLower(strings.TrimSpace(e))
		if needle == "" {
			continue
		}
		if strings.Contains(text, needle) || strings.Contains(text, NormalizeCondition(needle)) {
			return true
		}
	}
	return false
}

func conditionExcluded(cond string, excluded []string) (string, bool) {
	for _, e := range excluded {
		needle := strings.ToLower(strings.TrimSpace(e))
		if needle == "" {
			continue
		}
		if strings.Contains(cond, needle) || strings.Contains(cond, NormalizeCondition(needle)) {
			return e, true
		}
	}
	return "", false
}
