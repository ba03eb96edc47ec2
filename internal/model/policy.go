package model

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// FilterPolicy is the rule set listings are evaluated against.
// List entries are matched as case-insensitive substrings; an empty list means no restriction.
type FilterPolicy struct {
	AllowedBrands      []string `json:"allowed_brands,omitempty"`
	AllowedSizes       []string `json:"allowed_sizes,omitempty"`
	AllowedConditions  []string `json:"allowed_conditions,omitempty"`
	ExcludedBrands     []string `json:"excluded_brands,omitempty"`
	ExcludedKeywords   []string `json:"excluded_keywords,omitempty"`
	ExcludedConditions []string `json:"excluded_conditions,omitempty"`

	MinPrice      *decimal.Decimal `json:"min_price,omitempty"`
	MaxPrice      *decimal.Decimal `json:"max_price,omitempty"`
	MaxAgeMinutes *int             `json:"max_age_minutes,omitempty"`
	RequireImage  bool             `json:"require_image"`
}

// Policy field names accepted by PolicyPatch.Unset.
const (
	FieldAllowedBrands      = "allowed_brands"
	FieldAllowedSizes       = "allowed_sizes"
	FieldAllowedConditions  = "allowed_conditions"
	FieldExcludedBrands     = "excluded_brands"
	FieldExcludedKeywords   = "excluded_keywords"
	FieldExcludedConditions = "excluded_conditions"
	FieldMinPrice           = "min_price"
	FieldMaxPrice           = "max_price"
	FieldMaxAgeMinutes      = "max_age_minutes"
)

// PolicyPatch is a partial policy update. Nil fields are left unchanged.
type PolicyPatch struct {
	AllowedBrands      *[]string
	AllowedSizes       *[]string
	AllowedConditions  *[]string
	ExcludedBrands     *[]string
	ExcludedKeywords   *[]string
	ExcludedConditions *[]string

	MinPrice      *decimal.Decimal
	MaxPrice      *decimal.Decimal
	MaxAgeMinutes *int
	RequireImage  *bool

	// Unset lists fields to clear, by their JSON name.
	Unset []string
}

// Clone returns a deep copy of the policy.
func (p FilterPolicy) Clone() FilterPolicy {
	c := p
	c.AllowedBrands = slices.Clone(p.AllowedBrands)
	c.AllowedSizes = slices.Clone(p.AllowedSizes)
	c.AllowedConditions = slices.Clone(p.AllowedConditions)
	c.ExcludedBrands = slices.Clone(p.ExcludedBrands)
	c.ExcludedKeywords = slices.Clone(p.ExcludedKeywords)
	c.ExcludedConditions = slices.Clone(p.ExcludedConditions)
	if p.MinPrice != nil {
		v := *p.MinPrice
		c.MinPrice = &v
	}
	if p.MaxPrice != nil {
		v := *p.MaxPrice
		c.MaxPrice = &v
	}
	if p.MaxAgeMinutes != nil {
		v := *p.MaxAgeMinutes
		c.MaxAgeMinutes = &v
	}
	return c
}

// Validate checks numeric bounds.
func (p FilterPolicy) Validate() error {
	if p.MinPrice != nil && p.MinPrice.IsNegative() {
		return fmt.Errorf("min_price must not be negative")
	}
	if p.MaxPrice != nil && p.MaxPrice.IsNegative() {
		return fmt.Errorf("max_price must not be negative")
	}
	if p.MinPrice != nil && p.MaxPrice != nil && p.MinPrice.GreaterThan(*p.MaxPrice) {
		return fmt.Errorf("min_price %s exceeds max_price %s", p.MinPrice, p.MaxPrice)
	}
	if p.MaxAgeMinutes != nil && *p.MaxAgeMinutes < 0 {
		return fmt.Errorf("max_age_minutes must not be negative")
	}
	return nil
}

// Apply returns a new policy with the patch merged in. The receiver is not modified.
func (p FilterPolicy) Apply(patch PolicyPatch) (FilterPolicy, error) {
	next := p.Clone()

	for _, field := range patch.Unset {
		switch strings.ToLower(strings.TrimSpace(field)) {
		case FieldAllowedBrands:
			next.AllowedBrands = nil
		case FieldAllowedSizes:
			next.AllowedSizes = nil
		case FieldAllowedConditions:
			next.AllowedConditions = nil
		case FieldExcludedBrands:
			next.ExcludedBrands = nil
		case FieldExcludedKeywords:
			next.ExcludedKeywords = nil
		case FieldExcludedConditions:
			next.ExcludedConditions = nil
		case FieldMinPrice:
			next.MinPrice = nil
		case FieldMaxPrice:
			next.MaxPrice = nil
		case FieldMaxAgeMinutes:
			next.MaxAgeMinutes = nil
		default:
			return p, fmt.Errorf("unknown policy field %q", field)
		}
	}

	setList(&next.AllowedBrands, patch.AllowedBrands)
	setList(&next.AllowedSizes, patch.AllowedSizes)
	setList(&next.AllowedConditions, patch.AllowedConditions)
	setList(&next.ExcludedBrands, patch.ExcludedBrands)
	setList(&next.ExcludedKeywords, patch.ExcludedKeywords)
	setList(&next.ExcludedConditions, patch.ExcludedConditions)

	if patch.MinPrice != nil {
		v := *patch.MinPrice
		next.MinPrice = &v
	}
	if patch.MaxPrice != nil {
		v := *patch.MaxPrice
		next.MaxPrice = &v
	}
	if patch.MaxAgeMinutes != nil {
		v := *patch.MaxAgeMinutes
		next.MaxAgeMinutes = &v
	}
	if patch.RequireImage != nil {
		next.RequireImage = *patch.RequireImage
	}

	if err := next.Validate(); err != nil {
		return p, fmt.Errorf("validate policy: %w", err)
	}
	return next, nil
}

func setList(dst *[]string, src *[]string) {
	if src == nil {
		return
	}
	*dst = slices.Clone(*src)
}
