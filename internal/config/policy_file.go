package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"sniper_bot/internal/model"
)

// rawPolicy is used for YAML unmarshaling (snake_case fields, optional scalars).
type rawPolicy struct {
	AllowedBrands      []string `yaml:"allowed_brands"`
	AllowedSizes       []string `yaml:"allowed_sizes"`
	AllowedConditions  []string `yaml:"allowed_conditions"`
	ExcludedBrands     []string `yaml:"excluded_brands"`
	ExcludedKeywords   []string `yaml:"excluded_keywords"`
	ExcludedConditions []string `yaml:"excluded_conditions"`
	MinPrice           *float64 `yaml:"min_price"`
	MaxPrice           *float64 `yaml:"max_price"`
	MaxAgeMinutes      *int     `yaml:"max_age_minutes"`
	RequireImage       *bool    `yaml:"require_image"`
}

// LoadPolicyFile reads a filter policy from the YAML file at path.
// Environment variables in the file are expanded. require_image defaults to true.
func LoadPolicyFile(path string) (model.FilterPolicy, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return model.FilterPolicy{}, fmt.Errorf("read policy file: %w", err)
	}

	var raw rawPolicy
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &raw); err != nil {
		return model.FilterPolicy{}, fmt.Errorf("parse policy file: %w", err)
	}

	p := model.FilterPolicy{
		AllowedBrands:      raw.AllowedBrands,
		AllowedSizes:       raw.AllowedSizes,
		AllowedConditions:  raw.AllowedConditions,
		ExcludedBrands:     raw.ExcludedBrands,
		ExcludedKeywords:   raw.ExcludedKeywords,
		ExcludedConditions: raw.ExcludedConditions,
		MinPrice:           decimalPtr(raw.MinPrice),
		MaxPrice:           decimalPtr(raw.MaxPrice),
		MaxAgeMinutes:      raw.MaxAgeMinutes,
		RequireImage:       true,
	}
	if raw.RequireImage != nil {
		p.RequireImage = *raw.RequireImage
	}

	if err := p.Validate(); err != nil {
		return model.FilterPolicy{}, fmt.Errorf("validate policy file: %w", err)
	}
	return p, nil
}

func decimalPtr(f *float64) *decimal.Decimal {
	if f == nil {
		return nil
	}
	d := decimal.NewFromFloat(*f)
	return &d
}
