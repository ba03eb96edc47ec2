package main

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"sniper_bot/internal/config"
	"sniper_bot/internal/model"
)

func newPolicyCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Show or change the filter policy",
	}
	cmd.AddCommand(
		newPolicyShowCmd(opts),
		newPolicySetCmd(opts),
		newPolicyUnsetCmd(opts),
		newPolicyLoadCmd(opts),
	)
	return cmd
}

func newPolicyShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the active filter policy as JSON",
		Args:  cobra.NoArgs,
		RunE: withEnv(opts, func(_ *cobra.Command, _ []string, e *env) error {
			return printPolicy(e, e.ctrl.Policy())
		}),
	}
}

// policyFlags holds the raw values of `policy set`; only flags given on the
// command line end up in the patch.
type policyFlags struct {
	allowedBrands      []string
	allowedSizes       []string
	allowedConditions  []string
	excludedBrands     []string
	excludedKeywords   []string
	excludedConditions []string
	minPrice           string
	maxPrice           string
	maxAge             int
	requireImage       bool
}

func newPolicySetCmd(opts *globalOptions) *cobra.Command {
	var pf policyFlags
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change individual policy fields",
		Example: "  sniperctl policy set --max-price 30 --brands nike,adidas\n" +
			"  sniperctl policy set --require-image=false",
		Args: cobra.NoArgs,
	}
	f := cmd.Flags()
	f.StringSliceVar(&pf.allowedBrands, "brands", nil, "allowed brands")
	f.StringSliceVar(&pf.allowedSizes, "sizes", nil, "allowed sizes")
	f.StringSliceVar(&pf.allowedConditions, "conditions", nil, "allowed conditions")
	f.StringSliceVar(&pf.excludedBrands, "exclude-brands", nil, "excluded brands")
	f.StringSliceVar(&pf.excludedKeywords, "exclude-keywords", nil, "excluded keywords")
	f.StringSliceVar(&pf.excludedConditions, "exclude-conditions", nil, "excluded conditions")
	f.StringVar(&pf.minPrice, "min-price", "", "minimum price")
	f.StringVar(&pf.maxPrice, "max-price", "", "maximum price")
	f.IntVar(&pf.maxAge, "max-age", 0, "maximum listing age in minutes")
	f.BoolVar(&pf.requireImage, "require-image", true, "reject listings without photos")

	cmd.RunE = withEnv(opts, func(cmd *cobra.Command, _ []string, e *env) error {
		patch, err := pf.patch(cmd)
		if err != nil {
			return err
		}
		p, err := e.ctrl.UpdatePolicy(cmd.Context(), patch)
		if err != nil {
			return err
		}
		return printPolicy(e, p)
	})
	return cmd
}

func (pf *policyFlags) patch(cmd *cobra.Command) (model.PolicyPatch, error) {
	var patch model.PolicyPatch
	set := 0
	changed := func(name string) bool {
		if cmd.Flags().Changed(name) {
			set++
			return true
		}
		return false
	}

	lists := []struct {
		flag string
		src  *[]string
		dst  **[]string
	}{
		{"brands", &pf.allowedBrands, &patch.AllowedBrands},
		{"sizes", &pf.allowedSizes, &patch.AllowedSizes},
		{"conditions", &pf.allowedConditions, &patch.AllowedConditions},
		{"exclude-brands", &pf.excludedBrands, &patch.ExcludedBrands},
		{"exclude-keywords", &pf.excludedKeywords, &patch.ExcludedKeywords},
		{"exclude-conditions", &pf.excludedConditions, &patch.ExcludedConditions},
	}
	for _, l := range lists {
		if changed(l.flag) {
			*l.dst = l.src
		}
	}

	prices := []struct {
		flag string
		src  string
		dst  **decimal.Decimal
	}{
		{"min-price", pf.minPrice, &patch.MinPrice},
		{"max-price", pf.maxPrice, &patch.MaxPrice},
	}
	for _, p := range prices {
		if !changed(p.flag) {
			continue
		}
		d, err := decimal.NewFromString(p.src)
		if err != nil {
			return patch, fmt.Errorf("invalid --%s %q", p.flag, p.src)
		}
		*p.dst = &d
	}

	if changed("max-age") {
		patch.MaxAgeMinutes = &pf.maxAge
	}
	if changed("require-image") {
		patch.RequireImage = &pf.requireImage
	}
	if set == 0 {
		return patch, fmt.Errorf("no policy fields given")
	}
	return patch, nil
}

func newPolicyUnsetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unset <field>...",
		Short: "Remove policy restrictions",
		Long: "Remove policy restrictions by field name: " +
			fmt.Sprintf("%s, %s, %s, %s, %s, %s, %s, %s, %s.",
				model.FieldAllowedBrands, model.FieldAllowedSizes, model.FieldAllowedConditions,
				model.FieldExcludedBrands, model.FieldExcludedKeywords, model.FieldExcludedConditions,
				model.FieldMinPrice, model.FieldMaxPrice, model.FieldMaxAgeMinutes),
		Args: cobra.MinimumNArgs(1),
		RunE: withEnv(opts, func(cmd *cobra.Command, args []string, e *env) error {
			p, err := e.ctrl.UpdatePolicy(cmd.Context(), model.PolicyPatch{Unset: args})
			if err != nil {
				return err
			}
			return printPolicy(e, p)
		}),
	}
}

func newPolicyLoadCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load <file>",
		Short: "Replace the policy with one read from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(opts, func(cmd *cobra.Command, args []string, e *env) error {
			p, err := config.LoadPolicyFile(args[0])
			if err != nil {
				return err
			}
			if err := e.ctrl.ReplacePolicy(cmd.Context(), p); err != nil {
				return err
			}
			return printPolicy(e, p)
		}),
	}
}

func printPolicy(e *env, p model.FilterPolicy) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}
	fmt.Fprintln(e.out, string(data))
	return nil
}
