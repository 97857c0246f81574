package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/upb/llm-governance/app"
	"github.com/upb/llm-governance/config"
	"github.com/upb/llm-governance/services/cost"
)

func newProvidersCmd() *cobra.Command {
	var catalogPath string

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List the routing order with ceilings and prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := config.LoadCatalog(catalogPath)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatProviders(cat, app.PricingFrom(cat)))
			return nil
		},
	}

	cmd.Flags().StringVar(&catalogPath, "catalog", "", "provider catalog file (default: built-in)")
	return cmd
}

func formatProviders(cat *config.Catalog, pricing *cost.Model) string {
	ordered := make([]config.CatalogProvider, len(cat.Providers))
	copy(ordered, cat.Providers)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Rank < ordered[j].Rank })

	var b strings.Builder
	fmt.Fprintf(&b, "%-4s %-12s %-16s %10s %12s %12s\n",
		"RANK", "PROVIDER", "PRICING MODEL", "CEILING", "IN/1K", "OUT/1K")
	b.WriteString(strings.Repeat("-", 71) + "\n")
	for _, p := range ordered {
		model := defaultStr(p.PricingModel, p.Name)
		in, out := "-", "-"
		if price, ok := pricing.Price(model); ok {
			in = fmt.Sprintf("$%.5f", price.InputCostPer1K)
			out = fmt.Sprintf("$%.5f", price.OutputCostPer1K)
		}
		fmt.Fprintf(&b, "%-4d %-12s %-16s %10s %12s %12s\n",
			p.Rank, p.Name, model, fmt.Sprintf("$%.4f", p.CostCeiling), in, out)
	}
	return b.String()
}

func defaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
