package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/upb/llm-governance/app"
	"github.com/upb/llm-governance/config"
	"github.com/upb/llm-governance/services/cost"
)

type estimate struct {
	Tokens      int
	Model       string
	Cost        float64
	Temperature float64
}

func newEstimateCmd() *cobra.Command {
	var (
		catalogPath string
		model       string
		quality     string
		maxBudget   float64
		taskType    string
	)

	cmd := &cobra.Command{
		Use:   "estimate <prompt>",
		Short: "Estimate tokens, model choice and cost for a prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := config.LoadCatalog(catalogPath)
			if err != nil {
				return err
			}
			pricing := app.PricingFrom(cat)

			e := estimate{Tokens: cost.EstimateTokens(args[0]), Model: model}
			if e.Model == "" {
				e.Model = pricing.SelectModel(maxBudget, cost.Quality(quality))
			} else if _, ok := pricing.Price(e.Model); !ok {
				return fmt.Errorf("unknown model %q", e.Model)
			}
			e.Cost = pricing.EstimateCost(e.Model, e.Tokens)
			e.Temperature = cost.ChooseTemperature(taskType)

			writeEstimate(cmd.OutOrStdout(), e)
			return nil
		},
	}

	cmd.Flags().StringVar(&catalogPath, "catalog", "", "provider catalog file (default: built-in)")
	cmd.Flags().StringVar(&model, "model", "", "price this model instead of selecting one")
	cmd.Flags().StringVar(&quality, "quality", string(cost.QualityMedium), "quality tier: low, medium or high")
	cmd.Flags().Float64Var(&maxBudget, "max-budget", 0.05, "per-request budget used for model selection")
	cmd.Flags().StringVar(&taskType, "task", "medium", "task type: simple, medium, complex or creative")
	return cmd
}

func writeEstimate(w io.Writer, e estimate) {
	fmt.Fprintf(w, "%-12s %d\n", "TOKENS", e.Tokens)
	fmt.Fprintf(w, "%-12s %s\n", "MODEL", e.Model)
	fmt.Fprintf(w, "%-12s $%.6f\n", "COST", e.Cost)
	fmt.Fprintf(w, "%-12s %.1f\n", "TEMPERATURE", e.Temperature)
}
