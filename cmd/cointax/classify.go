package main

import (
	"fmt"
	"slices"

	"github.com/Veraticus/cointax/internal/cli"
	"github.com/Veraticus/cointax/internal/engine"
	"github.com/Veraticus/cointax/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func classifyCmd() *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify stored transfers into tax events",
		Long: `Classify decides the type of every stored transfer relative to your owned
addresses and values it in USD at the time of the transfer. The previous
classification is replaced.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			prices, err := newPriceSource()
			if err != nil {
				return err
			}

			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStorage(store)

			if workers <= 0 {
				workers = viper.GetInt("classification.workers")
			}

			out := cmd.OutOrStdout()
			progress := cli.NewProgress(cmd.ErrOrStderr(), "Valuing transfers")
			eng := engine.New(store, nil, prices, engine.Config{
				Strategy: classificationStrategy(),
				Progress: progress.Update,
				Workers:  workers,
			})

			result, err := eng.Classify(cmd.Context())
			progress.Finish()
			if err != nil {
				return err
			}
			if !result.Success {
				return resultError(result.Result)
			}

			fmt.Fprintln(out, cli.FormatSuccess(result.Message))
			fmt.Fprintln(out, cli.RenderKeyValues(classifyStats(result)))
			printWarnings(out, result.Warnings)
			return nil
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent price lookups (default: classification.workers)")

	return cmd
}

func classifyStats(result *engine.ClassifyResult) [][2]string {
	pairs := [][2]string{
		{"Total", fmt.Sprint(result.Total)},
		{"Taxable", fmt.Sprint(result.Taxable)},
		{"Non-taxable", fmt.Sprint(result.NonTaxable)},
		{"Priced", fmt.Sprint(result.Priced)},
		{"Price failures", fmt.Sprint(result.PriceFailures)},
	}

	types := make([]model.TransactionType, 0, len(result.ByType))
	for t := range result.ByType {
		types = append(types, t)
	}
	slices.Sort(types)
	for _, t := range types {
		pairs = append(pairs, [2]string{"  " + string(t), fmt.Sprint(result.ByType[t])})
	}
	return pairs
}
