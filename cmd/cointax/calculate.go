package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/cointax/internal/cli"
	"github.com/Veraticus/cointax/internal/common"
	"github.com/Veraticus/cointax/internal/config"
	"github.com/Veraticus/cointax/internal/engine"
	"github.com/Veraticus/cointax/internal/report"
	"github.com/spf13/cobra"
)

func calculateCmd() *cobra.Command {
	var method string

	cmd := &cobra.Command{
		Use:   "calculate",
		Short: "Match disposals against tax lots and compute capital gains",
		Long: `Calculate builds tax lots from every classified acquisition and matches each
disposal against them using the selected accounting method. The whole history
is always used so lots carry across years; filter by year in 'report'.
An automatic checkpoint is taken first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := config.AccountingMethod(method)
			if err != nil {
				return common.NewUserError(err.Error(), common.ErrInvalidConfig)
			}

			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStorage(store)

			cfg := engine.Config{}
			manager, err := store.NewCheckpointManager()
			if err != nil {
				slog.Warn("Checkpoints unavailable", "error", err)
			} else {
				cfg.Checkpoints = manager
			}

			result, err := engine.New(store, nil, nil, cfg).Calculate(cmd.Context(), parsed)
			if err != nil {
				return err
			}
			if !result.Success {
				return resultError(result.Result)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatSuccess(result.Message))
			fmt.Fprintln(out, cli.RenderBox(cli.ChartIcon+" Calculation", cli.RenderKeyValues(calculationPairs(result))))
			printWarnings(out, result.Warnings)
			return nil
		},
	}

	cmd.Flags().StringVar(&method, "method", "", "accounting method: FIFO, LIFO or HIFO (default: tax.method)")

	return cmd
}

func calculationPairs(result *engine.CalculateResult) [][2]string {
	pairs := [][2]string{
		{"Method", string(result.Run.Method)},
		{"Classified transactions", fmt.Sprint(result.TotalClassified)},
		{"Tax lots", fmt.Sprint(result.Run.Acquisitions)},
		{"Open lots", fmt.Sprint(result.Run.OpenLots)},
		{"Disposals", fmt.Sprint(result.Run.Disposals)},
		{"Unmatched disposals", fmt.Sprint(result.Run.Unmatched)},
	}
	pairs = append(pairs, summaryPairs(result.Summary)...)
	if result.CheckpointID != "" {
		pairs = append(pairs, [2]string{"Checkpoint", result.CheckpointID})
	}
	return pairs
}

func summaryPairs(s report.Summary) [][2]string {
	return [][2]string{
		{"Short-term gain/loss", cli.FormatUSD(s.ShortTermGainLoss)},
		{"Long-term gain/loss", cli.FormatUSD(s.LongTermGainLoss)},
		{"Total gain/loss", cli.FormatUSD(s.TotalGainLoss)},
		{"Income", cli.FormatUSD(s.TotalIncome)},
	}
}
