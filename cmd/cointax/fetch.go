package main

import (
	"fmt"

	"github.com/Veraticus/cointax/internal/cli"
	"github.com/Veraticus/cointax/internal/common"
	"github.com/Veraticus/cointax/internal/engine"
	"github.com/Veraticus/cointax/internal/model"
	"github.com/Veraticus/cointax/internal/service"
	"github.com/spf13/cobra"
)

func fetchCmd() *cobra.Command {
	var (
		address   string
		chain     string
		startDate string
		endDate   string
		label     string
		noTokens  bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Import transfers for an address from the block explorer",
		Long: `Fetch imports native and token transfers for an address from Etherscan and
stores them. Transfers already stored are skipped, so fetching again is safe.
The address is registered as owned.`,
		Example: `  cointax fetch --address 0xabc... --chain ethereum
  cointax fetch --address 0xabc... --start-date 2023-01-01 --end-date 2023-12-31`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsedChain, err := model.ParseChain(chain)
			if err != nil {
				return common.NewUserError(err.Error(), err)
			}
			start, err := parseDate(startDate, false)
			if err != nil {
				return err
			}
			end, err := parseDate(endDate, true)
			if err != nil {
				return err
			}
			if start != nil && end != nil && end.Before(*start) {
				return common.NewUserError("end date is before start date", common.ErrInvalidConfig)
			}

			source, err := newTransactionSource()
			if err != nil {
				return common.NewUserError("Etherscan API key missing (set ETHERSCAN_API_KEY or etherscan.api_key)", err)
			}

			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStorage(store)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Fetching transfers for %s on %s...", address, parsedChain)))

			eng := engine.New(store, source, nil, engine.Config{})
			result, err := eng.Fetch(cmd.Context(), service.FetchRequest{
				Address:       address,
				Chain:         parsedChain,
				StartDate:     start,
				EndDate:       end,
				IncludeTokens: !noTokens,
			}, label)
			if err != nil {
				return err
			}

			fmt.Fprintln(out, cli.FormatSuccess(result.Message))
			printWarnings(out, result.Warnings)
			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "wallet address to fetch (required)")
	cmd.Flags().StringVar(&chain, "chain", string(model.ChainEthereum), "chain (ethereum, base, fraxtal)")
	cmd.Flags().StringVar(&startDate, "start-date", "", "only fetch transfers on or after this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "only fetch transfers on or before this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&label, "label", "", "label for the address when it is first registered")
	cmd.Flags().BoolVar(&noTokens, "no-tokens", false, "skip ERC-20 token transfers")
	_ = cmd.MarkFlagRequired("address")

	return cmd
}
