package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/Veraticus/cointax/internal/cli"
	"github.com/Veraticus/cointax/internal/service"
	"github.com/spf13/cobra"
)

func lotsCmd() *cobra.Command {
	var (
		token    string
		openOnly bool
	)

	cmd := &cobra.Command{
		Use:   "lots",
		Short: "Show tax lots from the latest calculation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStorage(store)

			lots, err := store.GetTaxLots(cmd.Context(), service.LotFilter{TokenSymbol: token, OpenOnly: openOnly})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(lots) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No tax lots found. Run 'cointax calculate' first."))
				return nil
			}

			fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("Tax lots (%d)", len(lots))))
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ACQUIRED\tTOKEN\tQUANTITY\tREMAINING\tCOST BASIS\tUNIT COST\tLOT")
			for _, lot := range lots {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					lot.AcquiredAt.UTC().Format("2006-01-02"),
					lot.TokenSymbol,
					lot.Quantity.String(),
					lot.RemainingQuantity.String(),
					lot.CostBasis.StringFixed(2),
					lot.UnitCost().StringFixed(2),
					lot.ID)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "only show lots of this token")
	cmd.Flags().BoolVar(&openOnly, "open", false, "only show lots with remaining quantity")

	return cmd
}
