package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/Veraticus/cointax/internal/cli"
	"github.com/Veraticus/cointax/internal/common"
	"github.com/Veraticus/cointax/internal/model"
	"github.com/spf13/cobra"
)

func addressesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "addresses",
		Aliases: []string{"address", "wallets"},
		Short:   "Manage the wallet addresses you own",
		Long: `Owned addresses decide the direction of every transfer: transfers into an
owned address from elsewhere are acquisitions, transfers out are disposals.
Fetching an address registers it automatically.`,
	}

	cmd.AddCommand(addressesAddCmd())
	cmd.AddCommand(addressesListCmd())
	cmd.AddCommand(addressesRemoveCmd())

	return cmd
}

func addressesAddCmd() *cobra.Command {
	var label, chain string

	cmd := &cobra.Command{
		Use:   "add <address>",
		Short: "Register an owned address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedChain, err := model.ParseChain(chain)
			if err != nil {
				return common.NewUserError(err.Error(), err)
			}

			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStorage(store)

			address := &model.OwnedAddress{Address: args[0], Label: label, Chain: parsedChain}
			err = store.AddOwnedAddress(cmd.Context(), address)
			switch {
			case errors.Is(err, common.ErrDuplicateEntry):
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo(fmt.Sprintf("%s is already registered", address.Address)))
				return nil
			case errors.Is(err, common.ErrInvalidAddress):
				return common.NewUserError(fmt.Sprintf("%q is not a valid address", args[0]), err)
			case err != nil:
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Added %s", address.Address)))
			return nil
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "human-readable label")
	cmd.Flags().StringVar(&chain, "chain", string(model.ChainEthereum), "chain the address is used on")

	return cmd
}

func addressesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List owned addresses",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStorage(store)

			addresses, err := store.GetOwnedAddresses(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(addresses) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No addresses registered. Use 'cointax addresses add' or 'cointax fetch'."))
				return nil
			}

			fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("Owned addresses (%d)", len(addresses))))
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ADDRESS\tCHAIN\tLABEL\tADDED")
			for _, a := range addresses {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.Address, a.Chain, a.Label, a.AddedAt.Format("2006-01-02"))
			}
			return w.Flush()
		},
	}
}

func addressesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <address>",
		Short: "Unregister an owned address",
		Long:  "Removes the address from the owned set. Stored transfers are kept; run classify again to apply the change.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStorage(store)

			if err := store.RemoveOwnedAddress(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, common.ErrNotFound) {
					return common.NewUserError(fmt.Sprintf("%s is not registered", args[0]), err)
				}
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Removed %s", args[0])))
			return nil
		},
	}
}
