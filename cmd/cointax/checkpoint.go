package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/Veraticus/cointax/internal/cli"
	"github.com/Veraticus/cointax/internal/common"
	"github.com/Veraticus/cointax/internal/storage"
	"github.com/spf13/cobra"
)

func checkpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage database checkpoints",
		Long: `Checkpoints are point-in-time copies of the database. One is taken
automatically before every calculation.`,
	}

	cmd.AddCommand(checkpointCreateCmd())
	cmd.AddCommand(checkpointListCmd())
	cmd.AddCommand(checkpointRestoreCmd())
	cmd.AddCommand(checkpointDeleteCmd())

	return cmd
}

// withCheckpoints opens the database and its checkpoint manager for fn.
func withCheckpoints(cmd *cobra.Command, fn func(*storage.CheckpointManager) error) error {
	store, err := initStorage(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStorage(store)

	manager, err := store.NewCheckpointManager()
	if err != nil {
		return err
	}
	return fn(manager)
}

func checkpointCreateCmd() *cobra.Command {
	var tag, description string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCheckpoints(cmd, func(manager *storage.CheckpointManager) error {
				info, err := manager.Create(cmd.Context(), tag, description)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created checkpoint %s (%s)", info.ID, formatFileSize(info.FileSize))))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&tag, "tag", "", "checkpoint name (default: timestamp)")
	cmd.Flags().StringVar(&description, "description", "", "checkpoint description")

	return cmd
}

func checkpointListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List checkpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCheckpoints(cmd, func(manager *storage.CheckpointManager) error {
				checkpoints, err := manager.List(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(checkpoints) == 0 {
					fmt.Fprintln(out, cli.FormatInfo("No checkpoints found."))
					return nil
				}

				now := time.Now()
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tCREATED\tSIZE\tTRANSFERS\tCLASSIFIED\tGAINS\tDESCRIPTION")
				for _, cp := range checkpoints {
					id := cp.ID
					if cp.IsAuto {
						id += " (auto)"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
						id,
						formatRelativeTime(cp.CreatedAt, now),
						formatFileSize(cp.FileSize),
						cp.Transactions,
						cp.Classified,
						cp.Gains,
						cp.Description)
				}
				return w.Flush()
			})
		},
	}
}

func checkpointRestoreCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore the database from a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCheckpoints(cmd, func(manager *storage.CheckpointManager) error {
				info, err := manager.GetCheckpointInfo(cmd.Context(), args[0])
				if err != nil {
					return common.NewUserError(fmt.Sprintf("checkpoint %q not found", args[0]), err)
				}

				out := cmd.OutOrStdout()
				if !force {
					question := fmt.Sprintf("Restore %s from %s? Current data will be replaced.", info.ID, info.CreatedAt.Format("2006-01-02 15:04"))
					ok, err := cli.Confirm(cmd.Context(), cli.NewNonBlockingReader(cmd.InOrStdin()), out, question)
					if err != nil {
						return err
					}
					if !ok {
						fmt.Fprintln(out, cli.FormatInfo("Restore canceled."))
						return nil
					}
				}

				if err := manager.Restore(cmd.Context(), info.ID); err != nil {
					return err
				}
				fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Restored checkpoint %s", info.ID)))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation")

	return cmd
}

func checkpointDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCheckpoints(cmd, func(manager *storage.CheckpointManager) error {
				out := cmd.OutOrStdout()
				if !force {
					ok, err := cli.Confirm(cmd.Context(), cli.NewNonBlockingReader(cmd.InOrStdin()), out,
						fmt.Sprintf("Delete checkpoint %s?", args[0]))
					if err != nil {
						return err
					}
					if !ok {
						fmt.Fprintln(out, cli.FormatInfo("Delete canceled."))
						return nil
					}
				}

				if err := manager.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Deleted checkpoint %s", args[0])))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation")

	return cmd
}
