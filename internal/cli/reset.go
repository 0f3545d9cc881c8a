package cli

import (
	"fmt"

	"pairing_bot/internal/infra/logger"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Wipe pairing state for a tenant",
}

var resetHistoryCmd = &cobra.Command{
	Use:   "history <tenant|all>",
	Short: "Delete history, current pairs, preferences, pool and feedback; keep members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReset(cmd, args[0], false)
	},
}

var resetCompleteCmd = &cobra.Command{
	Use:   "complete <tenant|all>",
	Short: "Like history, and also delete every member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReset(cmd, args[0], true)
	},
}

func init() {
	resetCmd.AddCommand(resetHistoryCmd)
	resetCmd.AddCommand(resetCompleteCmd)
}

func runReset(cmd *cobra.Command, target string, includeMembers bool) error {
	ctx := cmd.Context()
	_, stores, err := loadStores(ctx)
	if err != nil {
		return err
	}
	defer stores.Close()

	ids, err := resolveTenants(ctx, stores.Tenants, target)
	if err != nil {
		return err
	}

	log := logger.Component("reset")
	out := cmd.OutOrStdout()
	for _, id := range ids {
		if err := stores.Pairing.ResetTenant(ctx, id, includeMembers); err != nil {
			return fmt.Errorf("reset tenant %d: %w", id, err)
		}
		log.WithFields(logrus.Fields{"tenant_id": id, "include_members": includeMembers}).Info("Tenant reset")
		fmt.Fprintf(out, "Reset tenant %d\n", id)
	}
	if len(ids) == 0 {
		fmt.Fprintln(out, "No tenants registered.")
	}
	return nil
}
