package cli

import (
	"context"
	"fmt"
	"strconv"

	"pairing_bot/internal/domain/tenant"

	"github.com/spf13/cobra"
)

var tenantsCmd = &cobra.Command{
	Use:   "tenants",
	Short: "Inspect registered tenants",
}

var tenantsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tenants",
	Args:  cobra.NoArgs,
	RunE:  runTenantsList,
}

func init() {
	tenantsCmd.AddCommand(tenantsListCmd)
}

func runTenantsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, stores, err := loadStores(ctx)
	if err != nil {
		return err
	}
	defer stores.Close()

	tenants, err := stores.Tenants.ListAll(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(tenants) == 0 {
		fmt.Fprintln(out, "No tenants registered.")
		return nil
	}

	fmt.Fprintf(out, "Tenants (%d):\n\n", len(tenants))
	for _, t := range tenants {
		state := "active"
		if !t.Active {
			state = "stopped"
		}
		fmt.Fprintf(out, "  %-16d  %-8s  cycle %-4d  %s\n", t.ID, state, t.Cycle, t.Title)
		fmt.Fprintf(out, "    cycle %q  reminder %q  opt-out %q\n", t.CycleSpec, t.ReminderSpec, t.OptOutSpec)
	}
	return nil
}

// resolveTenants turns "all" or a single id into the list of tenant ids to act on.
func resolveTenants(ctx context.Context, repo tenant.Repository, arg string) ([]int64, error) {
	if arg == "all" {
		tenants, err := repo.ListAll(ctx)
		if err != nil {
			return nil, err
		}
		ids := make([]int64, 0, len(tenants))
		for _, t := range tenants {
			ids = append(ids, t.ID)
		}
		return ids, nil
	}

	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id == 0 {
		return nil, fmt.Errorf("invalid tenant %q: expected a non-zero id or \"all\"", arg)
	}
	return []int64{id}, nil
}
