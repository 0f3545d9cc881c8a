package cli

import (
	"fmt"
	"math/rand/v2"
	"time"

	"pairing_bot/internal/app"
	"pairing_bot/internal/domain/pairing"
	"pairing_bot/internal/infra/logger"
	"pairing_bot/internal/infra/metrics"

	"github.com/spf13/cobra"
)

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Drive pairing cycles by hand",
}

var cycleRunCmd = &cobra.Command{
	Use:   "run <tenant>",
	Short: "Run a pairing cycle now; messages are logged instead of sent",
	Args:  cobra.ExactArgs(1),
	RunE:  runCycle,
}

func init() {
	cycleCmd.AddCommand(cycleRunCmd)
}

func runCycle(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, stores, err := loadStores(ctx)
	if err != nil {
		return err
	}
	defer stores.Close()

	ids, err := resolveTenants(ctx, stores.Tenants, args[0])
	if err != nil {
		return err
	}
	if len(ids) != 1 {
		return fmt.Errorf("cycle run takes a single tenant id")
	}

	notifier := NewLogNotifier(logger.Component("notifier"))
	rec := metrics.NewNop()
	locks := app.NewTenantLocks()
	membership := app.NewMembershipService(stores.Members, stores.Tenants, stores.Pairing, notifier, locks, rec, logger.Log.WithField("app", "pairctl"))
	feedback := app.NewFeedbackService(stores.Members, stores.Pairing, notifier, membership, rec, app.FeedbackConfig{
		Timeout:            cfg.FeedbackTimeout,
		AttritionThreshold: cfg.AttritionThreshold,
		PromptConcurrency:  cfg.PromptConcurrency,
	}, logger.Log.WithField("app", "pairctl"))
	now := uint64(time.Now().UnixNano())
	matcher := pairing.NewMatcher(rand.New(rand.NewPCG(now, now>>1)))
	cycles := app.NewCycleService(stores.Tenants, stores.Members, stores.Pairing, notifier, feedback, matcher, locks, rec, logger.Log.WithField("app", "pairctl"))

	report, err := cycles.RunCycle(ctx, ids[0], app.TriggerManual)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Cycle %d for tenant %d (run %s)\n", report.Cycle, report.TenantID, report.RunID)
	for _, p := range report.Pairs {
		fmt.Fprintf(out, "  %d <-> %d\n", p.A, p.B)
	}
	if len(report.Unpaired) > 0 {
		fmt.Fprintf(out, "  unpaired: %v\n", report.Unpaired)
	}
	fmt.Fprintf(out, "%d pair(s), %d preference(s) honoured, %d feedback prompt(s)\n",
		len(report.Pairs), report.PreferencesUsed, report.FeedbackRequested)
	return nil
}
