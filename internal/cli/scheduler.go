package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Manage the scheduler",
	Long:  `Manage the Gauge scheduler - run the metric job on its cron schedule and inspect past runs.`,
}

var schedulerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the scheduler",
	RunE:  runSchedulerStart,
}

var historyLimit int

var schedulerHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent metric job runs",
	RunE:  runSchedulerHistory,
}

func init() {
	schedulerHistoryCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of runs to show")

	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerHistoryCmd)
}

func runSchedulerStart(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("%s🚀 Start Scheduler%s\n", FormatHeader(""), Reset)
	fmt.Printf("%s================%s\n", DimStyle, Reset)
	fmt.Println()
	fmt.Println(FormatLabelValue("Cron:", cfg.Jobs.MetricsCron))
	fmt.Println(FormatLabelValue("Min batch size:", fmt.Sprintf("%d", cfg.Jobs.MinBatchSize)))
	fmt.Println(FormatLabelValue("Workers:", fmt.Sprintf("%d", cfg.Jobs.Workers)))
	fmt.Println()

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	fmt.Printf("%s✅ Metric job scheduled successfully%s\n", SuccessStyle, Reset)
	fmt.Printf("%s📝 Press Ctrl+C to stop the scheduler%s\n", InfoStyle, Reset)
	fmt.Println()

	<-ctx.Done()
	fmt.Printf("\n%s⏹️  Stopping scheduler...%s\n", InfoStyle, Reset)
	sched.Stop()
	fmt.Printf("%s✅ Scheduler stopped%s\n", SuccessStyle, Reset)

	return nil
}

func runSchedulerHistory(cmd *cobra.Command, args []string) error {
	runs, err := sched.History(cmd.Context(), historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list job runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Printf("%sNo metric job runs recorded yet%s\n", WarningStyle, Reset)
		fmt.Printf("%s💡 Use 'gauge run' to run the metric job once%s\n", InfoStyle, Reset)
		return nil
	}

	fmt.Printf("%s📜 Metric Job History%s\n", HeaderStyle, Reset)
	fmt.Printf("%s====================%s\n", DimStyle, Reset)
	for i, run := range runs {
		fmt.Printf("  %s%d.%s %s  %s  attempt %s\n",
			CountStyle, i+1, Reset,
			FormatMeta(run.StartedAt.Format("2006-01-02 15:04:05")),
			formatStatus(run.Status),
			FormatCount(run.Attempt))
		if run.Error != "" {
			fmt.Printf("     %s\n", FormatError(run.Error))
		}
	}
	return nil
}
