package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AI2HU/gauge/internal/models"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the metric job once",
	Long:  `Compute metrics for every model with enough eligible logs, immediately. Use 'gauge scheduler start' for scheduled execution.`,
	RunE:  runCommand,
}

func runCommand(cmd *cobra.Command, args []string) error {
	fmt.Printf("%s🔄 Running metric job%s\n", InfoStyle, Reset)
	fmt.Printf("%s====================%s\n", DimStyle, Reset)
	fmt.Println()

	summary, err := sched.ExecuteNow(cmd.Context())
	if summary != nil {
		printRunSummary(summary)
	}
	if err != nil {
		fmt.Printf("%s❌ Metric job failed: %s%s\n", ErrorStyle, FormatValue(err.Error()), Reset)
		return err
	}

	fmt.Printf("%s🎉 Metric job completed!%s\n", SuccessStyle, Reset)
	return nil
}

func printRunSummary(s *models.RunSummary) {
	fmt.Println(FormatCountLabel("Models processed:", s.ModelsProcessed))
	fmt.Println(FormatCountLabel("Models skipped:  ", s.ModelsSkipped))
	if s.ModelsFailed > 0 {
		fmt.Printf("%s %s\n", FormatLabel("Models failed:   "), FormatError(fmt.Sprintf("%d", s.ModelsFailed)))
	} else {
		fmt.Println(FormatCountLabel("Models failed:   ", s.ModelsFailed))
	}
	fmt.Println(FormatCountLabel("Metric logs:     ", s.MetricLogs))
	if s.MetricFailures > 0 {
		fmt.Printf("%s %s\n", FormatLabel("Metric failures: "), FormatWarning(fmt.Sprintf("%d", s.MetricFailures)))
	}
	fmt.Println(FormatCountLabel("Logs marked:     ", s.LogsMarked))
	fmt.Println()
}
