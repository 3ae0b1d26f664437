package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	statsDays   int
	statsAlerts int
)

var statsCmd = &cobra.Command{
	Use:   "stats <model-id>",
	Short: "Show metric statistics for a model",
	Long:  `Show the metric summary, weekly ranges and recent alerts of one model.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().IntVarP(&statsDays, "days", "d", 30, "Summary window in days")
	statsCmd.Flags().IntVarP(&statsAlerts, "alerts", "a", 5, "Number of recent alerts to show")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	modelID := args[0]

	end := time.Now()
	start := end.AddDate(0, 0, -statsDays)

	summary, err := statsService.ModelMetricSummary(ctx, modelID, start, end)
	if err != nil {
		return fmt.Errorf("failed to get metric summary: %w", err)
	}

	fmt.Printf("%s📊 Metric Summary%s %s\n", HeaderStyle, Reset, FormatMeta(modelID))
	fmt.Printf("%s================%s\n", DimStyle, Reset)
	fmt.Printf("%s\n\n", FormatDim(fmt.Sprintf("%s → %s", start.Format("2006-01-02"), end.Format("2006-01-02"))))

	if len(summary.Metrics) == 0 {
		fmt.Printf("%sNo metrics configured for this model%s\n", WarningStyle, Reset)
	}
	for _, m := range summary.Metrics {
		fmt.Printf("  %s\n", FormatTitle(m.Name))
		if m.Count == 0 {
			fmt.Printf("    %s\n", FormatDim("no values in window"))
			continue
		}
		fmt.Printf("    %s  %s %s  %s %s  %s %s\n",
			FormatCountLabel("values", m.Count),
			FormatLabel("avg"), FormatMetric(m.Average),
			FormatLabel("min"), FormatMetric(m.Min),
			FormatLabel("max"), FormatMetric(m.Max))
		if m.Latest != nil {
			fmt.Printf("    %s %s %s\n", FormatLabel("latest"), FormatMetric(*m.Latest), FormatMeta(m.LatestAt.Format(time.RFC3339)))
		}
	}
	fmt.Println()

	ranges, err := statsService.WeeklyRanges(ctx, modelID)
	if err != nil {
		return fmt.Errorf("failed to list metric ranges: %w", err)
	}
	if len(ranges) > 0 {
		fmt.Printf("%s📅 Weekly Ranges%s\n", HeaderStyle, Reset)
		for _, r := range ranges {
			fmt.Printf("  %s  %s\n",
				FormatMeta(fmt.Sprintf("%s → %s", r.StartDate.Format("2006-01-02"), r.EndDate.Format("2006-01-02"))),
				formatRangeValues(r.Metrics))
		}
		fmt.Println()
	}

	alerts, err := statsService.RecentAlerts(ctx, modelID, statsAlerts)
	if err != nil {
		return fmt.Errorf("failed to list alerts: %w", err)
	}
	fmt.Printf("%s🚨 Recent Alerts%s\n", HeaderStyle, Reset)
	if len(alerts) == 0 {
		fmt.Printf("  %s\n", FormatSuccess("none"))
		return nil
	}
	for _, a := range alerts {
		fmt.Printf("  %s  %s  %s  %s\n",
			FormatMeta(a.CreatedAt.Format("2006-01-02 15:04")),
			FormatSeverity(a.Severity),
			FormatSecondary(a.Type),
			FormatLabelValue(a.Data.Rule, fmt.Sprintf("%.4f", a.Data.Value)))
	}
	return nil
}

func formatRangeValues(values map[string]float64) string {
	labels := make([]string, 0, len(values))
	for label := range values {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	parts := make([]string, len(labels))
	for i, label := range labels {
		parts[i] = FormatLabelValue(label, fmt.Sprintf("%.4f", values[label]))
	}
	return strings.Join(parts, "  ")
}
