package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AI2HU/gauge/internal/models"
)

var (
	sampleMode       string
	sampleModelID    string
	sampleNodeIDs    []string
	sampleFields     []string
	sampleStart      string
	sampleEnd        string
	samplePercentage int
	sampleOutput     string
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Export a token-budgeted log sample",
	Long: `Export model logs, agent node logs or complete agent runs for a date range.
Large ranges are sampled down to the configured token budget, newest first.`,
	RunE: runSample,
}

func init() {
	sampleCmd.Flags().StringVarP(&sampleMode, "mode", "m", models.SampleModeModel, "Export mode: model, nodes or agent_run")
	sampleCmd.Flags().StringVar(&sampleModelID, "model-id", "", "Model to export (mode model)")
	sampleCmd.Flags().StringSliceVar(&sampleNodeIDs, "node-ids", nil, "Agent nodes to export (modes nodes and agent_run)")
	sampleCmd.Flags().StringSliceVar(&sampleFields, "fields", nil, "Fields to keep in each entry (default all)")
	sampleCmd.Flags().StringVar(&sampleStart, "start", "", "Start date (RFC3339 or YYYY-MM-DD, default 7 days ago)")
	sampleCmd.Flags().StringVar(&sampleEnd, "end", "", "End date (RFC3339 or YYYY-MM-DD, default now)")
	sampleCmd.Flags().IntVarP(&samplePercentage, "percentage", "p", 0, "Force a sample percentage (1-100)")
	sampleCmd.Flags().StringVarP(&sampleOutput, "output", "o", "", "Write JSON to this file instead of stdout")
}

func runSample(cmd *cobra.Command, args []string) error {
	end := time.Now()
	if sampleEnd != "" {
		t, err := parseDate(sampleEnd)
		if err != nil {
			return err
		}
		end = t
	}

	start := end.AddDate(0, 0, -7)
	if sampleStart != "" {
		t, err := parseDate(sampleStart)
		if err != nil {
			return err
		}
		start = t
	}

	req := models.SampleRequest{
		Mode:      sampleMode,
		ModelID:   sampleModelID,
		NodeIDs:   sampleNodeIDs,
		Fields:    sampleFields,
		StartDate: start,
		EndDate:   end,
	}
	if cmd.Flags().Changed("percentage") {
		req.SamplePercentage = &samplePercentage
	}

	resp, err := samplerService.Sample(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("failed to sample logs: %w", err)
	}

	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode sample: %w", err)
	}

	if sampleOutput == "" {
		fmt.Println(string(data))
		return nil
	}

	if err := os.WriteFile(sampleOutput, data, 0644); err != nil {
		return fmt.Errorf("failed to write sample: %w", err)
	}

	meta := resp.Metadata
	fmt.Printf("%s✅ Sample written to %s%s\n", SuccessStyle, sampleOutput, Reset)
	fmt.Println(FormatCountLabel("Total entries:   ", meta.TotalEntries))
	fmt.Println(FormatCountLabel("Sample %:        ", meta.SamplePercentage))
	fmt.Println(FormatCountLabel("Estimated tokens:", meta.EstimatedTokens))
	if meta.NeedsSampling {
		fmt.Printf("%s%s%s\n", WarningStyle, "Range exceeded the token budget and was sampled", Reset)
	}
	return nil
}
