package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AI2HU/gauge/internal/api"
)

var (
	apiPort       string
	apiHost       string
	corsOrigin    string
	withScheduler bool
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the Gauge REST API server",
	Long: `Start the Gauge REST API server exposing:
- Token-budgeted log exports (models, nodes, agent runs)
- Metric summaries, alerts and weekly ranges per model
- Health check ingestion and on-demand metric job runs
- Prometheus metrics on /metrics

The API runs on HTTP (no authentication required for now).`,
	RunE: runAPI,
}

func init() {
	apiCmd.Flags().StringVarP(&apiPort, "port", "p", "", "Port to run the API server on (overrides config file)")
	apiCmd.Flags().StringVarP(&apiHost, "host", "H", "", "Host to bind the API server to (overrides config file)")
	apiCmd.Flags().StringVarP(&corsOrigin, "cors-origin", "c", "", "CORS origin to allow (overrides config file, use '*' for all origins)")
	apiCmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "Also run the metric job on its cron schedule")
}

func runAPI(cmd *cobra.Command, args []string) error {
	host := firstNonEmpty(apiHost, cfg.API.Host, "0.0.0.0")
	port := firstNonEmpty(apiPort, cfg.API.Port, "8990")
	selectedCORSOrigin := firstNonEmpty(corsOrigin, cfg.API.CORSOrigin, "*")

	fmt.Printf("%s🚀 Starting Gauge API Server%s\n", HeaderStyle, Reset)
	fmt.Printf("%s============================%s\n", DimStyle, Reset)
	fmt.Println(FormatLabelValue("Host:", host))
	fmt.Println(FormatLabelValue("Port:", port))
	fmt.Println(FormatLabelValue("CORS Origin:", selectedCORSOrigin))
	fmt.Println(FormatLabelValue("URL:", fmt.Sprintf("http://%s:%s/api/v1", host, port)))
	fmt.Println()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	fmt.Printf("%s✅ Database connection successful!%s\n", SuccessStyle, Reset)

	if withScheduler {
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer sched.Stop()
		fmt.Printf("%s⏰ Metric job scheduled: %s%s\n", InfoStyle, cfg.Jobs.MetricsCron, Reset)
	}

	server := api.NewServer(api.Options{
		Database:        database,
		Sampler:         samplerService,
		Stats:           statsService,
		Jobs:            jobService,
		Scheduler:       sched,
		Gatherer:        promRegistry,
		CORSOrigin:      selectedCORSOrigin,
		ExportRateLimit: cfg.API.ExportRateLimit,
		ExportBurst:     cfg.API.ExportBurst,
	})

	fmt.Printf("%s🌐 API Server is running!%s\n", SuccessStyle, Reset)
	fmt.Println()
	fmt.Printf("%s📚 Available Endpoints:%s\n", TitleStyle, Reset)
	fmt.Println("  Exports:")
	fmt.Println("    POST   /api/v1/exports/models/:id/sample     - Sample model logs")
	fmt.Println("    POST   /api/v1/exports/nodes/sample          - Sample agent node logs")
	fmt.Println("    POST   /api/v1/exports/agent-runs/sample     - Sample complete agent runs")
	fmt.Println()
	fmt.Println("  Models:")
	fmt.Println("    GET    /api/v1/models/:id/metrics/summary    - Metric summary over a window")
	fmt.Println("    GET    /api/v1/models/:id/alerts             - Recent alerts")
	fmt.Println("    GET    /api/v1/models/:id/ranges             - Weekly metric ranges")
	fmt.Println("    POST   /api/v1/models/:id/health-checks      - Record a health check")
	fmt.Println()
	fmt.Println("  Jobs & Health:")
	fmt.Println("    POST   /api/v1/jobs/metrics/run              - Run the metric job now")
	fmt.Println("    GET    /api/v1/jobs/metrics/runs             - Metric job history")
	fmt.Println("    GET    /api/v1/health                        - Health check")
	fmt.Println("    GET    /metrics                              - Prometheus metrics")
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop the server")

	address := fmt.Sprintf("%s:%s", host, port)
	err := server.Run(ctx, address)
	if ctx.Err() != nil {
		fmt.Printf("\n%s🛑 Shutting down API server...%s\n", InfoStyle, Reset)
	}
	return err
}
