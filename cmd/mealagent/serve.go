package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mealagent"
	"mealagent/internal/app"
	"mealagent/server"
)

var (
	serveAddr      string
	serveStageLogs bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analysis HTTP API",
	Long: `Serve the HTTP API:

  POST /v1/analyze                analysis request JSON, returns the result
  POST /v1/analyze?stream=true    same, as server-sent progress events
  POST /v1/retrospective          {"description": ..., "windows": [...]}
  GET  /healthz`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address, overrides HTTP_ADDR")
	serveCmd.Flags().BoolVar(&serveStageLogs, "stage-logs", false, "write every stage log as a JSON line to stdout")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	shutdown := initOtel(ctx)
	defer shutdown()

	addr := a.Config.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	opts := server.Options{
		NewAnalyzer:  newAnalyzer(a),
		Retro:        a.Retrospective(),
		ResolveImage: a.OpenRemoteImage,
	}
	if a.Webhook != nil {
		opts.Records = a.Webhook
	}

	return server.New(opts).ListenAndServe(ctx, addr)
}

func newAnalyzer(a *app.App) func() server.Analyzer {
	return func() server.Analyzer {
		var logger mealagent.StageLogger = mealagent.NewNoOpStageLogger()
		if serveStageLogs {
			logger = mealagent.NewStdoutStageLogger()
		}
		return a.Orchestrator(logger)
	}
}
