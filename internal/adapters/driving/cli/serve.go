package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/ephemera/internal/adapters/driving/mcp"
	"github.com/custodia-labs/ephemera/internal/logger"
)

var (
	serveHTTPAddr    string
	serveMetricsAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the expiry scheduler, MCP over HTTP and metrics",
	Long: `Runs until interrupted:
  - the expiry sweep every retention.sweep_interval
  - the MCP streamable HTTP transport on --http
  - Prometheus metrics on --metrics (at /metrics)

An empty address disables that listener.`,
	Example: `  ephemera serve --http :8080 --metrics :9090`,
	Args:    cobra.NoArgs,
	RunE:    runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHTTPAddr, "http", "127.0.0.1:8080", "MCP HTTP listen address")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics", "", "Prometheus metrics listen address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var server *mcp.Server
	if serveHTTPAddr != "" {
		var err error
		if server, err = newMCPServer(cmd); err != nil {
			return err
		}
	} else if err := ensureRuntime(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := scheduler.Start(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		return scheduler.Stop()
	})

	if server != nil {
		cmd.Printf("MCP server listening on http://%s\n", serveHTTPAddr)
		g.Go(func() error {
			return mcp.ServeHTTP(ctx, serveHTTPAddr, server.Handler())
		})
	}

	if serveMetricsAddr != "" && metricsHandler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		cmd.Printf("Metrics available at http://%s/metrics\n", serveMetricsAddr)
		g.Go(func() error {
			return mcp.ServeHTTP(ctx, serveMetricsAddr, mux)
		})
	}

	logger.Info("serving; press Ctrl+C to stop")
	if err := g.Wait(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
