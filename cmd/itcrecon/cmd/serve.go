package cmd

import (
	"github.com/spf13/cobra"

	"itc-reconciliation-service/internal/api"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the eligibility and reconciliation HTTP API",
		Long: `serve starts the HTTP API:

  POST /api/v1/invoices/eligibility   register an invoice and return its verdict
  POST /api/v1/reconciliations        run a reconciliation
  GET  /api/v1/transactions           the reconciliation view with summary tiles
  GET  /api/v1/compliance-checks      the compliance audit trail
  POST /api/v1/compliance-checks      record a compliance check
  GET  /healthz                       database reachability

The server drains in-flight requests on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if address != "" {
				opts.cfg.Server.Address = address
			}
			opts.cfg.Server.ShutdownTimeout = opts.cfg.ShutdownTimeout()

			app, err := opts.openApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			handler := api.NewHandler(app.service, app.service.Recorder(), app.db.Ping, opts.log)
			server := api.NewServer(&opts.cfg.Server, handler, opts.log)

			ctx, cancel := signalContext()
			defer cancel()

			return server.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "listen address (default :8080)")

	return cmd
}
