package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lixohealthcareequipment/growth-ops/internal/crm"
	"github.com/lixohealthcareequipment/growth-ops/internal/identity"
	"github.com/lixohealthcareequipment/growth-ops/internal/store"
	"github.com/lixohealthcareequipment/growth-ops/internal/webhook"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lead webhook server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		writer, err := initCRMWriter()
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(st, writer, initLocker()),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.Bool("writeback", cfg.Zoho.Writeback),
			zap.String("crm_provider", cfg.CRM.Provider),
			zap.Bool("debug_routes", cfg.Server.DebugRoutes),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildRouter wires the webhook handler from config. writer may be nil.
func buildRouter(st store.IdentityStore, writer crm.Writer, locker identity.Locker) http.Handler {
	resolver := identity.NewResolver(st, locker)
	h := webhook.NewHandler(resolver, writer, st, webhook.Config{
		Writeback:   cfg.Zoho.Writeback,
		DebugRoutes: cfg.Server.DebugRoutes,
		CORSOrigins: cfg.Server.CORSOrigins,
	})
	return h.Router()
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
