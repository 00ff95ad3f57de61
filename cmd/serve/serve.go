package serve

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/ledgermart/ledgermart/cmd/common"
	"github.com/ledgermart/ledgermart/pkg/config"
	"github.com/ledgermart/ledgermart/pkg/db"
	"github.com/ledgermart/ledgermart/pkg/fabric/ca"
	"github.com/ledgermart/ledgermart/pkg/fabric/contract"
	"github.com/ledgermart/ledgermart/pkg/fabric/gateway"
	"github.com/ledgermart/ledgermart/pkg/fabric/wallet"
	"github.com/ledgermart/ledgermart/pkg/logger"
	ordershttp "github.com/ledgermart/ledgermart/pkg/orders/http"
	"github.com/ledgermart/ledgermart/pkg/orders/service"
	"github.com/ledgermart/ledgermart/pkg/orders/store"
	"github.com/ledgermart/ledgermart/pkg/version"
)

func setupRouter(handler *ordershttp.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api/v1", handler.RegisterRoutes)

	r.Get("/api/v1/version", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{
			"version":   version.Version,
			"gitCommit": version.GitCommit,
			"buildTime": version.BuildTime,
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}

// Command returns the serve command
func Command(log *logger.Logger) *cobra.Command {
	var (
		port       int
		dbPath     string
		dataPath   string
		ledger     common.LedgerFlags
		enrollWait time.Duration
	)

	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	defaultDataPath := filepath.Join(homeDir, ".ledgermart")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the order API server",
		Long:  `Start the HTTP server that exposes order split, payment confirmation and identity enrollment over the ledger.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(dataPath, 0755); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}
			cfg := config.NewConfigService(config.Params{
				DataPath:      dataPath,
				DBPath:        dbPath,
				WalletPath:    ledger.WalletPath,
				ProfilePath:   ledger.ProfilePath,
				IdentityLabel: ledger.IdentityLabel,
				ChannelName:   ledger.ChannelName,
				ChaincodeName: ledger.ChaincodeName,
			})
			ledger.WalletPath = cfg.GetWalletPath()

			database, err := sql.Open("sqlite3", cfg.GetDBPath())
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer database.Close()

			if err := db.RunMigrations(database); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Validate the profile and wallet identity up front; requests
			// then open their own short-lived sessions.
			profile, err := common.ResolveProfile(ledger)
			if err != nil {
				return err
			}

			invoker := contract.NewPerCallClient(func(ctx context.Context) (*gateway.Session, error) {
				session, _, err := common.ConnectSession(ctx, ledger, log)
				return session, err
			}, cfg.GetChaincodeName(), log)
			orderService := service.NewOrderService(invoker, store.NewSQLStore(database), log)

			walletStore, err := wallet.NewFileSystemWallet(cfg.GetWalletPath())
			if err != nil {
				return err
			}
			enroller := ca.NewEnrollmentService(log, enrollWait)

			handler := ordershttp.NewHandler(orderService, enroller, walletStore, profile, log)
			router := setupRouter(handler)

			httpServer := &http.Server{
				Addr:    fmt.Sprintf(":%d", port),
				Handler: router,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("HTTP server listening", "port", port)
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if err != nil && err != http.ErrServerClosed {
					return fmt.Errorf("HTTP server failed: %w", err)
				}
			case <-ctx.Done():
				log.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("HTTP server shutdown failed: %w", err)
				}
			}
			return nil
		},
	}

	serveCmd.Flags().IntVarP(&port, "port", "p", 8100, "Port to run the HTTP server on")
	serveCmd.Flags().StringVar(&dataPath, "data", defaultDataPath, "Path to the data directory")
	serveCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database file (default <data>/ledgermart.db)")
	serveCmd.Flags().StringVar(&ledger.ProfilePath, "profile", "connection-profile.yaml", "Path to the connection profile")
	serveCmd.Flags().StringVar(&ledger.WalletPath, "wallet", "", "Path to the wallet directory (default <data>/wallet)")
	serveCmd.Flags().StringVar(&ledger.IdentityLabel, "identity", "appUser", "Wallet label of the signing identity")
	serveCmd.Flags().StringVar(&ledger.ChannelName, "channel", "ecommercechannel", "Channel name")
	serveCmd.Flags().StringVar(&ledger.ChaincodeName, "chaincode", "ordercontract", "Chaincode name")
	serveCmd.Flags().StringVar(&ledger.MSPID, "msp-id", "", "Expected MSP ID of the signing identity")
	serveCmd.Flags().BoolVar(&ledger.Discovery, "discovery", true, "Use service discovery for endorsement")
	serveCmd.Flags().DurationVar(&enrollWait, "enroll-timeout", 30*time.Second, "Deadline for CA enrollment requests")

	return serveCmd
}
