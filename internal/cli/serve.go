package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jarvisvpn/jvpnd/internal/api"
	"github.com/jarvisvpn/jvpnd/internal/config"
	"github.com/jarvisvpn/jvpnd/internal/health"
	"github.com/jarvisvpn/jvpnd/internal/keygen"
	"github.com/jarvisvpn/jvpnd/internal/registry"
	"github.com/jarvisvpn/jvpnd/internal/sshexec"
	"github.com/jarvisvpn/jvpnd/internal/store"
	"github.com/jarvisvpn/jvpnd/internal/subscription"
	"github.com/jarvisvpn/jvpnd/internal/xrayapi"
	"github.com/jarvisvpn/jvpnd/internal/xraymgr"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the key distribution daemon",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if len(cfg.Servers) == 0 {
		return fmt.Errorf("no servers configured")
	}

	reg := registry.New(cfg.Servers)
	keys := keygen.NewGenerator(cfg.SubscriptionSecret)
	tokens := keygen.NewTokenSigner(cfg.SubscriptionSecret)
	runner := sshexec.NewRunner(cfg.ConnectTimeout, cfg.RequestTimeout)
	xclient := xrayapi.New(runner, cfg.RequestTimeout)

	mgr := xraymgr.New(xraymgr.Options{
		Registry: reg,
		Keys:     keys,
		Runner:   runner,
		API:      xclient,
		Flow:     cfg.DefaultFlow,
		CacheTTL: cfg.StatsCacheTTL,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checker := health.New(reg, &health.SSHProber{Runner: runner}, cfg.HealthCheckInterval, cfg.ConnectTimeout)
	go checker.Run(ctx)

	// Subscription HTTP needs the key store. Without a database the daemon
	// still provisions keys over the admin API.
	var app *fiber.App
	if cfg.DatabaseURL != "" {
		st, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()

		app = fiber.New(fiber.Config{DisableStartupMessage: true})
		sub := subscription.New(reg, keys, tokens, st, st)
		sub.Register(app)
		go func() {
			slog.Info("subscription HTTP listening", "addr", cfg.ListenAddr)
			if err := app.Listen(cfg.ListenAddr); err != nil {
				slog.Error("subscription HTTP error", "error", err)
			}
		}()
	} else {
		slog.Warn("no database_url configured, subscription feed disabled")
	}

	apiSrv := api.NewServer(cfg.APIAddr, reg, mgr, tokens, cfg.SubscriptionDomain)
	go func() {
		if err := apiSrv.Run(); err != nil {
			slog.Error("admin API error", "error", err)
		}
	}()

	slog.Info("daemon running", "servers", reg.Len())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	slog.Info("shutting down")
	cancel()
	apiSrv.Stop()
	if app != nil {
		_ = app.Shutdown()
	}
	return nil
}
