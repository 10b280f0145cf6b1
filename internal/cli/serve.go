package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Kalinx99/TelScan/internal/api"
	"github.com/Kalinx99/TelScan/internal/bridge"
	"github.com/Kalinx99/TelScan/internal/config"
	"github.com/Kalinx99/TelScan/internal/jobs"
	"github.com/Kalinx99/TelScan/internal/monitor"
	"github.com/Kalinx99/TelScan/internal/notify"
	"github.com/Kalinx99/TelScan/internal/remote"
	"github.com/Kalinx99/TelScan/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the monitor, job engine and API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional; real env always wins.
			godotenv.Load()

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.API.Port = port
			}
			if bind != "" {
				cfg.API.Bind = bind
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
				return fmt.Errorf("creating data directory: %w", err)
			}

			db, err := store.Open(cfg.DBPath(), log)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()

			monitorStore := store.NewMonitorStore(db)
			taskStore := store.NewTaskStore(db)

			notifier := notify.New(cfg.Webhook.AllowedHosts, log)

			dialer := remote.NewWSDialer(cfg.Gateway, stdinPrompt, log)
			br := bridge.New(dialer, log)

			pipeline := monitor.NewPipeline(monitorStore, notifier, log)
			br.OnMessage(pipeline.HandleMessage)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			br.Start(ctx)
			defer br.Stop()

			readyWait := time.Duration(cfg.Gateway.ReadySeconds) * time.Second
			if !br.WaitReady(readyWait) {
				return fmt.Errorf("session not ready within %s", readyWait)
			}

			submitTimeout := time.Duration(cfg.Gateway.SubmitTimeoutSeconds) * time.Second
			manager := jobs.NewManager(br, monitorStore, taskStore, cfg.Jobs, submitTimeout, log)

			refresher := monitor.NewRefresher(monitorStore, br, cfg.Jobs.LogosDir, submitTimeout, log)
			if err := refresher.Start(cfg.Jobs.RefreshSchedule); err != nil {
				return err
			}
			defer refresher.Stop()

			server := api.New(cfg.API, br, manager, notifier, monitorStore, log)
			return server.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override the API port")
	cmd.Flags().StringVar(&bind, "bind", "", "override the API bind mode (loopback, lan, custom)")

	return cmd
}

// stdinPrompt reads one line from the terminal during interactive
// authorization (login code, two-step password).
func stdinPrompt(prompt string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
