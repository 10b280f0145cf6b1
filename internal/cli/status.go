package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/Kalinx99/TelScan/internal/config"
	"github.com/Kalinx99/TelScan/internal/version"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show TelScan status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("TelScan %s (commit %s)\n\n", version.Version, version.Commit)
			fmt.Printf("Config:  %s\n", cfgFile)

			cfg, err := config.Load(cfgFile)
			if err != nil {
				fmt.Printf("Config:  error loading: %v\n", err)
				return nil
			}

			fmt.Printf("Data:    %s\n", cfg.DataDir)
			fmt.Printf("Gateway: %s\n", cfg.Gateway.Addr)
			fmt.Printf("API:     port=%d bind=%s\n", cfg.API.Port, cfg.API.Bind)
			fmt.Printf("Webhook: allowed hosts %v\n", cfg.Webhook.AllowedHosts)
			fmt.Println()

			// Ask the running instance, if any.
			client := &http.Client{Timeout: 3 * time.Second}
			resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/status", cfg.API.Port))
			if err != nil {
				fmt.Println("Session: (telscan not running)")
			} else {
				defer resp.Body.Close()
				var body struct {
					Session string `json:"session"`
				}
				if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
					fmt.Printf("Session: %s\n", body.Session)
				}
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Printf("\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Printf("  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}

	return cmd
}
