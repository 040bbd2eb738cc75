package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vulnwatch/cvescan/config"
	"github.com/vulnwatch/cvescan/internal/scan"
	"github.com/vulnwatch/cvescan/pkg/scorecache"
)

var (
	scanHost         string
	scanUser         string
	scanPassword     string
	scanSuite        string
	scanProxy        string
	scanMinScore     float64
	scanShowUnscored bool
)

// scanCommand runs one pipeline directly from the terminal, without the
// API server. The password may come from CVE_SCAN_PASSWORD to keep it
// out of the process list.
func scanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a remote host once and print the report",
		Long: `Examples:
  # Scan a host, showing everything at or above CVSS 7.0
  $ cvescan scan --host 10.0.0.5 --user debian --min-score 7.0

  # Include CVEs that have no CVSS metrics
  $ cvescan scan --host 10.0.0.5 --user debian --show-unscored`,
		Args: NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			if err := cfg.Validate(); err != nil {
				return err
			}
			setupLogging(cfg)

			if scanPassword == "" {
				scanPassword = os.Getenv("CVE_SCAN_PASSWORD")
			}

			cache, err := scorecache.Open(cfg.CachePath, cfg.CacheTTL, cfg.CacheEnabled)
			if err != nil {
				return err
			}
			defer cache.Close()

			svc := scan.NewService(cfg, cache)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := svc.Run(ctx, scan.Request{
				Host:         scanHost,
				User:         scanUser,
				Password:     scanPassword,
				Suite:        scanSuite,
				Proxy:        scanProxy,
				MinScore:     scanMinScore,
				ShowUnscored: scanShowUnscored,
			})
			if err != nil {
				log.Errorf("scan failed: %v", err)
				os.Exit(1)
			}

			renderReport(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&scanHost, "host", "", "target host (host or host:port)")
	cmd.Flags().StringVarP(&scanUser, "user", "u", "", "ssh user")
	cmd.Flags().StringVar(&scanPassword, "password", "", "ssh password (or CVE_SCAN_PASSWORD)")
	cmd.Flags().StringVarP(&scanSuite, "suite", "s", config.DefaultSuite, "debsecan suite")
	cmd.Flags().StringVar(&scanProxy, "proxy", "", "https proxy for debsecan and NVD")
	cmd.Flags().Float64Var(&scanMinScore, "min-score", 0.0, "minimum CVSS base score to report")
	cmd.Flags().BoolVar(&scanShowUnscored, "show-unscored", false, "include CVEs without CVSS metrics")

	return cmd
}
