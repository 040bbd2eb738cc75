package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vulnwatch/cvescan/config"
	"github.com/vulnwatch/cvescan/internal/scan"
	"github.com/vulnwatch/cvescan/internal/server"
	"github.com/vulnwatch/cvescan/pkg/scorecache"
)

var version = "1.2.0"

var (
	rootCmd = &cobra.Command{
		Use:   "cvescan [OPTIONS]",
		Short: "Remote Debian CVE scanning over SSH",
		Long: `Cvescan connects to a Debian host over SSH, enumerates installed-package
vulnerabilities with debsecan and resolves their CVSS severity from NVD`,
	}

	listenFlag string
	portFlag   int
	configFile string
)

func Execute() error {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scan API server",
		Args:  NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			if configFile != "" {
				if err := cfg.LoadFile(configFile); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("listen") {
				cfg.Listen = listenFlag
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = portFlag
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			setupLogging(cfg)

			log.Infof("config: listen=%s port=%d", cfg.Listen, cfg.Port)
			log.Infof("NVD api key: %s", setOrNot(cfg.NVDAPIKey))
			log.Infof("API token: %s", setOrNot(cfg.APIToken))
			log.Infof("cache: enabled=%v path=%s ttl=%s", cfg.CacheEnabled, cfg.CachePath, cfg.CacheTTL)

			cache, err := scorecache.Open(cfg.CachePath, cfg.CacheTTL, cfg.CacheEnabled)
			if err != nil {
				return err
			}
			defer cache.Close()

			if cfg.CacheEnabled {
				log.Infof("score cache loaded with %d entries", cache.Len())
			}

			svc := scan.NewService(cfg, cache)
			srv := server.New(cfg, svc)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return srv.ListenAndServe(ctx)
		},
	}

	serveCmd.Flags().StringVarP(&listenFlag, "listen", "l", config.DefaultListen, "listen address")
	serveCmd.Flags().IntVarP(&portFlag, "port", "p", config.DefaultPort, "listen port")
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "", "path of YAML config file")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information and quit",
		Args:  NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scanCommand())
	rootCmd.AddCommand(versionCmd)
	return rootCmd.Execute()
}

func setupLogging(cfg *config.Config) {
	lvl, err := log.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)

	if cfg.LogJSON {
		log.SetFormatter(&log.JSONFormatter{})
	}
}

func setOrNot(v string) string {
	if v == "" {
		return "not set"
	}
	return "set"
}
