// Package cli holds the command line interface: serving the API, running a
// one-shot import and processing a bank return batch.
package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/verenigingen/boekhouden-import/internal/config"
	"github.com/verenigingen/boekhouden-import/internal/eboekhouden"
	"github.com/verenigingen/boekhouden-import/internal/migration"
	"github.com/verenigingen/boekhouden-import/internal/models"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "boekhouden-import",
	Short:         "Import bookkeeping mutations from e-Boekhouden",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.toml", "path to the configuration file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(returnsCmd)
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Msg(err.Error())
		os.Exit(1)
	}
}

// app holds everything a command needs after bootstrapping.
type app struct {
	cfg     config.Config
	out     io.Writer
	runner  *migration.Runner
	metrics *migration.Metrics
	reg     *prometheus.Registry
}

// bootstrap sets up logging, loads the configuration, connects the database
// and builds the run worker.
func bootstrap() (*app, error) {
	// gin uses debug as the default mode, we use release for
	// security reasons
	ginMode, ok := os.LookupEnv("GIN_MODE")
	if !ok {
		gin.SetMode("release")
	} else {
		gin.SetMode(ginMode)
	}

	// Log format can be explicitly set.
	// If it is not set, it defaults to human readable for development
	// and JSON for release
	logFormat, ok := os.LookupEnv("LOG_FORMAT")
	output := io.Writer(os.Stdout)
	if (!ok && gin.IsDebugging()) || (ok && logFormat == "human") {
		output = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if gin.IsDebugging() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(output).With().Timestamp().Logger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database), os.ModePerm); err != nil {
		return nil, err
	}

	if err := models.Connect(cfg.Database + "?_pragma=foreign_keys(1)"); err != nil {
		return nil, err
	}

	if err := migration.Seed(models.DB, cfg); err != nil {
		return nil, fmt.Errorf("seeding the chart of accounts: %w", err)
	}

	rest := eboekhouden.NewRESTClient(cfg.APIURL, cfg.APIToken, log.Logger)

	var soap *eboekhouden.SOAPClient
	if cfg.SoapConfigured() {
		soap = eboekhouden.NewSOAPClient(cfg.SoapURL, cfg.SoapUsername, cfg.SoapSecurityCode1, cfg.SoapSecurityCode2, log.Logger)
	}

	adapter := eboekhouden.NewAdapter(rest, soap, cfg.BatchSize, log.Logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := migration.NewMetrics(reg)

	runner := migration.NewRunner(models.DB, adapter, cfg, metrics, ".", output, log.Logger)

	return &app{
		cfg:     cfg,
		out:     output,
		runner:  runner,
		metrics: metrics,
		reg:     reg,
	}, nil
}
