package cli

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/verenigingen/boekhouden-import/internal/controllers"
	"github.com/verenigingen/boekhouden-import/internal/models"
	"github.com/verenigingen/boekhouden-import/internal/router"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long:  "Serve the HTTP API. Import runs started over the API execute in the background of this process.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}

	co := controllers.Controller{
		DB:     models.DB,
		Runner: a.runner,
		Config: a.cfg,
	}

	r := router.New(co, a.reg)

	log.Info().Str("bind", a.cfg.Bind).Msg("startup complete")

	return r.Run(a.cfg.Bind)
}
