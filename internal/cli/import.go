package cli

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/verenigingen/boekhouden-import/internal/models"
)

func init() {
	importCmd.Flags().String("company", "", "company to import for (defaults to the configured default company)")
	importCmd.Flags().String("from", "", "only import mutations on or after this date (YYYY-MM-DD)")
	importCmd.Flags().String("to", "", "only import mutations on or before this date (YYYY-MM-DD)")
	importCmd.Flags().String("types", "", "comma separated source mutation types, e.g. 0,2,1 (defaults to all)")
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Run a one-shot import",
	Long:  "Run one import to completion and exit. The exit code is non-zero when the run fails, record-local failures are reported in the run summary instead.",
	RunE:  runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}

	company, _ := cmd.Flags().GetString("company")
	if company == "" {
		company = a.cfg.DefaultCompany
	}

	run := models.ImportRun{
		Company: company,
		Status:  models.RunQueued,
	}
	run.MutationTypes, _ = cmd.Flags().GetString("types")

	if run.DateFrom, err = dayFlag(cmd, "from"); err != nil {
		return err
	}
	if run.DateTo, err = dayFlag(cmd, "to"); err != nil {
		return err
	}

	if err := models.DB.Create(&run).Error; err != nil {
		return err
	}

	if err := a.runner.Execute(context.Background(), &run); err != nil {
		return err
	}

	event := log.Info().Str("status", string(run.Status))
	if run.Summary != "" {
		event = event.RawJSON("summary", []byte(run.Summary))
	}
	event.Msg("import finished")

	return nil
}

// dayFlag parses an optional YYYY-MM-DD flag value.
func dayFlag(cmd *cobra.Command, name string) (*time.Time, error) {
	value, err := cmd.Flags().GetString(name)
	if err != nil || value == "" {
		return nil, err
	}

	day, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}

	return &day, nil
}
