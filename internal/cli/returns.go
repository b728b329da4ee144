package cli

import (
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/verenigingen/boekhouden-import/internal/models"
	"github.com/verenigingen/boekhouden-import/internal/reconcile"
)

func init() {
	returnsCmd.Flags().String("company", "", "company to process the batch for (defaults to the configured default company)")
}

var returnsCmd = &cobra.Command{
	Use:   "returns FILE",
	Short: "Process a bank return batch",
	Long:  "Reverse the payments for a CSV of failed direct-debit collections. Rows that cannot be matched are recorded as failures, they never abort the batch.",
	Args:  cobra.ExactArgs(1),
	RunE:  runReturns,
}

func runReturns(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	records, err := reconcile.ParseReturnFile(f)
	if err != nil {
		return err
	}

	company, _ := cmd.Flags().GetString("company")
	if company == "" {
		company = a.cfg.DefaultCompany
	}

	engine := reconcile.New(models.DB, uuid.Nil, log.Logger)
	stats, err := engine.ProcessReturns(company, records, reconcile.NewLedgerBatchSource(models.DB))
	if err != nil {
		return err
	}

	log.Info().Str("stats", stats.Describe()).Msg("return batch processed")

	return nil
}
