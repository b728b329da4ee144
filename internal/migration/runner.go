// Package migration orchestrates import runs: it pulls mutations from the
// external ledger, drives them through normalization, classification and the
// document builder in dependency order, and reconciles payments afterwards.
package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/verenigingen/boekhouden-import/internal/analyzer"
	"github.com/verenigingen/boekhouden-import/internal/builder"
	"github.com/verenigingen/boekhouden-import/internal/classify"
	"github.com/verenigingen/boekhouden-import/internal/config"
	"github.com/verenigingen/boekhouden-import/internal/eboekhouden"
	"github.com/verenigingen/boekhouden-import/internal/models"
	"github.com/verenigingen/boekhouden-import/internal/mutation"
	"github.com/verenigingen/boekhouden-import/internal/reconcile"
	"github.com/verenigingen/boekhouden-import/internal/resolve"
	"gorm.io/gorm"
)

// kindOrder is the processing order of the source mutation types. Later
// kinds depend on earlier documents existing: payments need invoices.
var kindOrder = []int{
	eboekhouden.TypeOpeningBalance,
	eboekhouden.TypeSalesInvoice,
	eboekhouden.TypePurchaseInvoice,
	eboekhouden.TypeCustomerPayment,
	eboekhouden.TypeSupplierPayment,
	eboekhouden.TypeMoneyReceived,
	eboekhouden.TypeMoneySent,
	eboekhouden.TypeMemorial,
}

// heartbeatEvery is the mutation interval for the monitoring heartbeat.
const heartbeatEvery = 1000

// Runner executes import runs.
type Runner struct {
	db      *gorm.DB
	adapter *eboekhouden.Adapter
	cfg     config.Config
	metrics *Metrics
	baseDir string
	out     io.Writer // the process log destination, teed with the run's debug log
	log     zerolog.Logger
}

// NewRunner returns a runner writing its log files below baseDir. out is the
// writer the process logger uses; per-run log lines go there and to the
// run's own debug log file.
func NewRunner(db *gorm.DB, adapter *eboekhouden.Adapter, cfg config.Config, metrics *Metrics, baseDir string, out io.Writer, log zerolog.Logger) *Runner {
	return &Runner{
		db:      db,
		adapter: adapter,
		cfg:     cfg,
		metrics: metrics,
		baseDir: baseDir,
		out:     out,
		log:     log.With().Str("component", "migration").Logger(),
	}
}

// Execute runs one import from start to finish. Per-record failures never
// fail the run: only adapter or cache initialization failures do.
func (r *Runner) Execute(ctx context.Context, run *models.ImportRun) error {
	if err := run.Start(r.db); err != nil {
		return err
	}

	r.metrics.ActiveRuns.Inc()
	defer r.metrics.ActiveRuns.Dec()

	logs, err := openRunLogs(r.baseDir, run.ID)
	if err != nil {
		_ = run.Finish(r.db, models.RunFailed, "")
		return err
	}
	defer logs.Close()

	// The debug log gets a copy of everything this run logs
	log := r.log.Output(zerolog.MultiLevelWriter(r.out, logs)).With().
		Str("run", run.ID.String()).
		Str("company", run.Company).
		Logger()

	log.Info().Msg("import run started")

	status, runErr := r.execute(ctx, run, log)

	records, err := models.FailedRecordsForRun(r.db, run.ID, "")
	if err == nil {
		if err := logs.writeFailedRecords(records); err != nil {
			log.Error().Err(err).Msg("could not write the failed record log")
		}
	}

	summary := r.summary(run, records)
	if err := run.Finish(r.db, status, summary); err != nil {
		log.Error().Err(err).Msg("could not finish the run")
	}

	log.Info().
		Str("status", string(status)).
		Uint("processed", run.Processed).
		Uint("created", run.Created).
		Uint("skippedExisting", run.SkippedExisting).
		Uint("failed", run.FailedRecords).
		Msg("import run finished")

	return runErr
}

func (r *Runner) execute(ctx context.Context, run *models.ImportRun, log zerolog.Logger) (models.RunStatus, error) {
	// The lookup tables must be complete before any mutation is
	// normalized
	cache := eboekhouden.NewCache()
	if err := cache.Initialize(ctx, r.adapter, log); err != nil {
		r.recordFatal(run, err)
		return models.RunFailed, err
	}

	resolver, err := resolve.New(r.db, cache, run.Company, resolve.Config{
		ReceivableForSales: r.cfg.ReceivableAccountForSales,
		Payable:            r.cfg.PayableAccount,
		DefaultBank:        r.cfg.DefaultBankAccount,
		DefaultCostCenter:  r.cfg.DefaultCostCenter,
		Uncategorized: map[models.RootType]string{
			models.RootTypeAsset:     r.cfg.Uncategorized.Asset,
			models.RootTypeLiability: r.cfg.Uncategorized.Liability,
			models.RootTypeEquity:    r.cfg.Uncategorized.Equity,
			models.RootTypeIncome:    r.cfg.Uncategorized.Income,
			models.RootTypeExpense:   r.cfg.Uncategorized.Expense,
			models.RootTypeUnknown:   r.cfg.Uncategorized.Expense,
		},
	})
	if err != nil {
		r.recordFatal(run, err)
		return models.RunFailed, err
	}

	normalizer := mutation.NewNormalizer(cache, mutation.Options{
		FallbackCounterAccount: r.cfg.FallbackCounterAccount,
	}, time.Now)

	build := builder.New(r.db, resolver, cache, builder.Config{
		Company:            run.Company,
		ItemForIncome:      r.cfg.ItemForIncome,
		ItemForExpense:     r.cfg.ItemForExpense,
		DefaultCostCenter:  r.cfg.DefaultCostCenter,
		OpeningBalanceDate: r.cfg.OpeningDate(),
	}, log)

	var from, to time.Time
	if run.DateFrom != nil {
		from = *run.DateFrom
	}
	if run.DateTo != nil {
		to = *run.DateTo
	}

	for _, mutationType := range r.types(run) {
		raws, err := r.adapter.FetchMutations(ctx, mutationType, from, to)
		if err != nil {
			r.recordFatal(run, err)
			return models.RunFailed, err
		}

		log.Info().Int("type", mutationType).Int("mutations", len(raws)).Msg("fetched mutations")

		for _, raw := range raws {
			// Cancellation leaves partially imported documents in
			// place; idempotency makes a restart safe
			if run.CancelRequested(r.db) {
				log.Info().Msg("cancellation requested, stopping")
				return models.RunCancelled, nil
			}

			r.process(run, raw, normalizer, build, log)

			if run.Processed%heartbeatEvery == 0 {
				log.Info().
					Uint("processed", run.Processed).
					Uint("created", run.Created).
					Uint("failed", run.FailedRecords).
					Msg("heartbeat")
			}
		}

		// All opening balance mutations become one document
		if mutationType == eboekhouden.TypeOpeningBalance {
			r.count(run, build.FlushOpeningBalance(), eboekhouden.RawMutation{})
		}
	}

	stats, err := reconcile.New(r.db, run.ID, log).ReconcilePayments(run.Company)
	if err != nil {
		log.Error().Err(err).Msg("reconciliation pass failed")
	} else {
		log.Info().Str("stats", stats.Describe()).Msg("reconciliation finished")
	}

	return models.RunCompleted, nil
}

// process runs one raw record through normalization and the builder.
func (r *Runner) process(run *models.ImportRun, raw eboekhouden.RawMutation, normalizer *mutation.Normalizer, build *builder.Builder, log zerolog.Logger) {
	run.Processed++
	r.metrics.Processed.WithLabelValues(run.Company).Inc()

	m, warnings, err := normalizer.Normalize(raw)
	for _, warning := range warnings {
		log.Warn().Int64("mutation", raw.ExternalID()).Msg(warning)
	}
	if err != nil {
		r.recordFailure(run, raw, "mutation", err)
		return
	}

	result := build.Process(m)
	for _, warning := range result.Warnings {
		log.Warn().Int64("mutation", m.ID).Msg(warning)
	}

	r.count(run, result, raw)
}

// count books one builder result into the run counters.
func (r *Runner) count(run *models.ImportRun, result builder.Result, raw eboekhouden.RawMutation) {
	switch result.Outcome {
	case builder.OutcomeCreated:
		run.Created++
		r.metrics.Created.WithLabelValues(run.Company, string(result.Kind)).Inc()
	case builder.OutcomeSkippedExists:
		run.SkippedExisting++
		r.metrics.Skipped.WithLabelValues(run.Company, "already-exists").Inc()
	case builder.OutcomeSkippedCancelled:
		run.SkippedCancelled++
		r.metrics.Skipped.WithLabelValues(run.Company, "cancelled").Inc()
	case builder.OutcomeFailed:
		r.recordFailure(run, raw, string(result.Kind), result.Err)
	}
}

// recordFailure persists one record-local failure.
func (r *Runner) recordFailure(run *models.ImportRun, raw eboekhouden.RawMutation, kind string, err error) {
	run.FailedRecords++

	category := models.CategorySubmitRejected
	retryable := true
	if recordErr, ok := err.(*models.RecordError); ok {
		category = recordErr.Category
		retryable = recordErr.Retryable
	}

	r.metrics.Failed.WithLabelValues(run.Company, string(category)).Inc()

	payload, _ := json.Marshal(raw)

	record := models.FailedRecord{
		RunID:              run.ID,
		ExternalMutationID: raw.ExternalID(),
		RecordKind:         kind,
		RawPayload:         string(payload),
		ErrorCategory:      category,
		ErrorMessage:       err.Error(),
		StackTrace:         string(debug.Stack()),
		Retryable:          retryable,
	}

	if dbErr := r.db.Create(&record).Error; dbErr != nil {
		r.log.Error().Err(dbErr).Msg("could not persist failed record")
	}
}

// recordFatal persists the failure that aborted the run.
func (r *Runner) recordFatal(run *models.ImportRun, err error) {
	run.FailedRecords++

	category := models.CategorySourcePagingFailed
	if errors.Is(err, eboekhouden.ErrSession) {
		category = models.CategorySessionExpired
	}

	record := models.FailedRecord{
		RunID:         run.ID,
		RecordKind:    "run",
		ErrorCategory: category,
		ErrorMessage:  err.Error(),
		Retryable:     true,
	}

	if dbErr := r.db.Create(&record).Error; dbErr != nil {
		r.log.Error().Err(dbErr).Msg("could not persist failed record")
	}
}

// types returns the source types this run covers, in dependency order.
func (r *Runner) types(run *models.ImportRun) []int {
	if run.MutationTypes == "" {
		return kindOrder
	}

	wanted := map[int]bool{}
	for _, field := range strings.Split(run.MutationTypes, ",") {
		if value, err := strconv.Atoi(strings.TrimSpace(field)); err == nil {
			wanted[value] = true
		}
	}

	var types []int
	for _, mutationType := range kindOrder {
		if wanted[mutationType] {
			types = append(types, mutationType)
		}
	}

	return types
}

// summary renders the run's summary JSON including the analyzer report.
func (r *Runner) summary(run *models.ImportRun, records []models.FailedRecord) string {
	report := analyzer.Analyze(records)

	// The full records are already in the JSON log file; the summary
	// only keeps the grouping
	for i := range report.Groups {
		report.Groups[i].Records = nil
	}

	payload, err := json.Marshal(map[string]any{
		"processed":               run.Processed,
		"created":                 run.Created,
		"skipped_already_exists":  run.SkippedExisting,
		"skipped_cancelled":       run.SkippedCancelled,
		"failed_records":          run.FailedRecords,
		"analysis":                report,
		"document_kinds_imported": documentKinds(),
	})
	if err != nil {
		return ""
	}

	return string(payload)
}

func documentKinds() []string {
	return []string{
		string(classify.KindOpeningBalance),
		string(classify.KindSalesInvoice),
		string(classify.KindPurchaseInvoice),
		string(classify.KindCustomerPayment),
		string(classify.KindSupplierPayment),
		string(classify.KindJournalEntry),
	}
}

// Seed ensures the configured chart of accounts and account mappings exist.
// It is idempotent and runs at startup.
func Seed(db *gorm.DB, cfg config.Config) error {
	for _, seed := range cfg.Accounts {
		var account models.Account
		err := db.Where(&models.Account{Code: seed.Code}).First(&account).Error
		if err == nil {
			continue
		}

		account = models.Account{
			Code:     seed.Code,
			Name:     seed.Name,
			RootType: models.RootType(seed.RootType),
			Active:   true,
		}
		if err := db.Create(&account).Error; err != nil {
			return fmt.Errorf("seeding account %s: %w", seed.Code, err)
		}
	}

	for _, seed := range cfg.AccountMappings {
		var mapping models.AccountMapping
		err := db.Where(&models.AccountMapping{Company: cfg.DefaultCompany, ExternalCode: seed.ExternalCode}).First(&mapping).Error
		if err == nil {
			continue
		}

		mapping = models.AccountMapping{
			Company:      cfg.DefaultCompany,
			ExternalCode: seed.ExternalCode,
			AccountCode:  seed.Account,
			Priority:     seed.Priority,
		}
		if err := db.Create(&mapping).Error; err != nil {
			return fmt.Errorf("seeding account mapping %s: %w", seed.ExternalCode, err)
		}
	}

	return nil
}
