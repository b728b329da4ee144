package migration

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/verenigingen/boekhouden-import/internal/models"
)

// Per-run log directories, both append-only during a run.
const (
	failedRecordLogDir = "eboekhouden_migration_logs"
	debugLogDir        = "eboekhouden_debug_logs"
)

// runLogs are the two on-disk artifacts of a run: the JSON failed-record
// file and the plain-text debug log.
type runLogs struct {
	runID     uuid.UUID
	jsonPath  string
	debugFile *os.File
}

func openRunLogs(baseDir string, runID uuid.UUID) (*runLogs, error) {
	jsonDir := filepath.Join(baseDir, failedRecordLogDir)
	if err := os.MkdirAll(jsonDir, os.ModePerm); err != nil {
		return nil, err
	}

	debugDir := filepath.Join(baseDir, debugLogDir)
	if err := os.MkdirAll(debugDir, os.ModePerm); err != nil {
		return nil, err
	}

	debugFile, err := os.OpenFile(
		filepath.Join(debugDir, runID.String()+".log"),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	return &runLogs{
		runID:     runID,
		jsonPath:  filepath.Join(jsonDir, runID.String()+".json"),
		debugFile: debugFile,
	}, nil
}

// Write appends to the debug log. It implements io.Writer so zerolog can tee
// into the file.
func (l *runLogs) Write(p []byte) (int, error) {
	return l.debugFile.Write(p)
}

func (l *runLogs) Close() error {
	return l.debugFile.Close()
}

type failedRecordFile struct {
	RunID         uuid.UUID          `json:"run_id"`
	GeneratedAt   time.Time          `json:"generated_at"`
	FailedRecords []failedRecordJSON `json:"failed_records"`
}

type failedRecordJSON struct {
	ExternalMutationID int64  `json:"external_mutation_id"`
	RecordType         string `json:"record_type"`
	ErrorCategory      string `json:"error_category"`
	ErrorMessage       string `json:"error_message"`
	RawPayload         string `json:"raw_payload"`
}

// writeFailedRecords writes the JSON failure file for the run.
func (l *runLogs) writeFailedRecords(records []models.FailedRecord) error {
	file := failedRecordFile{
		RunID:         l.runID,
		GeneratedAt:   time.Now().In(time.UTC),
		FailedRecords: make([]failedRecordJSON, 0, len(records)),
	}

	for _, record := range records {
		file.FailedRecords = append(file.FailedRecords, failedRecordJSON{
			ExternalMutationID: record.ExternalMutationID,
			RecordType:         record.RecordKind,
			ErrorCategory:      string(record.ErrorCategory),
			ErrorMessage:       record.ErrorMessage,
			RawPayload:         record.RawPayload,
		})
	}

	payload, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(l.jsonPath, payload, 0o644); err != nil {
		return fmt.Errorf("could not write the failed record log: %w", err)
	}

	return nil
}
