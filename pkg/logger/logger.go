// Package logger records one JSON document per synchronization run, and
// doubles as the diagnostic reporter the sync engine emits skip events to.
package logger

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RunLog is the persisted record of one synchronization run.
type RunLog struct {
	RunID           string     `json:"run_id"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	Accounts        int        `json:"accounts"`
	Transactions    int        `json:"transactions"`
	SkippedAccounts []string   `json:"skipped_accounts,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// RunLogger writes run logs to a directory, one file per run.
type RunLogger struct {
	logDir string

	mu      sync.Mutex
	current *RunLog
}

// NewRunLogger creates a logger writing under logDir, falling back to the
// LOG_DIR environment variable and then ./logs.
func NewRunLogger(logDir string) *RunLogger {
	if logDir == "" {
		logDir = os.Getenv("LOG_DIR")
	}
	if logDir == "" {
		logDir = "./logs"
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Printf("Failed to create log directory %s: %v", logDir, err)
	}

	return &RunLogger{logDir: logDir}
}

// StartRun opens a run record. Skip events reported before FinishRun attach
// to it.
func (l *RunLogger) StartRun(runID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.current = &RunLog{
		RunID:     runID,
		StartedAt: time.Now(),
	}
	if err := l.write(l.current); err != nil {
		log.Printf("Failed to write run log: %v", err)
	}
}

// AccountSkipped implements sync.Reporter. The event is logged immediately
// and folded into the current run record when one is open.
func (l *RunLogger) AccountSkipped(accountID string, err error) {
	log.Printf("skipping transactions for account %s: %v", accountID, err)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current != nil {
		l.current.SkippedAccounts = append(l.current.SkippedAccounts, accountID)
	}
}

// FinishRun closes the current run record with its counters and optional
// error, and writes it out.
func (l *RunLogger) FinishRun(accounts, transactions int, runErr error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current == nil {
		return
	}

	now := time.Now()
	l.current.FinishedAt = &now
	l.current.Accounts = accounts
	l.current.Transactions = transactions
	if runErr != nil {
		l.current.Error = runErr.Error()
	}

	if err := l.write(l.current); err != nil {
		log.Printf("Failed to write run log: %v", err)
	}
	l.current = nil
}

func (l *RunLogger) write(runLog *RunLog) error {
	filePath := filepath.Join(l.logDir, fmt.Sprintf("%s.json", runLog.RunID))

	data, err := json.MarshalIndent(runLog, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run log: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write run log to %s: %w", filePath, err)
	}

	return nil
}
