// Package sync fetches the linked accounts and their transactions and
// produces a deduplicated snapshot with a stable identity per transaction.
package sync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/openbanklink/banklink/pkg/provider"
)

// descriptionPlaceholder fills in for providers that omit a description
// entirely.
const descriptionPlaceholder = "Unknown transaction"

// Transaction is one synchronized transaction. ExternalID is unique within
// a snapshot and is the sole deduplication key across re-syncs.
type Transaction struct {
	ExternalID   string  `json:"external_id"`
	AccountID    string  `json:"account_id"`
	Date         string  `json:"date"` // 10-char ISO date, no time component
	Amount       float64 `json:"amount"`
	Description  string  `json:"description"`
	Counterparty string  `json:"counterparty,omitempty"`
	Category     string  `json:"category,omitempty"`
}

// Snapshot is the result of one synchronization pass. It is computed fresh
// every time and never persisted here.
type Snapshot struct {
	Accounts     []provider.Account `json:"accounts"`
	Transactions []Transaction      `json:"transactions"`
}

// API is the slice of the provider client the engine needs.
type API interface {
	Accounts(ctx context.Context, accessToken string) ([]provider.Account, error)
	Transactions(ctx context.Context, accessToken, accountID string) ([]provider.Transaction, error)
}

// Reporter receives diagnostics for non-fatal failures. It observes the
// skip decision; it does not influence it.
type Reporter interface {
	AccountSkipped(accountID string, err error)
}

// LogReporter writes skip diagnostics to the standard logger.
type LogReporter struct{}

func (LogReporter) AccountSkipped(accountID string, err error) {
	log.Printf("skipping transactions for account %s: %v", accountID, err)
}

// Engine runs synchronization passes against a provider API.
type Engine struct {
	api      API
	reporter Reporter
	now      func() time.Time
}

// NewEngine creates an engine. A nil reporter falls back to LogReporter.
func NewEngine(api API, reporter Reporter) *Engine {
	if reporter == nil {
		reporter = LogReporter{}
	}
	return &Engine{api: api, reporter: reporter, now: time.Now}
}

// Sync fetches accounts and per-account transactions with the given access
// token. An accounts fetch failure is fatal; a single account's transaction
// fetch failure is reported and skipped so one broken account cannot block
// the rest. Transactions are deduplicated by ExternalID, first occurrence
// wins, in account order then transaction order.
func (e *Engine) Sync(ctx context.Context, accessToken string) (*Snapshot, error) {
	accounts, err := e.api.Accounts(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	transactions := make([]Transaction, 0)

	for _, account := range accounts {
		raw, err := e.api.Transactions(ctx, accessToken, account.AccountID)
		if err != nil {
			e.reporter.AccountSkipped(account.AccountID, err)
			continue
		}

		for _, record := range raw {
			mapped := e.mapTransaction(account, record)
			if _, dup := seen[mapped.ExternalID]; dup {
				continue
			}
			seen[mapped.ExternalID] = struct{}{}
			transactions = append(transactions, mapped)
		}
	}

	return &Snapshot{Accounts: accounts, Transactions: transactions}, nil
}

func (e *Engine) mapTransaction(account provider.Account, record provider.Transaction) Transaction {
	timestamp := record.Timestamp
	if timestamp == "" {
		timestamp = e.now().UTC().Format(time.RFC3339)
	}
	date := isoDate(timestamp)

	description := record.Description
	if description == "" {
		description = descriptionPlaceholder
	}

	return Transaction{
		ExternalID:   externalID(account, record, date),
		AccountID:    account.AccountID,
		Date:         date,
		Amount:       record.Amount,
		Description:  description,
		Counterparty: record.MerchantName,
		Category:     record.TransactionCategory,
	}
}

// externalID prefers the provider's own transaction identifier, then its
// normalized cross-provider identifier, and finally a content hash.
func externalID(account provider.Account, record provider.Transaction, date string) string {
	if record.TransactionID != "" {
		return record.TransactionID
	}
	if record.NormalisedProviderTxnID != "" {
		return record.NormalisedProviderTxnID
	}
	return fallbackID(account, record, date)
}

// fallbackID hashes a canonical tuple of the transaction's attributes. The
// normalization absorbs provider-side formatting jitter so an idempotent
// re-sync derives the same identity for the same logical transaction. Two
// genuinely distinct transactions that agree on every hashed attribute will
// collapse; that trade-off is deliberate.
func fallbackID(account provider.Account, record provider.Transaction, date string) string {
	tuple := strings.Join([]string{
		account.AccountID,
		record.Currency,
		date,
		strconv.FormatFloat(record.Amount, 'f', 2, 64),
		normalize(record.Description),
		normalize(record.MerchantName),
	}, "|")

	sum := sha256.Sum256([]byte(tuple))
	return hex.EncodeToString(sum[:])
}

// normalize lowercases, trims, and collapses internal whitespace runs to a
// single space.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// isoDate truncates a timestamp to its 10-character ISO date prefix.
func isoDate(timestamp string) string {
	if len(timestamp) > 10 {
		return timestamp[:10]
	}
	return timestamp
}
