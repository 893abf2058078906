package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"
	"github.com/google/uuid"
)

// Storage wraps the vusdd persistence layer: raw oracle samples, aggregated
// snapshots, conversion receipts and the governance audit trail. The engine's
// own state lives in the key-value store; everything here is operational
// history that survives restarts but is never read back into conversions.
type Storage struct {
	db *sql.DB
}

var (
	// ErrPathRequired is returned when the backing store path is missing.
	ErrPathRequired = errors.New("vusdd storage path must be configured")
	// ErrReceiptNotFound is returned when a receipt lookup misses.
	ErrReceiptNotFound = errors.New("vusdd receipt not found")
)

// Open initialises the backing store using a sqlite-compatible DSN.
func Open(path string) (*Storage, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases database resources.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordSample persists a raw price observation from a single source.
func (s *Storage) RecordSample(ctx context.Context, feed, source, price string, observedAt, recorded time.Time) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	if strings.TrimSpace(price) == "" {
		return fmt.Errorf("sample missing price")
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO oracle_samples(feed, source, price, observed_at, recorded_at)
        VALUES(?, ?, ?, ?, ?)
    `, feedKey(feed), strings.ToLower(strings.TrimSpace(source)), strings.TrimSpace(price), observedAt.UTC().Unix(), recorded.UTC())
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// RecordSnapshot stores the aggregated median for a feed.
func (s *Storage) RecordSnapshot(ctx context.Context, feed, median string, sources []string, observedAt time.Time) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO oracle_snapshots(feed, median_price, sources, observed_at, recorded_at)
        VALUES(?, ?, ?, ?, ?)
    `, feedKey(feed), strings.TrimSpace(median), strings.Join(sources, ","), observedAt.UTC().Unix(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// Snapshot captures the latest oracle aggregate for a feed.
type Snapshot struct {
	MedianPrice    string
	Sources        []string
	ObservedAtUnix int64
	RecordedAt     time.Time
}

// LatestSnapshot returns the most recent aggregated median for the feed.
func (s *Storage) LatestSnapshot(ctx context.Context, feed string) (Snapshot, error) {
	result := Snapshot{}
	if s == nil {
		return result, fmt.Errorf("storage not configured")
	}
	row := s.db.QueryRowContext(ctx, `
        SELECT median_price, sources, observed_at, recorded_at
        FROM oracle_snapshots
        WHERE feed = ?
        ORDER BY id DESC
        LIMIT 1
    `, feedKey(feed))
	var sources string
	if err := row.Scan(&result.MedianPrice, &sources, &result.ObservedAtUnix, &result.RecordedAt); err != nil {
		if err == sql.ErrNoRows {
			return result, fmt.Errorf("snapshot not found")
		}
		return result, fmt.Errorf("query snapshot: %w", err)
	}
	if sources != "" {
		result.Sources = strings.Split(sources, ",")
	}
	return result, nil
}

// Receipt records one completed conversion for support and reconciliation.
type Receipt struct {
	ID        string
	Operation string
	Asset     string
	Caller    string
	Receiver  string
	AmountIn  string
	AmountOut string
	Price     string
	FeeBps    uint64
	CreatedAt time.Time
}

// RecordReceipt persists a conversion receipt and returns its identifier.
func (s *Storage) RecordReceipt(ctx context.Context, receipt Receipt) (string, error) {
	if s == nil {
		return "", fmt.Errorf("storage not configured")
	}
	op := strings.ToLower(strings.TrimSpace(receipt.Operation))
	if op != "mint" && op != "redeem" {
		return "", fmt.Errorf("invalid receipt operation %q", receipt.Operation)
	}
	id := strings.TrimSpace(receipt.ID)
	if id == "" {
		id = uuid.NewString()
	}
	created := receipt.CreatedAt.UTC()
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO conversion_receipts(id, operation, asset, caller, receiver, amount_in, amount_out, price, fee_bps, created_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, id, op, strings.ToUpper(strings.TrimSpace(receipt.Asset)), strings.ToLower(strings.TrimSpace(receipt.Caller)),
		strings.ToLower(strings.TrimSpace(receipt.Receiver)), receipt.AmountIn, receipt.AmountOut, receipt.Price, receipt.FeeBps, created)
	if err != nil {
		return "", fmt.Errorf("insert receipt: %w", err)
	}
	return id, nil
}

// GetReceipt loads a receipt by identifier.
func (s *Storage) GetReceipt(ctx context.Context, id string) (Receipt, error) {
	receipt := Receipt{}
	if s == nil {
		return receipt, fmt.Errorf("storage not configured")
	}
	row := s.db.QueryRowContext(ctx, `
        SELECT id, operation, asset, caller, receiver, amount_in, amount_out, price, fee_bps, created_at
        FROM conversion_receipts
        WHERE id = ?
    `, strings.TrimSpace(id))
	if err := row.Scan(&receipt.ID, &receipt.Operation, &receipt.Asset, &receipt.Caller, &receipt.Receiver,
		&receipt.AmountIn, &receipt.AmountOut, &receipt.Price, &receipt.FeeBps, &receipt.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return receipt, ErrReceiptNotFound
		}
		return receipt, fmt.Errorf("query receipt: %w", err)
	}
	return receipt, nil
}

// RecentReceipts returns the newest receipts up to limit, newest first.
func (s *Storage) RecentReceipts(ctx context.Context, limit int) ([]Receipt, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, operation, asset, caller, receiver, amount_in, amount_out, price, fee_bps, created_at
        FROM conversion_receipts
        ORDER BY created_at DESC, id DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}
	defer rows.Close()
	receipts := make([]Receipt, 0, limit)
	for rows.Next() {
		var receipt Receipt
		if err := rows.Scan(&receipt.ID, &receipt.Operation, &receipt.Asset, &receipt.Caller, &receipt.Receiver,
			&receipt.AmountIn, &receipt.AmountOut, &receipt.Price, &receipt.FeeBps, &receipt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		receipts = append(receipts, receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receipts: %w", err)
	}
	return receipts, nil
}

// GovernanceAction records one applied governance mutation.
type GovernanceAction struct {
	Actor     string
	Action    string
	Target    string
	Previous  string
	Updated   string
	AppliedAt time.Time
}

// RecordGovernanceAction appends to the governance audit trail.
func (s *Storage) RecordGovernanceAction(ctx context.Context, action GovernanceAction) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	if strings.TrimSpace(action.Action) == "" {
		return fmt.Errorf("governance action required")
	}
	applied := action.AppliedAt.UTC()
	if applied.IsZero() {
		applied = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO governance_audit(actor, action, target, previous, updated, applied_at)
        VALUES(?, ?, ?, ?, ?, ?)
    `, strings.ToLower(strings.TrimSpace(action.Actor)), strings.TrimSpace(action.Action),
		strings.TrimSpace(action.Target), action.Previous, action.Updated, applied)
	if err != nil {
		return fmt.Errorf("insert governance action: %w", err)
	}
	return nil
}

// GovernanceTrail returns the newest audit entries up to limit, newest first.
func (s *Storage) GovernanceTrail(ctx context.Context, limit int) ([]GovernanceAction, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT actor, action, target, previous, updated, applied_at
        FROM governance_audit
        ORDER BY id DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query governance audit: %w", err)
	}
	defer rows.Close()
	actions := make([]GovernanceAction, 0, limit)
	for rows.Next() {
		var action GovernanceAction
		if err := rows.Scan(&action.Actor, &action.Action, &action.Target, &action.Previous, &action.Updated, &action.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan governance action: %w", err)
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate governance audit: %w", err)
	}
	return actions, nil
}

// PruneSamples removes raw samples observed before the cutoff. Snapshots and
// receipts are kept indefinitely.
func (s *Storage) PruneSamples(ctx context.Context, cutoff time.Time) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	if _, err := s.db.ExecContext(ctx, `
        DELETE FROM oracle_samples
        WHERE observed_at < ?
    `, cutoff.UTC().Unix()); err != nil {
		return fmt.Errorf("prune samples: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS oracle_samples (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    feed TEXT NOT NULL,
    source TEXT NOT NULL,
    price TEXT NOT NULL,
    observed_at INTEGER NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_oracle_samples_feed_ts ON oracle_samples(feed, observed_at);

CREATE TABLE IF NOT EXISTS oracle_snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    feed TEXT NOT NULL,
    median_price TEXT NOT NULL,
    sources TEXT NOT NULL,
    observed_at INTEGER NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_oracle_snapshots_feed_ts ON oracle_snapshots(feed, observed_at);

CREATE TABLE IF NOT EXISTS conversion_receipts (
    id TEXT PRIMARY KEY,
    operation TEXT NOT NULL,
    asset TEXT NOT NULL,
    caller TEXT NOT NULL,
    receiver TEXT NOT NULL,
    amount_in TEXT NOT NULL,
    amount_out TEXT NOT NULL,
    price TEXT NOT NULL,
    fee_bps INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversion_receipts_created ON conversion_receipts(created_at);

CREATE TABLE IF NOT EXISTS governance_audit (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    actor TEXT NOT NULL,
    action TEXT NOT NULL,
    target TEXT NOT NULL,
    previous TEXT NOT NULL,
    updated TEXT NOT NULL,
    applied_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_governance_audit_applied ON governance_audit(applied_at);
`

func feedKey(feed string) string {
	return strings.ToLower(strings.TrimSpace(feed))
}
