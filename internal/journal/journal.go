// Package journal sqlite 审计日志：记录信号、订单结算和分片结果，只写不读回核心逻辑
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/betbot/lagbot/internal/domain"
	"github.com/betbot/lagbot/internal/ports"
)

// Journal 实现 ports.Recorder
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

var _ ports.Recorder = (*Journal)(nil)

// Open 打开（必要时创建）数据库并建表
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定

	j := &Journal{db: db, now: time.Now}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS signals (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  market TEXT NOT NULL,
  source TEXT NOT NULL,
  cycle INTEGER NOT NULL,
  history_index INTEGER NOT NULL,
  cur_last TEXT NOT NULL,
  cur_bid TEXT NOT NULL,
  cur_ask TEXT NOT NULL,
  past_last TEXT NOT NULL,
  past_bid TEXT NOT NULL,
  past_ask TEXT NOT NULL,
  detected_at TEXT NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS settlements (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  chunk_id TEXT NOT NULL,
  order_id TEXT NOT NULL,
  market TEXT NOT NULL,
  side TEXT NOT NULL,
  quantity TEXT NOT NULL,
  filled TEXT NOT NULL,
  remaining TEXT NOT NULL,
  price_per_unit TEXT NOT NULL,
  polls INTEGER NOT NULL,
  deadline_exceeded INTEGER NOT NULL,
  cancelled INTEGER NOT NULL,
  cancel_failed INTEGER NOT NULL,
  ts TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_settlements_chunk ON settlements(chunk_id);`,
		`
CREATE TABLE IF NOT EXISTS outcomes (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  chunk_id TEXT NOT NULL,
  market TEXT NOT NULL,
  status TEXT NOT NULL,
  bought TEXT NOT NULL,
  sold TEXT NOT NULL,
  residual TEXT NOT NULL,
  buy_rate TEXT NOT NULL,
  attempts INTEGER NOT NULL,
  error TEXT,
  ts TEXT NOT NULL
);`,
	}
	for _, s := range stmts {
		if _, err := j.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (j *Journal) RecordSignal(ctx context.Context, sig domain.Signal) error {
	detected := sig.DetectedAt
	if detected.IsZero() {
		detected = j.now()
	}
	_, err := j.db.ExecContext(ctx, `
INSERT INTO signals (market, source, cycle, history_index, cur_last, cur_bid, cur_ask, past_last, past_bid, past_ask, detected_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)
`, sig.MarketName, sig.Source, sig.Cycle, sig.HistoryIndex,
		sig.Current.Last.String(), sig.Current.Bid.String(), sig.Current.Ask.String(),
		sig.Past.Last.String(), sig.Past.Bid.String(), sig.Past.Ask.String(),
		detected.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

func (j *Journal) RecordSettlement(ctx context.Context, chunkID string, s domain.SettledOrder) error {
	_, err := j.db.ExecContext(ctx, `
INSERT INTO settlements (chunk_id, order_id, market, side, quantity, filled, remaining, price_per_unit, polls, deadline_exceeded, cancelled, cancel_failed, ts)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
`, chunkID, s.OrderID, s.Market, string(s.Side),
		s.Quantity.String(), s.Filled.String(), s.Remaining.String(), s.PricePerUnit.String(),
		s.Polls, boolInt(s.DeadlineExceeded), boolInt(s.Cancelled), boolInt(s.CancelFailed),
		j.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert settlement: %w", err)
	}
	return nil
}

func (j *Journal) RecordOutcome(ctx context.Context, o domain.ChunkOutcome) error {
	var errText sql.NullString
	if o.Err != nil {
		errText = sql.NullString{String: o.Err.Error(), Valid: true}
	}
	_, err := j.db.ExecContext(ctx, `
INSERT INTO outcomes (chunk_id, market, status, bought, sold, residual, buy_rate, attempts, error, ts)
VALUES (?,?,?,?,?,?,?,?,?,?)
`, o.ChunkID, o.Market, string(o.Status),
		o.Bought.String(), o.Sold.String(), o.Residual.String(), o.BuyRate.String(),
		o.Attempts, errText, j.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}
