package journal

import (
	"context"
	"database/sql"
	"time"
)

// SignalRow signals 表的一行（价格保留原始十进制字符串）
type SignalRow struct {
	ID           int64     `json:"id"`
	Market       string    `json:"market"`
	Source       string    `json:"source"`
	Cycle        int64     `json:"cycle"`
	HistoryIndex int       `json:"history_index"`
	CurLast      string    `json:"cur_last"`
	CurBid       string    `json:"cur_bid"`
	CurAsk       string    `json:"cur_ask"`
	PastLast     string    `json:"past_last"`
	PastBid      string    `json:"past_bid"`
	PastAsk      string    `json:"past_ask"`
	DetectedAt   time.Time `json:"detected_at"`
}

type SettlementRow struct {
	ID               int64     `json:"id"`
	ChunkID          string    `json:"chunk_id"`
	OrderID          string    `json:"order_id"`
	Market           string    `json:"market"`
	Side             string    `json:"side"`
	Quantity         string    `json:"quantity"`
	Filled           string    `json:"filled"`
	Remaining        string    `json:"remaining"`
	PricePerUnit     string    `json:"price_per_unit"`
	Polls            int       `json:"polls"`
	DeadlineExceeded bool      `json:"deadline_exceeded"`
	Cancelled        bool      `json:"cancelled"`
	CancelFailed     bool      `json:"cancel_failed"`
	TS               time.Time `json:"ts"`
}

type OutcomeRow struct {
	ID       int64     `json:"id"`
	ChunkID  string    `json:"chunk_id"`
	Market   string    `json:"market"`
	Status   string    `json:"status"`
	Bought   string    `json:"bought"`
	Sold     string    `json:"sold"`
	Residual string    `json:"residual"`
	BuyRate  string    `json:"buy_rate"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error,omitempty"`
	TS       time.Time `json:"ts"`
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 2000 {
		return 200
	}
	return limit
}

func parseTS(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// ListSignals 最近的信号，新的在前
func (j *Journal) ListSignals(ctx context.Context, limit int) ([]SignalRow, error) {
	rows, err := j.db.QueryContext(ctx, `
SELECT id, market, source, cycle, history_index, cur_last, cur_bid, cur_ask, past_last, past_bid, past_ask, detected_at
FROM signals
ORDER BY id DESC
LIMIT ?
`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SignalRow
	for rows.Next() {
		var (
			r  SignalRow
			ts string
		)
		if err := rows.Scan(&r.ID, &r.Market, &r.Source, &r.Cycle, &r.HistoryIndex,
			&r.CurLast, &r.CurBid, &r.CurAsk, &r.PastLast, &r.PastBid, &r.PastAsk, &ts); err != nil {
			return nil, err
		}
		r.DetectedAt = parseTS(ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListSettlements 某个分片的全部结算（chunkID 为空则返回最近的结算），按写入顺序
func (j *Journal) ListSettlements(ctx context.Context, chunkID string, limit int) ([]SettlementRow, error) {
	query := `
SELECT id, chunk_id, order_id, market, side, quantity, filled, remaining, price_per_unit, polls, deadline_exceeded, cancelled, cancel_failed, ts
FROM settlements
WHERE (?1 = '' OR chunk_id = ?1)
ORDER BY id ASC
LIMIT ?2
`
	rows, err := j.db.QueryContext(ctx, query, chunkID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SettlementRow
	for rows.Next() {
		var (
			r                        SettlementRow
			deadline, cancelled, cfl int
			ts                       string
		)
		if err := rows.Scan(&r.ID, &r.ChunkID, &r.OrderID, &r.Market, &r.Side,
			&r.Quantity, &r.Filled, &r.Remaining, &r.PricePerUnit, &r.Polls,
			&deadline, &cancelled, &cfl, &ts); err != nil {
			return nil, err
		}
		r.DeadlineExceeded = deadline == 1
		r.Cancelled = cancelled == 1
		r.CancelFailed = cfl == 1
		r.TS = parseTS(ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListOutcomes 最近的分片结果，新的在前
func (j *Journal) ListOutcomes(ctx context.Context, limit int) ([]OutcomeRow, error) {
	rows, err := j.db.QueryContext(ctx, `
SELECT id, chunk_id, market, status, bought, sold, residual, buy_rate, attempts, error, ts
FROM outcomes
ORDER BY id DESC
LIMIT ?
`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OutcomeRow
	for rows.Next() {
		var (
			r      OutcomeRow
			errMsg sql.NullString
			ts     string
		)
		if err := rows.Scan(&r.ID, &r.ChunkID, &r.Market, &r.Status, &r.Bought, &r.Sold,
			&r.Residual, &r.BuyRate, &r.Attempts, &errMsg, &ts); err != nil {
			return nil, err
		}
		r.Error = errMsg.String
		r.TS = parseTS(ts)
		out = append(out, r)
	}
	return out, rows.Err()
}
