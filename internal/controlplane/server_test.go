package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/lagbot/internal/detector"
	"github.com/betbot/lagbot/internal/domain"
	"github.com/betbot/lagbot/internal/journal"
)

type fixedStats detector.Stats

func (f fixedStats) Stats() detector.Stats { return detector.Stats(f) }

func newServer(t *testing.T, store Store) *Server {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	return New(store, logrus.NewEntry(logger))
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestServer_HealthAndStatus(t *testing.T) {
	s := newServer(t, nil)
	s.AddDetector(fixedStats{Name: "poll", Cycles: 12, HistoryLen: 7, Pending: map[string]int{"BTC-LTC": 3}})
	s.SetPhase("detecting")
	h := s.Router()

	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)

	w := get(t, h, "/api/status")
	require.Equal(t, http.StatusOK, w.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "detecting", resp.Phase)
	assert.False(t, resp.Journal)
	require.Len(t, resp.Detectors, 1)
	assert.Equal(t, int64(12), resp.Detectors[0].Cycles)
	assert.Equal(t, 3, resp.Detectors[0].Pending["BTC-LTC"])
}

func TestServer_JournalDisabled(t *testing.T) {
	h := newServer(t, nil).Router()
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/api/signals").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/api/outcomes").Code)
}

func TestServer_JournalQueries(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "lagbot.db"))
	require.NoError(t, err)
	defer j.Close()
	ctx := context.Background()

	one := decimal.NewFromInt(1)
	for i := 0; i < 3; i++ {
		require.NoError(t, j.RecordSignal(ctx, domain.Signal{
			MarketName: fmt.Sprintf("BTC-C%d", i),
			Current:    domain.Quote{Last: one, Bid: one, Ask: one},
			Past:       domain.Quote{Last: one, Bid: one, Ask: one},
			DetectedAt: time.Date(2026, 10, 19, 16, 0, i, 0, time.UTC),
			Source:     "poll",
		}))
	}
	require.NoError(t, j.RecordSettlement(ctx, "chunk-1", domain.SettledOrder{OrderID: "o-1", Side: domain.SideBuy}))
	require.NoError(t, j.RecordOutcome(ctx, domain.ChunkOutcome{ChunkID: "chunk-1", Status: domain.OutcomeSold}))

	h := newServer(t, j).Router()

	w := get(t, h, "/api/signals?limit=2")
	require.Equal(t, http.StatusOK, w.Code)
	var signals []journal.SignalRow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &signals))
	require.Len(t, signals, 2)
	assert.Equal(t, "BTC-C2", signals[0].Market)

	w = get(t, h, "/api/outcomes")
	require.Equal(t, http.StatusOK, w.Code)
	var outcomes []journal.OutcomeRow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &outcomes))
	require.Len(t, outcomes, 1)
	assert.Equal(t, "sold", outcomes[0].Status)

	w = get(t, h, "/api/chunks/chunk-1/settlements")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"order_id":"o-1"`)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/chunks/missing/settlements").Code)
}

type brokenStore struct{}

func (brokenStore) ListSignals(context.Context, int) ([]journal.SignalRow, error) {
	return nil, errors.New("disk I/O error")
}
func (brokenStore) ListOutcomes(context.Context, int) ([]journal.OutcomeRow, error) {
	return nil, nil
}
func (brokenStore) ListSettlements(context.Context, string, int) ([]journal.SettlementRow, error) {
	return nil, nil
}

func TestServer_StoreErrorsAndEmptyLists(t *testing.T) {
	h := newServer(t, brokenStore{}).Router()

	w := get(t, h, "/api/signals")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "disk I/O error")

	w = get(t, h, "/api/outcomes")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestServer_StartAsync(t *testing.T) {
	s := newServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, err := s.StartAsync(ctx, "127.0.0.1:0")
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
