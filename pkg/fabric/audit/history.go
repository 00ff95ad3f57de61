package audit

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/ledgermart/ledgermart/pkg/errors"
	"github.com/ledgermart/ledgermart/pkg/fabric/contract"
	"github.com/ledgermart/ledgermart/pkg/logger"
)

const historyFunction = "GetOrderHistory"

// Record is one entry of an asset's ledger history. Records arrive in
// ledger commit order and are kept that way: the peer's chain order is
// authoritative even when node clocks are skewed.
type Record struct {
	TxID      string          `json:"txId"`
	Timestamp time.Time       `json:"timestamp"`
	IsDelete  bool            `json:"isDelete"`
	Value     json.RawMessage `json:"value,omitempty"`
}

// History is the full write/delete history of one asset key, oldest
// first. It serves audit and dispute resolution; live status decisions
// must query current state instead.
type History struct {
	key     string
	records []Record
}

// Query retrieves asset histories through a ledger read.
type Query struct {
	invoker contract.Invoker
	logger  *logger.Logger
}

func NewQuery(invoker contract.Invoker, logger *logger.Logger) *Query {
	return &Query{invoker: invoker, logger: logger}
}

// GetHistory evaluates the history of assetKey on the session's peer.
func (q *Query) GetHistory(ctx context.Context, assetKey string) (*History, error) {
	if assetKey == "" {
		return nil, apperrors.NewValidationError("asset key is required", nil)
	}

	payload, err := q.invoker.Evaluate(ctx, historyFunction, assetKey)
	if err != nil {
		return nil, err
	}

	var records []Record
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, apperrors.NewInternalError("failed to decode history records", err, map[string]interface{}{
			"assetKey": assetKey,
		})
	}
	for i, record := range records {
		if record.IsDelete && len(record.Value) > 0 {
			// A delete carries no snapshot; drop anything the peer echoed.
			records[i].Value = nil
		}
	}

	q.logger.Debug("fetched asset history", "assetKey", assetKey, "records", len(records))
	return &History{key: assetKey, records: records}, nil
}

// Key returns the asset key this history belongs to.
func (h *History) Key() string {
	return h.key
}

// Records returns all records oldest first.
func (h *History) Records() []Record {
	return h.records
}

// Latest returns the newest non-delete record, or nil when the asset has
// no surviving value.
func (h *History) Latest() *Record {
	for i := len(h.records) - 1; i >= 0; i-- {
		if !h.records[i].IsDelete {
			return &h.records[i]
		}
	}
	return nil
}

// Iterator returns a restartable cursor over the history, oldest first.
func (h *History) Iterator() *Iterator {
	return &Iterator{records: h.records}
}

// Iterator walks history records one at a time.
type Iterator struct {
	records []Record
	next    int
}

// Next returns the next record, or false when the sequence is exhausted.
func (it *Iterator) Next() (*Record, bool) {
	if it.next >= len(it.records) {
		return nil, false
	}
	record := &it.records[it.next]
	it.next++
	return record, true
}

// Reset rewinds the iterator to the oldest record.
func (it *Iterator) Reset() {
	it.next = 0
}
