package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ledgermart/ledgermart/pkg/errors"
	"github.com/ledgermart/ledgermart/pkg/fabric/contract"
	"github.com/ledgermart/ledgermart/pkg/logger"
)

// fakeLedger simulates the order contract: submits mutate an in-memory
// asset map and evaluates read it back, with per-key fault injection.
type fakeLedger struct {
	assets      map[string]*ledgerOrder
	failSubmit  map[string]error
	submitCalls []string
	txSeq       int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		assets:     make(map[string]*ledgerOrder),
		failSubmit: make(map[string]error),
	}
}

func (f *fakeLedger) Submit(ctx context.Context, fn string, args ...string) (*contract.TxResult, error) {
	key := args[0]
	f.submitCalls = append(f.submitCalls, fn+":"+key)
	if err, ok := f.failSubmit[key]; ok {
		return nil, err
	}
	switch fn {
	case fnCreateOrder:
		f.assets[key] = &ledgerOrder{
			ID:            key,
			SellerOrg:     args[1],
			Status:        StatusCreated,
			PaymentMethod: args[2],
		}
	case fnConfirmPayment:
		f.assets[key].Status = StatusPaid
	case fnCancelOrder:
		f.assets[key].Status = StatusCancelled
	case fnUpdateCODStatus:
		f.assets[key].CODStatus = args[1]
	default:
		return nil, fmt.Errorf("unknown function %s", fn)
	}
	f.txSeq++
	return &contract.TxResult{TxID: fmt.Sprintf("tx-%d", f.txSeq)}, nil
}

func (f *fakeLedger) Evaluate(ctx context.Context, fn string, args ...string) ([]byte, error) {
	if fn != fnReadOrder {
		return nil, fmt.Errorf("unknown function %s", fn)
	}
	asset, ok := f.assets[args[0]]
	if !ok {
		return nil, apperrors.NewNotFoundError("asset not found", map[string]interface{}{"assetKey": args[0]})
	}
	return json.Marshal(asset)
}

func (f *fakeLedger) submitCount(fn, key string) int {
	count := 0
	for _, call := range f.submitCalls {
		if call == fn+":"+key {
			count++
		}
	}
	return count
}

// memoryStore is an in-memory Store for tests.
type memoryStore struct {
	orders map[string]bool
	subs   map[string]*SubOrder
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		orders: make(map[string]bool),
		subs:   make(map[string]*SubOrder),
	}
}

func (m *memoryStore) SaveOrder(ctx context.Context, orderID string, method PaymentMethod, isSplit bool) error {
	m.orders[orderID] = isSplit
	return nil
}

func (m *memoryStore) SaveSubOrder(ctx context.Context, sub *SubOrder) error {
	copied := *sub
	m.subs[sub.AssetKey] = &copied
	return nil
}

func (m *memoryStore) GetSubOrder(ctx context.Context, assetKey string) (*SubOrder, error) {
	sub, ok := m.subs[assetKey]
	if !ok {
		return nil, apperrors.NewNotFoundError("sub-order not found", nil)
	}
	return sub, nil
}

func (m *memoryStore) ListSubOrders(ctx context.Context, orderID string) ([]*SubOrder, error) {
	var subs []*SubOrder
	for _, sub := range m.subs {
		if sub.OrderID == orderID {
			subs = append(subs, sub)
		}
	}
	// Keep deterministic order by seq.
	for i := 0; i < len(subs); i++ {
		for j := i + 1; j < len(subs); j++ {
			if subs[j].Seq < subs[i].Seq {
				subs[i], subs[j] = subs[j], subs[i]
			}
		}
	}
	return subs, nil
}

func (m *memoryStore) UpdateProjection(ctx context.Context, assetKey string, status Status, codStatus string, blockchainData []byte) error {
	sub, ok := m.subs[assetKey]
	if !ok {
		return nil
	}
	sub.Status = status
	sub.CODStatus = codStatus
	sub.BlockchainData = blockchainData
	return nil
}

func newTestService(t *testing.T) (*OrderService, *fakeLedger, *memoryStore) {
	t.Helper()
	ledger := newFakeLedger()
	store := newMemoryStore()
	return NewOrderService(ledger, store, logger.NewDefault()), ledger, store
}

func TestSplitOrderAllCommitted(t *testing.T) {
	svc, ledger, store := newTestService(t)

	result, err := svc.SplitOrder(context.Background(), Order{
		ID:            "order_123",
		PaymentMethod: PaymentPrepaid,
		Allocations: []SellerAllocation{
			{SellerOrg: "SellerOneOrgMSP", Amount: "120.00"},
			{SellerOrg: "SellerTwoOrgMSP", Amount: "35.50"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"order_123_1", "order_123_2"}, result.Committed)
	assert.Empty(t, result.Failed)
	assert.False(t, result.Partial())

	assert.Equal(t, StatusCreated, ledger.assets["order_123_1"].Status)
	sub, err := store.GetSubOrder(context.Background(), "order_123_2")
	require.NoError(t, err)
	assert.Equal(t, "SellerTwoOrgMSP", sub.SellerOrg)
	assert.Equal(t, 2, sub.Seq)
}

func TestSplitOrderPartialFailureIsItemized(t *testing.T) {
	svc, ledger, _ := newTestService(t)
	ledger.failSubmit["order_123_2"] = apperrors.NewOrderingError("failed to submit transaction to ordering service", nil, nil)

	result, err := svc.SplitOrder(context.Background(), Order{
		ID:            "order_123",
		PaymentMethod: PaymentPrepaid,
		Allocations: []SellerAllocation{
			{SellerOrg: "SellerOneOrgMSP"},
			{SellerOrg: "SellerTwoOrgMSP"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"order_123_1"}, result.Committed)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "order_123_2", result.Failed[0].AssetKey)
	assert.NotEmpty(t, result.Failed[0].Reason)
	assert.True(t, result.Partial())
}

func TestSplitOrderValidation(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.SplitOrder(context.Background(), Order{PaymentMethod: PaymentPrepaid})
	assert.True(t, apperrors.IsType(err, apperrors.ValidationError))

	_, err = svc.SplitOrder(context.Background(), Order{ID: "order_1", PaymentMethod: "BARTER"})
	assert.True(t, apperrors.IsType(err, apperrors.ValidationError))

	_, err = svc.SplitOrder(context.Background(), Order{ID: "order_1", PaymentMethod: PaymentCOD})
	assert.True(t, apperrors.IsType(err, apperrors.ValidationError))
}

func setupCreatedSubOrder(t *testing.T, svc *OrderService, method PaymentMethod) {
	t.Helper()
	_, err := svc.SplitOrder(context.Background(), Order{
		ID:            "order_123",
		PaymentMethod: method,
		Allocations:   []SellerAllocation{{SellerOrg: "SellerOneOrgMSP"}},
	})
	require.NoError(t, err)
}

func TestConfirmPaymentTransitionsToPaid(t *testing.T) {
	svc, ledger, _ := newTestService(t)
	setupCreatedSubOrder(t, svc, PaymentPrepaid)

	result, err := svc.ConfirmPayment(context.Background(), "order_123_1")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, result.Status)
	assert.NotEmpty(t, result.TxID)
	assert.False(t, result.AlreadyFinal)
	assert.Equal(t, StatusPaid, ledger.assets["order_123_1"].Status)
}

func TestConfirmPaymentIsIdempotentNoOp(t *testing.T) {
	svc, ledger, _ := newTestService(t)
	setupCreatedSubOrder(t, svc, PaymentPrepaid)

	first, err := svc.ConfirmPayment(context.Background(), "order_123_1")
	require.NoError(t, err)
	require.NotEmpty(t, first.TxID)

	second, err := svc.ConfirmPayment(context.Background(), "order_123_1")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, second.Status)
	assert.Empty(t, second.TxID)
	assert.True(t, second.AlreadyFinal)
	// Exactly one ledger write, the guard never re-submits.
	assert.Equal(t, 1, ledger.submitCount(fnConfirmPayment, "order_123_1"))
}

func TestConfirmPaymentAfterCancelReportsCancelled(t *testing.T) {
	svc, ledger, _ := newTestService(t)
	setupCreatedSubOrder(t, svc, PaymentPrepaid)

	_, err := svc.CancelOrder(context.Background(), "order_123_1")
	require.NoError(t, err)

	result, err := svc.ConfirmPayment(context.Background(), "order_123_1")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, result.Status)
	assert.True(t, result.AlreadyFinal)
	assert.Equal(t, 0, ledger.submitCount(fnConfirmPayment, "order_123_1"))
}

func TestConfirmPaymentUnknownAsset(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ConfirmPayment(context.Background(), "order_999_1")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.NotFoundError))
}

func TestSetCODStatusKeepsPrimaryStatus(t *testing.T) {
	svc, ledger, _ := newTestService(t)
	setupCreatedSubOrder(t, svc, PaymentCOD)

	status, err := svc.SetCODStatus(context.Background(), "order_123_1", "COLLECTED")
	require.NoError(t, err)
	assert.Equal(t, "COLLECTED", status.CODStatus)
	assert.Equal(t, StatusCreated, status.Status)
	assert.Equal(t, StatusCreated, ledger.assets["order_123_1"].Status)
}

func TestSetCODStatusRejectsPrepaid(t *testing.T) {
	svc, _, _ := newTestService(t)
	setupCreatedSubOrder(t, svc, PaymentPrepaid)

	_, err := svc.SetCODStatus(context.Background(), "order_123_1", "COLLECTED")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ConflictError))
}

func TestOrderStatusMergesLedgerState(t *testing.T) {
	svc, ledger, store := newTestService(t)
	_, err := svc.SplitOrder(context.Background(), Order{
		ID:            "order_123",
		PaymentMethod: PaymentPrepaid,
		Allocations: []SellerAllocation{
			{SellerOrg: "SellerOneOrgMSP"},
			{SellerOrg: "SellerTwoOrgMSP"},
		},
	})
	require.NoError(t, err)

	// The ledger moves ahead of the projection (another client confirmed).
	ledger.assets["order_123_2"].Status = StatusPaid

	status, err := svc.OrderStatus(context.Background(), "order_123")
	require.NoError(t, err)
	assert.True(t, status.IsSplit)
	require.Len(t, status.Orders, 2)
	assert.Equal(t, StatusCreated, status.Orders[0].Status)
	assert.Equal(t, StatusPaid, status.Orders[1].Status)

	// The drifted projection is refreshed lazily.
	sub, err := store.GetSubOrder(context.Background(), "order_123_2")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, sub.Status)
}

func TestOrderStatusServesCachedProjectionAsStale(t *testing.T) {
	svc, ledger, _ := newTestService(t)
	setupCreatedSubOrder(t, svc, PaymentPrepaid)

	// Wipe the ledger view to simulate an unreachable/partitioned peer.
	delete(ledger.assets, "order_123_1")

	status, err := svc.OrderStatus(context.Background(), "order_123")
	require.NoError(t, err)
	require.Len(t, status.Orders, 1)
	assert.True(t, status.Orders[0].Stale)
	assert.Equal(t, StatusCreated, status.Orders[0].Status)
}

func TestOrderStatusUnknownOrder(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.OrderStatus(context.Background(), "order_missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.NotFoundError))
}
