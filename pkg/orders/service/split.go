package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	apperrors "github.com/ledgermart/ledgermart/pkg/errors"
	"github.com/ledgermart/ledgermart/pkg/fabric/contract"
	"github.com/ledgermart/ledgermart/pkg/logger"
)

// Contract function names exposed by the order chaincode.
const (
	fnCreateOrder     = "CreateOrder"
	fnReadOrder       = "ReadOrder"
	fnConfirmPayment  = "ConfirmPayment"
	fnCancelOrder     = "CancelOrder"
	fnUpdateCODStatus = "UpdateCODStatus"
)

// OrderService splits customer orders into per-seller ledger assets and
// reconciles their lifecycle between the relational projection and the
// ledger.
type OrderService struct {
	invoker contract.Invoker
	store   Store
	logger  *logger.Logger
}

func NewOrderService(invoker contract.Invoker, store Store, logger *logger.Logger) *OrderService {
	return &OrderService{
		invoker: invoker,
		store:   store,
		logger:  logger,
	}
}

// SplitOrder writes one ledger asset per seller allocation, keyed
// `<orderID>_<seq>`, and records each committed sub-order in the
// relational projection. A failed seller write never aborts the rest and
// is never dropped: the result names every committed and failed key.
func (s *OrderService) SplitOrder(ctx context.Context, order Order) (*SplitResult, error) {
	if order.ID == "" {
		return nil, apperrors.NewValidationError("order id is required", nil)
	}
	if !order.PaymentMethod.Valid() {
		return nil, apperrors.NewValidationError("unknown payment method", map[string]interface{}{
			"paymentMethod": string(order.PaymentMethod),
		})
	}
	if len(order.Allocations) == 0 {
		return nil, apperrors.NewValidationError("order has no seller allocations", nil)
	}

	if err := s.store.SaveOrder(ctx, order.ID, order.PaymentMethod, len(order.Allocations) > 1); err != nil {
		return nil, err
	}

	// One split id groups the log lines of all sub-order writes, which
	// otherwise interleave across concurrent splits.
	splitID := uuid.New().String()
	s.logger.Info("splitting order",
		"splitId", splitID,
		"orderId", order.ID,
		"allocations", len(order.Allocations),
	)

	result := &SplitResult{OrderID: order.ID}
	for i, alloc := range order.Allocations {
		seq := i + 1
		key := AssetKey(order.ID, seq)

		txResult, err := s.invoker.Submit(ctx, fnCreateOrder, key, alloc.SellerOrg, string(order.PaymentMethod), alloc.Amount)
		if err != nil {
			s.logger.Error("sub-order asset write failed",
				"splitId", splitID,
				"assetKey", key,
				"sellerOrg", alloc.SellerOrg,
				"error", err,
			)
			result.Failed = append(result.Failed, FailedSubOrder{
				AssetKey: key,
				Reason:   err.Error(),
			})
			continue
		}

		sub := &SubOrder{
			AssetKey:      key,
			OrderID:       order.ID,
			Seq:           seq,
			SellerOrg:     alloc.SellerOrg,
			Status:        StatusCreated,
			PaymentMethod: order.PaymentMethod,
		}
		sub.BlockchainData = projectionFor(sub)
		if err := s.store.SaveSubOrder(ctx, sub); err != nil {
			// The asset is on the ledger; a projection miss is repaired on
			// the next status read.
			s.logger.Warn("failed to record sub-order projection", "assetKey", key, "error", err)
		}
		result.Committed = append(result.Committed, key)
		s.logger.Info("sub-order asset committed", "splitId", splitID, "assetKey", key, "txId", txResult.TxID)
	}

	return result, nil
}

// OrderStatus merges the relational projection of every sub-order with a
// live ledger read. The projection is refreshed lazily when it has
// drifted; when the ledger cannot be reached the cached row is returned
// marked stale rather than presented as authoritative.
func (s *OrderService) OrderStatus(ctx context.Context, orderID string) (*OrderStatus, error) {
	if orderID == "" {
		return nil, apperrors.NewValidationError("order id is required", nil)
	}

	subs, err := s.store.ListSubOrders(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, apperrors.NewNotFoundError("order not found", map[string]interface{}{
			"orderId": orderID,
		})
	}

	status := &OrderStatus{
		OrderID: orderID,
		IsSplit: len(subs) > 1,
	}
	for _, sub := range subs {
		entry := SubOrderStatus{
			ID:            sub.AssetKey,
			Status:        sub.Status,
			PaymentMethod: sub.PaymentMethod,
			CODStatus:     sub.CODStatus,
		}

		payload, err := s.invoker.Evaluate(ctx, fnReadOrder, sub.AssetKey)
		if err != nil {
			s.logger.Warn("ledger read failed, serving cached projection",
				"assetKey", sub.AssetKey,
				"error", err,
			)
			entry.Stale = true
			status.Orders = append(status.Orders, entry)
			continue
		}

		asset, err := parseLedgerOrder(payload)
		if err != nil {
			return nil, apperrors.NewInternalError("ledger returned an unparsable asset", err, map[string]interface{}{
				"assetKey": sub.AssetKey,
			})
		}

		if asset.Status != sub.Status || asset.CODStatus != sub.CODStatus {
			if err := s.store.UpdateProjection(ctx, sub.AssetKey, asset.Status, asset.CODStatus, payload); err != nil {
				s.logger.Warn("failed to refresh drifted projection", "assetKey", sub.AssetKey, "error", err)
			}
		}
		entry.Status = asset.Status
		entry.CODStatus = asset.CODStatus
		status.Orders = append(status.Orders, entry)
	}

	return status, nil
}

func projectionFor(sub *SubOrder) []byte {
	data, _ := json.Marshal(ledgerOrder{
		ID:            sub.AssetKey,
		SellerOrg:     sub.SellerOrg,
		Status:        sub.Status,
		PaymentMethod: string(sub.PaymentMethod),
		CODStatus:     sub.CODStatus,
	})
	return data
}
