package service

import (
	"context"

	apperrors "github.com/ledgermart/ledgermart/pkg/errors"
)

// ConfirmPayment drives a sub-order from CREATED to PAID. The ledger
// write path is not idempotent, so the transition is guarded by a fresh
// ledger read: a sub-order already in a terminal state is reported as-is
// with no new transaction.
func (s *OrderService) ConfirmPayment(ctx context.Context, assetKey string) (*ConfirmResult, error) {
	return s.transition(ctx, assetKey, StatusPaid, fnConfirmPayment)
}

// CancelOrder drives a sub-order from CREATED to CANCELLED under the same
// guard as ConfirmPayment.
func (s *OrderService) CancelOrder(ctx context.Context, assetKey string) (*ConfirmResult, error) {
	return s.transition(ctx, assetKey, StatusCancelled, fnCancelOrder)
}

func (s *OrderService) transition(ctx context.Context, assetKey string, target Status, fn string) (*ConfirmResult, error) {
	if assetKey == "" {
		return nil, apperrors.NewValidationError("sub-order asset key is required", nil)
	}

	asset, payload, err := s.readAsset(ctx, assetKey)
	if err != nil {
		return nil, err
	}

	if asset.Status.Terminal() {
		// No-op: report current state, never re-write the ledger.
		s.refreshProjection(ctx, assetKey, asset, payload)
		return &ConfirmResult{
			AssetKey:     assetKey,
			Status:       asset.Status,
			AlreadyFinal: true,
		}, nil
	}

	txResult, err := s.invoker.Submit(ctx, fn, assetKey)
	if err != nil {
		return nil, err
	}

	asset.Status = target
	s.refreshProjection(ctx, assetKey, asset, nil)

	s.logger.Info("sub-order transitioned",
		"assetKey", assetKey,
		"status", target,
		"txId", txResult.TxID,
	)
	return &ConfirmResult{
		AssetKey: assetKey,
		Status:   target,
		TxID:     txResult.TxID,
	}, nil
}

// SetCODStatus updates the cash-on-delivery sub-status of a COD
// sub-order. It tracks collection progress independently of the primary
// status and never transitions CREATED/PAID/CANCELLED by itself.
func (s *OrderService) SetCODStatus(ctx context.Context, assetKey, codStatus string) (*SubOrderStatus, error) {
	if assetKey == "" {
		return nil, apperrors.NewValidationError("sub-order asset key is required", nil)
	}
	if codStatus == "" {
		return nil, apperrors.NewValidationError("cod status is required", nil)
	}

	asset, _, err := s.readAsset(ctx, assetKey)
	if err != nil {
		return nil, err
	}
	if PaymentMethod(asset.PaymentMethod) != PaymentCOD {
		return nil, apperrors.NewConflictError("sub-order is not cash-on-delivery", map[string]interface{}{
			"assetKey":      assetKey,
			"paymentMethod": asset.PaymentMethod,
		})
	}

	if _, err := s.invoker.Submit(ctx, fnUpdateCODStatus, assetKey, codStatus); err != nil {
		return nil, err
	}

	asset.CODStatus = codStatus
	s.refreshProjection(ctx, assetKey, asset, nil)

	return &SubOrderStatus{
		ID:            assetKey,
		Status:        asset.Status,
		PaymentMethod: PaymentMethod(asset.PaymentMethod),
		CODStatus:     codStatus,
	}, nil
}

func (s *OrderService) readAsset(ctx context.Context, assetKey string) (*ledgerOrder, []byte, error) {
	payload, err := s.invoker.Evaluate(ctx, fnReadOrder, assetKey)
	if err != nil {
		return nil, nil, err
	}
	asset, err := parseLedgerOrder(payload)
	if err != nil {
		return nil, nil, apperrors.NewInternalError("ledger returned an unparsable asset", err, map[string]interface{}{
			"assetKey": assetKey,
		})
	}
	return asset, payload, nil
}

func (s *OrderService) refreshProjection(ctx context.Context, assetKey string, asset *ledgerOrder, payload []byte) {
	if payload == nil {
		payload = projectionFor(&SubOrder{
			AssetKey:      assetKey,
			SellerOrg:     asset.SellerOrg,
			Status:        asset.Status,
			PaymentMethod: PaymentMethod(asset.PaymentMethod),
			CODStatus:     asset.CODStatus,
		})
	}
	if err := s.store.UpdateProjection(ctx, assetKey, asset.Status, asset.CODStatus, payload); err != nil {
		s.logger.Warn("failed to refresh projection", "assetKey", assetKey, "error", err)
	}
}
