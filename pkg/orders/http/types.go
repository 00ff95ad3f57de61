package http

import (
	"github.com/ledgermart/ledgermart/pkg/fabric/wallet"
	"github.com/ledgermart/ledgermart/pkg/orders/service"
)

// SplitOrderRequest carries one customer order to be split into
// per-seller sub-orders.
type SplitOrderRequest struct {
	OrderID       string                    `json:"orderId" validate:"required"`
	PaymentMethod string                    `json:"paymentMethod" validate:"required,oneof=PREPAID COD"`
	Allocations   []SellerAllocationRequest `json:"allocations" validate:"required,min=1,dive"`
}

// SellerAllocationRequest is one seller's share of the order.
type SellerAllocationRequest struct {
	SellerOrg string `json:"sellerOrg" validate:"required"`
	Amount    string `json:"amount" validate:"required"`
}

// SplitOrderResponse itemizes committed and failed sub-orders.
type SplitOrderResponse struct {
	OrderID   string                   `json:"orderId"`
	Committed []string                 `json:"committed"`
	Failed    []FailedSubOrderResponse `json:"failed"`
}

type FailedSubOrderResponse struct {
	AssetKey string `json:"assetKey"`
	Reason   string `json:"reason"`
}

// ConfirmPaymentResponse reports the ledger transaction that recorded
// the confirmation. TxID is empty when the sub-order was already final.
type ConfirmPaymentResponse struct {
	AssetKey     string `json:"assetKey"`
	Status       string `json:"status"`
	TxID         string `json:"txId,omitempty"`
	AlreadyFinal bool   `json:"alreadyFinal"`
}

// SetCODStatusRequest updates the delivery sub-status of a COD sub-order.
type SetCODStatusRequest struct {
	CODStatus string `json:"codStatus" validate:"required"`
}

type SubOrderStatusResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PaymentMethod string `json:"paymentMethod"`
	CODStatus     string `json:"codStatus,omitempty"`
	Stale         bool   `json:"stale,omitempty"`
}

// OrderStatusResponse merges the relational projection with the ledger
// state of every sub-order.
type OrderStatusResponse struct {
	OrderID string                   `json:"orderId"`
	IsSplit bool                     `json:"isSplit"`
	Orders  []SubOrderStatusResponse `json:"orders"`
}

// EnrollRequest enrolls an application identity with the organization's
// certificate authority and stores it in the wallet.
type EnrollRequest struct {
	MSPID        string `json:"mspId" validate:"required"`
	EnrollmentID string `json:"enrollmentId" validate:"required"`
	Secret       string `json:"secret" validate:"required"`
	Label        string `json:"label" validate:"required"`
}

// EnrollResponse never carries key material.
type EnrollResponse struct {
	Label string `json:"label"`
	MSPID string `json:"mspId"`
}

func toSplitOrderResponse(result *service.SplitResult) SplitOrderResponse {
	resp := SplitOrderResponse{
		OrderID:   result.OrderID,
		Committed: result.Committed,
		Failed:    make([]FailedSubOrderResponse, len(result.Failed)),
	}
	if resp.Committed == nil {
		resp.Committed = []string{}
	}
	for i, failed := range result.Failed {
		resp.Failed[i] = FailedSubOrderResponse{AssetKey: failed.AssetKey, Reason: failed.Reason}
	}
	return resp
}

func toConfirmPaymentResponse(result *service.ConfirmResult) ConfirmPaymentResponse {
	return ConfirmPaymentResponse{
		AssetKey:     result.AssetKey,
		Status:       string(result.Status),
		TxID:         result.TxID,
		AlreadyFinal: result.AlreadyFinal,
	}
}

func toOrderStatusResponse(status *service.OrderStatus) OrderStatusResponse {
	resp := OrderStatusResponse{
		OrderID: status.OrderID,
		IsSplit: status.IsSplit,
		Orders:  make([]SubOrderStatusResponse, len(status.Orders)),
	}
	for i, sub := range status.Orders {
		resp.Orders[i] = SubOrderStatusResponse{
			ID:            sub.ID,
			Status:        string(sub.Status),
			PaymentMethod: string(sub.PaymentMethod),
			CODStatus:     sub.CODStatus,
			Stale:         sub.Stale,
		}
	}
	return resp
}

func toEnrollResponse(id *wallet.Identity) EnrollResponse {
	return EnrollResponse{Label: id.Label, MSPID: id.MSPID}
}
