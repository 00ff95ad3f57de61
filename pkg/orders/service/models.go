package service

import (
	"context"
	"encoding/json"
	"fmt"
)

// Status is the primary lifecycle state of a sub-order. Transitions are
// monotonic: CREATED may move to PAID or CANCELLED, both of which are
// terminal.
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further primary transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// PaymentMethod distinguishes prepaid orders from cash-on-delivery.
type PaymentMethod string

const (
	PaymentPrepaid PaymentMethod = "PREPAID"
	PaymentCOD     PaymentMethod = "COD"
)

func (p PaymentMethod) Valid() bool {
	return p == PaymentPrepaid || p == PaymentCOD
}

// SellerAllocation is one seller's share of a customer order.
type SellerAllocation struct {
	SellerOrg string
	Amount    string
}

// Order is a customer order spanning one or more sellers.
type Order struct {
	ID            string
	PaymentMethod PaymentMethod
	Allocations   []SellerAllocation
}

// SubOrder is one seller's portion of an order, tracked as an independent
// ledger asset. The authoritative copy lives on the ledger; this struct
// carries the relational projection.
type SubOrder struct {
	AssetKey       string
	OrderID        string
	Seq            int
	SellerOrg      string
	Status         Status
	PaymentMethod  PaymentMethod
	CODStatus      string
	BlockchainData []byte
}

// AssetKey derives the ledger key of the seq'th sub-order of orderID.
func AssetKey(orderID string, seq int) string {
	return fmt.Sprintf("%s_%d", orderID, seq)
}

// ledgerOrder is the asset shape the contract stores on the ledger.
type ledgerOrder struct {
	ID            string `json:"id"`
	SellerOrg     string `json:"sellerOrg"`
	Status        Status `json:"status"`
	PaymentMethod string `json:"paymentMethod"`
	CODStatus     string `json:"codStatus,omitempty"`
}

func parseLedgerOrder(payload []byte) (*ledgerOrder, error) {
	var asset ledgerOrder
	if err := json.Unmarshal(payload, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

// FailedSubOrder names one sub-order whose ledger write did not commit,
// with enough context for the operator to decide on a retry.
type FailedSubOrder struct {
	AssetKey string `json:"assetKey"`
	Reason   string `json:"reason"`
}

// SplitResult itemizes the outcome of an order split. Partial failure is
// normal operation: some sub-orders commit, others do not, and the result
// never collapses that into a single flag.
type SplitResult struct {
	OrderID   string           `json:"orderId"`
	Committed []string         `json:"committed"`
	Failed    []FailedSubOrder `json:"failed"`
}

// Partial reports whether at least one sub-order failed to commit.
func (r *SplitResult) Partial() bool {
	return len(r.Failed) > 0
}

// ConfirmResult reports the outcome of a payment confirmation. When the
// sub-order was already in a terminal state, AlreadyFinal is set and TxID
// is empty: no ledger write happened.
type ConfirmResult struct {
	AssetKey     string `json:"assetKey"`
	Status       Status `json:"status"`
	TxID         string `json:"txId,omitempty"`
	AlreadyFinal bool   `json:"alreadyFinal"`
}

// SubOrderStatus is one entry of an order status report. Stale marks a
// projection that could not be revalidated against the ledger.
type SubOrderStatus struct {
	ID            string        `json:"id"`
	Status        Status        `json:"status"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	CODStatus     string        `json:"codStatus,omitempty"`
	Stale         bool          `json:"stale,omitempty"`
}

// OrderStatus reports the merged relational/ledger view of an order.
type OrderStatus struct {
	OrderID string           `json:"orderId"`
	IsSplit bool             `json:"isSplit"`
	Orders  []SubOrderStatus `json:"orders"`
}

// Store is the relational projection behind the reconciler. It is a
// cache: payment decisions are made against the ledger, never against
// these rows alone.
type Store interface {
	SaveOrder(ctx context.Context, orderID string, method PaymentMethod, isSplit bool) error
	SaveSubOrder(ctx context.Context, sub *SubOrder) error
	GetSubOrder(ctx context.Context, assetKey string) (*SubOrder, error)
	ListSubOrders(ctx context.Context, orderID string) ([]*SubOrder, error)
	UpdateProjection(ctx context.Context, assetKey string, status Status, codStatus string, blockchainData []byte) error
}
