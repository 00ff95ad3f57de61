package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ledgermart/ledgermart/pkg/errors"
	"github.com/ledgermart/ledgermart/pkg/fabric/ca"
	"github.com/ledgermart/ledgermart/pkg/fabric/networkconfig"
	"github.com/ledgermart/ledgermart/pkg/fabric/wallet"
	"github.com/ledgermart/ledgermart/pkg/http/response"
	"github.com/ledgermart/ledgermart/pkg/logger"
	"github.com/ledgermart/ledgermart/pkg/orders/service"
)

// OrderAPI is the order operation surface exposed over HTTP.
type OrderAPI interface {
	SplitOrder(ctx context.Context, order service.Order) (*service.SplitResult, error)
	ConfirmPayment(ctx context.Context, assetKey string) (*service.ConfirmResult, error)
	CancelOrder(ctx context.Context, assetKey string) (*service.ConfirmResult, error)
	SetCODStatus(ctx context.Context, assetKey, codStatus string) (*service.SubOrderStatus, error)
	OrderStatus(ctx context.Context, orderID string) (*service.OrderStatus, error)
}

// Enroller performs CA enrollment. Satisfied by ca.EnrollmentService.
type Enroller interface {
	Enroll(ctx context.Context, req ca.EnrollmentRequest) (*wallet.Identity, error)
}

// IdentityStore is the subset of the wallet the HTTP surface needs.
type IdentityStore interface {
	Put(label string, id *wallet.Identity) error
}

type Handler struct {
	orders   OrderAPI
	enroller Enroller
	wallet   IdentityStore
	profile  *networkconfig.NetworkConfig
	validate *validator.Validate
	logger   *logger.Logger
}

func NewHandler(orders OrderAPI, enroller Enroller, walletStore IdentityStore, profile *networkconfig.NetworkConfig, logger *logger.Logger) *Handler {
	return &Handler{
		orders:   orders,
		enroller: enroller,
		wallet:   walletStore,
		profile:  profile,
		validate: validator.New(),
		logger:   logger,
	}
}

// RegisterRoutes registers the order and identity routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/{orderId}/split", response.Middleware(h.SplitOrder))
		r.Get("/{orderId}/status", response.Middleware(h.OrderStatus))
		r.Post("/{subOrderId}/confirm-payment", response.Middleware(h.ConfirmPayment))
		r.Post("/{subOrderId}/cancel", response.Middleware(h.CancelOrder))
		r.Post("/{subOrderId}/cod-status", response.Middleware(h.SetCODStatus))
	})
	r.Route("/identities", func(r chi.Router) {
		r.Post("/enroll", response.Middleware(h.Enroll))
	})
}

func (h *Handler) decodeAndValidate(r *http.Request, req interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return errors.NewValidationError("invalid request body", map[string]interface{}{
			"detail": err.Error(),
			"code":   "INVALID_REQUEST_BODY",
		})
	}
	if err := h.validate.Struct(req); err != nil {
		validationErrors := make(map[string]string)
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors[err.Field()] = err.Tag()
		}
		return errors.NewValidationError("validation failed", map[string]interface{}{
			"code":   "VALIDATION_ERROR",
			"errors": validationErrors,
		})
	}
	return nil
}

// SplitOrder godoc
// @Summary Split an order into per-seller sub-orders
// @Description Record each seller's share of the order as an independent ledger asset. Partial failure is reported per sub-order, not as an all-or-nothing error.
// @Tags orders
// @Accept json
// @Produce json
// @Param orderId path string true "Order ID"
// @Param request body SplitOrderRequest true "Order split request"
// @Success 201 {object} SplitOrderResponse
// @Success 207 {object} SplitOrderResponse "Some sub-orders failed to commit"
// @Failure 400 {object} response.Response "Validation error"
// @Failure 503 {object} response.Response "Ledger unavailable"
// @Router /orders/{orderId}/split [post]
func (h *Handler) SplitOrder(w http.ResponseWriter, r *http.Request) error {
	var req SplitOrderRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		return err
	}

	orderID := chi.URLParam(r, "orderId")
	if req.OrderID != orderID {
		return errors.NewValidationError("order id in path and body do not match", map[string]interface{}{
			"path": orderID,
			"body": req.OrderID,
		})
	}

	order := service.Order{
		ID:            req.OrderID,
		PaymentMethod: service.PaymentMethod(req.PaymentMethod),
	}
	for _, alloc := range req.Allocations {
		order.Allocations = append(order.Allocations, service.SellerAllocation{
			SellerOrg: alloc.SellerOrg,
			Amount:    alloc.Amount,
		})
	}

	result, err := h.orders.SplitOrder(r.Context(), order)
	if err != nil {
		return err
	}

	status := http.StatusCreated
	if result.Partial() {
		status = http.StatusMultiStatus
	}
	return response.WriteJSON(w, status, toSplitOrderResponse(result))
}

// ConfirmPayment godoc
// @Summary Confirm payment of a sub-order
// @Description Transition the sub-order to PAID on the ledger. Confirming an already final sub-order is a no-op that reports the current state.
// @Tags orders
// @Accept json
// @Produce json
// @Param subOrderId path string true "Sub-order asset key"
// @Success 200 {object} ConfirmPaymentResponse
// @Failure 404 {object} response.Response "Unknown sub-order"
// @Failure 503 {object} response.Response "Ledger unavailable"
// @Failure 504 {object} response.Response "Ledger deadline exceeded"
// @Router /orders/{subOrderId}/confirm-payment [post]
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) error {
	assetKey := chi.URLParam(r, "subOrderId")
	result, err := h.orders.ConfirmPayment(r.Context(), assetKey)
	if err != nil {
		return err
	}
	return response.WriteJSON(w, http.StatusOK, toConfirmPaymentResponse(result))
}

// CancelOrder godoc
// @Summary Cancel a sub-order
// @Description Transition the sub-order to CANCELLED on the ledger. Cancelling an already final sub-order is a no-op that reports the current state.
// @Tags orders
// @Accept json
// @Produce json
// @Param subOrderId path string true "Sub-order asset key"
// @Success 200 {object} ConfirmPaymentResponse
// @Failure 404 {object} response.Response "Unknown sub-order"
// @Failure 503 {object} response.Response "Ledger unavailable"
// @Router /orders/{subOrderId}/cancel [post]
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) error {
	assetKey := chi.URLParam(r, "subOrderId")
	result, err := h.orders.CancelOrder(r.Context(), assetKey)
	if err != nil {
		return err
	}
	return response.WriteJSON(w, http.StatusOK, toConfirmPaymentResponse(result))
}

// SetCODStatus godoc
// @Summary Update the COD delivery sub-status of a sub-order
// @Description Record a cash-on-delivery progress update. The primary order status is not touched.
// @Tags orders
// @Accept json
// @Produce json
// @Param subOrderId path string true "Sub-order asset key"
// @Param request body SetCODStatusRequest true "COD status update"
// @Success 200 {object} SubOrderStatusResponse
// @Failure 404 {object} response.Response "Unknown sub-order"
// @Failure 409 {object} response.Response "Sub-order is not cash-on-delivery"
// @Router /orders/{subOrderId}/cod-status [post]
func (h *Handler) SetCODStatus(w http.ResponseWriter, r *http.Request) error {
	var req SetCODStatusRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		return err
	}

	assetKey := chi.URLParam(r, "subOrderId")
	status, err := h.orders.SetCODStatus(r.Context(), assetKey, req.CODStatus)
	if err != nil {
		return err
	}
	return response.WriteJSON(w, http.StatusOK, SubOrderStatusResponse{
		ID:            status.ID,
		Status:        string(status.Status),
		PaymentMethod: string(status.PaymentMethod),
		CODStatus:     status.CODStatus,
	})
}

// OrderStatus godoc
// @Summary Report the status of every sub-order of an order
// @Description Merge the relational projection with the current ledger state. Sub-orders whose ledger read failed are served from the projection and marked stale.
// @Tags orders
// @Accept json
// @Produce json
// @Param orderId path string true "Order ID"
// @Success 200 {object} OrderStatusResponse
// @Failure 404 {object} response.Response "Unknown order"
// @Router /orders/{orderId}/status [get]
func (h *Handler) OrderStatus(w http.ResponseWriter, r *http.Request) error {
	orderID := chi.URLParam(r, "orderId")
	status, err := h.orders.OrderStatus(r.Context(), orderID)
	if err != nil {
		return err
	}
	return response.WriteJSON(w, http.StatusOK, toOrderStatusResponse(status))
}

// Enroll godoc
// @Summary Enroll an identity with the organization CA
// @Description Enroll with the certificate authority of the requested MSP and store the resulting identity in the wallet. Enrolling under an existing label replaces the stored identity. The secret is one-time; a failed enrollment is never retried automatically.
// @Tags identities
// @Accept json
// @Produce json
// @Param request body EnrollRequest true "Enrollment request"
// @Success 201 {object} EnrollResponse
// @Failure 400 {object} response.Response "Validation error"
// @Failure 422 {object} response.Response "CA rejected the enrollment"
// @Router /identities/enroll [post]
func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) error {
	var req EnrollRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		return err
	}

	enrollReq, err := h.enrollmentRequestFor(req)
	if err != nil {
		return err
	}

	id, err := h.enroller.Enroll(r.Context(), *enrollReq)
	if err != nil {
		return err
	}

	if err := h.wallet.Put(req.Label, id); err != nil {
		return err
	}

	h.logger.Info("identity enrolled", "label", req.Label, "mspId", id.MSPID)
	return response.WriteJSON(w, http.StatusCreated, toEnrollResponse(id))
}

// enrollmentRequestFor resolves the CA of the requested MSP from the
// connection profile.
func (h *Handler) enrollmentRequestFor(req EnrollRequest) (*ca.EnrollmentRequest, error) {
	_, org, err := h.profile.OrganizationByMSPID(req.MSPID)
	if err != nil {
		return nil, err
	}
	if len(org.CertificateAuthorities) == 0 {
		return nil, errors.NewConfigError("organization has no certificate authority", nil, map[string]interface{}{
			"mspId": req.MSPID,
		})
	}

	caName := org.CertificateAuthorities[0]
	caDef, ok := h.profile.CertificateAuthorities[caName]
	if !ok {
		return nil, errors.NewConfigError("certificate authority not defined in profile", nil, map[string]interface{}{
			"ca": caName,
		})
	}

	trustRoot, err := caDef.TLSCACerts.Resolve()
	if err != nil {
		return nil, err
	}

	return &ca.EnrollmentRequest{
		CAURL:        caDef.URL,
		CAName:       caDef.CAName,
		TLSRootPEM:   trustRoot,
		EnrollmentID: req.EnrollmentID,
		Secret:       req.Secret,
		MSPID:        req.MSPID,
	}, nil
}
