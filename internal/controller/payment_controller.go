package controller

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	domainErrors "github.com/ikazeshop/payments/internal/domain/errors"
	"github.com/ikazeshop/payments/internal/domain/payment"
	"github.com/ikazeshop/payments/internal/providers/kpay"
	"github.com/ikazeshop/payments/internal/service"
)

// PaymentController serves the storefront payment endpoints and the admin
// reads.
type PaymentController struct {
	paymentService *service.PaymentService
}

func NewPaymentController(paymentService *service.PaymentService) *PaymentController {
	return &PaymentController{paymentService: paymentService}
}

// Initiate handles POST /api/payments/kpay/initiate
func (h *PaymentController) Initiate(w http.ResponseWriter, r *http.Request) {
	var req InitiatePaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.paymentService.Initiate(r.Context(), req.toService())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, fromInitiate(resp))
}

// Status handles POST /api/payments/kpay/status
func (h *PaymentController) Status(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil && err != io.EOF {
		writeError(w, domainErrors.NewValidationError("body", "invalid JSON: "+err.Error()))
		return
	}
	h.status(w, r, req)
}

// StatusQuery handles GET /api/payments/kpay/status
func (h *PaymentController) StatusQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.status(w, r, StatusRequest{
		PaymentID:     q.Get("paymentId"),
		TransactionID: q.Get("transactionId"),
		Reference:     q.Get("reference"),
	})
}

func (h *PaymentController) status(w http.ResponseWriter, r *http.Request, req StatusRequest) {
	resp, err := h.paymentService.CheckStatus(r.Context(), service.StatusRequest{
		PaymentID:     req.PaymentID,
		TransactionID: req.TransactionID,
		Reference:     req.Reference,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fromStatus(resp))
}

// Webhook handles POST /api/payments/kpay/webhook. KPay expects a 200 for
// every callback it should not retry, unknown references included.
func (h *PaymentController) Webhook(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&raw); err != nil {
		writeError(w, domainErrors.NewValidationError("body", "invalid JSON: "+err.Error()))
		return
	}

	resp, err := h.paymentService.HandleWebhook(r.Context(), kpay.Normalize(raw))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fromStatus(resp))
}

// Abandon handles POST /api/payments/kpay/abandon
func (h *PaymentController) Abandon(w http.ResponseWriter, r *http.Request) {
	var req AbandonRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.paymentService.Abandon(r.Context(), uuid.MustParse(req.PaymentID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"paymentId": p.ID.String(),
		"status":    string(p.Status),
	})
}

// GetPayment handles GET /api/admin/payments/{id}
func (h *PaymentController) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, domainErrors.NewValidationError("id", "must be a UUID"))
		return
	}

	details, err := h.paymentService.GetPayment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "payment": fromDetails(details)})
}

// ListPayments handles GET /api/admin/payments
func (h *PaymentController) ListPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := payment.ListFilter{
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	if v := q.Get("orderId"); v != "" {
		filter.OrderID = &v
	}
	if v := q.Get("status"); v != "" {
		s := payment.ParseStatus(v)
		filter.Status = &s
	}
	if v := q.Get("paymentMethod"); v != "" {
		m, err := payment.ParseMethod(v)
		if err != nil {
			writeError(w, err)
			return
		}
		filter.Method = &m
	}

	filter = filter.Normalized()
	payments, err := h.paymentService.ListPayments(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	out := PaymentListResponse{Success: true, Payments: make([]*PaymentResponse, 0, len(payments)), Limit: filter.Limit, Offset: filter.Offset}
	for _, p := range payments {
		out.Payments = append(out.Payments, FromPayment(p))
	}
	writeJSON(w, http.StatusOK, out)
}
