package controller

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	domainErrors "github.com/ikazeshop/payments/internal/domain/errors"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

const maxBodySize = 1 << 20

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorMappings is checked in order; the first match wins.
var errorMappings = []errorMapping{
	{domainErrors.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{domainErrors.ErrPaymentNotFound, http.StatusNotFound, "payment_not_found"},
	{domainErrors.ErrInvalidOrderState, http.StatusBadRequest, "invalid_order_state"},
	{domainErrors.ErrAmountMismatch, http.StatusBadRequest, "amount_mismatch"},
	{domainErrors.ErrAlreadyPaid, http.StatusBadRequest, "already_paid"},
	{domainErrors.ErrUnsupportedMethod, http.StatusBadRequest, "unsupported_method"},
	{domainErrors.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{domainErrors.ErrMissingIdentifier, http.StatusBadRequest, "missing_identifier"},
	{domainErrors.ErrGatewayRejected, http.StatusBadRequest, "gateway_rejected"},
	{domainErrors.ErrPaymentInProgress, http.StatusConflict, "payment_in_progress"},
	{domainErrors.ErrDuplicateReference, http.StatusConflict, "duplicate_reference"},
	{domainErrors.ErrDuplicateIdempotencyKey, http.StatusConflict, "duplicate_request"},
	{domainErrors.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition"},
	{domainErrors.ErrGatewayMisconfigured, http.StatusServiceUnavailable, "gateway_misconfigured"},
	{domainErrors.ErrProviderUnavailable, http.StatusServiceUnavailable, "provider_unavailable"},
	{domainErrors.ErrGatewayUnavailable, http.StatusServiceUnavailable, "gateway_unavailable"},
	{domainErrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{domainErrors.ErrForbidden, http.StatusForbidden, "forbidden"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error(), PaymentID: errorPaymentID(err)}

	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		resp.Code = "validation_error"
		resp.Error = validationErr.Field + " " + validationErr.Message
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	var domainErr *domainErrors.DomainError
	if errors.As(err, &domainErr) {
		resp.Error = domainErr.Message
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			resp.Code = m.code
			writeJSON(w, m.status, resp)
			return
		}
	}

	if domainErr != nil {
		resp.Code = domainErr.Code
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	resp.Code = "internal_error"
	resp.Error = "internal server error"
	writeJSON(w, http.StatusInternalServerError, resp)
}

// errorPaymentID returns the attempt an error refers to, so clients can poll
// it instead of starting over.
func errorPaymentID(err error) string {
	var inProgress *domainErrors.PaymentInProgressError
	if errors.As(err, &inProgress) {
		return inProgress.PaymentID
	}
	var rejected *domainErrors.GatewayRejectedError
	if errors.As(err, &rejected) {
		return rejected.PaymentID
	}
	return ""
}

func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(dst); err != nil {
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return domainErrors.NewValidationError(ve[0].Field(), ve[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}
