package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/seatly/internal/audit/domain"
	"github.com/smallbiznis/seatly/internal/authorization"
	orderdomain "github.com/smallbiznis/seatly/internal/order/domain"
	paymentdomain "github.com/smallbiznis/seatly/internal/payment/domain"
	plandomain "github.com/smallbiznis/seatly/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/seatly/internal/subscription/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// fieldError ties a sentinel to the request field it reports on.
type fieldError struct {
	err   error
	field string
}

var validationErrors = []fieldError{
	{ErrInvalidRequest, "request"},
	{subscriptiondomain.ErrInvalidID, "id"},
	{subscriptiondomain.ErrInvalidAction, "action"},
	{subscriptiondomain.ErrInvalidQuantity, "quantity"},
	{subscriptiondomain.ErrInvalidStatus, "status"},
	{subscriptiondomain.ErrInvalidEmail, "email"},
	{subscriptiondomain.ErrInvalidPageToken, "page_token"},
	{subscriptiondomain.ErrEmptyUpdate, "request"},
	{orderdomain.ErrInvalidID, "plan_id"},
	{orderdomain.ErrInvalidQuantity, "quantity"},
	{orderdomain.ErrInvalidStatus, "status"},
	{orderdomain.ErrInvalidPageToken, "page_token"},
	{plandomain.ErrInvalidID, "id"},
	{plandomain.ErrInvalidPlan, "plan"},
	{plandomain.ErrInvalidProvider, "provider"},
	{auditdomain.ErrInvalidPageToken, "page_token"},
	{auditdomain.ErrInvalidTimeRange, "start_at"},
	{auditdomain.ErrInvalidAction, "action"},
	{paymentdomain.ErrInvalidSignature, "signature"},
	{paymentdomain.ErrInvalidPayload, "payload"},
	{paymentdomain.ErrInvalidEvent, "event"},
}

var conflictErrors = []error{
	ErrConflict,
	subscriptiondomain.ErrEntitlementRevoked,
	subscriptiondomain.ErrSubscriptionNotLinked,
	subscriptiondomain.ErrSubscriptionCanceled,
	orderdomain.ErrPlanNotPurchasable,
	plandomain.ErrSlugTaken,
}

var notFoundErrors = []error{
	ErrNotFound,
	subscriptiondomain.ErrSubscriptionNotFound,
	subscriptiondomain.ErrEntitlementNotFound,
	orderdomain.ErrOrderNotFound,
	plandomain.ErrPlanNotFound,
	plandomain.ErrProviderNotFound,
	paymentdomain.ErrProviderNotFound,
	gorm.ErrRecordNotFound,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if fe, ok := matchValidation(err); ok {
		code := fe.err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   fe.field,
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, subscriptiondomain.ErrUnauthenticated),
		errors.Is(err, orderdomain.ErrUnauthenticated),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, subscriptiondomain.ErrNoAvailableSeat):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "no_available_seat",
			Message: "no unassigned seat is left on this subscription",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, paymentdomain.ErrUpstream):
		return http.StatusBadGateway, errorPayload{
			Type:    "upstream_error",
			Message: "payment processor request failed",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, paymentdomain.ErrNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	}

	if match := firstMatch(err, conflictErrors); match != nil {
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    match.Error(),
			Message: "conflict",
		}
	}
	if match := firstMatch(err, notFoundErrors); match != nil {
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Code:    match.Error(),
			Message: "not found",
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

// classifyErrorForLog feeds the request logger with the mapped type and code.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Code
	if code == "" && len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func matchValidation(err error) (fieldError, bool) {
	for _, candidate := range validationErrors {
		if errors.Is(err, candidate.err) {
			return candidate, true
		}
	}
	return fieldError{}, false
}

func firstMatch(err error, candidates []error) error {
	for _, candidate := range candidates {
		if errors.Is(err, candidate) {
			return candidate
		}
	}
	return nil
}
