package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Error is the JSON error envelope: {error, message, status, request_id, ...details}.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{Code: sanitize(code, 80), Message: sanitize(message, 512), Status: status}
}

func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	cp := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		cp[k] = v
	}
	for k, v := range details {
		cp[k] = v
	}
	e.Details = cp
	return e
}

// Abort writes err and stops the handler chain.
func Abort(c *gin.Context, err Error) {
	payload := gin.H{
		"error":   err.Code,
		"message": err.Message,
		"status":  err.Status,
	}
	if rid := GetRequestID(c); rid != "" {
		payload["request_id"] = rid
	}
	for k, v := range err.Details {
		payload[k] = v
	}
	c.AbortWithStatusJSON(err.Status, payload)
}

// Internal logs cause and answers with a generic 500; the request id is the
// only thing the client can quote back.
func Internal(c *gin.Context, cause error) {
	Log(c).Error("internal error", zap.Error(cause))
	Abort(c, NewError("internal_error", "internal server error", http.StatusInternalServerError))
}

// BadRequest reports a binding failure, listing field errors when available.
func BadRequest(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fieldPath(fe.Namespace())] = fe.Tag()
		}
		Abort(c, NewError("validation_error", "invalid request body", http.StatusBadRequest).
			WithDetails(map[string]any{"fields": fields}))
		return
	}
	Abort(c, NewError("validation_error", "invalid request body", http.StatusBadRequest))
}

// fieldPath drops the root struct name: "CreateOrderRequest.Items[0].Quantity" -> "Items[0].Quantity".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func sanitize(value string, limit int) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
