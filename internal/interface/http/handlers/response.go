// Package handlers contains the gin handlers of the REST API.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/escola-hub/academic-records/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENVELOPES
// ══════════════════════════════════════════════════════════════════════════════

// DataEnvelope wraps every successful response body.
type DataEnvelope struct {
	Data any   `json:"data"`
	Meta *Meta `json:"meta,omitempty"`
}

// Meta carries pagination of list responses.
type Meta struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	TotalCount int  `json:"total_count"`
	HasMore    bool `json:"has_more"`
}

// APIError is the body of a failed request.
type APIError struct {
	Kind    shared.Kind       `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ErrorEnvelope wraps APIError.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondData(c *gin.Context, status int, data any) {
	c.JSON(status, DataEnvelope{Data: data})
}

func respondPage(c *gin.Context, data any, meta Meta) {
	c.JSON(http.StatusOK, DataEnvelope{Data: data, Meta: &meta})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// StatusOf maps an error kind to its HTTP status.
func StatusOf(kind shared.Kind) int {
	switch kind {
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindConflict, shared.KindInvalidState:
		return http.StatusConflict
	case shared.KindInvalidArgument:
		return http.StatusBadRequest
	case shared.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err as an error envelope. Internal errors are logged
// and their message is not exposed.
func RespondError(c *gin.Context, err error) {
	kind := shared.KindOf(err)
	status := StatusOf(kind)

	body := APIError{Kind: kind, Message: shared.MessageOf(err)}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		body.Kind = shared.KindInvalidArgument
		body.Message = "request validation failed"
		body.Fields = fieldErrors(ve)
		status = http.StatusBadRequest
	}

	if status >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("request failed",
			logger.String("path", c.FullPath()),
			logger.String("kind", string(kind)),
			logger.Err(err),
		)
		if kind == shared.KindInternal {
			body.Message = "internal error"
		}
	}

	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: body})
}

func badRequest(op, message string) error {
	return shared.NewDomainError("http", op, shared.ErrInvalidArgument, message)
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// bindJSON decodes the body into dst and validates its tags.
func bindJSON(c *gin.Context, op string, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return badRequest(op, "malformed JSON body: "+err.Error())
	}
	return validate.Struct(dst)
}

func fieldErrors(ve validator.ValidationErrors) map[string]string {
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		key := fe.Namespace()
		if _, rest, ok := strings.Cut(key, "."); ok {
			key = rest
		}
		if fe.Param() != "" {
			fields[key] = fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
		} else {
			fields[key] = fe.Tag()
		}
	}
	return fields
}

// queryInt reads an optional integer query parameter.
func queryInt(c *gin.Context, op, key string) (*int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, badRequest(op, key+" must be an integer")
	}
	return &v, nil
}

func intOr(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}

// correlationID returns the request id assigned by the middleware.
func correlationID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"
