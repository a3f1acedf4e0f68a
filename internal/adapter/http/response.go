package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/YelzhanWeb/tablehub/internal/adapter/logger"
	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

// retryAfterSeconds is sent with 503 responses caused by persistence failures.
const retryAfterSeconds = "1"

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error  string            `json:"error"`
	Errors []ValidationError `json:"errors,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their json names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// It returns the validation errors to report, or nil.
func decodeAndValidate(r *http.Request, dst any) ([]ValidationError, error) {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	return validateStruct(dst), nil
}

func validateStruct(v any) []ValidationError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationError{{Field: "", Message: err.Error()}}
	}

	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fieldPath(fe),
			Message: fieldMessage(fe),
		})
	}
	return out
}

// fieldPath drops the root struct name: "CreateOrderRequest.items[0].quantity"
// becomes "items[0].quantity".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte", "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at least %s entries", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte", "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must not contain more than %s entries", field, fe.Param())
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must not exceed %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must not exceed %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	}
	return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
}

func respondJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, message string, statusCode int, validationErrors []ValidationError) {
	respondJSON(w, statusCode, ErrorResponse{
		Error:  message,
		Errors: validationErrors,
	})
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	var (
		notFound     *domain.NotFoundError
		transition   *domain.InvalidTransitionError
		insufficient *domain.InsufficientPointsError
		invalid      *domain.InvalidOrderError
		persistence  *domain.PersistenceError
	)

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &transition),
		errors.Is(err, domain.ErrRequestInProgress),
		errors.Is(err, domain.ErrPromotionExhausted):
		return http.StatusConflict
	case errors.As(err, &insufficient), errors.As(err, &invalid):
		return http.StatusUnprocessableEntity
	case errors.As(err, &persistence):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondServiceError logs err and writes the mapped response. Messages of
// unexpected errors are not exposed.
func respondServiceError(w http.ResponseWriter, r *http.Request, log logger.Logger, action string, err error) {
	statusCode := statusFor(err)
	requestID := middleware.GetReqID(r.Context())

	switch statusCode {
	case http.StatusInternalServerError:
		log.Error(action, "Request failed", requestID, map[string]interface{}{
			"path": r.URL.Path,
		}, err)
		respondError(w, "Internal server error", statusCode, nil)
		return
	case http.StatusServiceUnavailable:
		log.Error(action, "Storage unavailable", requestID, map[string]interface{}{
			"path": r.URL.Path,
		}, err)
		w.Header().Set("Retry-After", retryAfterSeconds)
	default:
		log.Debug(action, err.Error(), requestID, map[string]interface{}{
			"path":   r.URL.Path,
			"status": statusCode,
		})
	}
	respondError(w, err.Error(), statusCode, nil)
}

// idParam reads a positive int64 URL parameter.
func idParam(r *http.Request, name string) (int64, []ValidationError) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, []ValidationError{{Field: name, Message: fmt.Sprintf("%s must be a positive integer", name)}}
	}
	return id, nil
}
