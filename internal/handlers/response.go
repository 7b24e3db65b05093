package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"momentum-peaks/internal/models"
	"momentum-peaks/pkg/logging"
	"momentum-peaks/pkg/metrics"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Code      int    `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

func newPaginatedResponse(data interface{}, total, page, limit int) PaginatedResponse {
	return PaginatedResponse{
		Data:       data,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}
}

// parsePagination reads page and limit, falling back to page 1 of 100
func parsePagination(r *http.Request) (page, limit, offset int) {
	page, limit = 1, defaultPageLimit

	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= maxPageLimit {
		limit = l
	}
	return page, limit, (page - 1) * limit
}

// routeName returns the matched route template, e.g. /api/venues/{id}/score
func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// sendJSON sends a JSON response
func sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	response := ErrorResponse{
		Error:     http.StatusText(statusCode),
		Message:   message,
		Code:      statusCode,
		RequestID: logging.RequestID(r.Context()),
	}

	sendJSON(w, response, statusCode)
}

// handleError maps a service error onto a status code. Permanent input errors
// are passed through; anything else is logged and reported as a 500 with fallback.
func handleError(w http.ResponseWriter, r *http.Request, logger *logging.StructuredLogger, m *metrics.Collector, err error, fallback string) {
	endpoint := routeName(r)

	var valErr *models.ValidationError
	var notFound *models.NotFoundError
	var cfgErr *models.ConfigurationError

	switch {
	case errors.As(err, &valErr):
		m.RecordAPIError("validation_error", endpoint)
		sendError(w, r, valErr.Message, http.StatusBadRequest)
	case errors.As(err, &notFound):
		m.RecordAPIError("not_found", endpoint)
		sendError(w, r, notFound.Error(), http.StatusNotFound)
	case errors.As(err, &cfgErr):
		m.RecordAPIError("not_configured", endpoint)
		sendError(w, r, cfgErr.Error(), http.StatusNotFound)
	default:
		logger.Error(r.Context(), "[API_ERROR] Request failed", logging.Fields{
			"endpoint": endpoint,
			"method":   r.Method,
		}, err)
		m.RecordAPIError("internal_error", endpoint)
		sendError(w, r, fallback, http.StatusInternalServerError)
	}
}
