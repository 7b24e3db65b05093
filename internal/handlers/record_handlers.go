package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"momentum-peaks/internal/calendar"
	"momentum-peaks/internal/models"
	"momentum-peaks/internal/repository"
	"momentum-peaks/internal/services"
	"momentum-peaks/pkg/logging"
	"momentum-peaks/pkg/metrics"
)

// VenueTotalChannel names the venue-total row in record paths
const VenueTotalChannel = "_venue"

// RecordHandler handles daily actuals and fiscal summary endpoints
type RecordHandler struct {
	recordService  *services.RecordService
	summaryService *services.SummaryService
	logger         *logging.StructuredLogger
	metrics        *metrics.Collector
}

// NewRecordHandler creates a new record handler
func NewRecordHandler(
	recordService *services.RecordService,
	summaryService *services.SummaryService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *RecordHandler {
	return &RecordHandler{
		recordService:  recordService,
		summaryService: summaryService,
		logger:         logger,
		metrics:        metricsCollector,
	}
}

// RecordRequest is the body of PUT /api/records
type RecordRequest struct {
	VenueID             string `json:"venue_id"`
	ChannelID           string `json:"channel_id"`
	Date                string `json:"date"`
	ActualSales         int64  `json:"actual_sales"`
	ActualCustomerCount int64  `json:"actual_customer_count"`
	FoodSales           int64  `json:"food_sales"`
	DrinkSales          int64  `json:"drink_sales"`
}

// GetRecords handles GET /api/records
func (h *RecordHandler) GetRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	page, limit, offset := parsePagination(r)

	filter := repository.RecordFilter{
		Limit:  limit,
		Offset: offset,
	}

	if venueID := q.Get("venue_id"); venueID != "" {
		venueID = strings.ToUpper(venueID)
		filter.VenueID = &venueID
	}
	if q.Has("channel_id") {
		channelID := q.Get("channel_id")
		if channelID == VenueTotalChannel {
			channelID = ""
		}
		filter.ChannelID = &channelID
	}

	var err error
	if filter.StartDate, err = optionalDate(r, "start_date"); err != nil {
		handleError(w, r, h.logger, h.metrics, err, "")
		return
	}
	if filter.EndDate, err = optionalDate(r, "end_date"); err != nil {
		handleError(w, r, h.logger, h.metrics, err, "")
		return
	}

	records, total, err := h.recordService.GetRecords(ctx, filter)
	if err != nil {
		handleError(w, r, h.logger, h.metrics, err, "failed to retrieve records")
		return
	}

	sendJSON(w, newPaginatedResponse(records, total, page, limit), http.StatusOK)
}

// PutRecord handles PUT /api/records
func (h *RecordHandler) PutRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RecordRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		sendError(w, r, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	date, err := calendar.ParseDate(req.Date)
	if err != nil {
		handleError(w, r, h.logger, h.metrics, err, "")
		return
	}

	rec := &models.DailyRecord{
		VenueID:             req.VenueID,
		ChannelID:           req.ChannelID,
		Date:                date,
		ActualSales:         req.ActualSales,
		ActualCustomerCount: req.ActualCustomerCount,
		FoodSales:           req.FoodSales,
		DrinkSales:          req.DrinkSales,
	}
	if err := h.recordService.UpsertRecord(ctx, rec); err != nil {
		handleError(w, r, h.logger, h.metrics, err, "failed to store record")
		return
	}

	sendJSON(w, rec, http.StatusOK)
}

// DeleteRecord handles DELETE /api/records/{venue}/{channel}/{date}.
// The channel segment _venue addresses the venue-total row.
func (h *RecordHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)

	date, err := calendar.ParseDate(vars["date"])
	if err != nil {
		handleError(w, r, h.logger, h.metrics, err, "")
		return
	}
	channelID := vars["channel"]
	if channelID == VenueTotalChannel {
		channelID = ""
	}

	if err := h.recordService.DeleteRecord(ctx, vars["venue"], channelID, date); err != nil {
		handleError(w, r, h.logger, h.metrics, err, "failed to delete record")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetSummaries handles GET /api/summaries
func (h *RecordHandler) GetSummaries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	page, limit, offset := parsePagination(r)

	filter := repository.SummaryFilter{
		Limit:  limit,
		Offset: offset,
	}

	if venueID := q.Get("venue_id"); venueID != "" {
		venueID = strings.ToUpper(venueID)
		filter.VenueID = &venueID
	}

	if yearStr := q.Get("fiscal_year"); yearStr != "" {
		year, err := strconv.Atoi(yearStr)
		if err != nil || year < 1900 || year > 2999 {
			sendError(w, r, "invalid fiscal_year, expected a four-digit year", http.StatusBadRequest)
			return
		}
		filter.FiscalYear = &year
	}

	summaries, total, err := h.summaryService.GetSummaries(ctx, filter)
	if err != nil {
		handleError(w, r, h.logger, h.metrics, err, "failed to retrieve summaries")
		return
	}

	sendJSON(w, newPaginatedResponse(summaries, total, page, limit), http.StatusOK)
}

// RegisterRoutes registers the record API routes
func (h *RecordHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/records", h.GetRecords).Methods("GET")
	router.HandleFunc("/api/records", h.PutRecord).Methods("PUT")
	router.HandleFunc("/api/records/{venue}/{channel}/{date}", h.DeleteRecord).Methods("DELETE")
	router.HandleFunc("/api/summaries", h.GetSummaries).Methods("GET")
}
