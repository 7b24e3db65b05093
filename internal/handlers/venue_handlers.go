package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"momentum-peaks/internal/calendar"
	"momentum-peaks/internal/models"
	"momentum-peaks/internal/services"
	"momentum-peaks/pkg/logging"
	"momentum-peaks/pkg/metrics"
)

// VenueHandler handles venue, score and forecast endpoints
type VenueHandler struct {
	scoreService    *services.ScoreService
	forecastService *services.ForecastService
	logger          *logging.StructuredLogger
	metrics         *metrics.Collector
}

// NewVenueHandler creates a new venue handler
func NewVenueHandler(
	scoreService *services.ScoreService,
	forecastService *services.ForecastService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *VenueHandler {
	return &VenueHandler{
		scoreService:    scoreService,
		forecastService: forecastService,
		logger:          logger,
		metrics:         metricsCollector,
	}
}

// VenueSummary is the public view of a venue profile
type VenueSummary struct {
	ID          string           `json:"id"`
	DisplayName string           `json:"display_name"`
	Channels    []models.Channel `json:"channels"`
}

// ScoreResponse wraps a score. Score is null when the venue or month has no
// configured index, so clients can render a "no data" state.
type ScoreResponse struct {
	VenueID string              `json:"venue_id"`
	Date    string              `json:"date"`
	Score   *models.ScoreResult `json:"score"`
	Reason  string              `json:"reason,omitempty"`
}

// ScoreRangeResponse wraps the scores of a date range
type ScoreRangeResponse struct {
	VenueID string                `json:"venue_id"`
	From    string                `json:"from"`
	To      string                `json:"to"`
	Scores  []*models.ScoreResult `json:"scores"`
	Reason  string                `json:"reason,omitempty"`
}

// ListVenues handles GET /api/venues
func (h *VenueHandler) ListVenues(w http.ResponseWriter, r *http.Request) {
	profiles := h.scoreService.ListVenues()
	out := make([]VenueSummary, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, VenueSummary{ID: p.ID, DisplayName: p.DisplayName, Channels: p.Channels})
	}
	sendJSON(w, out, http.StatusOK)
}

// GetScore handles GET /api/venues/{id}/score?date=YYYY-MM-DD
func (h *VenueHandler) GetScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	venueID := strings.ToUpper(mux.Vars(r)["id"])

	date, err := requiredDate(r, "date")
	if err != nil {
		handleError(w, r, h.logger, h.metrics, err, "")
		return
	}

	resp := ScoreResponse{VenueID: venueID, Date: date.Format("2006-01-02")}
	res, err := h.scoreService.Score(ctx, venueID, date)
	var cfgErr *models.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		resp.Reason = cfgErr.Error()
	case err != nil:
		handleError(w, r, h.logger, h.metrics, err, "failed to compute score")
		return
	default:
		resp.Score = res
	}

	sendJSON(w, resp, http.StatusOK)
}

// GetScores handles GET /api/venues/{id}/scores?from=&to=
func (h *VenueHandler) GetScores(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	venueID := strings.ToUpper(mux.Vars(r)["id"])

	from, err := requiredDate(r, "from")
	if err != nil {
		handleError(w, r, h.logger, h.metrics, err, "")
		return
	}
	to, err := requiredDate(r, "to")
	if err != nil {
		handleError(w, r, h.logger, h.metrics, err, "")
		return
	}

	resp := ScoreRangeResponse{VenueID: venueID, From: from.Format("2006-01-02"), To: to.Format("2006-01-02")}
	results, err := h.scoreService.ScoreRange(ctx, venueID, from, to)
	var cfgErr *models.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		resp.Reason = cfgErr.Error()
	case err != nil:
		handleError(w, r, h.logger, h.metrics, err, "failed to compute scores")
		return
	default:
		resp.Scores = results
	}

	sendJSON(w, resp, http.StatusOK)
}

// GetForecast handles GET /api/venues/{id}/forecast?date=&channel=.
// Without channel the venue forecast with every channel is returned.
func (h *VenueHandler) GetForecast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	venueID := mux.Vars(r)["id"]

	date, err := requiredDate(r, "date")
	if err != nil {
		handleError(w, r, h.logger, h.metrics, err, "")
		return
	}

	if channelID := r.URL.Query().Get("channel"); channelID != "" {
		res, err := h.forecastService.ForecastChannel(ctx, venueID, channelID, date)
		if err != nil {
			handleError(w, r, h.logger, h.metrics, err, "failed to compute forecast")
			return
		}
		sendJSON(w, res, http.StatusOK)
		return
	}

	res, err := h.forecastService.ForecastVenue(ctx, venueID, date)
	if err != nil {
		handleError(w, r, h.logger, h.metrics, err, "failed to compute forecast")
		return
	}
	sendJSON(w, res, http.StatusOK)
}

// RegisterRoutes registers the venue API routes
func (h *VenueHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/venues", h.ListVenues).Methods("GET")
	router.HandleFunc("/api/venues/{id}/score", h.GetScore).Methods("GET")
	router.HandleFunc("/api/venues/{id}/scores", h.GetScores).Methods("GET")
	router.HandleFunc("/api/venues/{id}/forecast", h.GetForecast).Methods("GET")
}

func requiredDate(r *http.Request, param string) (time.Time, error) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return time.Time{}, &models.ValidationError{Field: param, Message: param + " is required (YYYY-MM-DD)"}
	}
	return calendar.ParseDate(raw)
}

func optionalDate(r *http.Request, param string) (*time.Time, error) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return nil, nil
	}
	d, err := calendar.ParseDate(raw)
	if err != nil {
		return nil, &models.ValidationError{Field: param, Value: raw, Message: "invalid " + param + " format, expected YYYY-MM-DD"}
	}
	return &d, nil
}
