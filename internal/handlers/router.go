package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"momentum-peaks/pkg/logging"
	"momentum-peaks/pkg/metrics"
)

// Routes groups the handlers mounted on the API router
type Routes struct {
	Venues  *VenueHandler
	Records *RecordHandler
	Health  *HealthHandler
	// Metrics serves /metrics; nil leaves it unmounted
	Metrics http.Handler
}

// NewRouter builds the API router with request IDs and instrumentation applied
func NewRouter(routes Routes, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *mux.Router {
	router := mux.NewRouter()
	router.Use(RequestID, Instrument(logger, metricsCollector))

	if routes.Venues != nil {
		routes.Venues.RegisterRoutes(router)
	}
	if routes.Records != nil {
		routes.Records.RegisterRoutes(router)
	}
	if routes.Health != nil {
		routes.Health.RegisterRoutes(router)
	}

	router.HandleFunc("/api/docs", SwaggerUI).Methods("GET")
	router.HandleFunc("/api/docs/openapi.json", OpenAPISpec).Methods("GET")

	if routes.Metrics != nil {
		router.Handle("/metrics", routes.Metrics)
	}

	return router
}
