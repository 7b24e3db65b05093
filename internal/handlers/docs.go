package handlers

import (
	"net/http"
)

type object = map[string]interface{}

func queryParam(name, description string, required bool, schema object) object {
	return object{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    required,
		"schema":      schema,
	}
}

func pathParam(name, description string) object {
	return object{
		"name":        name,
		"in":          "path",
		"description": description,
		"required":    true,
		"schema":      object{"type": "string"},
	}
}

func jsonResponse(description, ref string) object {
	return object{
		"description": description,
		"content": object{
			"application/json": object{"schema": object{"$ref": "#/components/schemas/" + ref}},
		},
	}
}

var (
	dateSchema    = object{"type": "string", "format": "date"}
	errorResponse = jsonResponse("Error", "Error")
	pageParams    = []object{
		queryParam("page", "Page number (default: 1)", false, object{"type": "integer", "default": 1}),
		queryParam("limit", "Rows per page (default: 100, max: 1000)", false, object{"type": "integer", "default": 100}),
	}
)

func openAPIDocument() object {
	venueID := pathParam("id", "Venue ID, e.g. MOIWAYAMA")

	return object{
		"openapi": "3.0.0",
		"info": object{
			"title":       "Momentum Peaks API",
			"description": "Daily momentum scores and sales forecasts for sightseeing venues",
			"version":     "1.0.0",
		},
		"servers": []object{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": object{
			"/api/venues": object{
				"get": object{
					"summary": "List venues",
					"responses": object{
						"200": object{
							"description": "Configured venues",
							"content": object{"application/json": object{"schema": object{
								"type":  "array",
								"items": object{"$ref": "#/components/schemas/Venue"},
							}}},
						},
					},
				},
			},
			"/api/venues/{id}/score": object{
				"get": object{
					"summary":     "Momentum score of one day",
					"description": "score is null when the venue or month has no configured index",
					"parameters": []object{
						venueID,
						queryParam("date", "Day to score (YYYY-MM-DD)", true, dateSchema),
					},
					"responses": object{
						"200": jsonResponse("Score, possibly null", "ScoreResponse"),
						"400": errorResponse,
					},
				},
			},
			"/api/venues/{id}/scores": object{
				"get": object{
					"summary": "Momentum scores of a date range",
					"parameters": []object{
						venueID,
						queryParam("from", "First day (YYYY-MM-DD)", true, dateSchema),
						queryParam("to", "Last day, inclusive (YYYY-MM-DD)", true, dateSchema),
					},
					"responses": object{
						"200": jsonResponse("Scores", "ScoreRangeResponse"),
						"400": errorResponse,
					},
				},
			},
			"/api/venues/{id}/forecast": object{
				"get": object{
					"summary":     "Sales forecast",
					"description": "Venue forecast with every channel, or one channel when channel is given",
					"parameters": []object{
						venueID,
						queryParam("date", "Target day (YYYY-MM-DD)", true, dateSchema),
						queryParam("channel", "Channel ID", false, object{"type": "string"}),
					},
					"responses": object{
						"200": jsonResponse("Forecast", "Forecast"),
						"400": errorResponse,
						"404": errorResponse,
					},
				},
			},
			"/api/records": object{
				"get": object{
					"summary": "List daily actuals",
					"parameters": append([]object{
						queryParam("venue_id", "Filter by venue", false, object{"type": "string"}),
						queryParam("channel_id", "Filter by channel, _venue for venue totals", false, object{"type": "string"}),
						queryParam("start_date", "First day (YYYY-MM-DD)", false, dateSchema),
						queryParam("end_date", "Last day (YYYY-MM-DD)", false, dateSchema),
					}, pageParams...),
					"responses": object{
						"200": jsonResponse("Paginated records", "PaginatedResponse"),
						"400": errorResponse,
					},
				},
				"put": object{
					"summary": "Store or correct one day of actuals",
					"requestBody": object{
						"required": true,
						"content": object{
							"application/json": object{"schema": object{"$ref": "#/components/schemas/RecordRequest"}},
						},
					},
					"responses": object{
						"200": jsonResponse("Stored record", "DailyRecord"),
						"400": errorResponse,
					},
				},
			},
			"/api/records/{venue}/{channel}/{date}": object{
				"delete": object{
					"summary": "Delete one day of actuals",
					"parameters": []object{
						pathParam("venue", "Venue ID"),
						pathParam("channel", "Channel ID, _venue for venue totals"),
						pathParam("date", "Day (YYYY-MM-DD)"),
					},
					"responses": object{
						"204": object{"description": "Deleted"},
						"404": errorResponse,
					},
				},
			},
			"/api/summaries": object{
				"get": object{
					"summary": "Fiscal-year summaries",
					"parameters": append([]object{
						queryParam("venue_id", "Filter by venue", false, object{"type": "string"}),
						queryParam("fiscal_year", "Filter by fiscal year", false, object{"type": "integer"}),
					}, pageParams...),
					"responses": object{
						"200": jsonResponse("Paginated summaries", "PaginatedResponse"),
						"400": errorResponse,
					},
				},
			},
			"/health": object{
				"get": object{
					"summary": "Health check",
					"responses": object{
						"200": object{"description": "All dependencies healthy"},
						"503": object{"description": "A dependency is unhealthy"},
					},
				},
			},
		},
		"components": object{
			"schemas": object{
				"Venue": object{
					"type": "object",
					"properties": object{
						"id":           object{"type": "string"},
						"display_name": object{"type": "string"},
						"channels":     object{"type": "array", "items": object{"type": "object"}},
					},
				},
				"Score": object{
					"type": "object",
					"properties": object{
						"date":            dateSchema,
						"venue_id":        object{"type": "string"},
						"seasonal_index":  object{"type": "integer", "minimum": 1, "maximum": 5},
						"weekday_index":   object{"type": "integer", "minimum": 1, "maximum": 5},
						"visitor_index":   object{"type": "number"},
						"composite_score": object{"type": "number"},
						"level":           object{"type": "integer", "minimum": 1, "maximum": 5},
						"level_label":     object{"type": "string", "enum": []string{"PEAK", "HIGH", "MID", "LOW", "CALM"}},
						"positive_events": object{"type": "string"},
						"negative_events": object{"type": "string"},
					},
				},
				"ScoreResponse": object{
					"type": "object",
					"properties": object{
						"venue_id": object{"type": "string"},
						"date":     dateSchema,
						"score":    object{"$ref": "#/components/schemas/Score", "nullable": true},
						"reason":   object{"type": "string"},
					},
				},
				"ScoreRangeResponse": object{
					"type": "object",
					"properties": object{
						"venue_id": object{"type": "string"},
						"from":     dateSchema,
						"to":       dateSchema,
						"scores":   object{"type": "array", "nullable": true, "items": object{"$ref": "#/components/schemas/Score"}},
					},
				},
				"Forecast": object{
					"type": "object",
					"properties": object{
						"venue_id":                 object{"type": "string"},
						"channel_id":               object{"type": "string"},
						"target_date":              object{"type": "string", "format": "date-time"},
						"scheme":                   object{"type": "string", "enum": []string{"solar_term", "month"}},
						"target_period":            object{"type": "string"},
						"method":                   object{"type": "string", "enum": []string{"period_weekday", "trailing_flat"}},
						"predicted_customer_count": object{"type": "integer"},
						"predicted_average_spend":  object{"type": "integer"},
						"predicted_sales":          object{"type": "integer"},
						"match_count":              object{"type": "integer"},
					},
				},
				"DailyRecord": object{
					"type": "object",
					"properties": object{
						"venue_id":              object{"type": "string"},
						"channel_id":            object{"type": "string"},
						"date":                  object{"type": "string", "format": "date-time"},
						"actual_sales":          object{"type": "integer"},
						"actual_customer_count": object{"type": "integer"},
						"food_sales":            object{"type": "integer"},
						"drink_sales":           object{"type": "integer"},
						"weekday_label":         object{"type": "string", "example": "Sat"},
					},
				},
				"RecordRequest": object{
					"type":     "object",
					"required": []string{"venue_id", "date", "actual_sales", "actual_customer_count"},
					"properties": object{
						"venue_id":              object{"type": "string"},
						"channel_id":            object{"type": "string"},
						"date":                  dateSchema,
						"actual_sales":          object{"type": "integer", "minimum": 0},
						"actual_customer_count": object{"type": "integer", "minimum": 0},
						"food_sales":            object{"type": "integer", "minimum": 0},
						"drink_sales":           object{"type": "integer", "minimum": 0},
					},
				},
				"PaginatedResponse": object{
					"type": "object",
					"properties": object{
						"data":        object{"type": "array", "items": object{"type": "object"}},
						"total":       object{"type": "integer"},
						"page":        object{"type": "integer"},
						"limit":       object{"type": "integer"},
						"total_pages": object{"type": "integer"},
					},
				},
				"Error": object{
					"type": "object",
					"properties": object{
						"error":      object{"type": "string"},
						"message":    object{"type": "string"},
						"code":       object{"type": "integer"},
						"request_id": object{"type": "string"},
					},
				},
			},
		},
	}
}

// OpenAPISpec serves the OpenAPI 3.0 document of the API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, openAPIDocument(), http.StatusOK)
}
