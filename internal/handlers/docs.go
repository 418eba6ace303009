package handlers

import (
	"encoding/json"
	"net/http"
)

func intParam(name, description string) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    true,
		"schema":      map[string]string{"type": "integer"},
	}
}

func pathParam(name, description string) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"in":          "path",
		"description": description,
		"required":    true,
		"schema":      map[string]string{"type": "string"},
	}
}

func jsonBody(schemaRef string) map[string]interface{} {
	return map[string]interface{}{
		"required": true,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]string{"$ref": "#/components/schemas/" + schemaRef},
			},
		},
	}
}

func jsonResponse(description, schemaRef string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]string{"$ref": "#/components/schemas/" + schemaRef},
			},
		},
	}
}

var errorResponses = map[string]interface{}{
	"400": jsonResponse("Invalid argument", "Error"),
	"404": jsonResponse("Dataset, archive or observation not found", "Error"),
	"422": jsonResponse("Nothing to aggregate", "Error"),
	"500": jsonResponse("Internal error", "Error"),
}

func withErrors(responses map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(responses)+len(errorResponses))
	for code, resp := range errorResponses {
		out[code] = resp
	}
	for code, resp := range responses {
		out[code] = resp
	}
	return out
}

var datasetID = pathParam("id", "Dataset id returned by POST /api/datasets")

// OpenAPISpec returns the OpenAPI 3.0 specification for the Rainfall Archive API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "Rainfall Archive API",
			"description": "Load wide-format rainfall tables, query and edit monthly values, archive snapshots and compute moving averages",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": map[string]interface{}{
			"/api/datasets": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":     "Load a dataset",
					"description": "Load a wide-format CSV from the data directory into memory",
					"requestBody": jsonBody("OpenDatasetRequest"),
					"responses":   withErrors(map[string]interface{}{"201": jsonResponse("Dataset loaded", "Dataset")}),
				},
				"get": map[string]interface{}{
					"summary":   "List loaded datasets",
					"responses": map[string]interface{}{"200": jsonResponse("Loaded datasets", "DatasetList")},
				},
			},
			"/api/datasets/{id}": map[string]interface{}{
				"delete": map[string]interface{}{
					"summary":    "Unload a dataset",
					"parameters": []interface{}{datasetID},
					"responses":  withErrors(map[string]interface{}{"204": map[string]string{"description": "Dataset unloaded"}}),
				},
			},
			"/api/datasets/{id}/average": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Average rainfall over a month range",
					"description": "Mean of the present values for months start_month..end_month of year",
					"parameters": []interface{}{
						datasetID,
						intParam("start_month", "First month, 1-12"),
						intParam("end_month", "Last month, 1-12, inclusive"),
						intParam("year", "Year"),
					},
					"responses": withErrors(map[string]interface{}{"200": jsonResponse("Average", "Average")}),
				},
			},
			"/api/datasets/{id}/rainfall": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":    "Get one monthly value",
					"parameters": []interface{}{datasetID, intParam("month", "Month, 1-12"), intParam("year", "Year")},
					"responses":  withErrors(map[string]interface{}{"200": jsonResponse("Observation", "Observation")}),
				},
				"put": map[string]interface{}{
					"summary":     "Set one monthly value",
					"description": "Overwrites an existing value in place or appends a new observation",
					"parameters":  []interface{}{datasetID},
					"requestBody": jsonBody("Observation"),
					"responses":   withErrors(map[string]interface{}{"200": jsonResponse("Stored observation", "Observation")}),
				},
				"delete": map[string]interface{}{
					"summary":     "Clear one monthly value",
					"description": "The observation stays but its value becomes absent",
					"parameters":  []interface{}{datasetID, intParam("month", "Month, 1-12"), intParam("year", "Year")},
					"responses":   withErrors(map[string]interface{}{"204": map[string]string{"description": "Value cleared"}}),
				},
			},
			"/api/datasets/{id}/quarters/{quarter}": map[string]interface{}{
				"put": map[string]interface{}{
					"summary":     "Set the three months of a quarter",
					"description": "winter, spring, summer and autumn start at months 1, 4, 7 and 10",
					"parameters":  []interface{}{datasetID, pathParam("quarter", "winter, spring, summer or autumn")},
					"requestBody": jsonBody("QuarterRequest"),
					"responses":   withErrors(map[string]interface{}{"200": jsonResponse("Stored quarter", "Quarter")}),
				},
			},
			"/api/datasets/{id}/archive": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":    "Append the dataset to the archive",
					"parameters": []interface{}{datasetID},
					"responses":  withErrors(map[string]interface{}{"200": jsonResponse("Rows appended", "ArchiveResult")}),
				},
				"delete": map[string]interface{}{
					"summary":     "Purge the dataset's years from the archive",
					"description": "Removes every archived row whose year appears in the dataset, whatever its month",
					"parameters":  []interface{}{datasetID},
					"responses":   withErrors(map[string]interface{}{"200": jsonResponse("Rows removed", "ArchiveResult")}),
				},
				"put": map[string]interface{}{
					"summary":    "Purge the dataset's years, then append the dataset",
					"parameters": []interface{}{datasetID},
					"responses":  withErrors(map[string]interface{}{"200": jsonResponse("Years replaced", "ArchiveResult")}),
				},
			},
			"/api/archive/sma": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Simple moving average over the archive",
					"description": "Archive rows are filtered to the year range first, then averaged over every full trailing window",
					"parameters": []interface{}{
						intParam("start_year", "First year, inclusive"),
						intParam("end_year", "Last year, inclusive"),
						intParam("window", "Window size, at least 1"),
					},
					"responses": withErrors(map[string]interface{}{"200": jsonResponse("Moving average", "MovingAverage")}),
				},
			},
			"/health": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":   "Health check",
					"responses": map[string]interface{}{"200": map[string]string{"description": "API is healthy"}},
				},
			},
			"/metrics": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Prometheus metrics",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Prometheus metrics in text format",
							"content": map[string]interface{}{
								"text/plain": map[string]interface{}{
									"schema": map[string]string{"type": "string"},
								},
							},
						},
					},
				},
			},
		},
		"components": map[string]interface{}{
			"schemas": map[string]interface{}{
				"Error": object(map[string]interface{}{
					"error":   typed("string"),
					"message": typed("string"),
					"code":    typed("integer"),
				}),
				"OpenDatasetRequest": object(map[string]interface{}{
					"name": typed("string"),
				}),
				"Dataset": object(map[string]interface{}{
					"id":            typed("string"),
					"name":          typed("string"),
					"observations":  typed("integer"),
					"years":         arrayOf("integer"),
					"rows_rejected": typed("integer"),
					"loaded_at":     map[string]string{"type": "string", "format": "date-time"},
				}),
				"DatasetList": map[string]interface{}{
					"type":  "array",
					"items": map[string]string{"$ref": "#/components/schemas/Dataset"},
				},
				"Observation": object(map[string]interface{}{
					"year":     typed("integer"),
					"month":    typed("integer"),
					"rainfall": map[string]interface{}{"type": "number", "nullable": true},
				}),
				"Average": object(map[string]interface{}{
					"year":        typed("integer"),
					"start_month": typed("integer"),
					"end_month":   typed("integer"),
					"average":     typed("number"),
				}),
				"QuarterRequest": object(map[string]interface{}{
					"year":     typed("integer"),
					"rainfall": arrayOf("number"),
				}),
				"Quarter": object(map[string]interface{}{
					"quarter":  typed("string"),
					"year":     typed("integer"),
					"months":   arrayOf("integer"),
					"rainfall": arrayOf("number"),
				}),
				"ArchiveResult": object(map[string]interface{}{
					"archive": typed("string"),
					"years":   arrayOf("integer"),
					"removed": typed("integer"),
					"written": typed("integer"),
				}),
				"MovingAverage": object(map[string]interface{}{
					"start_year":   typed("integer"),
					"end_year":     typed("integer"),
					"window":       typed("integer"),
					"observations": typed("integer"),
					"points": map[string]interface{}{
						"type": "array",
						"items": object(map[string]interface{}{
							"year":  typed("integer"),
							"month": typed("integer"),
							"value": typed("number"),
						}),
					},
				}),
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}

func typed(t string) map[string]string {
	return map[string]string{"type": t}
}

func arrayOf(t string) map[string]interface{} {
	return map[string]interface{}{"type": "array", "items": typed(t)}
}

func object(properties map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": properties}
}
