package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter wires the API, documentation and metrics endpoints
func NewRouter(h *RainfallHandler, metricsHandler http.Handler) *mux.Router {
	router := mux.NewRouter()
	router.Use(RequestID, Instrument(h.metrics, h.logger))

	h.RegisterRoutes(router)

	router.HandleFunc("/api/docs/openapi.json", OpenAPISpec).Methods("GET")
	router.HandleFunc("/api/docs", SwaggerUI("Rainfall Archive API Documentation", "/api/docs/openapi.json")).Methods("GET")
	router.Handle("/metrics", metricsHandler).Methods("GET")

	return router
}
