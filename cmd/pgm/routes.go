package main

import (
	"github.com/gorilla/mux"

	"github.com/edp1096/toy-powerflow/pkg/analysis"
)

// RouteManager owns the HTTP routes of the server.
type RouteManager struct {
	Router *mux.Router
}

func NewRouteManager() *RouteManager {
	return &RouteManager{Router: mux.NewRouter()}
}

func (rm *RouteManager) Setup() {
	r := rm.Router

	r.HandleFunc("/health", rm.healthHandler).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/power-flow", rm.calculationHandler(analysis.PowerFlow)).Methods("POST")
	api.HandleFunc("/state-estimation", rm.calculationHandler(analysis.StateEstimation)).Methods("POST")
	api.HandleFunc("/batch", rm.batchHandler).Methods("POST")
	api.HandleFunc("/validate", rm.validateHandler).Methods("POST")
}
