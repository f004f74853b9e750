package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *Server) setupRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.HealthCheck).Methods("GET")
	api.HandleFunc("/partitioners", s.ListPartitioners).Methods("GET")

	hierarchies := api.PathPrefix("/hierarchies").Subrouter()
	hierarchies.HandleFunc("", s.ListHierarchies).Methods("GET")
	hierarchies.HandleFunc("", s.UploadHierarchy).Methods("POST")
	hierarchies.HandleFunc("/{hierarchyId}", s.GetHierarchy).Methods("GET")
	hierarchies.HandleFunc("/{hierarchyId}", s.DeleteHierarchy).Methods("DELETE")
	hierarchies.HandleFunc("/{hierarchyId}/scales/{scale:[0-9]+}/labels", s.GetScaleLabels).Methods("GET")
	hierarchies.HandleFunc("/{hierarchyId}/scales/{scale:[0-9]+}/agreement", s.GetScaleAgreement).Methods("GET")
	hierarchies.HandleFunc("/{hierarchyId}/jobs", s.StartClusteringJob).Methods("POST")

	jobs := api.PathPrefix("/jobs").Subrouter()
	jobs.HandleFunc("/{jobId}", s.GetJob).Methods("GET")
	jobs.HandleFunc("/{jobId}", s.CancelJob).Methods("DELETE")

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "Route not found", nil)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})

	router.Use(s.loggingMiddleware)
	router.Use(s.recoveryMiddleware)
}
