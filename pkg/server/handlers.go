package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/gilchrisn/hsne-clustering-service/pkg/clustering"
	"github.com/gilchrisn/hsne-clustering-service/pkg/hsne"
)

// HealthCheck reports liveness and the number of stored objects.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, r, http.StatusOK, "Service is healthy", map[string]interface{}{
		"status":      "ok",
		"hierarchies": s.hierarchies.len(),
		"jobs":        s.jobs.len(),
		"time":        time.Now().UTC(),
	})
}

// ListPartitioners lists the community detection backends.
func (s *Server) ListPartitioners(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, r, http.StatusOK, "Partitioners retrieved successfully", map[string]interface{}{
		"partitioners": clustering.PartitionerNames(),
		"default":      s.cfg.Partitioner(),
		"methods":      []clustering.Method{clustering.MethodCluster, clustering.MethodLabel},
	})
}

// UploadHierarchy parses an artifact from the request body. The body is
// either the raw artifact or a multipart form with the artifact in "file".
func (s *Server) UploadHierarchy(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes())

	name := r.URL.Query().Get("name")
	var body io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, uploadStatus(err, http.StatusBadRequest), "Missing artifact file", err)
			return
		}
		defer file.Close()
		body = file
		if name == "" {
			name = header.Filename
		}
	}
	if name == "" {
		name = "unnamed"
	}

	h, err := hsne.ParseFramed(body,
		hsne.WithLogger(*logger),
		hsne.WithStrictSizes(s.cfg.StrictSizes()),
		hsne.WithMaxDecodedBytes(s.cfg.MaxDecodedBytes()),
	)
	if err != nil {
		logger.Error().Err(err).Str("name", name).Msg("Hierarchy upload failed")
		writeError(w, r, uploadStatus(err, statusFor(err)), "Invalid hierarchy artifact", err)
		return
	}

	info := s.hierarchies.add(name, h)
	logger.Info().
		Str("hierarchy_id", info.ID).
		Str("name", name).
		Int("scales", info.NumScales).
		Int("points", info.NumPoints).
		Msg("Hierarchy uploaded")
	writeSuccess(w, r, http.StatusCreated, "Hierarchy uploaded successfully", info)
}

func uploadStatus(err error, fallback int) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || errors.Is(err, hsne.ErrInputTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return fallback
}

// ListHierarchies lists every stored hierarchy.
func (s *Server) ListHierarchies(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, r, http.StatusOK, "Hierarchies retrieved successfully", s.hierarchies.list())
}

// GetHierarchy describes one stored hierarchy.
func (s *Server) GetHierarchy(w http.ResponseWriter, r *http.Request) {
	e, err := s.hierarchies.get(mux.Vars(r)["hierarchyId"])
	if err != nil {
		writeError(w, r, http.StatusNotFound, "Hierarchy not found", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, "Hierarchy retrieved successfully", e.info)
}

// DeleteHierarchy forgets a stored hierarchy. Running jobs keep their copy.
func (s *Server) DeleteHierarchy(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["hierarchyId"]
	if !s.hierarchies.remove(id) {
		writeError(w, r, http.StatusNotFound, "Hierarchy not found", nil)
		return
	}
	zerolog.Ctx(r.Context()).Info().Str("hierarchy_id", id).Msg("Hierarchy deleted")
	writeSuccess(w, r, http.StatusOK, "Hierarchy deleted successfully", nil)
}

// GetScaleLabels clusters one scale synchronously and returns a label per
// data point. The method defaults to the configured one.
func (s *Server) GetScaleLabels(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	e, err := s.hierarchies.get(vars["hierarchyId"])
	if err != nil {
		writeError(w, r, http.StatusNotFound, "Hierarchy not found", err)
		return
	}
	scale, err := strconv.Atoi(vars["scale"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid scale", err)
		return
	}
	method, err := s.method(r.URL.Query().Get("method"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid method", err)
		return
	}

	c, err := s.clusterer(r, e)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Partitioner unavailable", err)
		return
	}
	labels, err := c.ClusterScale(r.Context(), scale, method)
	if err != nil {
		writeError(w, r, statusFor(err), "Clustering failed", err)
		return
	}

	writeSuccess(w, r, http.StatusOK, "Labels computed successfully", LabelsResponse{
		HierarchyID: e.info.ID,
		Scale:       scale,
		Method:      string(method),
		Partitioner: s.cfg.Partitioner(),
		Labels:      labels,
	})
}

// GetScaleAgreement reports how far the cluster and label methods agree
// on one sub-scale.
func (s *Server) GetScaleAgreement(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	e, err := s.hierarchies.get(vars["hierarchyId"])
	if err != nil {
		writeError(w, r, http.StatusNotFound, "Hierarchy not found", err)
		return
	}
	scale, err := strconv.Atoi(vars["scale"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid scale", err)
		return
	}
	c, err := s.clusterer(r, e)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Partitioner unavailable", err)
		return
	}
	agreement, err := c.CompareMethods(r.Context(), scale)
	if err != nil {
		writeError(w, r, statusFor(err), "Comparison failed", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, "Agreement computed successfully", agreement)
}

// StartClusteringJob clusters every sub-scale of a hierarchy in the background.
func (s *Server) StartClusteringJob(w http.ResponseWriter, r *http.Request) {
	e, err := s.hierarchies.get(mux.Vars(r)["hierarchyId"])
	if err != nil {
		writeError(w, r, http.StatusNotFound, "Hierarchy not found", err)
		return
	}

	var req ClusterRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	method, err := s.method(req.Method)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid method", err)
		return
	}
	c, err := s.clusterer(r, e)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Partitioner unavailable", err)
		return
	}

	parallel := req.Parallel || s.cfg.Parallel()
	job := s.jobs.submit(e.info.ID, method, func(ctx context.Context) (*clustering.ScaleLabels, error) {
		return c.ClusterAll(ctx, method, parallel, s.cfg.NumWorkers())
	})
	writeSuccess(w, r, http.StatusAccepted, "Clustering job started", job)
}

// GetJob reports the state of a job, including labels once it completes.
// With ?wait=true the request blocks until the job finishes.
func (s *Server) GetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["jobId"]
	var (
		job Job
		err error
	)
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		job, err = s.jobs.wait(r.Context(), id)
	} else {
		job, err = s.jobs.get(id)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		writeError(w, r, http.StatusRequestTimeout, "Gave up waiting for job", err)
		return
	}
	if err != nil {
		writeError(w, r, http.StatusNotFound, "Job not found", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, "Job retrieved successfully", job)
}

// CancelJob stops a queued or running job.
func (s *Server) CancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.cancel(mux.Vars(r)["jobId"])
	if err != nil {
		writeError(w, r, http.StatusNotFound, "Job not found", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, "Job cancelled", job)
}

func (s *Server) method(raw string) (clustering.Method, error) {
	if raw == "" {
		raw = s.cfg.Method()
	}
	return clustering.ParseMethod(raw)
}

func (s *Server) clusterer(r *http.Request, e *storedHierarchy) (*clustering.Clusterer, error) {
	logger := zerolog.Ctx(r.Context()).With().Str("hierarchy_id", e.info.ID).Logger()
	p, err := clustering.NewPartitioner(s.cfg, logger)
	if err != nil {
		return nil, err
	}
	return clustering.NewClusterer(e.hierarchy, p, logger), nil
}
