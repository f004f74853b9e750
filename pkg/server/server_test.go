package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/hsne-clustering-service/pkg/clustering"
	"github.com/gilchrisn/hsne-clustering-service/pkg/hsne"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func square(rows [][]float64, cols int) *hsne.SparseMatrix {
	m := hsne.NewSparseMatrix(len(rows), cols)
	for i, row := range rows {
		for j, v := range row {
			if v != 0 {
				m.Append(i, j, v)
			}
		}
	}
	return m
}

// twoGroups is 8 points in two 4-cliques with 4 landmarks, each landmark
// owning two consecutive points. Every method labels it [0,0,0,0,1,1,1,1].
func twoGroups(t *testing.T) *hsne.Hierarchy {
	t.Helper()
	top := make([][]float64, 8)
	for i := range top {
		top[i] = make([]float64, 8)
		for j := range top[i] {
			if i != j && i/4 == j/4 {
				top[i][j] = 1.0 / 3
			}
		}
	}
	aoi := make([][]float64, 8)
	for i := range aoi {
		aoi[i] = make([]float64, 8)
		aoi[i][i/2] = 1
	}
	sub, err := hsne.NewSubScale(1, hsne.SubScaleData{
		TransitionMatrix: square([][]float64{
			{0, 1, 0, 0},
			{1, 0, 0, 0},
			{0, 0, 0, 1},
			{0, 0, 1, 0},
		}, 4),
		AreaOfInfluence: square(aoi, 8),
	})
	require.NoError(t, err)
	h, err := hsne.NewHierarchy(hsne.NewDataScale(square(top, 8)), sub)
	require.NoError(t, err)
	return h
}

func artifact(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, hsne.Encode(&buf, twoGroups(t), nil))
	return buf.Bytes()
}

func newTestServer(t *testing.T, settings map[string]interface{}) *Server {
	t.Helper()
	cfg := clustering.NewConfig()
	for k, v := range settings {
		cfg.Set(k, v)
	}
	s := New(cfg, zerolog.Nop())
	t.Cleanup(s.Close)
	return s
}

func do(t *testing.T, s *Server, method, target string, body io.Reader, contentType string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func upload(t *testing.T, s *Server) HierarchyInfo {
	t.Helper()
	rec, env := do(t, s, http.MethodPost, "/api/v1/hierarchies?name=groups", bytes.NewReader(artifact(t)), "application/octet-stream")
	require.Equal(t, http.StatusCreated, rec.Code, env.Error)
	var info HierarchyInfo
	require.NoError(t, json.Unmarshal(env.Data, &info))
	return info
}

func TestHealthAndPartitioners(t *testing.T) {
	s := newTestServer(t, nil)

	rec, env := do(t, s, http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec, env = do(t, s, http.MethodGet, "/api/v1/partitioners", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var data struct {
		Partitioners []string `json:"partitioners"`
		Default      string   `json:"default"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, clustering.PartitionerNames(), data.Partitioners)
	assert.Equal(t, "louvain", data.Default)
}

func TestUploadHierarchy(t *testing.T) {
	t.Run("Raw", func(t *testing.T) {
		s := newTestServer(t, nil)
		info := upload(t, s)
		assert.NotEmpty(t, info.ID)
		assert.Equal(t, "groups", info.Name)
		assert.Equal(t, 8, info.NumPoints)
		assert.Equal(t, 2, info.NumScales)
		require.Len(t, info.Scales, 2)
		assert.Equal(t, 4, info.Scales[1].Size)
		assert.Equal(t, 8, info.Scales[1].AreaOfInfluence)

		rec, env := do(t, s, http.MethodGet, "/api/v1/hierarchies/"+info.ID, nil, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		var got HierarchyInfo
		require.NoError(t, json.Unmarshal(env.Data, &got))
		assert.Equal(t, info.ID, got.ID)

		_, env = do(t, s, http.MethodGet, "/api/v1/hierarchies", nil, "")
		var all []HierarchyInfo
		require.NoError(t, json.Unmarshal(env.Data, &all))
		assert.Len(t, all, 1)
	})

	t.Run("Multipart", func(t *testing.T) {
		s := newTestServer(t, nil)
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("file", "groups.hsne")
		require.NoError(t, err)
		_, err = part.Write(artifact(t))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		rec, env := do(t, s, http.MethodPost, "/api/v1/hierarchies", &body, mw.FormDataContentType())
		require.Equal(t, http.StatusCreated, rec.Code, env.Error)
		var info HierarchyInfo
		require.NoError(t, json.Unmarshal(env.Data, &info))
		assert.Equal(t, "groups.hsne", info.Name)
	})

	t.Run("Truncated", func(t *testing.T) {
		s := newTestServer(t, nil)
		data := artifact(t)
		rec, env := do(t, s, http.MethodPost, "/api/v1/hierarchies", bytes.NewReader(data[:len(data)/2]), "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.False(t, env.Success)
		assert.Contains(t, env.Error, "truncated")
	})

	t.Run("TooLarge", func(t *testing.T) {
		s := newTestServer(t, map[string]interface{}{"server.max_upload_bytes": 32})
		rec, _ := do(t, s, http.MethodPost, "/api/v1/hierarchies", bytes.NewReader(artifact(t)), "")
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("DecodesTooLarge", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "groups.hsne.zst")
		require.NoError(t, hsne.EncodeFile(path, twoGroups(t), hsne.CompressionZstd, nil))
		data, err := os.ReadFile(path)
		require.NoError(t, err)

		s := newTestServer(t, map[string]interface{}{"parser.max_decoded_bytes": 64})
		rec, env := do(t, s, http.MethodPost, "/api/v1/hierarchies", bytes.NewReader(data), "")
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Contains(t, env.Error, "too large")

		s = newTestServer(t, nil)
		rec, env = do(t, s, http.MethodPost, "/api/v1/hierarchies", bytes.NewReader(data), "")
		assert.Equal(t, http.StatusCreated, rec.Code, env.Error)
	})
}

func TestDeleteHierarchy(t *testing.T) {
	s := newTestServer(t, nil)
	info := upload(t, s)

	rec, _ := do(t, s, http.MethodDelete, "/api/v1/hierarchies/"+info.ID, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/api/v1/hierarchies/"+info.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = do(t, s, http.MethodDelete, "/api/v1/hierarchies/"+info.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetScaleLabels(t *testing.T) {
	want := []int{0, 0, 0, 0, 1, 1, 1, 1}

	for _, partitioner := range clustering.PartitionerNames() {
		s := newTestServer(t, map[string]interface{}{"algorithm.partitioner": partitioner})
		info := upload(t, s)

		for _, query := range []string{"", "?method=cluster", "?method=LABEL"} {
			t.Run(partitioner+query, func(t *testing.T) {
				rec, env := do(t, s, http.MethodGet, "/api/v1/hierarchies/"+info.ID+"/scales/1/labels"+query, nil, "")
				require.Equal(t, http.StatusOK, rec.Code, env.Error)
				var got LabelsResponse
				require.NoError(t, json.Unmarshal(env.Data, &got))
				assert.Equal(t, want, got.Labels)
				assert.Equal(t, 1, got.Scale)
				assert.Equal(t, partitioner, got.Partitioner)
			})
		}
	}
}

func TestGetScaleAgreement(t *testing.T) {
	s := newTestServer(t, nil)
	info := upload(t, s)

	rec, env := do(t, s, http.MethodGet, "/api/v1/hierarchies/"+info.ID+"/scales/1/agreement", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, env.Error)
	var got clustering.Agreement
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.InDelta(t, 1, got.NMI, 1e-12)
	assert.InDelta(t, 1, got.ARI, 1e-12)
	assert.Equal(t, 2, got.ClustersA)

	rec, _ = do(t, s, http.MethodGet, "/api/v1/hierarchies/"+info.ID+"/scales/0/agreement", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetScaleLabelsErrors(t *testing.T) {
	s := newTestServer(t, nil)
	info := upload(t, s)
	base := "/api/v1/hierarchies/" + info.ID + "/scales/"

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"InvalidScale", base + "7/labels", http.StatusNotFound},
		{"InvalidMethod", base + "1/labels?method=kmeans", http.StatusBadRequest},
		{"UnknownHierarchy", "/api/v1/hierarchies/nope/scales/1/labels", http.StatusNotFound},
		{"NonNumericScale", base + "one/labels", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := do(t, s, http.MethodGet, tt.target, nil, "")
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestClusteringJob(t *testing.T) {
	s := newTestServer(t, nil)
	info := upload(t, s)

	rec, env := do(t, s, http.MethodPost, "/api/v1/hierarchies/"+info.ID+"/jobs",
		bytes.NewReader([]byte(`{"method":"label","parallel":true}`)), "application/json")
	require.Equal(t, http.StatusAccepted, rec.Code, env.Error)
	var job Job
	require.NoError(t, json.Unmarshal(env.Data, &job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "label", job.Method)

	rec, env = do(t, s, http.MethodGet, "/api/v1/jobs/"+job.ID+"?wait=true", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &job))
	assert.Equal(t, JobStatusCompleted, job.Status, job.Error)
	assert.Equal(t, [][]int{{0}, {0}, {0}, {0}, {1}, {1}, {1}, {1}}, job.Labels)

	// Cancelling a finished job leaves it completed.
	rec, env = do(t, s, http.MethodDelete, "/api/v1/jobs/"+job.ID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &job))
	assert.Equal(t, JobStatusCompleted, job.Status)
}

func TestClusteringJobErrors(t *testing.T) {
	s := newTestServer(t, nil)
	info := upload(t, s)

	rec, _ := do(t, s, http.MethodPost, "/api/v1/hierarchies/"+info.ID+"/jobs",
		bytes.NewReader([]byte(`{"method":"kmeans"}`)), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, s, http.MethodPost, "/api/v1/hierarchies/"+info.ID+"/jobs",
		bytes.NewReader([]byte(`{`)), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, s, http.MethodPost, "/api/v1/hierarchies/missing/jobs", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/api/v1/jobs/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = do(t, s, http.MethodDelete, "/api/v1/jobs/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, map[string]interface{}{"server.allowed_origins": []string{"http://localhost:3000"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/hierarchies", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.loggingMiddleware(s.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.False(t, env.Success)
}
