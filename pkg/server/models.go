package server

import (
	"time"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ScaleInfo summarizes one scale of an uploaded hierarchy.
type ScaleInfo struct {
	Scale           int `json:"scale"`
	Size            int `json:"size"`
	NNZ             int `json:"nnz"`
	AreaOfInfluence int `json:"aoi_nnz,omitempty"`
}

// HierarchyInfo describes an uploaded hierarchy.
type HierarchyInfo struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	NumPoints  int         `json:"num_points"`
	NumScales  int         `json:"num_scales"`
	Scales     []ScaleInfo `json:"scales"`
	UploadedAt time.Time   `json:"uploaded_at"`
}

// LabelsResponse carries the labels of one scale.
type LabelsResponse struct {
	HierarchyID string `json:"hierarchy_id"`
	Scale       int    `json:"scale"`
	Method      string `json:"method"`
	Partitioner string `json:"partitioner"`
	Labels      []int  `json:"labels"`
}

// ClusterRequest is the body of a clustering job submission.
type ClusterRequest struct {
	Method   string `json:"method"`
	Parallel bool   `json:"parallel"`
}

// JobStatus is the lifecycle state of a clustering job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

func (s JobStatus) finished() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job is a snapshot of a clustering job. Labels holds one row per data
// point and one column per sub-scale once the job has completed.
type Job struct {
	ID          string    `json:"id"`
	HierarchyID string    `json:"hierarchy_id"`
	Method      string    `json:"method"`
	Status      JobStatus `json:"status"`
	Error       string    `json:"error,omitempty"`
	Labels      [][]int   `json:"labels,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
