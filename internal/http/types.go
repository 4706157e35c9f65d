package http

import "github.com/fyrsmithlabs/repodescribe/internal/pipeline"

// DescribeRequest is the request body for POST /api/v1/describe.
type DescribeRequest struct {
	// Repository accepts owner/name, github.com/owner/name or a full URL.
	Repository string `json:"repository"`
	Ref        string `json:"ref,omitempty"`
	Path       string `json:"path,omitempty"`
	Author     string `json:"author,omitempty"`
	Namespace  string `json:"namespace,omitempty"`
}

// DescribeResponse is the response body for POST /api/v1/describe. Report
// is present whenever the run started, including failed uploads.
type DescribeResponse struct {
	Report *pipeline.Report `json:"report,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
