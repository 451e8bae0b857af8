package domain

// DownloadRequest represents the request body for POST /download.
type DownloadRequest struct {
	VideoURL string `json:"videoUrl"`
}

// JobListResponse is returned by GET /jobs.
type JobListResponse struct {
	Jobs []*Job `json:"jobs"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status     string `json:"status"`
	ActiveJobs int    `json:"active_jobs"`
	Observers  int    `json:"observers"`
}
