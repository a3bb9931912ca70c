package models

type ProgressUpdate struct {
	JobID    int64     `json:"job_id"`
	Title    string    `json:"title"`
	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`
	Message  string    `json:"message"`
	Done     bool      `json:"done"`
}
