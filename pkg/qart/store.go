// Package qart stores job output as artifacts in S3-compatible storage.
package qart

import (
	"context"
	"strings"
	"time"
)

// Artifact is one stored output stream of a job.
type Artifact struct {
	Key          string    `json:"key"`
	JobID        string    `json:"jobId"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType"`
	LastModified time.Time `json:"lastModified"`
	// URL is a presigned download link, set by Presign.
	URL string `json:"url,omitempty"`
}

// Store keeps job output grouped by job id.
type Store interface {
	// Put stores content as the named file of a job and returns its key.
	Put(ctx context.Context, jobID, name, content string, labels map[string]string) (*Artifact, error)
	ListJob(ctx context.Context, jobID string) ([]*Artifact, error)
	Presign(ctx context.Context, key string, expiry time.Duration) (string, error)
	DeleteJob(ctx context.Context, jobID string) error
	EnsureBucket(ctx context.Context) error
}

// JobPrefix is the key prefix shared by all files of a job.
func JobPrefix(jobID string) string {
	return "jobs/" + jobID + "/"
}

func JobKey(jobID, name string) string {
	return JobPrefix(jobID) + name
}

// ContentType picks the stored content type from the file name.
func ContentType(name string) string {
	if strings.HasSuffix(name, ".json") {
		return "application/json"
	}
	return "text/plain; charset=utf-8"
}
