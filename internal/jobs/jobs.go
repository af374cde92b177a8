// Package jobs tracks pipeline runs and orchestrates the concurrent
// source-by-country scan grid.
package jobs

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job statuses, in pipeline order. "failed" is terminal.
const (
	StatusQueued   = "queued"
	StatusRunning  = "running"
	StatusScanned  = "scanned"
	StatusEnriched = "enriched"
	StatusScored   = "scored"
	StatusExported = "exported"
	StatusFailed   = "failed"
)

// ScanParams records what a scan job was asked to do.
type ScanParams struct {
	Countries    []string `json:"countries"`
	Sources      []string `json:"sources"`
	SinceMonths  int      `json:"since_months"`
	MaxPerSource int      `json:"max_per_source"`
}

// Job is one tracked pipeline run.
type Job struct {
	ID        string             `json:"job_id"`
	Type      string             `json:"type"`
	Status    string             `json:"status"`
	StartedAt time.Time          `json:"started_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	Found     int                `json:"found"`
	Errors    int                `json:"errors"`
	Progress  map[string]float64 `json:"progress,omitempty"`
	Message   string             `json:"message,omitempty"`
	Params    *ScanParams        `json:"params,omitempty"`
}

func (j *Job) clone() Job {
	c := *j
	if j.Progress != nil {
		c.Progress = make(map[string]float64, len(j.Progress))
		for k, v := range j.Progress {
			c.Progress[k] = v
		}
	}
	if j.Params != nil {
		p := *j.Params
		p.Countries = append([]string(nil), j.Params.Countries...)
		p.Sources = append([]string(nil), j.Params.Sources...)
		c.Params = &p
	}
	return c
}

// Registry is the in-memory job table. All reads return copies.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*Job
	now  func() time.Time
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job), now: time.Now}
}

// NewID builds a job id like scan_20250830_141503_a1b2c3.
func (r *Registry) NewID(kind string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return kind + "_" + r.now().UTC().Format("20060102_150405") + "_" + suffix
}

// Create registers a new job in the given state and returns its id.
func (r *Registry) Create(kind, status string, params *ScanParams) string {
	id := r.NewID(kind)
	now := r.now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[id] = &Job{
		ID:        id,
		Type:      kind,
		Status:    status,
		StartedAt: now,
		UpdatedAt: now,
		Params:    params,
	}
	return id
}

// Get returns a copy of the job.
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return j.clone(), true
}

// Update runs fn against the job under the registry lock and bumps its
// updated timestamp.
func (r *Registry) Update(id string, fn func(*Job)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return false
	}
	fn(j)
	j.UpdatedAt = r.now().UTC()
	return true
}

// SetStatus moves a job to the given status.
func (r *Registry) SetStatus(id, status string) bool {
	return r.Update(id, func(j *Job) { j.Status = status })
}

// List returns every job, newest first.
func (r *Registry) List() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Len reports the number of tracked jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// Reset drops all jobs. Test and demo use only.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = make(map[string]*Job)
}
