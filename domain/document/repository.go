package document

import (
	"maps"
	"time"
)

// Status is the lifecycle state of an analyzed repository.
type Status string

// Status values. Started is the only non-terminal state.
const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusError     Status = "error"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusError
}

// Repository is one analysis run over a repository.
type Repository struct {
	key          string
	url          string
	path         string
	commit       string
	status       Status
	analyzedTime time.Time
	extra        map[string]any
}

// NewRepository creates a Repository in the started state.
func NewRepository(url, path, commit string) Repository {
	return Repository{
		url:    url,
		path:   path,
		commit: commit,
		status: StatusStarted,
	}
}

// ReconstructRepository rebuilds a Repository from storage.
func ReconstructRepository(
	key, url, path, commit string,
	status Status,
	analyzedTime time.Time,
	extra map[string]any,
) Repository {
	return Repository{
		key:          key,
		url:          url,
		path:         path,
		commit:       commit,
		status:       status,
		analyzedTime: analyzedTime,
		extra:        extra,
	}
}

// Collection implements Document.
func (r Repository) Collection() string { return string(KindRepository) }

// Key implements Document.
func (r Repository) Key() string {
	if r.key != "" {
		return r.key
	}
	return RepositoryKey(r.url)
}

// URL returns the clone URL.
func (r Repository) URL() string { return r.url }

// Path returns the local checkout path.
func (r Repository) Path() string { return r.path }

// Commit returns the analyzed commit sha.
func (r Repository) Commit() string { return r.commit }

// Status returns the lifecycle state.
func (r Repository) Status() Status { return r.status }

// AnalyzedTime returns when the analysis reached a terminal state.
func (r Repository) AnalyzedTime() time.Time { return r.analyzedTime }

// Extra returns a copy of the opaque metadata.
func (r Repository) Extra() map[string]any {
	if r.extra == nil {
		return nil
	}
	return maps.Clone(r.extra)
}

// WithStatus returns a copy in the given state.
func (r Repository) WithStatus(s Status) Repository {
	r.status = s
	if s.IsTerminal() {
		r.analyzedTime = time.Now().UTC()
	}
	return r
}

// WithExtra returns a copy with extra merged into the existing metadata.
func (r Repository) WithExtra(extra map[string]any) Repository {
	merged := make(map[string]any, len(r.extra)+len(extra))
	maps.Copy(merged, r.extra)
	maps.Copy(merged, extra)
	r.extra = merged
	return r
}

// Payload implements Document.
func (r Repository) Payload() map[string]any {
	var analyzed any
	if !r.analyzedTime.IsZero() {
		analyzed = r.analyzedTime.Unix()
	}
	var extra any
	if len(r.extra) > 0 {
		extra = maps.Clone(r.extra)
	}
	return map[string]any{
		"_key":          r.Key(),
		"url":           r.url,
		"path":          nullable(r.path),
		"commit":        nullable(r.commit),
		"status":        string(r.status),
		"analyzed_time": analyzed,
		"extra":         extra,
	}
}
