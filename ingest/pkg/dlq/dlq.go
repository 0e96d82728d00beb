// Package dlq records events that could not be persisted.
package dlq

import (
	"context"
	"strings"
	"time"

	"github.com/lensai/lensai-stack/ingest/pkg/models"
)

// Writer accepts events whose append failed after all retries.
type Writer interface {
	Write(ctx context.Context, key string, event *models.Event, err error, attempts int) error
}

// FailedEvent is the DLQ record for one event.
type FailedEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	Key       string        `json:"key"`
	Event     *models.Event `json:"event"`
	Error     string        `json:"error"`
	Reason    string        `json:"reason"`
	Attempts  int           `json:"attempts"`
}

// ProjectID returns the project of the failed event, or "" when the record carries none.
func (f FailedEvent) ProjectID() string {
	if f.Event == nil {
		return ""
	}
	return f.Event.ProjectID
}

// ReasonStoreError is the reason recorded for failed appends.
const ReasonStoreError = "store_error"

const subjectPrefix = "ingest.dlq."

// Subject returns the subject a record is published on:
// ingest.dlq.<reason>.<project token>.
func Subject(reason, projectID string) string {
	return subjectPrefix + SubjectToken(reason) + "." + SubjectToken(projectID)
}

// SubjectToken maps s onto a single NATS subject token. Characters outside
// [A-Za-z0-9_-] become '_', so distinct project ids may share a token.
func SubjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}

// Filter narrows List and Purge. Zero values match everything.
type Filter struct {
	Reason    string
	ProjectID string
}

// Subject returns the wildcard subject covering the filter.
func (f Filter) Subject() string {
	reason, project := "*", "*"
	if f.Reason != "" {
		reason = SubjectToken(f.Reason)
	}
	if f.ProjectID != "" {
		project = SubjectToken(f.ProjectID)
	}
	return subjectPrefix + reason + "." + project
}

// Match reports whether fe satisfies the filter exactly, resolving subject token collisions.
func (f Filter) Match(fe FailedEvent) bool {
	if f.Reason != "" && fe.Reason != f.Reason {
		return false
	}
	if f.ProjectID != "" && fe.ProjectID() != f.ProjectID {
		return false
	}
	return true
}

// Stats summarizes the queue.
type Stats struct {
	Enabled      bool              `json:"enabled"`
	Backend      string            `json:"backend"`
	WrittenLocal uint64            `json:"written_local"`
	Messages     uint64            `json:"total_messages"`
	Bytes        uint64            `json:"total_bytes"`
	ByReason     map[string]uint64 `json:"by_reason,omitempty"`
	ByProject    map[string]uint64 `json:"by_project,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// Fields flattens the stats for readiness output.
func (s Stats) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"enabled": s.Enabled,
		"backend": s.Backend,
	}
	if !s.Enabled {
		return fields
	}
	fields["written_local"] = s.WrittenLocal
	fields["total_messages"] = s.Messages
	fields["total_bytes"] = s.Bytes
	if s.Error != "" {
		fields["error"] = s.Error
	}
	return fields
}

// countSubjects folds per-subject message counts into per-reason and per-project totals.
// Project totals are keyed by subject token.
func countSubjects(subjects map[string]uint64) (byReason, byProject map[string]uint64) {
	byReason = make(map[string]uint64)
	byProject = make(map[string]uint64)
	for subject, n := range subjects {
		rest, ok := strings.CutPrefix(subject, subjectPrefix)
		if !ok {
			continue
		}
		reason, project, ok := strings.Cut(rest, ".")
		if !ok {
			continue
		}
		byReason[reason] += n
		byProject[project] += n
	}
	return byReason, byProject
}
