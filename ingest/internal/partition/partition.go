// Package partition derives the storage key an event is appended under.
package partition

import (
	"fmt"
	"strings"
	"time"

	"github.com/lensai/lensai-stack/ingest/pkg/models"
)

// layouts accepted for Event.TS, tried in order. Layouts without a zone are read as UTC.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses an event timestamp and normalizes it to UTC.
func ParseTimestamp(ts string) (time.Time, error) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", ts)
}

// Key returns dt=YYYY-MM-DD/project_id=<id>/events-HH.ndjson for the event,
// with date and hour taken from ts in UTC.
func Key(ev *models.Event) (string, error) {
	t, err := ParseTimestamp(ev.TS)
	if err != nil {
		return "", models.NewValidationError(models.Issue{
			Code:     models.IssueInvalidDate,
			Path:     []string{"ts"},
			Message:  "Invalid date",
			Received: ev.TS,
		})
	}
	if strings.ContainsAny(ev.ProjectID, "/\x00") {
		return "", models.NewValidationError(models.Issue{
			Code:    models.IssueInvalidString,
			Path:    []string{"project_id"},
			Message: "project_id must not contain '/' or NUL",
		})
	}
	return ForTime(ev.ProjectID, t), nil
}

// ForTime builds the key for a project at instant t.
func ForTime(projectID string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("dt=%s/project_id=%s/events-%02d.ndjson", t.Format("2006-01-02"), projectID, t.Hour())
}
