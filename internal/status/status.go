// Package status maps a task's raw status id to a display label, a color,
// and a 0-100 progress value using the owning dashboard's status columns.
// Everything here is a pure function of its inputs: the authenticated and
// public views must independently compute identical numbers from the same
// settings document.
package status

import (
	"math"
	"strings"

	"trackline/api/internal/store"
)

const (
	doneColor    = "#22c55e"
	neutralColor = "#9ca3af"
)

// doneWords is the fallback vocabulary for tasks whose status id no longer
// exists in the dashboard configuration. Dashboards reconfigure and delete
// columns after tasks already reference them; those tasks must still render.
var doneWords = []string{"done", "validated", "final", "complete", "delivered", "approved", "closed"}

type Normalized struct {
	Label   string `json:"label"`
	Color   string `json:"color"`
	Percent int    `json:"progress"`
}

// Normalize resolves statusID against the ordered column list. A column's
// explicit percentage wins; otherwise progress is interpolated from its
// position, with a single-column dashboard counting as 100%.
func Normalize(statusID string, columns []store.StatusColumn) Normalized {
	for i, col := range columns {
		if col.ID != statusID {
			continue
		}
		percent := positional(i, len(columns))
		if col.Percent != nil {
			percent = clamp(*col.Percent)
		}
		return Normalized{Label: col.Label, Color: col.Color, Percent: percent}
	}
	return fallback(statusID)
}

func positional(index, total int) int {
	if total <= 1 {
		return 100
	}
	return int(math.Round(float64(index) / float64(total-1) * 100))
}

// fallback classifies a stale or foreign status id by containment match
// against a fixed vocabulary.
func fallback(statusID string) Normalized {
	lower := strings.ToLower(statusID)
	for _, word := range doneWords {
		if strings.Contains(lower, word) {
			return Normalized{Label: statusID, Color: doneColor, Percent: 100}
		}
	}
	return Normalized{Label: statusID, Color: neutralColor, Percent: 0}
}

func clamp(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
