// Package report holds the consumer-side views of the lead list: the
// dashboard summary cards and the sortable table order.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/celerix-dev/celerix-leads/pkg/schema"
)

// RecentWindow is the span counted by Stats.Last24Hours.
const RecentWindow = 24 * time.Hour

// Stats are the four dashboard metric cards.
type Stats struct {
	Total       int `json:"total"`
	Last24Hours int `json:"last_24_hours"`
	HighScore   int `json:"high_score"`
	LowScore    int `json:"low_score"`
}

// Summarize computes Stats over leads as seen at now.
func Summarize(leads []schema.Lead, now time.Time) Stats {
	cutoff := now.Add(-RecentWindow)
	s := Stats{Total: len(leads)}
	for _, l := range leads {
		if l.Timestamp.After(cutoff) {
			s.Last24Hours++
		}
		if l.IsHighScore() {
			s.HighScore++
		} else {
			s.LowScore++
		}
	}
	return s
}

type Field string

const (
	ByName      Field = "name"
	ByScore     Field = "score"
	ByTimestamp Field = "timestamp"
)

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseField accepts name, score or timestamp; "" means timestamp.
func ParseField(s string) (Field, error) {
	switch f := Field(strings.ToLower(s)); f {
	case "":
		return ByTimestamp, nil
	case ByName, ByScore, ByTimestamp:
		return f, nil
	default:
		return "", fmt.Errorf("unknown sort field %q (want name, score or timestamp)", s)
	}
}

// ParseDirection accepts asc or desc; "" means desc.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(s)); d {
	case "":
		return Desc, nil
	case Asc, Desc:
		return d, nil
	default:
		return "", fmt.Errorf("unknown sort order %q (want asc or desc)", s)
	}
}

// Sort returns a sorted copy of leads. Ties keep insertion order.
func Sort(leads []schema.Lead, field Field, dir Direction) []schema.Lead {
	out := make([]schema.Lead, len(leads))
	copy(out, leads)

	cmp := func(a, b schema.Lead) int {
		switch field {
		case ByName:
			return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		case ByScore:
			return a.Score - b.Score
		default:
			return a.Timestamp.Compare(b.Timestamp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		c := cmp(out[i], out[j])
		if dir == Asc {
			return c < 0
		}
		return c > 0
	})
	return out
}
