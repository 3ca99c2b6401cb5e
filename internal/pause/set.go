package pause

import (
	"time"

	"github.com/tiffinbox/backend/internal/calendar"
)

// Set is a read-only collection of paused dates keyed by ISO date.
type Set map[string]struct{}

func NewSet(dates ...time.Time) Set {
	s := make(Set, len(dates))
	for _, d := range dates {
		s[calendar.Format(d)] = struct{}{}
	}
	return s
}

// Contains reports whether d is paused. A nil Set contains nothing.
func (s Set) Contains(d time.Time) bool {
	_, ok := s[calendar.Format(d)]
	return ok
}
