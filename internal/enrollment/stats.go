package enrollment

import (
	"math"
	"strconv"
	"strings"

	types "github.com/yungbote/learnhub/internal/domain"
)

const recentLimit = 3

// Stats summarises a learner's enrollments for a dashboard.
type Stats struct {
	Total           int
	Completed       int
	AverageProgress int
	HoursLearned    int
	// Recent holds the most recently enrolled courses.
	Recent []*types.Enrollment
	// RecentlyCompleted holds completed enrollments in enrollment order.
	RecentlyCompleted []*types.Enrollment
}

// ComputeStats expects rows ordered most recently enrolled first.
func ComputeStats(rows []*types.Enrollment) Stats {
	s := Stats{
		Total:             len(rows),
		Recent:            []*types.Enrollment{},
		RecentlyCompleted: []*types.Enrollment{},
	}
	if len(rows) == 0 {
		return s
	}

	progressSum := 0
	hours := 0.0
	for _, e := range rows {
		progressSum += e.Progress
		if e.Course != nil {
			hours += float64(durationHours(e.Course.Duration)) * float64(e.Progress) / 100
		}
		if e.Completed() {
			s.Completed++
			if len(s.RecentlyCompleted) < recentLimit {
				s.RecentlyCompleted = append(s.RecentlyCompleted, e)
			}
		}
		if len(s.Recent) < recentLimit {
			s.Recent = append(s.Recent, e)
		}
	}
	s.AverageProgress = int(math.Round(float64(progressSum) / float64(len(rows))))
	s.HoursLearned = int(math.Round(hours))
	return s
}

// durationHours reads the leading integer of strings like "12 hours" or
// "8h".
// Anything unparseable counts as zero.
func durationHours(d string) int {
	fields := strings.Fields(d)
	if len(fields) == 0 {
		return 0
	}
	digits := fields[0]
	if i := strings.IndexFunc(digits, func(r rune) bool { return r < '0' || r > '9' }); i >= 0 {
		digits = digits[:i]
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}
