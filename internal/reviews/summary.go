package reviews

import (
	"math"

	types "github.com/yungbote/learnhub/internal/domain"
)

// Bucket is one histogram row. Percent is rounded independently per bucket,
// so the five values need not sum to exactly 100.
type Bucket struct {
	Stars   int
	Count   int
	Percent int
}

// Summary is derived from a course's full review set.
type Summary struct {
	Total   int
	Average float64
	// Buckets runs from 5 stars down to 1.
	Buckets []Bucket
}

func Summarize(rows []*types.Review) Summary {
	var counts [6]int
	sum := 0
	for _, r := range rows {
		if r.Rating < 1 || r.Rating > 5 {
			continue
		}
		counts[r.Rating]++
		sum += r.Rating
	}
	total := counts[1] + counts[2] + counts[3] + counts[4] + counts[5]

	s := Summary{Total: total, Buckets: make([]Bucket, 0, 5)}
	if total > 0 {
		s.Average = float64(sum) / float64(total)
	}
	for stars := 5; stars >= 1; stars-- {
		b := Bucket{Stars: stars, Count: counts[stars]}
		if total > 0 {
			b.Percent = int(math.Round(float64(counts[stars]) / float64(total) * 100))
		}
		s.Buckets = append(s.Buckets, b)
	}
	return s
}

// Percent returns the histogram percentage for stars, or 0 outside 1-5.
func (s Summary) Percent(stars int) int {
	for _, b := range s.Buckets {
		if b.Stars == stars {
			return b.Percent
		}
	}
	return 0
}
