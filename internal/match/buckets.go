package match

import (
	"sort"

	"github.com/christopherklint97/allocr/internal/staffing"
)

// Buckets groups candidates by match percentage. Within a percentage,
// candidates keep the order they arrived in.
type Buckets struct {
	byPercent map[staffing.Percent][]staffing.Candidate
	count     int
}

func newBuckets() *Buckets {
	return &Buckets{byPercent: make(map[staffing.Percent][]staffing.Candidate)}
}

func (b *Buckets) add(c staffing.Candidate) {
	b.byPercent[c.MatchPercent] = append(b.byPercent[c.MatchPercent], c)
	b.count++
}

// Keys returns the percentages present, highest first.
func (b *Buckets) Keys() []staffing.Percent {
	keys := make([]staffing.Percent, 0, len(b.byPercent))
	for k := range b.byPercent {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] > keys[j] })
	return keys
}

// Get returns a copy of the candidates at percent p.
func (b *Buckets) Get(p staffing.Percent) []staffing.Candidate {
	src := b.byPercent[p]
	if src == nil {
		return nil
	}
	out := make([]staffing.Candidate, len(src))
	copy(out, src)
	return out
}

// Len is the number of candidates across all buckets.
func (b *Buckets) Len() int { return b.count }

// Flatten returns every candidate, highest percentage first.
func (b *Buckets) Flatten() []staffing.Candidate {
	out := make([]staffing.Candidate, 0, b.count)
	for _, k := range b.Keys() {
		out = append(out, b.byPercent[k]...)
	}
	return out
}

func (b *Buckets) clone() *Buckets {
	c := newBuckets()
	for k, v := range b.byPercent {
		c.byPercent[k] = append([]staffing.Candidate(nil), v...)
	}
	c.count = b.count
	return c
}
