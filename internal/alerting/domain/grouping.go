package alerting

import (
	"math"
	"sort"
	"time"

	reading "geomon-cloud/internal/readings/domain"
)

const hourKeyLayout = "2006-01-02-15"

// HourBucket aggregates the per-axis absolute maxima of all readings that
// fall inside one hour. Timestamp keeps the raw upstream timestamp of the
// first reading seen in the bucket; it is the dedup key for hourly checks.
type HourBucket struct {
	Key       string
	Start     time.Time
	Timestamp string
	Max       map[reading.Axis]float64
	Count     int
}

// GroupByHour buckets readings by hour in the given location and reduces
// each bucket to per-axis absolute maxima. Buckets are returned in
// chronological order.
func GroupByHour(readings []reading.Reading, loc *time.Location) []HourBucket {
	if loc == nil {
		loc = time.UTC
	}
	byKey := make(map[string]*HourBucket)
	for _, r := range readings {
		if r.At.IsZero() {
			continue
		}
		local := r.At.In(loc)
		key := local.Format(hourKeyLayout)
		bucket, ok := byKey[key]
		if !ok {
			bucket = &HourBucket{
				Key:       key,
				Start:     local.Truncate(time.Hour),
				Timestamp: r.Timestamp,
				Max:       make(map[reading.Axis]float64),
			}
			byKey[key] = bucket
		}
		for axis, value := range r.Values {
			abs := math.Abs(value)
			if abs > bucket.Max[axis] {
				bucket.Max[axis] = abs
			}
		}
		bucket.Count++
	}

	buckets := make([]HourBucket, 0, len(byKey))
	for _, bucket := range byKey {
		buckets = append(buckets, *bucket)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Start.Before(buckets[j].Start) })
	return buckets
}
