package signals

import (
	"context"
	"math"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
)

// BehavioralProcessor flags the current event as anomalous when it
// deviates at least 2 standard deviations from the user's baseline on at
// least two numeric features, or when a categorical value (country,
// device) hasn't appeared in the user's recent event history at all.
// Confidence scales with how many observations the baseline rests on, so
// a two-week-old account's baseline carries less weight than a
// well-established one.
type BehavioralProcessor struct {
	minObservations int
	sigmaThreshold  float64
}

func NewBehavioralProcessor() *BehavioralProcessor {
	return &BehavioralProcessor{minObservations: 20, sigmaThreshold: 2.0}
}

func (p *BehavioralProcessor) Name() string { return "behavioral" }

func (p *BehavioralProcessor) Process(ctx context.Context, req Request) ([]domain.RiskSignal, error) {
	total := sumCounts(req.Profile.UsualHourCounts[:])
	if total < p.minObservations {
		return nil, nil // not enough baseline to call anything anomalous
	}

	deviatingFeatures := 0

	hourMean, hourStd := weightedMeanStd(hourValues[:], req.Profile.UsualHourCounts[:])
	if zScore(float64(req.Now.Hour()), hourMean, hourStd) >= p.sigmaThreshold {
		deviatingFeatures++
	}

	dayTotal := sumCounts(req.Profile.UsualDayCounts[:])
	if dayTotal >= p.minObservations {
		dayMean, dayStd := weightedMeanStd(dayValues[:], req.Profile.UsualDayCounts[:])
		if zScore(float64(req.Now.Weekday()), dayMean, dayStd) >= p.sigmaThreshold {
			deviatingFeatures++
		}
	}

	categoricalNovelty := hasUnseenCategory(req.Profile.RecentEvents, "country_code", req.AuthContext.LocationData.CountryCode) ||
		hasUnseenCategory(req.Profile.RecentEvents, "device_id", deviceIDOf(req.AuthContext))

	if deviatingFeatures < 2 && !categoricalNovelty {
		return nil, nil
	}

	// Confidence scales with the baseline's sample size: a thin history
	// (just past minObservations) can't support the same certainty as one
	// with hundreds of observations.
	confidence := math.Min(0.95, 0.4+float64(total)/200.0)

	value := 0.6
	if deviatingFeatures >= 2 {
		value = 0.75
	}
	if categoricalNovelty {
		value = math.Max(value, 0.7)
	}

	return []domain.RiskSignal{{
		Type:       "behavioral",
		Value:      value,
		Confidence: confidence,
		Timestamp:  req.Now,
	}}, nil
}

var (
	hourValues = [24]float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23}
	dayValues  = [7]float64{0, 1, 2, 3, 4, 5, 6}
)

func sumCounts(counts []int) int {
	var total int
	for _, c := range counts {
		total += c
	}
	return total
}

// weightedMeanStd computes the population mean and standard deviation of
// a histogram where values[i] occurred counts[i] times.
func weightedMeanStd(values []float64, counts []int) (mean, std float64) {
	total := sumCounts(counts)
	if total == 0 {
		return 0, 0
	}
	for i, c := range counts {
		mean += values[i] * float64(c)
	}
	mean /= float64(total)

	var variance float64
	for i, c := range counts {
		d := values[i] - mean
		variance += float64(c) * d * d
	}
	variance /= float64(total)
	return mean, math.Sqrt(variance)
}

// zScore returns how many standard deviations value sits from mean. A
// zero-variance baseline (every observation identical) is treated as an
// infinite deviation for any different value, and zero otherwise.
func zScore(value, mean, std float64) float64 {
	if std < 1e-9 {
		if value == mean {
			return 0
		}
		return math.Inf(1)
	}
	return math.Abs(value-mean) / std
}

func hasUnseenCategory(recent []domain.RecentEvent, key, current string) bool {
	if current == "" || len(recent) == 0 {
		return false
	}
	for _, ev := range recent {
		if ev.Category[key] == current {
			return false
		}
	}
	return true
}

func deviceIDOf(ac domain.AuthContext) string {
	id, _ := ac.DeviceData["device_id"].(string)
	return id
}
