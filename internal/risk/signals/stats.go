package signals

import "time"

// meanVariance returns the arithmetic mean and population variance of xs.
// It reports ok=false for an empty input.
func meanVariance(xs []float64) (mean, variance float64, ok bool) {
	if len(xs) == 0 {
		return 0, 0, false
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs))
	return mean, variance, true
}

// intervalsMS returns consecutive differences in milliseconds.
func intervalsMS(samples []time.Time) []float64 {
	if len(samples) < 2 {
		return nil
	}
	out := make([]float64, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		out = append(out, msBetween(samples[i-1], samples[i]))
	}
	return out
}

// offsetsMS expresses each sample in milliseconds after the earliest one so
// that variance stays precise; variance is translation invariant.
func offsetsMS(samples []time.Time) []float64 {
	if len(samples) == 0 {
		return nil
	}
	origin := samples[0]
	for _, t := range samples[1:] {
		if t.Before(origin) {
			origin = t
		}
	}
	out := make([]float64, len(samples))
	for i, t := range samples {
		out[i] = msBetween(origin, t)
	}
	return out
}

func msBetween(from, to time.Time) float64 {
	return float64(to.Sub(from)) / float64(time.Millisecond)
}
