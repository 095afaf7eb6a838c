package eval

import "math"

// ComputeSMA returns the simple moving average of values with window n.
// Indices with fewer than n values of history are NaN.
func ComputeSMA(values []float64, n int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if n <= 0 || len(values) < n {
		return out
	}

	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= n {
			sum -= values[i-n]
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// ComputeRSI returns Wilder's relative strength index of values with
// period n. The first average gain/loss is seeded as the simple mean of
// the first n bar-to-bar differences, then smoothed recursively with
// weight 1/n. Indices t < n are NaN (insufficient history).
//
// Conventions: RSI is 100 when the average loss is zero and the average
// gain is positive; 50 when both averages are zero (flat series).
func ComputeRSI(values []float64, n int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if n <= 0 || len(values) <= n {
		return out
	}

	var avgGain, avgLoss float64
	for t := 1; t <= n; t++ {
		d := values[t] - values[t-1]
		if d > 0 {
			avgGain += d
		} else {
			avgLoss += -d
		}
	}
	avgGain /= float64(n)
	avgLoss /= float64(n)
	out[n] = rsiFrom(avgGain, avgLoss)

	for t := n + 1; t < len(values); t++ {
		d := values[t] - values[t-1]
		gain, loss := 0.0, 0.0
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = avgGain*float64(n-1)/float64(n) + gain/float64(n)
		avgLoss = avgLoss*float64(n-1)/float64(n) + loss/float64(n)
		out[t] = rsiFrom(avgGain, avgLoss)
	}
	return out
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain > 0 {
			return 100
		}
		return 50
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// rollingMean returns the trailing mean of the n values strictly before
// each index (the baseline used by PCT_INCREASE). Indices t < n are NaN.
func rollingMean(values []float64, n int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if n <= 0 || len(values) < n {
		return out
	}

	sum := 0.0
	for i := 0; i < len(values); i++ {
		if i >= n {
			out[i] = sum / float64(n)
			sum -= values[i-n]
		}
		sum += values[i]
	}
	return out
}
