package core

import "math"

// TrimEnds bỏ sample đầu (warm-up) và cuối khi có nhiều hơn 2 sample.
func TrimEnds(samples []float64) []float64 {
	if len(samples) > 2 {
		return samples[1 : len(samples)-1]
	}
	return samples
}

// GeometricMean tính trung bình nhân. Giá trị <= 0 bị bỏ qua vì log không xác định;
// trả về 0 nếu không còn giá trị nào.
func GeometricMean(values []float64) float64 {
	sum := 0.0
	count := 0
	for _, v := range values {
		if v <= 0 {
			continue
		}
		sum += math.Log(v)
		count++
	}
	if count == 0 {
		return 0
	}
	return math.Exp(sum / float64(count))
}

func minMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
