package table

import (
	"math"
	"sort"
)

// Numbers extracts the non-missing numeric cells from a column slice.
func Numbers(values []Value) []float64 {
	var out []float64
	for _, v := range values {
		if v.Kind == KindNumber {
			out = append(out, v.Num)
		}
	}
	return out
}

// Median returns the median of the non-missing numeric cells. For an even
// count it averages the two middle values. Returns false when the column has
// no numeric data.
func Median(values []Value) (float64, bool) {
	nums := Numbers(values)
	if len(nums) == 0 {
		return 0, false
	}
	sort.Float64s(nums)
	mid := len(nums) / 2
	if len(nums)%2 == 1 {
		return nums[mid], true
	}
	return (nums[mid-1] + nums[mid]) / 2, true
}

// Max returns the maximum of the non-missing numeric cells.
func Max(values []Value) (float64, bool) {
	nums := Numbers(values)
	if len(nums) == 0 {
		return 0, false
	}
	max := nums[0]
	for _, n := range nums[1:] {
		if n > max {
			max = n
		}
	}
	return max, true
}

// Mean returns the arithmetic mean of the non-missing numeric cells.
func Mean(values []Value) (float64, bool) {
	nums := Numbers(values)
	if len(nums) == 0 {
		return 0, false
	}
	var sum float64
	for _, n := range nums {
		sum += n
	}
	return sum / float64(len(nums)), true
}

// StdDev returns the sample standard deviation of the non-missing numeric
// cells. Columns with fewer than two values report zero.
func StdDev(values []Value) (float64, bool) {
	nums := Numbers(values)
	if len(nums) == 0 {
		return 0, false
	}
	if len(nums) < 2 {
		return 0, true
	}
	var sum float64
	for _, n := range nums {
		sum += n
	}
	mean := sum / float64(len(nums))
	var sq float64
	for _, n := range nums {
		d := n - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(nums)-1)), true
}

// Percentile returns the p-quantile (0..1) of the non-missing numeric cells
// using linear interpolation between closest ranks.
func Percentile(values []Value, p float64) (float64, bool) {
	nums := Numbers(values)
	if len(nums) == 0 {
		return 0, false
	}
	sort.Float64s(nums)
	if p <= 0 {
		return nums[0], true
	}
	if p >= 1 {
		return nums[len(nums)-1], true
	}
	pos := p * float64(len(nums)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return nums[lo], true
	}
	frac := pos - float64(lo)
	return nums[lo]*(1-frac) + nums[hi]*frac, true
}
