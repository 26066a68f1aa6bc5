package chart

import (
	"fmt"
	"math"
	"strconv"
)

// FormatAxisValue renders an axis label: values below one thousand as-is, larger ones with one
// decimal and a K, M or B suffix.
func FormatAxisValue(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
	}
	abs := math.Abs(v)

	switch {
	case abs < 1e3:
		return sign + strconv.FormatFloat(abs, 'f', -1, 64)
	case abs < 1e6:
		return fmt.Sprintf("%s%.1fK", sign, abs/1e3)
	case abs < 1e9:
		return fmt.Sprintf("%s%.1fM", sign, abs/1e6)
	default:
		return fmt.Sprintf("%s%.1fB", sign, abs/1e9)
	}
}
