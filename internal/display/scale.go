package display

import (
	"math"
	"strconv"
)

const integerScaleEpsilon = 1e-6

// Scale is an output scale factor, either integer or fractional.
type Scale struct {
	integer    int
	fractional float64
}

// IntegerScale returns an integer scale.
func IntegerScale(n int) Scale {
	return Scale{integer: n, fractional: float64(n)}
}

// FractionalScale returns a fractional scale.
func FractionalScale(f float64) Scale {
	return Scale{fractional: f}
}

// ScaleFromConfig converts a configured scale. Values within 1e-6 of an
// integer >= 1 become integer scales, everything else is fractional.
func ScaleFromConfig(v float64) Scale {
	rounded := math.Round(v)
	if rounded >= 1 && rounded <= math.MaxInt32 && math.Abs(v-rounded) < integerScaleEpsilon {
		return IntegerScale(int(rounded))
	}
	return FractionalScale(v)
}

// IsInteger reports whether the scale is an integer scale.
func (s Scale) IsInteger() bool {
	return s.integer > 0
}

// Integer returns the integer scale, rounding up fractional scales the way
// clients that only understand integer scales expect.
func (s Scale) Integer() int {
	if s.integer > 0 {
		return s.integer
	}
	if s.fractional <= 0 {
		return 1
	}
	return int(math.Ceil(s.fractional))
}

// Fractional returns the scale as a float.
func (s Scale) Fractional() float64 {
	if s.fractional <= 0 {
		return 1
	}
	return s.fractional
}

func (s Scale) String() string {
	if s.IsInteger() {
		return strconv.Itoa(s.integer)
	}
	return strconv.FormatFloat(s.Fractional(), 'f', -1, 64)
}
