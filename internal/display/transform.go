package display

import "strings"

// Transform is an output rotation/flip.
type Transform int

const (
	TransformNormal Transform = iota
	Transform90
	Transform180
	Transform270
	TransformFlipped
	TransformFlipped90
	TransformFlipped180
	TransformFlipped270
)

var transformNames = [...]string{
	TransformNormal:     "normal",
	Transform90:         "90",
	Transform180:        "180",
	Transform270:        "270",
	TransformFlipped:    "flipped",
	TransformFlipped90:  "flipped-90",
	TransformFlipped180: "flipped-180",
	TransformFlipped270: "flipped-270",
}

func (t Transform) String() string {
	if t < 0 || int(t) >= len(transformNames) {
		return "unknown"
	}
	return transformNames[t]
}

// SwapsAxes reports whether the transform rotates by a quarter turn.
func (t Transform) SwapsAxes() bool {
	switch t {
	case Transform90, Transform270, TransformFlipped90, TransformFlipped270:
		return true
	}
	return false
}

// ParseTransform maps a configuration string to a Transform. The boolean is
// false for unrecognized input, in which case TransformNormal is returned.
func ParseTransform(raw string) (Transform, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "normal", "0":
		return TransformNormal, true
	case "90", "_90", "rotate90":
		return Transform90, true
	case "180", "_180", "rotate180":
		return Transform180, true
	case "270", "_270", "rotate270":
		return Transform270, true
	case "flipped", "flip", "4":
		return TransformFlipped, true
	case "flipped90", "flip90", "5":
		return TransformFlipped90, true
	case "flipped180", "flip180", "6":
		return TransformFlipped180, true
	case "flipped270", "flip270", "7":
		return TransformFlipped270, true
	}
	return TransformNormal, false
}
