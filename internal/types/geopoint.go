package types

import (
	"math"
	"strconv"
	"strings"
)

// validGeopoint accepts "lat lon [altitude [accuracy]]". Every component
// must be numeric.
func validGeopoint(text string) bool {
	parts := strings.Fields(text)
	if len(parts) < 2 || len(parts) > 4 {
		return false
	}
	coords := make([]float64, len(parts))
	for i, part := range parts {
		f, err := strconv.ParseFloat(part, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
		coords[i] = f
	}
	return coords[0] >= -90 && coords[0] <= 90 && coords[1] >= -180 && coords[1] <= 180
}
