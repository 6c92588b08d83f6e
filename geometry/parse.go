package geometry

import (
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

// ParseBbox parses "minLon,minLat,maxLon,maxLat" into a rectangle. NaN and infinite numbers are rejected.
func ParseBbox(bbox string) (Rectangle, error) {
	parts := strings.Split(bbox, ",")
	if len(parts) != 4 {
		return Rectangle{}, errors.Errorf("Expected four comma separated numbers in bbox '%s' but found %d", bbox, len(parts))
	}

	var coordinates = [4]float64{}
	for i, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return Rectangle{}, errors.Wrapf(err, "Invalid number '%s' in bbox '%s'", part, bbox)
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return Rectangle{}, errors.Errorf("Number '%s' in bbox '%s' is not finite", strings.TrimSpace(part), bbox)
		}
		coordinates[i] = value
	}

	return NewRectangle(
		orb.Point{coordinates[0], coordinates[1]},
		orb.Point{coordinates[2], coordinates[3]},
	), nil
}
