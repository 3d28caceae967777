package video

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

var isoDurationRegex = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// ParseISODuration converts an ISO-8601 duration such as "PT1H2M3S" (the
// YouTube Data API format) into whole seconds.
func ParseISODuration(value string) (int, error) {
	match := isoDurationRegex.FindStringSubmatch(value)
	if match == nil || value == "P" || value == "PT" {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q", value)
	}
	units := [...]float64{86400, 3600, 60, 1}
	total := 0.0
	for i, unit := range units {
		if match[i+1] == "" {
			continue
		}
		n, err := strconv.ParseFloat(match[i+1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid ISO-8601 duration %q: %w", value, err)
		}
		total += n * unit
	}
	if total > math.MaxInt32 {
		return 0, fmt.Errorf("ISO-8601 duration %q out of range", value)
	}
	return int(total), nil
}
