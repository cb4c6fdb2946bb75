package source

import (
	"math"
	"regexp"
	"strconv"
)

// ShortFormMaxSeconds is the platform's short-form ceiling, inclusive.
const ShortFormMaxSeconds = 60

var durationRE = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseDuration converts an ISO 8601 video duration ("PT1H2M3S") to total seconds.
// Missing components count as zero; anything unparseable or too large yields 0.
func ParseDuration(s string) int {
	m := durationRE.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	total := 0
	for i, mult := range []int{86400, 3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil || n > (math.MaxInt-total)/mult {
			return 0
		}
		total += n * mult
	}
	return total
}

// IsShortForm reports 0 < seconds <= 60.
func IsShortForm(seconds int) bool {
	return seconds > 0 && seconds <= ShortFormMaxSeconds
}

// IsLongForm reports seconds > 60.
func IsLongForm(seconds int) bool {
	return seconds > ShortFormMaxSeconds
}

// Matches reports whether a video of the given length belongs to ct.
// Zero-length videos (live, malformed) match neither type.
func (ct ContentType) Matches(seconds int) bool {
	switch ct {
	case ContentShorts:
		return IsShortForm(seconds)
	case ContentLong:
		return IsLongForm(seconds)
	}
	return false
}
