package mailparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DisplayOffsetHours is the fixed UTC offset used for displayed times.
const DisplayOffsetHours = 1

var (
	headerClock = regexp.MustCompile(`(\d{2}):(\d{2}):(\d{2})\s+([-+]\d{4})`)
	headerDay   = regexp.MustCompile(`(\d{1,2})\s+([A-Za-z]{3})[a-z]*\.?\s+(\d{4})`)
)

// NormalizeTime converts the clock of a transport Date header into HH:MM at
// UTC+1. Only the hour is shifted, by whole hours: minutes pass through and
// the day is never rolled over. ok is false when no "HH:MM:SS ±HHMM" group is
// present.
func NormalizeTime(header string) (hhmm string, ok bool) {
	m := headerClock.FindStringSubmatch(header)
	if m == nil {
		return "", false
	}

	hour, _ := strconv.Atoi(m[1])
	offset, _ := strconv.Atoi(m[4])
	offsetHours := offset / 100

	adjusted := ((hour+DisplayOffsetHours-offsetHours+24)%24 + 24) % 24
	return fmt.Sprintf("%02d:%s", adjusted, m[2]), true
}

var frenchMonths = map[string]string{
	"jan": "janvier",
	"feb": "février",
	"mar": "mars",
	"apr": "avril",
	"may": "mai",
	"jun": "juin",
	"jul": "juillet",
	"aug": "août",
	"sep": "septembre",
	"oct": "octobre",
	"nov": "novembre",
	"dec": "décembre",
}

// HeaderDate renders the day, month and year of a transport Date header as a
// French display date, e.g. "15 octobre 2024". The fields are taken verbatim
// from the header and are not shifted to the display offset.
func HeaderDate(header string) (string, bool) {
	m := headerDay.FindStringSubmatch(header)
	if m == nil {
		return "", false
	}

	month, ok := frenchMonths[strings.ToLower(m[2])]
	if !ok {
		return "", false
	}

	day, _ := strconv.Atoi(m[1])
	return fmt.Sprintf("%d %s %s", day, month, m[3]), true
}
