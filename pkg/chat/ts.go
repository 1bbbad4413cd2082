package chat

import (
	"strconv"
	"strings"
	"time"
)

// CompareTS orders two decimal timestamps exactly. Slack ts values carry
// microseconds and Discord ids exceed float64 precision, so neither string
// order nor ParseFloat is safe.
func CompareTS(a, b string) int {
	ai, af := splitTS(a)
	bi, bf := splitTS(b)

	if len(ai) != len(bi) {
		if len(ai) < len(bi) {
			return -1
		}
		return 1
	}
	if c := strings.Compare(ai, bi); c != 0 {
		return c
	}

	for len(af) < len(bf) {
		af += "0"
	}
	for len(bf) < len(af) {
		bf += "0"
	}
	return strings.Compare(af, bf)
}

// MaxTS returns the larger timestamp; an empty value loses.
func MaxTS(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	if CompareTS(b, a) > 0 {
		return b
	}
	return a
}

// TSTime converts a seconds-based ts ("1700000000.123456") to a time.
func TSTime(ts string) time.Time {
	intPart, frac := splitTS(ts)
	secs, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return time.Time{}
	}
	var nanos int64
	if frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		for len(frac) < 9 {
			frac += "0"
		}
		nanos, _ = strconv.ParseInt(frac, 10, 64)
	}
	return time.Unix(secs, nanos)
}

// TSFromTime renders t as a whole-second ts.
func TSFromTime(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

func splitTS(ts string) (string, string) {
	ts = strings.TrimSpace(ts)
	intPart, frac, _ := strings.Cut(ts, ".")
	intPart = strings.TrimLeft(intPart, "0")
	if intPart == "" {
		intPart = "0"
	}
	frac = strings.TrimRight(frac, "0")
	return intPart, frac
}
