package instrument

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// trim removes leading characters contained in prefix and
// trailing characters contained in suffix from a reply.
func trim(s, prefix, suffix string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, prefix)
	return strings.TrimRight(s, suffix)
}

// TrimFloat returns a parser for replies that embed a number
// between a header and a unit, as in "FR1.000000E+3HZ".
// Like prefix and suffix, the characters of the header and unit
// are removed individually.
func TrimFloat(prefix, suffix string) func(string) (float64, error) {
	return func(s string) (float64, error) {
		v, err := strconv.ParseFloat(trim(s, prefix, suffix), 64)
		if err != nil {
			return 0, errors.Wrapf(err, "reply %q", s)
		}
		return v, nil
	}
}

func TrimInt(prefix, suffix string) func(string) (int, error) {
	return func(s string) (int, error) {
		t := strings.TrimSpace(trim(s, prefix, suffix))
		v, err := strconv.Atoi(t)
		if err != nil {
			// some instruments report integers as 1.000E+0
			f, ferr := strconv.ParseFloat(t, 64)
			if ferr != nil || f != float64(int(f)) {
				return 0, errors.Wrapf(err, "reply %q", s)
			}
			v = int(f)
		}
		return v, nil
	}
}
