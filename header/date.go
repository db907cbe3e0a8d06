package header

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

const imfDateLayout = "Mon, 02 Jan 2006 15:04:05 MST"

// imfDateFormat pins the zone to a literal GMT: formatting a UTC time with
// the MST layout would print "UTC", which is not a valid HTTP date zone.
const imfDateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// ParseDate parses an HTTP date. The preferred IMF-fixdate format is tried
// first, then the obsolete RFC 850 and asctime formats. The zone is matched
// case-insensitively. An IMF-fixdate must be in GMT (UTC is also accepted);
// the zone of an RFC 850 date is not checked.
func ParseDate(s string) (time.Time, error) {
	if date, err := imfDate(s); err == nil {
		return date, nil
	}
	if date, err := obsDate(s); err == nil {
		return date, nil
	}
	return time.Time{}, errors.Errorf("invalid HTTP date %q", s)
}

// FormatDate formats a time as an IMF-fixdate in GMT.
func FormatDate(t time.Time) string {
	return t.UTC().Format(imfDateFormat)
}

func imfDate(s string) (time.Time, error) {
	date, err := time.Parse(imfDateLayout, normalizeDateStr(s))
	if err != nil {
		return date, err
	}
	if date.Location().String() != "GMT" && date.Location() != time.UTC {
		return date, errors.Errorf("date %s is not in GMT", s)
	}
	return date, nil
}

func obsDate(s string) (time.Time, error) {
	str := normalizeDateStr(s)
	if date, err := time.Parse(time.RFC850, str); err == nil {
		return date, nil
	}
	return time.Parse(time.ANSIC, str)
}

// normalizeDateStr uppercases the zone abbreviation so that e.g. "gmt"
// parses; all date formats are specified case-sensitively but recipients
// should match case-insensitively.
func normalizeDateStr(s string) string {
	if i := strings.LastIndex(s, " "); i >= 0 {
		return s[:i+1] + strings.ToUpper(s[i+1:])
	}
	return s
}
