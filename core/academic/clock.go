package academic

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Day is a school weekday, stored with its Spanish name.
type Day string

const (
	Monday    Day = "Lunes"
	Tuesday   Day = "Martes"
	Wednesday Day = "Miércoles"
	Thursday  Day = "Jueves"
	Friday    Day = "Viernes"
)

var Weekdays = []Day{Monday, Tuesday, Wednesday, Thursday, Friday}

func (d Day) Valid() bool {
	return d.Index() >= 0
}

// Index is the position of d in the school week, -1 if d is not a weekday.
func (d Day) Index() int {
	for i, wd := range Weekdays {
		if d == wd {
			return i
		}
	}
	return -1
}

// Clock is a time of day with minute resolution, as minutes since midnight.
type Clock int

const minutesPerDay = 24 * 60

var errInvalidClock = errors.New("time must be formatted as HH:MM")

func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock accepts "HH:MM" and "HH:MM:SS" (seconds are dropped).
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	var h, m, sec int
	var err error
	switch strings.Count(s, ":") {
	case 1:
		_, err = fmt.Sscanf(s, "%d:%d", &h, &m)
	case 2:
		_, err = fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec)
	default:
		return 0, errInvalidClock
	}
	if err != nil || h < 0 || h > 23 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, errInvalidClock
	}
	return NewClock(h, m), nil
}

func (c Clock) Valid() bool { return c >= 0 && c < minutesPerDay }

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errInvalidClock
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// UnmarshalParam lets echo bind query/form values.
func (c *Clock) UnmarshalParam(param string) error {
	parsed, err := ParseClock(param)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Scan implements sql.Scanner for Postgres TIME columns.
func (c *Clock) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return c.scanString(string(v))
	case string:
		return c.scanString(v)
	case time.Time:
		*c = NewClock(v.Hour(), v.Minute())
		return nil
	default:
		return errors.Errorf("academic.Clock: cannot scan %T", src)
	}
}

func (c *Clock) scanString(s string) error {
	// drop fractional seconds
	if idx := strings.IndexByte(s, '.'); idx > 0 {
		s = s[:idx]
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return errors.Wrapf(err, "academic.Clock: scanning %q", s)
	}
	*c = parsed
	return nil
}

// Value implements driver.Valuer.
func (c Clock) Value() (driver.Value, error) {
	return c.String() + ":00", nil
}

// Date is a calendar date (DATE columns), formatted as YYYY-MM-DD.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, errors.New("date must be formatted as YYYY-MM-DD")
	}
	return Date{t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d *Date) UnmarshalParam(param string) error {
	parsed, err := ParseDate(param)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*d = NewDate(v.Year(), v.Month(), v.Day())
		return nil
	case []byte:
		return d.UnmarshalParam(string(v))
	case string:
		return d.UnmarshalParam(v)
	case nil:
		*d = Date{}
		return nil
	default:
		return errors.Errorf("academic.Date: cannot scan %T", src)
	}
}

func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}
