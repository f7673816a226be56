package worker

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// cronField is one of the five standard cron fields: minute, hour,
// day-of-month, month, day-of-week.
type cronField struct {
	any    bool
	values map[int]bool
}

// cronSchedule is a parsed 5-field cron expression. There is no cron
// library anywhere in the reference corpus this project draws on, so this
// is a deliberately minimal stdlib matcher rather than an unproven
// dependency pulled in for one feature.
type cronSchedule struct {
	minute, hour, dom, month, dow cronField
}

func parseCron(expr string) (*cronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron expression %q must have 5 fields, got %d", expr, len(fields))
	}
	minute, err := parseCronField(fields[0], 0, 59)
	if err != nil {
		return nil, fmt.Errorf("minute field: %w", err)
	}
	hour, err := parseCronField(fields[1], 0, 23)
	if err != nil {
		return nil, fmt.Errorf("hour field: %w", err)
	}
	dom, err := parseCronField(fields[2], 1, 31)
	if err != nil {
		return nil, fmt.Errorf("day-of-month field: %w", err)
	}
	month, err := parseCronField(fields[3], 1, 12)
	if err != nil {
		return nil, fmt.Errorf("month field: %w", err)
	}
	dow, err := parseCronField(fields[4], 0, 6)
	if err != nil {
		return nil, fmt.Errorf("day-of-week field: %w", err)
	}
	return &cronSchedule{minute: minute, hour: hour, dom: dom, month: month, dow: dow}, nil
}

func parseCronField(raw string, min, max int) (cronField, error) {
	if raw == "*" {
		return cronField{any: true}, nil
	}

	values := make(map[int]bool)
	for _, part := range strings.Split(raw, ",") {
		step := 1
		rangePart := part
		if idx := strings.Index(part, "/"); idx >= 0 {
			rangePart = part[:idx]
			s, err := strconv.Atoi(part[idx+1:])
			if err != nil || s <= 0 {
				return cronField{}, fmt.Errorf("invalid step in %q", part)
			}
			step = s
		}

		lo, hi := min, max
		if rangePart != "*" {
			if idx := strings.Index(rangePart, "-"); idx >= 0 {
				a, err1 := strconv.Atoi(rangePart[:idx])
				b, err2 := strconv.Atoi(rangePart[idx+1:])
				if err1 != nil || err2 != nil {
					return cronField{}, fmt.Errorf("invalid range %q", rangePart)
				}
				lo, hi = a, b
			} else {
				v, err := strconv.Atoi(rangePart)
				if err != nil {
					return cronField{}, fmt.Errorf("invalid value %q", rangePart)
				}
				lo, hi = v, v
			}
		}
		if lo < min || hi > max || lo > hi {
			return cronField{}, fmt.Errorf("value %q out of range [%d,%d]", part, min, max)
		}
		for v := lo; v <= hi; v += step {
			values[v] = true
		}
	}
	return cronField{values: values}, nil
}

func (f cronField) matches(v int) bool {
	return f.any || f.values[v]
}

// matches reports whether t (truncated to the minute) satisfies the
// schedule.
func (c *cronSchedule) matches(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dom.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dow.matches(int(t.Weekday()))
}
