package qrda

import (
	"encoding/json"
	"strings"
	"time"
)

// Options are the document rendering options of an export request. The
// measurement period bounds are recognized under both snake_case and
// camelCase keys; every other key is kept in Flags as received.
type Options struct {
	StartTime time.Time
	EndTime   time.Time
	Flags     map[string]interface{}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"20060102150405",
	"20060102",
}

// ParseTime parses the timestamp forms found in measures and test cases.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// UnmarshalJSON never fails on unknown keys or unparsable period bounds;
// those are kept in Flags.
func (o *Options) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = Options{}
	for k, v := range raw {
		switch k {
		case "start_time", "startTime":
			if t, ok := timeValue(v); ok {
				o.StartTime = t
				continue
			}
		case "end_time", "endTime":
			if t, ok := timeValue(v); ok {
				o.EndTime = t
				continue
			}
		}
		if o.Flags == nil {
			o.Flags = make(map[string]interface{})
		}
		o.Flags[k] = v
	}
	return nil
}

func (o Options) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(o.Flags)+2)
	for k, v := range o.Flags {
		out[k] = v
	}
	if !o.StartTime.IsZero() {
		out["start_time"] = o.StartTime.Format(time.RFC3339)
	}
	if !o.EndTime.IsZero() {
		out["end_time"] = o.EndTime.Format(time.RFC3339)
	}
	return json.Marshal(out)
}

// Flag reports whether the boolean flag key is set to true.
func (o Options) Flag(key string) bool {
	v, _ := o.Flags[key].(bool)
	return v
}

// Period returns the reporting period, falling back to the given bounds for
// whichever side the options leave unset.
func (o Options) Period(fallbackStart, fallbackEnd string) (time.Time, time.Time) {
	start, end := o.StartTime, o.EndTime
	if start.IsZero() {
		start, _ = ParseTime(fallbackStart)
	}
	if end.IsZero() {
		end, _ = ParseTime(fallbackEnd)
	}
	return start, end
}

func timeValue(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case string:
		return ParseTime(val)
	case float64:
		// epoch milliseconds
		return time.UnixMilli(int64(val)).UTC(), true
	}
	return time.Time{}, false
}
