package config

import (
	"strconv"
	"strings"
	"time"
)

// Config is a read-only view over decoded settings.
//
// Keys may be dotted paths ("llm.model") that walk nested maps. A literal
// key containing dots takes precedence over the path.
type Config struct {
	data map[string]any
}

// New wraps data. A nil map gives an empty Config.
func New(data map[string]any) Config {
	if data == nil {
		data = make(map[string]any)
	}
	return Config{data: data}
}

// Raw returns the underlying map. Callers must not modify it.
func (c Config) Raw() map[string]any {
	return c.data
}

func (c Config) lookup(key string) (any, bool) {
	if v, ok := c.data[key]; ok {
		return v, true
	}
	if !strings.Contains(key, ".") {
		return nil, false
	}

	var cur any = c.data
	for _, part := range strings.Split(key, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Config:
		return m.data, true
	}
	return nil, false
}

// get resolves key and converts it, falling back to def on a miss or a
// failed conversion.
func get[T any](c Config, key string, def T, convert func(any) (T, bool)) T {
	v, ok := c.lookup(key)
	if !ok {
		return def
	}
	if out, ok := convert(v); ok {
		return out
	}
	return def
}

func (c Config) String(key, def string) string {
	return get(c, key, def, func(v any) (string, bool) {
		s, ok := v.(string)
		return s, ok
	})
}

// Duration accepts "1h30m" style strings, numbers of seconds and
// time.Duration values.
func (c Config) Duration(key string, def time.Duration) time.Duration {
	return get(c, key, def, toDuration)
}

// Bool accepts booleans and strconv.ParseBool strings.
func (c Config) Bool(key string, def bool) bool {
	return get(c, key, def, func(v any) (bool, bool) {
		switch b := v.(type) {
		case bool:
			return b, true
		case string:
			parsed, err := strconv.ParseBool(b)
			return parsed, err == nil
		}
		return false, false
	})
}

// Int accepts integers, whole floats and decimal strings.
func (c Config) Int(key string, def int) int {
	return get(c, key, def, toInt)
}

// Float accepts floats, integers and numeric strings.
func (c Config) Float(key string, def float64) float64 {
	return get(c, key, def, toFloat)
}

// StringSlice accepts string lists and comma-separated strings. A list
// holding anything but strings yields def.
func (c Config) StringSlice(key string, def []string) []string {
	return get(c, key, def, toStrings)
}

func (c Config) Any(key string, def any) any {
	return get(c, key, def, func(v any) (any, bool) { return v, true })
}

// Has reports whether key resolves, even to nil.
func (c Config) Has(key string) bool {
	_, ok := c.lookup(key)
	return ok
}

// Sub returns the section at key, or an empty Config.
func (c Config) Sub(key string) Config {
	v, _ := c.lookup(key)
	m, _ := asMap(v)
	return New(m)
}

// Merge lays overlay over c. Sections merge key by key; anything else is
// replaced. Neither input changes.
func (c Config) Merge(overlay Config) Config {
	return New(mergeMaps(c.data, overlay.data))
}

func mergeMaps(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		om, isMap := asMap(v)
		bm, wasMap := asMap(out[k])
		if isMap && wasMap {
			out[k] = mergeMaps(bm, om)
		} else {
			out[k] = v
		}
	}
	return out
}

func toDuration(v any) (time.Duration, bool) {
	switch d := v.(type) {
	case time.Duration:
		return d, true
	case string:
		parsed, err := time.ParseDuration(d)
		return parsed, err == nil
	case int:
		return time.Duration(d) * time.Second, true
	case int64:
		return time.Duration(d) * time.Second, true
	case float64:
		return time.Duration(d * float64(time.Second)), true
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), n == float64(int(n))
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		return parsed, err == nil
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case int:
		return float64(f), true
	case int64:
		return float64(f), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		return parsed, err == nil
	}
	return 0, false
}

func toStrings(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case string:
		out := []string{}
		for _, part := range strings.Split(list, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, true
	}
	return nil, false
}
