package embedded

import (
	"encoding/json"
	"math"
)

// OptionsFromMap reads the "embedded" section of a raw environment map.
//
// The read is total: a missing section, a non-map section or a non-map
// "config" all read as empty. "delegateStart" is taken as truthy the way a
// loosely typed environment file would mean it, so 1 or "yes" delegate and
// 0, "" or null do not.
func OptionsFromMap(env map[string]any) Options {
	section, ok := env["embedded"].(map[string]any)
	if !ok {
		return Options{}
	}
	opts := Options{DelegateStart: truthy(section["delegateStart"])}
	if cfg, ok := section["config"].(map[string]any); ok {
		opts.Config = cfg
	}
	return opts
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case json.Number:
		f, err := val.Float64()
		return err != nil || (f != 0 && !math.IsNaN(f))
	case int:
		return val != 0
	case int8:
		return val != 0
	case int16:
		return val != 0
	case int32:
		return val != 0
	case int64:
		return val != 0
	case uint:
		return val != 0
	case uint8:
		return val != 0
	case uint16:
		return val != 0
	case uint32:
		return val != 0
	case uint64:
		return val != 0
	case float32:
		return val != 0 && !math.IsNaN(float64(val))
	case float64:
		return val != 0 && !math.IsNaN(val)
	default:
		return true
	}
}
