package embedded

import "maps"

// Merge returns a new map holding every key of base, with every key of
// overrides written over it.
//
// The merge is one level deep: a nested map in overrides replaces the nested
// map in base as a whole. Neither argument is modified and the result is never
// nil.
func Merge(base, overrides Config) Config {
	merged := make(Config, len(base)+len(overrides))
	maps.Copy(merged, base)
	maps.Copy(merged, overrides)
	return merged
}
