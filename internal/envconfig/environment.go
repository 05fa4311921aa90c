package envconfig

import "github.com/roach88/bootlatch/internal/embedded"

// Environment is the startup configuration snapshot registered under
// embedded.EnvironmentKey.
type Environment struct {
	Name         string           `json:"environment,omitempty" yaml:"environment,omitempty"`
	ModulePrefix string           `json:"modulePrefix,omitempty" yaml:"modulePrefix,omitempty"`
	Embedded     embedded.Options `json:"embedded" yaml:"embedded"`

	// Extra holds every other top-level section, untouched.
	Extra map[string]any `json:"-" yaml:"-"`
}

// EmbeddedOptions implements embedded.Snapshot.
func (e *Environment) EmbeddedOptions() embedded.Options {
	if e == nil {
		return embedded.Options{}
	}
	return e.Embedded
}

// Map returns the snapshot as a raw map, the inverse of FromMap.
func (e *Environment) Map() map[string]any {
	if e == nil {
		return map[string]any{}
	}
	m := make(map[string]any, len(e.Extra)+3)
	for k, v := range e.Extra {
		m[k] = v
	}
	if e.Name != "" {
		m["environment"] = e.Name
	}
	if e.ModulePrefix != "" {
		m["modulePrefix"] = e.ModulePrefix
	}
	section := map[string]any{"delegateStart": e.Embedded.DelegateStart}
	if e.Embedded.Config != nil {
		section["config"] = e.Embedded.Config
	}
	m["embedded"] = section
	return m
}

// FromMap builds an Environment from a raw map. It never fails: fields that
// are missing or of the wrong shape read as their zero value.
func FromMap(m map[string]any) Environment {
	env := Environment{Embedded: embedded.OptionsFromMap(m)}
	for k, v := range m {
		switch k {
		case "environment":
			env.Name, _ = v.(string)
		case "modulePrefix":
			env.ModulePrefix, _ = v.(string)
		case "embedded":
		default:
			if env.Extra == nil {
				env.Extra = make(map[string]any)
			}
			env.Extra[k] = v
		}
	}
	return env
}
