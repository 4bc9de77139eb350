// Copyright (c) 2026 Aggravator Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package inventory

import (
	"fmt"
	"reflect"

	"github.com/aggravator/aggravator/document"

	"github.com/go-viper/mapstructure/v2"
)

// IncludeEntry is one include directive of an environment: a source
// location, the key path to merge it at (default: the document root)
// and an optional format overriding extension inference.
type IncludeEntry struct {
	Path   string `config:"path" yaml:"path"`
	Key    string `config:"key" yaml:"key,omitempty"`
	Format string `config:"format" yaml:"format,omitempty"`
}

// EnvironmentConfig is the declared include list of one environment.
// Ordering is significant: later entries override earlier ones.
type EnvironmentConfig struct {
	Include []IncludeEntry `config:"include" yaml:"include"`
}

// RootConfig is the decoded root configuration document.
type RootConfig struct {
	Environments map[string]EnvironmentConfig `config:"environments" yaml:"environments"`
}

// InvalidRootConfigError occurs when the root config document does not
// have the expected environments/include shape.
type InvalidRootConfigError struct {
	URI   string
	Cause error
}

// Error implements the error interface.
func (e InvalidRootConfigError) Error() string {
	return fmt.Sprintf("invalid root config %s: %s", e.URI, e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e InvalidRootConfigError) Unwrap() error {
	return e.Cause
}

// includeEntryHookFunc lets an include entry be declared as a bare
// location string instead of a mapping.
func includeEntryHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if t != reflect.TypeOf(IncludeEntry{}) || f.Kind() != reflect.String {
			return data, nil
		}
		return IncludeEntry{Path: data.(string)}, nil
	}
}

func decodeRootConfig(doc any, uri string) (RootConfig, error) {
	var cfg RootConfig

	m, ok := doc.(document.Map)
	if !ok {
		return cfg, InvalidRootConfigError{
			URI:   uri,
			Cause: fmt.Errorf("root document must be a mapping, got %T", doc),
		}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "config",
		Result:     &cfg,
		DecodeHook: includeEntryHookFunc(),
	})
	if err != nil {
		return cfg, err
	}
	if err := dec.Decode(m); err != nil {
		return cfg, InvalidRootConfigError{URI: uri, Cause: err}
	}

	for name, env := range cfg.Environments {
		for i, entry := range env.Include {
			if entry.Path == "" {
				return cfg, InvalidRootConfigError{
					URI:   uri,
					Cause: fmt.Errorf("environments.%s.include[%d] has no path", name, i),
				}
			}
		}
	}
	return cfg, nil
}
