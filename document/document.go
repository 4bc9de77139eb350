// Copyright (c) 2026 Aggravator Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package document defines the parsed document tree and the deep merge
// rules used to fold inventory sources into a single accumulator.
//
// A document value is one of:
//
//   - Map (mapping from string to document value)
//   - []any (sequence of document values)
//   - scalar (string, bool, int, float64, nil, ...)
//
// Merging is later-wins: mappings combine key by key, everything else is
// replaced wholesale by the addition.
package document

import (
	"fmt"

	"github.com/aggravator/aggravator/document/key"
)

// Map is the mapping node of a document tree. The root of every
// accumulator is a Map.
type Map = map[string]any

// NonMappingDocumentError occurs when a document merged at the
// accumulator root is not a mapping. The root must stay a mapping, so
// scalar or sequence documents are only accepted under a key path.
type NonMappingDocumentError struct {
	Value any
}

// Error implements the error interface.
func (e NonMappingDocumentError) Error() string {
	return fmt.Sprintf("document merged at the root must be a mapping, got %T", e.Value)
}

// DeepMerge combines two document values.
//
// If both values are mappings the result holds every key of both; keys
// present in both are combined recursively. For any other pairing,
// sequences included, the addition wins verbatim. An explicit nil in
// addition is a value like any other and overwrites. The returned value
// never aliases addition: anything taken from it is deep copied.
func DeepMerge(current, addition any) any {
	cm, cok := current.(Map)
	am, aok := addition.(Map)
	if !cok || !aok {
		return Copy(addition)
	}

	merged := make(Map, len(cm)+len(am))
	for k, v := range cm {
		merged[k] = v
	}
	for k, v := range am {
		if cur, ok := merged[k]; ok {
			merged[k] = DeepMerge(cur, v)
			continue
		}
		merged[k] = Copy(v)
	}
	return merged
}

// MergeAt deep merges addition into acc at the given key path and
// returns the updated accumulator.
//
// Missing intermediate segments are created as empty mappings. An
// existing non-mapping value along the path is replaced by a mapping,
// the structural extension of the later-wins rule. An empty chain
// targets the root, where addition must itself be a mapping.
func MergeAt(acc Map, addition any, at key.Chain) (Map, error) {
	if acc == nil {
		acc = make(Map)
	}
	if len(at) == 0 {
		am, ok := addition.(Map)
		if !ok {
			return nil, NonMappingDocumentError{Value: addition}
		}
		return DeepMerge(acc, am).(Map), nil
	}

	parent := acc
	for _, k := range at[:len(at)-1] {
		next, ok := parent[k.Key()].(Map)
		if !ok {
			next = make(Map)
			parent[k.Key()] = next
		}
		parent = next
	}

	last := at[len(at)-1].Key()
	parent[last] = DeepMerge(parent[last], addition)
	return acc, nil
}

// Copy returns a deep copy of a document value. Scalars are returned
// as-is, mappings and sequences are copied recursively.
func Copy(v any) any {
	switch x := v.(type) {
	case Map:
		m := make(Map, len(x))
		for k, e := range x {
			m[k] = Copy(e)
		}
		return m
	case []any:
		s := make([]any, len(x))
		for i, e := range x {
			s[i] = Copy(e)
		}
		return s
	default:
		return v
	}
}
