// Copyright (c) 2026 Aggravator Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package key provides types for strongly typed keys into document trees.
package key

import (
	"strings"
)

// Keyer is a common interface all key types must implement.
type Keyer interface {
	Key() string
}

// Chain represents nested keys, root first.
type Chain []Keyer

// Key implements the [Keyer] interface.
func (k Chain) Key() string {
	ss := make([]string, len(k))
	for i := range k {
		ss[i] = k[i].Key()
	}
	return strings.Join(ss, "/")
}

// Name represents a single key. Name can be nested under other keys.
type Name string

// Key implements the [Keyer] interface.
func (k Name) Key() string {
	return string(k)
}

// Parse splits a slash separated key path into a Chain. Leading and
// trailing separators are ignored, as are empty segments, so "all/vars",
// "/all/vars" and "all//vars" all parse to the same chain. The empty
// string parses to a nil Chain which addresses the document root.
func Parse(path string) Chain {
	var chain Chain
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		chain = append(chain, Name(seg))
	}
	return chain
}
