// Copyright (c) 2026 Aggravator Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package decode parses retrieved source bytes into document trees.
//
// The format is either declared by the include entry or inferred from
// the location's file extension. Encrypted content, whole documents as
// well as individual "!vault" tagged scalars, is resolved through a
// Decryptor during decoding so the rest of the pipeline only ever sees
// plain values.
package decode

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/aggravator/aggravator/document"
	"github.com/aggravator/aggravator/vault"

	"gopkg.in/yaml.v3"
)

// Format identifies a supported source text format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// UnknownFormatError occurs when neither the declared format nor the
// location extension identify a supported format.
type UnknownFormatError struct {
	Location string
	Declared string
}

// Error implements the error interface.
func (e UnknownFormatError) Error() string {
	if e.Declared != "" {
		return fmt.Sprintf("unsupported format %q declared for %s", e.Declared, e.Location)
	}
	return fmt.Sprintf("cannot infer format of %s from its extension", e.Location)
}

// ParseError occurs when source bytes are not valid for the chosen format.
type ParseError struct {
	Location string
	Format   Format
	Cause    error
}

// Error implements the error interface.
func (e ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s as %s: %s", e.Location, e.Format, e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e ParseError) Unwrap() error {
	return e.Cause
}

// ParseFormat maps a declared format name to a Format.
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(s) {
	case "yaml", "yml":
		return FormatYAML, true
	case "json":
		return FormatJSON, true
	default:
		return "", false
	}
}

// DetectFormat infers the format of a location from its file
// extension. The location may be a plain path or a URL.
func DetectFormat(location string) (Format, bool) {
	name := location
	if u, err := url.Parse(location); err == nil && u.Path != "" {
		name = u.Path
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".json":
		return FormatJSON, true
	default:
		return "", false
	}
}

// Decryptor resolves encrypted blobs to plaintext. A disabled Decryptor
// reports Enabled false and is never asked to decrypt; encrypted values
// then degrade to opaque placeholders instead of failing the decode.
type Decryptor interface {
	Enabled() bool
	Decrypt([]byte) ([]byte, error)
}

// Decoder parses source bytes into document values.
type Decoder struct {
	decryptor Decryptor
}

// New returns a Decoder resolving encrypted content through d. A nil
// Decryptor behaves like a disabled one.
func New(d Decryptor) *Decoder {
	return &Decoder{decryptor: d}
}

// Decode parses data into a document value. declared is the include
// entry's format field and may be empty, in which case the format is
// inferred from location's extension.
func (d *Decoder) Decode(data []byte, declared string, location string) (any, error) {
	format, err := d.resolveFormat(declared, location)
	if err != nil {
		return nil, err
	}

	if vault.IsEncrypted(data) {
		if d.decryptor == nil || !d.decryptor.Enabled() {
			// degrade to an empty document so operations that
			// need no secrets still work
			return document.Map{}, nil
		}
		data, err = d.decryptor.Decrypt(data)
		if err != nil {
			return nil, err
		}
	}

	switch format {
	case FormatJSON:
		return d.decodeJSON(data, location)
	default:
		return d.decodeYAML(data, location)
	}
}

func (d *Decoder) resolveFormat(declared, location string) (Format, error) {
	if declared != "" {
		format, ok := ParseFormat(declared)
		if !ok {
			return "", UnknownFormatError{Location: location, Declared: declared}
		}
		return format, nil
	}
	format, ok := DetectFormat(location)
	if !ok {
		return "", UnknownFormatError{Location: location}
	}
	return format, nil
}

func (d *Decoder) decodeJSON(data []byte, location string) (any, error) {
	var v any
	err := json.Unmarshal(data, &v)
	if err != nil {
		return nil, ParseError{Location: location, Format: FormatJSON, Cause: err}
	}
	return v, nil
}

// decodeYAML parses at the node level rather than straight into
// map[string]any so that "!vault" tags are still visible and can be
// resolved in place.
func (d *Decoder) decodeYAML(data []byte, location string) (any, error) {
	var root yaml.Node
	err := yaml.Unmarshal(data, &root)
	if err != nil {
		return nil, ParseError{Location: location, Format: FormatYAML, Cause: err}
	}
	if root.Kind == 0 {
		// empty document
		return nil, nil
	}
	return d.nodeValue(&root, location)
}

func (d *Decoder) nodeValue(n *yaml.Node, location string) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return d.nodeValue(n.Content[0], location)
	case yaml.MappingNode:
		m := make(document.Map, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			keyNode := n.Content[i]
			if keyNode.Kind != yaml.ScalarNode {
				return nil, ParseError{
					Location: location,
					Format:   FormatYAML,
					Cause:    fmt.Errorf("line %d: non-scalar mapping key", keyNode.Line),
				}
			}
			v, err := d.nodeValue(n.Content[i+1], location)
			if err != nil {
				return nil, err
			}
			m[keyNode.Value] = v
		}
		return m, nil
	case yaml.SequenceNode:
		s := make([]any, len(n.Content))
		for i, c := range n.Content {
			v, err := d.nodeValue(c, location)
			if err != nil {
				return nil, err
			}
			s[i] = v
		}
		return s, nil
	case yaml.AliasNode:
		return d.nodeValue(n.Alias, location)
	default:
		return d.scalarValue(n, location)
	}
}

func (d *Decoder) scalarValue(n *yaml.Node, location string) (any, error) {
	if n.Tag == "!vault" {
		if d.decryptor == nil || !d.decryptor.Enabled() {
			// leave the ciphertext as an opaque placeholder
			return n.Value, nil
		}
		plaintext, err := d.decryptor.Decrypt([]byte(n.Value))
		if err != nil {
			return nil, err
		}
		return string(plaintext), nil
	}

	var v any
	err := n.Decode(&v)
	if err != nil {
		return nil, ParseError{Location: location, Format: FormatYAML, Cause: err}
	}
	return v, nil
}
