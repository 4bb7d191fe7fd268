package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Well-known release metadata keys. The prefix is shared with the payload
// annotations produced by the release tooling.
const (
	MetadataKeyPrefix = "io.openshift.upgrades.graph"

	MetadataKeyChannels            = MetadataKeyPrefix + ".release.channels"
	MetadataKeyArch                = MetadataKeyPrefix + ".release.arch"
	MetadataKeyManifestRef         = MetadataKeyPrefix + ".release.manifestref"
	MetadataKeyRemove              = MetadataKeyPrefix + ".release.remove"
	MetadataKeyPreviousAdd         = MetadataKeyPrefix + ".previous.add"
	MetadataKeyNextAdd             = MetadataKeyPrefix + ".next.add"
	MetadataKeyPreviousRemove      = MetadataKeyPrefix + ".previous.remove"
	MetadataKeyNextRemove          = MetadataKeyPrefix + ".next.remove"
	MetadataKeyPreviousRemoveRegex = MetadataKeyPrefix + ".previous.remove_regex"
)

// DefaultArch is assumed for releases that carry no architecture metadata.
const DefaultArch = "amd64"

// Metadata is a string-to-string mapping that preserves insertion order.
// Several graph consumers depend on keys appearing on the wire in the order
// they were set, so iteration and JSON encoding never sort.
type Metadata struct {
	keys   []string
	values map[string]string
}

// NewMetadata returns an empty metadata mapping.
func NewMetadata() *Metadata {
	return &Metadata{values: make(map[string]string)}
}

// Set inserts or updates a key. Updating keeps the key's original position.
func (m *Metadata) Set(key, value string) {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key and whether it is present.
func (m *Metadata) Get(key string) (string, bool) {
	if m == nil || m.values == nil {
		return "", false
	}
	v, ok := m.values[key]
	return v, ok
}

// Delete removes a key if present.
func (m *Metadata) Delete(key string) {
	if m == nil || m.values == nil {
		return
	}
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (m *Metadata) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of keys.
func (m *Metadata) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Clone returns an independent copy.
func (m *Metadata) Clone() *Metadata {
	out := NewMetadata()
	if m == nil {
		return out
	}
	for _, k := range m.keys {
		out.Set(k, m.values[k])
	}
	return out
}

// Equal reports whether two metadata mappings hold the same keys in the same
// order with the same values.
func (m *Metadata) Equal(other *Metadata) bool {
	if m.Len() != other.Len() {
		return false
	}
	if m == nil {
		return true
	}
	for i, k := range m.keys {
		if other.keys[i] != k {
			return false
		}
		if other.values[k] != m.values[k] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the mapping as a JSON object with keys in insertion
// order.
func (m *Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if m != nil {
		for i, k := range m.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			value, err := json.Marshal(m.values[k])
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(value)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping the key order of the document.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("metadata: expected object, got %v", tok)
	}

	m.keys = nil
	m.values = make(map[string]string)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("metadata: expected string key, got %v", keyTok)
		}
		valTok, err := dec.Token()
		if err != nil {
			return err
		}
		value, ok := valTok.(string)
		if !ok {
			return fmt.Errorf("metadata: expected string value for key %q, got %v", key, valTok)
		}
		m.Set(key, value)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
