// Package jsonapi models the subset of JSON:API documents returned by the
// Teamtailor API: primary data, side-loaded resources, links and meta.
package jsonapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Document is one page of a JSON:API response.
type Document struct {
	Data     []Resource `json:"data"`
	Included []Resource `json:"included,omitempty"`
	Links    Links      `json:"links,omitempty"`
	Meta     Meta       `json:"meta,omitempty"`
}

// Links holds the pagination links of a document.
type Links struct {
	// Next is the continuation cursor. Empty on the final page.
	Next string `json:"next,omitempty"`
	Self string `json:"self,omitempty"`
}

// UnmarshalJSON accepts each link as a string or as a link object
// ({"href": ...}). A non-object links member yields no links.
func (l *Links) UnmarshalJSON(b []byte) error {
	*l = Links{}

	var members map[string]json.RawMessage
	if err := codec.Unmarshal(b, &members); err != nil {
		return nil
	}
	l.Next = linkText(members["next"])
	l.Self = linkText(members["self"])
	return nil
}

// linkText renders a link member. Objects resolve to their href, or to
// their raw text when no string href is present, so any non-null link
// still counts as present.
func linkText(raw json.RawMessage) string {
	if isObject(raw) {
		var obj map[string]json.RawMessage
		if err := codec.Unmarshal(raw, &obj); err == nil && isString(obj["href"]) {
			return rawText(obj["href"])
		}
	}
	return rawText(raw)
}

// HasNext reports whether the upstream advertised another page.
func (d *Document) HasNext() bool {
	return d != nil && d.Links.Next != ""
}

type documentWire struct {
	Data     json.RawMessage `json:"data"`
	Included json.RawMessage `json:"included"`
	Links    Links           `json:"links"`
	Meta     Meta            `json:"meta"`
}

// UnmarshalJSON requires a JSON object but tolerates odd member shapes:
// "data" and "included" may be an array or a single resource, anything
// else yields no resources.
func (d *Document) UnmarshalJSON(b []byte) error {
	var wire documentWire
	if err := codec.Unmarshal(b, &wire); err != nil {
		return err
	}
	*d = Document{
		Data:     decodeResources(wire.Data),
		Included: decodeResources(wire.Included),
		Links:    wire.Links,
		Meta:     wire.Meta,
	}
	return nil
}

func decodeResources(raw json.RawMessage) []Resource {
	raw = bytes.TrimSpace(raw)
	if isObject(raw) {
		var one Resource
		_ = codec.Unmarshal(raw, &one)
		return []Resource{one}
	}
	if len(raw) == 0 || raw[0] != '[' {
		return nil
	}

	var elems []json.RawMessage
	if err := codec.Unmarshal(raw, &elems); err != nil {
		return nil
	}
	resources := make([]Resource, 0, len(elems))
	for _, elem := range elems {
		if !isObject(elem) {
			continue
		}
		var res Resource
		_ = codec.Unmarshal(elem, &res)
		resources = append(resources, res)
	}
	return resources
}

// Decode parses a JSON:API document.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := codec.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode json:api document: %w", err)
	}
	return &doc, nil
}

// Resource is a primary or side-loaded entity.
type Resource struct {
	Type          string                     `json:"type"`
	ID            string                     `json:"id"`
	Attributes    map[string]json.RawMessage `json:"attributes,omitempty"`
	Relationships map[string]Relationship    `json:"relationships,omitempty"`
}

type resourceWire struct {
	Type          json.RawMessage `json:"type"`
	ID            json.RawMessage `json:"id"`
	Attributes    json.RawMessage `json:"attributes"`
	Relationships json.RawMessage `json:"relationships"`
}

// UnmarshalJSON decodes a resource without rejecting odd member shapes:
// non-object attributes or relationships become empty, and numeric ids are
// kept as their literal text.
func (r *Resource) UnmarshalJSON(b []byte) error {
	*r = Resource{}

	var wire resourceWire
	if err := codec.Unmarshal(b, &wire); err != nil {
		return nil
	}

	r.Type = rawText(wire.Type)
	r.ID = rawText(wire.ID)

	r.Attributes = map[string]json.RawMessage{}
	if isObject(wire.Attributes) {
		_ = codec.Unmarshal(wire.Attributes, &r.Attributes)
	}

	if isObject(wire.Relationships) {
		var rels map[string]Relationship
		if err := codec.Unmarshal(wire.Relationships, &rels); err == nil {
			r.Relationships = rels
		}
	}
	return nil
}

// StringAttribute returns the named attribute rendered as text.
// Missing and null attributes yield "". Strings are returned unquoted,
// any other JSON value is returned as its literal text.
func (r Resource) StringAttribute(name string) string {
	return rawText(r.Attributes[name])
}

// Related returns the identifiers referenced by the named relationship,
// in payload order. Absent relationships yield nil.
func (r Resource) Related(name string) []ResourceIdentifier {
	rel, ok := r.Relationships[name]
	if !ok {
		return nil
	}
	return rel.Identifiers()
}

// ResourceIdentifier is an (id, type) reference.
type ResourceIdentifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Relationship is a to-one or to-many reference. Data keeps both shapes as
// a slice; a to-one reference becomes a single element, null becomes empty.
type Relationship struct {
	Data  []ResourceIdentifier
	Links map[string]string
}

type relationshipWire struct {
	Data  json.RawMessage `json:"data"`
	Links json.RawMessage `json:"links,omitempty"`
}

// UnmarshalJSON accepts "data" as an object, an array or null. Any other
// shape, and array elements that are not identifier objects, yield no
// references.
func (r *Relationship) UnmarshalJSON(b []byte) error {
	*r = Relationship{}

	var wire relationshipWire
	if err := codec.Unmarshal(b, &wire); err != nil {
		return nil
	}

	if isObject(wire.Links) {
		var links map[string]json.RawMessage
		if err := codec.Unmarshal(wire.Links, &links); err == nil {
			r.Links = make(map[string]string, len(links))
			for name, raw := range links {
				r.Links[name] = linkText(raw)
			}
		}
	}

	data := bytes.TrimSpace(wire.Data)
	switch {
	case len(data) == 0:
		return nil
	case data[0] == '[':
		var elems []json.RawMessage
		if err := codec.Unmarshal(data, &elems); err != nil {
			return nil
		}
		for _, elem := range elems {
			if id, ok := decodeIdentifier(elem); ok {
				r.Data = append(r.Data, id)
			}
		}
	case data[0] == '{':
		if id, ok := decodeIdentifier(data); ok {
			r.Data = []ResourceIdentifier{id}
		}
	}
	return nil
}

func decodeIdentifier(raw json.RawMessage) (ResourceIdentifier, bool) {
	if !isObject(raw) {
		return ResourceIdentifier{}, false
	}
	var wire struct {
		Type json.RawMessage `json:"type"`
		ID   json.RawMessage `json:"id"`
	}
	if err := codec.Unmarshal(raw, &wire); err != nil {
		return ResourceIdentifier{}, false
	}
	return ResourceIdentifier{Type: rawText(wire.Type), ID: rawText(wire.ID)}, true
}

// MarshalJSON writes Data as an array.
func (r Relationship) MarshalJSON() ([]byte, error) {
	data := r.Data
	if data == nil {
		data = []ResourceIdentifier{}
	}
	return codec.Marshal(struct {
		Data  []ResourceIdentifier `json:"data"`
		Links map[string]string    `json:"links,omitempty"`
	}{data, r.Links})
}

// Identifiers returns the referenced identifiers in payload order.
func (r Relationship) Identifiers() []ResourceIdentifier {
	return r.Data
}

// Meta is the free-form meta object of a document.
type Meta map[string]json.RawMessage

// UnmarshalJSON keeps the members of a meta object; any other shape yields
// an empty meta.
func (m *Meta) UnmarshalJSON(b []byte) error {
	var members map[string]json.RawMessage
	if err := codec.Unmarshal(b, &members); err != nil {
		*m = nil
		return nil
	}
	*m = members
	return nil
}

// RecordCount returns the total record count, if the upstream sent one.
func (m Meta) RecordCount() (int, bool) {
	return m.intField("record-count", "record_count")
}

// PageCount returns the total page count, if the upstream sent one.
func (m Meta) PageCount() (int, bool) {
	return m.intField("page-count", "page_count")
}

func (m Meta) intField(keys ...string) (int, bool) {
	for _, key := range keys {
		raw, ok := m[key]
		if !ok {
			continue
		}
		raw = bytes.Trim(bytes.TrimSpace(raw), `"`)
		n, err := strconv.Atoi(string(raw))
		if err != nil || n < 0 {
			continue
		}
		return n, true
	}
	return 0, false
}

// rawText renders a JSON value as text: strings unquoted, null and absent
// values as "", anything else as its literal JSON.
func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := codec.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	}
	return string(raw)
}

func isString(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '"'
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
