// Package wire implements the HTTP-shaped request/response envelope that
// RestBus tunnels over the broker, and its self-describing binary encoding.
package wire

import "strings"

// HeaderField is a single name/value pair in a Header multimap.
type HeaderField struct {
	Name  string
	Value string
}

// Header is an ordered multimap of header name to values. Unlike
// map[string][]string it preserves insertion order and duplicate field
// order, which the round-trip property in the request/response contract
// depends on.
type Header []HeaderField

// Get returns the first value for name (case-insensitive), if any.
func (h Header) Get(name string) (string, bool) {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// Values returns all values for name, in insertion order.
func (h Header) Values(name string) []string {
	var vals []string
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			vals = append(vals, f.Value)
		}
	}
	return vals
}

// Add appends a name/value pair, keeping any existing fields of the same
// name.
func (h *Header) Add(name, value string) {
	*h = append(*h, HeaderField{Name: name, Value: value})
}

// Set replaces all existing fields named name with a single field carrying
// value. Used to overwrite Content-Length on receipt.
func (h *Header) Set(name, value string) {
	out := make(Header, 0, len(*h)+1)
	replaced := false
	for _, f := range *h {
		if strings.EqualFold(f.Name, name) {
			if !replaced {
				out = append(out, HeaderField{Name: name, Value: value})
				replaced = true
			}
			continue
		}
		out = append(out, f)
	}
	if !replaced {
		out = append(out, HeaderField{Name: name, Value: value})
	}
	*h = out
}

// Clone returns an independent copy of h.
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	out := make(Header, len(h))
	copy(out, h)
	return out
}
