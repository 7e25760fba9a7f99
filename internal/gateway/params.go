package gateway

import (
	"fmt"
	"net/url"
	"reflect"
	"strings"
)

// Params is a query-string mapping that keeps insertion order. Absent values
// (nil, or a nil pointer, map, slice or interface) are skipped on Encode.
type Params struct {
	keys   []string
	values map[string]any
}

// NewParams returns an empty mapping.
func NewParams() *Params {
	return &Params{values: make(map[string]any)}
}

// Set adds or replaces key. A replaced key keeps its original position.
func (p *Params) Set(key string, value any) *Params {
	if p.values == nil {
		p.values = make(map[string]any)
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
	return p
}

// Len returns the number of keys, including absent ones.
func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Encode renders the present values as a query string in insertion order.
func (p *Params) Encode() string {
	if p == nil {
		return ""
	}

	var sb strings.Builder
	for _, key := range p.keys {
		value, ok := present(p.values[key])
		if !ok {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(value))
	}
	return sb.String()
}

func present(v any) (string, bool) {
	if v == nil {
		return "", false
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "", false
		}
		return present(rv.Elem().Interface())
	case reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			return "", false
		}
	}

	return fmt.Sprint(v), true
}
