package profile

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Params maps a template parameter name to its value. Values are limited
// to strings, booleans and numbers. Strings must be a single profile token.
type Params map[string]any

// stringToken is the shape of a string value that stays one token on an
// assign line
var stringToken = regexp.MustCompile(`^[A-Za-z0-9_.:|-]+$`)

// InvalidParamError reports a parameter whose value cannot be rendered
type InvalidParamError struct {
	Name   string
	Value  any
	Reason string
}

func (e *InvalidParamError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("parameter %q: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("parameter %q has unsupported type %T (want string, number or boolean)", e.Name, e.Value)
}

// Validate checks every value type and the shape of string values
func (p Params) Validate() error {
	for _, name := range p.names() {
		if err := checkValue(name, p[name]); err != nil {
			return err
		}
	}
	return nil
}

func checkValue(name string, v any) error {
	if _, err := formatValue(v); err != nil {
		return &InvalidParamError{Name: name, Value: v}
	}
	if s, ok := v.(string); ok && !stringToken.MatchString(s) {
		return &InvalidParamError{
			Name:   name,
			Value:  v,
			Reason: "string values must match " + stringToken.String(),
		}
	}
	return nil
}

// Merge returns a new set where overrides replace p's values
func (p Params) Merge(overrides Params) Params {
	out := make(Params, len(p)+len(overrides))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// Canonical returns a deterministic encoding of the set, independent of
// map iteration order
func (p Params) Canonical() string {
	var b strings.Builder
	for i, name := range p.names() {
		if i > 0 {
			b.WriteByte(';')
		}
		s, _ := formatValue(p[name])
		fmt.Fprintf(&b, "%q=%T:%q", name, p[name], s)
	}
	return b.String()
}

func (p Params) names() []string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// formatValue renders a value the way the engine's profile language expects
func formatValue(v any) (string, error) {
	switch x := v.(type) {
	case bool:
		return strconv.FormatBool(x), nil
	case string:
		return x, nil
	case int:
		return strconv.Itoa(x), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case json.Number:
		return x.String(), nil
	default:
		return "", fmt.Errorf("unsupported type %T", v)
	}
}
