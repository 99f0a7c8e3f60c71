package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// RequestIDPrefix namespaces generated request ids.
const RequestIDPrefix = "go-freeipa."

// VersionOption is the request option carrying the API version.
const VersionOption = "version"

// RequestBody is one JSON-RPC call. It is a value type: every With method
// returns a new body and leaves the receiver untouched.
type RequestBody struct {
	method        string
	methodVersion string
	arguments     []string
	options       map[string]any
	id            string
}

// RequestOption configures a RequestBody at construction.
type RequestOption func(*RequestBody)

// WithArgs sets the positional arguments.
func WithArgs(args ...string) RequestOption {
	return func(b *RequestBody) {
		b.arguments = slices.Clone(args)
	}
}

// WithOpts sets the named options.
func WithOpts(opts map[string]any) RequestOption {
	return func(b *RequestBody) {
		b.options = cloneOptions(opts)
	}
}

// WithVersion sets the method version suffix, e.g. "2.114".
func WithVersion(version string) RequestOption {
	return func(b *RequestBody) {
		b.methodVersion = version
	}
}

// WithRequestID sets the correlation id instead of generating one.
func WithRequestID(id string) RequestOption {
	return func(b *RequestBody) {
		b.id = id
	}
}

// NewRequestBody creates a request for method.
func NewRequestBody(method string, opts ...RequestOption) RequestBody {
	b := RequestBody{
		method:    method,
		arguments: []string{},
		options:   map[string]any{},
	}
	for _, opt := range opts {
		opt(&b)
	}
	if b.id == "" {
		b.id = NewRequestID()
	}
	return b
}

// NewRequestID returns a unique, library-namespaced correlation id.
func NewRequestID() string {
	return RequestIDPrefix + uuid.NewString()
}

func (b RequestBody) Method() string        { return b.method }
func (b RequestBody) MethodVersion() string { return b.methodVersion }
func (b RequestBody) ID() string            { return b.id }

// Arguments returns a copy of the positional arguments.
func (b RequestBody) Arguments() []string {
	return slices.Clone(b.arguments)
}

// Options returns a copy of the named options.
func (b RequestBody) Options() map[string]any {
	return cloneOptions(b.options)
}

// Option returns a single named option.
func (b RequestBody) Option(name string) (any, bool) {
	v, ok := b.options[name]
	return cloneValue(v), ok
}

// HasOption reports whether name is set.
func (b RequestBody) HasOption(name string) bool {
	_, ok := b.options[name]
	return ok
}

// FullMethod returns method[/version] as sent on the wire.
func (b RequestBody) FullMethod() string {
	if b.methodVersion == "" {
		return b.method
	}
	return b.method + "/" + b.methodVersion
}

func (b RequestBody) WithMethod(method string) RequestBody {
	c := b.clone()
	c.method = method
	return c
}

func (b RequestBody) WithMethodVersion(version string) RequestBody {
	c := b.clone()
	c.methodVersion = version
	return c
}

// WithArgument appends one positional argument.
func (b RequestBody) WithArgument(arg string) RequestBody {
	c := b.clone()
	c.arguments = append(c.arguments, arg)
	return c
}

// WithArguments replaces all positional arguments.
func (b RequestBody) WithArguments(args []string) RequestBody {
	c := b.clone()
	c.arguments = slices.Clone(args)
	if c.arguments == nil {
		c.arguments = []string{}
	}
	return c
}

// WithOption sets one named option. A nil value removes it.
func (b RequestBody) WithOption(name string, value any) RequestBody {
	c := b.clone()
	if value == nil {
		delete(c.options, name)
	} else {
		c.options[name] = cloneValue(value)
	}
	return c
}

// WithOptions replaces all named options.
func (b RequestBody) WithOptions(opts map[string]any) RequestBody {
	c := b.clone()
	c.options = cloneOptions(opts)
	return c
}

// WithAddedOptions merges opts into the existing options; keys in opts win.
// A nil value removes the key.
func (b RequestBody) WithAddedOptions(opts map[string]any) RequestBody {
	c := b.clone()
	for k, v := range opts {
		if v == nil {
			delete(c.options, k)
			continue
		}
		c.options[k] = cloneValue(v)
	}
	return c
}

func (b RequestBody) WithID(id string) RequestBody {
	c := b.clone()
	c.id = id
	return c
}

func (b RequestBody) clone() RequestBody {
	return RequestBody{
		method:        b.method,
		methodVersion: b.methodVersion,
		arguments:     slices.Clone(b.arguments),
		options:       cloneOptions(b.options),
		id:            b.id,
	}
}

type wireRequest struct {
	Method string `json:"method"`
	Params [2]any `json:"params"`
	ID     string `json:"id"`
}

// MarshalJSON encodes {"method": ..., "params": [[args], {opts}], "id": ...}.
// Options always encode as an object, never an array or null.
func (b RequestBody) MarshalJSON() ([]byte, error) {
	args := b.arguments
	if args == nil {
		args = []string{}
	}
	opts := b.options
	if opts == nil {
		opts = map[string]any{}
	}
	return json.Marshal(wireRequest{
		Method: b.FullMethod(),
		Params: [2]any{args, opts},
		ID:     b.id,
	})
}

// ParseRequestBody decodes a request envelope, the inverse of MarshalJSON.
func ParseRequestBody(data []byte) (RequestBody, error) {
	var raw struct {
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
		ID     string            `json:"id"`
	}
	if err := DecodeInto(data, &raw); err != nil {
		return RequestBody{}, err
	}
	if raw.Method == "" {
		return RequestBody{}, &DecodingError{Cause: errors.New("request has no method")}
	}
	if len(raw.Params) != 2 {
		return RequestBody{}, &DecodingError{Cause: fmt.Errorf("params must hold 2 elements, got %d", len(raw.Params))}
	}

	var args []any
	if err := DecodeInto(raw.Params[0], &args); err != nil {
		return RequestBody{}, err
	}
	var opts map[string]any
	if err := DecodeInto(raw.Params[1], &opts); err != nil {
		return RequestBody{}, err
	}

	method, version, _ := strings.Cut(raw.Method, "/")
	b := RequestBody{
		method:        method,
		methodVersion: version,
		arguments:     make([]string, 0, len(args)),
		options:       cloneOptions(opts),
		id:            raw.ID,
	}
	for _, a := range args {
		b.arguments = append(b.arguments, fmt.Sprint(a))
	}
	return b, nil
}

func cloneOptions(opts map[string]any) map[string]any {
	c := make(map[string]any, len(opts))
	for k, v := range opts {
		if v == nil {
			continue
		}
		c[k] = cloneValue(v)
	}
	return c
}

// cloneValue deep-copies slices, arrays and maps at any depth so a body never
// shares mutable state with the caller.
func cloneValue(v any) any {
	if v == nil {
		return nil
	}
	return cloneReflect(reflect.ValueOf(v)).Interface()
}

func cloneReflect(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := range v.Len() {
			out.Index(i).Set(cloneReflect(v.Index(i)))
		}
		return out
	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := range v.Len() {
			out.Index(i).Set(cloneReflect(v.Index(i)))
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), cloneReflect(iter.Value()))
		}
		return out
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(cloneReflect(v.Elem()))
		return out
	default:
		return v
	}
}
