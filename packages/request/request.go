// Package request describes outbound HTTP requests and their structural identity.
package request

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

type BodyKind string

const (
	BodyNone BodyKind = ""
	BodyForm BodyKind = "form"
	BodyRaw  BodyKind = "raw"
	BodyJSON BodyKind = "json"
)

// KV is one form pair. Forms are ordered slices, never maps.
type KV struct {
	Name  string
	Value string
}

type Request struct {
	Method  string
	URL     string
	Kind    BodyKind
	Body    string
	Form    []KV
	Headers http.Header
	// Indexer is attribution for logs and metrics; it is not part of the key.
	Indexer string
}

type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	URL        string
}

// Executor performs one request. The transport package provides the
// net/http implementation.
type Executor interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
}

type ExecutorFunc func(ctx context.Context, req *Request) (*Response, error)

func (f ExecutorFunc) Execute(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Key is the structural identity of a request. The URL is compared
// byte-for-byte and form pairs in order; headers are ignored.
type Key string

// Key encodes every field with a length prefix so no two distinct requests
// can collide by concatenation.
func (r *Request) Key() Key {
	var b strings.Builder
	write := func(s string) {
		b.WriteString(strconv.Itoa(len(s)))
		b.WriteByte(':')
		b.WriteString(s)
	}

	write(r.MethodOrDefault())
	write(r.URL)
	write(string(r.Kind))
	write(r.Body)
	b.WriteString(strconv.Itoa(len(r.Form)))
	b.WriteByte('#')
	for _, kv := range r.Form {
		write(kv.Name)
		write(kv.Value)
	}
	return Key(b.String())
}

func (r *Request) MethodOrDefault() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(r.Method)
}

// EncodedForm renders the form pairs in their declared order.
func (r *Request) EncodedForm() string {
	parts := make([]string, 0, len(r.Form))
	for _, kv := range r.Form {
		parts = append(parts, url.QueryEscape(kv.Name)+"="+url.QueryEscape(kv.Value))
	}
	return strings.Join(parts, "&")
}

// Payload is the body actually sent on the wire.
func (r *Request) Payload() string {
	if r.Kind == BodyForm {
		return r.EncodedForm()
	}
	return r.Body
}

func (r *Response) Text() string { return string(r.Body) }

func (r *Response) IsServerError() bool { return r.StatusCode >= 500 }
