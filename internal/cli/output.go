// Package cli renders command results as text, JSON or markdown.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Format represents an output format.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat parses a format name. An empty name means text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or markdown)", s)
	}
}

// Meta describes a rendered result. It heads JSON envelopes and markdown
// frontmatter.
type Meta struct {
	Type      string    `json:"type" yaml:"type"`
	Version   string    `json:"version" yaml:"version"`
	Generated time.Time `json:"generated" yaml:"generated"`
	Node      string    `json:"node,omitempty" yaml:"node,omitempty"`
}

func NewMeta(resultType string) Meta {
	return Meta{
		Type:      resultType,
		Version:   "v1",
		Generated: time.Now().UTC(),
	}
}

// Renderable can render itself in every format.
type Renderable interface {
	Meta() Meta
	RenderText(w io.Writer) error
	RenderJSON() any
	RenderMarkdown(w io.Writer) error
}

// Output renders results in one format to one writer.
type Output struct {
	format Format
	w      io.Writer
	node   string
}

func NewOutput(format Format, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

// WithNode records which node served the results.
func (o *Output) WithNode(node string) *Output {
	o.node = node
	return o
}

// Format returns the configured output format.
func (o *Output) Format() Format { return o.format }

// Writer returns the destination writer.
func (o *Output) Writer() io.Writer { return o.w }

func (o *Output) meta(resultType string) Meta {
	m := NewMeta(resultType)
	m.Node = o.node
	return m
}

func (o *Output) Table(resultType string, headers ...string) *Table {
	return &Table{out: o, meta: o.meta(resultType), headers: headers}
}

func (o *Output) KV(resultType string) *KV {
	return &KV{out: o, meta: o.meta(resultType)}
}

func (o *Output) List(resultType string) *List {
	return &List{out: o, meta: o.meta(resultType)}
}

func (o *Output) Result(resultType, message string) *Result {
	return &Result{out: o, meta: o.meta(resultType), message: message}
}

func (o *Output) Error(resultType string, err error) *Error {
	return &Error{out: o, meta: o.meta(resultType + "-error"), err: err}
}

// Render writes r in the configured format.
func (o *Output) Render(r Renderable) error {
	switch o.format {
	case FormatJSON:
		return o.renderJSON(r)
	case FormatMarkdown:
		return o.renderMarkdown(r)
	default:
		return r.RenderText(o.w)
	}
}

// RenderValue writes v as JSON in a result envelope, whatever the format.
// It serves results that only make sense raw, such as archived snapshots.
func (o *Output) RenderValue(resultType string, v any) error {
	return o.encodeEnvelope(o.meta(resultType), v)
}

func (o *Output) renderJSON(r Renderable) error {
	return o.encodeEnvelope(r.Meta(), r.RenderJSON())
}

func (o *Output) encodeEnvelope(meta Meta, data any) error {
	envelope := struct {
		Meta Meta `json:"meta"`
		Data any  `json:"data"`
	}{Meta: meta, Data: data}

	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(envelope)
}

func (o *Output) renderMarkdown(r Renderable) error {
	if _, err := fmt.Fprintln(o.w, "---"); err != nil {
		return err
	}
	enc := yaml.NewEncoder(o.w)
	enc.SetIndent(2)
	if err := enc.Encode(r.Meta()); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if _, err := fmt.Fprint(o.w, "---\n\n"); err != nil {
		return err
	}
	return r.RenderMarkdown(o.w)
}

// toJSONKey converts a label to a JSON key (lowercase, underscores).
func toJSONKey(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "_"))
}

// WithData renders r for text and markdown but emits data as its JSON
// payload, so scripts get the raw model instead of formatted cells.
func WithData(r Renderable, data any) Renderable {
	return withData{Renderable: r, data: data}
}

type withData struct {
	Renderable
	data any
}

func (w withData) RenderJSON() any { return w.data }
