package cli

import (
	"fmt"
	"io"

	roscaerr "github.com/gezibash/arc-rosca/pkg/errors"
	"github.com/gezibash/arc-rosca/pkg/rosca"
)

// Result is a one-line outcome with ordered details.
type Result struct {
	out     *Output
	meta    Meta
	message string
	details []kvPair
}

type kvPair struct {
	key   string
	value any
}

func (r *Result) With(key string, value any) *Result {
	r.details = append(r.details, kvPair{key: key, value: value})
	return r
}

func (r *Result) Render() error { return r.out.Render(r) }

func (r *Result) Meta() Meta { return r.meta }

func (r *Result) RenderText(w io.Writer) error {
	if _, err := fmt.Fprintln(w, r.message); err != nil {
		return err
	}
	width := 0
	for _, d := range r.details {
		width = max(width, len(d.key)+1)
	}
	for _, d := range r.details {
		if _, err := fmt.Fprintf(w, "  %-*s  %v\n", width, d.key+":", d.value); err != nil {
			return err
		}
	}
	return nil
}

func (r *Result) RenderJSON() any {
	result := make(map[string]any, len(r.details)+1)
	result["message"] = r.message
	for _, d := range r.details {
		result[toJSONKey(d.key)] = d.value
	}
	return result
}

func (r *Result) RenderMarkdown(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "**%s**\n\n", r.message); err != nil {
		return err
	}
	for _, d := range r.details {
		if _, err := fmt.Fprintf(w, "- **%s:** %s\n", d.key, markdownValue(d.value)); err != nil {
			return err
		}
	}
	return nil
}

// Error renders a failed command. Named rosca errors contribute their code
// and kind.
type Error struct {
	out  *Output
	meta Meta
	err  error
}

func (e *Error) Render() error { return e.out.Render(e) }

func (e *Error) Meta() Meta { return e.meta }

func (e *Error) code() string { return rosca.ErrorCode(e.err) }

func (e *Error) kind() string {
	if roscaerr.KindOf(e.err) == nil {
		return ""
	}
	return roscaerr.KindName(e.err)
}

func (e *Error) RenderText(w io.Writer) error {
	if code := e.code(); code != "" {
		_, err := fmt.Fprintf(w, "Error [%s]: %v\n", code, e.err)
		return err
	}
	_, err := fmt.Fprintf(w, "Error: %v\n", e.err)
	return err
}

func (e *Error) RenderJSON() any {
	result := map[string]any{"error": e.err.Error()}
	if code := e.code(); code != "" {
		result["code"] = code
	}
	if kind := e.kind(); kind != "" {
		result["kind"] = kind
	}
	return result
}

func (e *Error) RenderMarkdown(w io.Writer) error {
	if code := e.code(); code != "" {
		_, err := fmt.Fprintf(w, "> **Error [%s]:** %v\n", code, e.err)
		return err
	}
	_, err := fmt.Fprintf(w, "> **Error:** %v\n", e.err)
	return err
}
