package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// KV renders labelled fields in insertion order, optionally split into
// titled sections. JSON output is a flat object keyed by snake_case labels.
type KV struct {
	out      *Output
	meta     Meta
	sections []kvSection
}

type kvSection struct {
	title  string
	fields []kvField
}

type kvField struct {
	label string
	value any
}

// Section starts a new titled group; later Set calls land in it.
func (k *KV) Section(title string) *KV {
	k.sections = append(k.sections, kvSection{title: title})
	return k
}

// Set appends a field to the current section. JSON keeps value's type;
// text and markdown print it with %v.
func (k *KV) Set(label string, value any) *KV {
	if len(k.sections) == 0 {
		k.sections = append(k.sections, kvSection{})
	}
	cur := &k.sections[len(k.sections)-1]
	cur.fields = append(cur.fields, kvField{label: label, value: value})
	return k
}

func (k *KV) Render() error { return k.out.Render(k) }

func (k *KV) Meta() Meta { return k.meta }

func (k *KV) RenderText(w io.Writer) error {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	opts := &tw.Style().Options
	opts.DrawBorder, opts.SeparateColumns, opts.SeparateRows, opts.SeparateHeader = false, false, false, false

	rows := 0
	for i, s := range k.sections {
		if s.title != "" {
			if i > 0 {
				tw.AppendRow(table.Row{"", ""})
			}
			tw.AppendRow(table.Row{strings.ToUpper(s.title), ""})
		}
		for _, f := range s.fields {
			tw.AppendRow(table.Row{f.label + ":", fmt.Sprintf("%v", f.value)})
			rows++
		}
	}
	if rows == 0 {
		return nil
	}
	_, err := io.WriteString(w, tw.Render()+"\n")
	return err
}

func (k *KV) RenderJSON() any {
	result := make(map[string]any)
	for _, s := range k.sections {
		for _, f := range s.fields {
			result[toJSONKey(f.label)] = f.value
		}
	}
	return result
}

func (k *KV) RenderMarkdown(w io.Writer) error {
	for _, s := range k.sections {
		if s.title != "" && len(s.fields) > 0 {
			if _, err := fmt.Fprintf(w, "### %s\n\n", s.title); err != nil {
				return err
			}
		}
		for _, f := range s.fields {
			if _, err := fmt.Fprintf(w, "**%s:** %s\n\n", f.label, markdownValue(f.value)); err != nil {
				return err
			}
		}
	}
	return nil
}

// markdownValue wraps account-like values in code spans so colons and
// underscores render literally, and escapes pipes elsewhere.
func markdownValue(v any) string {
	s := fmt.Sprintf("%v", v)
	if strings.ContainsAny(s, ":_*") && !strings.ContainsAny(s, " `") {
		return "`" + s + "`"
	}
	return strings.ReplaceAll(s, "|", "\\|")
}
