package cli

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/list"
)

// List renders a bulleted list of lines.
type List struct {
	out   *Output
	meta  Meta
	title string
	items []string
}

// Title sets a heading printed above the items.
func (l *List) Title(title string) *List {
	l.title = title
	return l
}

func (l *List) Add(items ...string) *List {
	l.items = append(l.items, items...)
	return l
}

func (l *List) Render() error { return l.out.Render(l) }

func (l *List) Meta() Meta { return l.meta }

func (l *List) RenderText(w io.Writer) error {
	return l.write(w, list.StyleBulletCircle, false)
}

func (l *List) RenderJSON() any {
	if l.title == "" {
		return l.items
	}
	return map[string]any{"title": l.title, "items": l.items}
}

func (l *List) RenderMarkdown(w io.Writer) error {
	return l.write(w, list.StyleMarkdown, true)
}

func (l *List) write(w io.Writer, style list.Style, markdown bool) error {
	if l.title != "" {
		heading := l.title + "\n"
		if markdown {
			heading = "### " + l.title + "\n\n"
		}
		if _, err := io.WriteString(w, heading); err != nil {
			return err
		}
	}
	if len(l.items) == 0 {
		return nil
	}

	lw := list.NewWriter()
	lw.SetStyle(style)
	for _, item := range l.items {
		lw.AppendItem(item)
	}
	out := lw.Render()
	if markdown {
		out = lw.RenderMarkdown()
	}
	_, err := io.WriteString(w, out+"\n")
	return err
}
