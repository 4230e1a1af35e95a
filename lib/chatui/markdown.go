// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// minWrapWidth keeps deeply quoted text from wrapping one word per
// line on narrow terminals.
const minWrapWidth = 12

// Markdown renders message text for a terminal. Chat messages are
// short, so only the common subset is styled: paragraphs, emphasis,
// code, links, lists, quotes and headings. Anything else falls back to
// its source text. A Markdown is safe for concurrent use.
type Markdown struct {
	parser    goldmark.Markdown
	renderer  *lipgloss.Renderer
	profile   termenv.Profile
	formatter string
}

// NewMarkdown returns a renderer producing escape sequences for
// profile. termenv.Ascii produces plain text.
func NewMarkdown(profile termenv.Profile) *Markdown {
	renderer := lipgloss.NewRenderer(io.Discard, termenv.WithProfile(profile))
	renderer.SetColorProfile(profile)
	return &Markdown{
		parser:    goldmark.New(goldmark.WithExtensions(extension.Strikethrough, extension.Linkify)),
		renderer:  renderer,
		profile:   profile,
		formatter: chromaFormatter(profile),
	}
}

// chromaFormatter picks the chroma terminal formatter matching profile,
// or "" when code should not be highlighted.
func chromaFormatter(profile termenv.Profile) string {
	switch profile {
	case termenv.TrueColor:
		return "terminal16m"
	case termenv.ANSI256:
		return "terminal256"
	case termenv.ANSI:
		return "terminal16"
	default:
		return ""
	}
}

// Render formats input to fit width columns. Trailing blank lines are
// removed.
func (m *Markdown) Render(input string, width int) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}
	source := []byte(input)
	document := m.parser.Parser().Parse(text.NewReader(source))
	w := &mdWriter{markdown: m, source: source}
	w.blocks(document, "", max(width, minWrapWidth))
	return strings.TrimRight(w.out.String(), "\n")
}

// mdWriter holds the state of one Render call.
type mdWriter struct {
	markdown *Markdown
	source   []byte
	out      strings.Builder
}

func (w *mdWriter) style() lipgloss.Style { return w.markdown.renderer.NewStyle() }

// blocks renders each block child of parent with every line prefixed
// by indent. Blocks are separated by one blank line.
func (w *mdWriter) blocks(parent ast.Node, indent string, width int) {
	for child := parent.FirstChild(); child != nil; child = child.NextSibling() {
		if child != parent.FirstChild() && !isTightItem(parent) {
			w.out.WriteString(strings.TrimRight(indent, " ") + "\n")
		}
		w.block(child, indent, width)
	}
}

func isTightItem(node ast.Node) bool {
	if _, ok := node.(*ast.ListItem); !ok {
		return false
	}
	list, ok := node.Parent().(*ast.List)
	return ok && list.IsTight
}

func (w *mdWriter) block(node ast.Node, indent string, width int) {
	switch node := node.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		w.lines(indent, ansi.Wrap(w.inlines(node), width, " -"))

	case *ast.Heading:
		heading := w.style().Bold(true).Underline(node.Level == 1).Render(ansi.Strip(w.inlines(node)))
		w.lines(indent, ansi.Wrap(heading, width, " -"))

	case *ast.FencedCodeBlock:
		w.lines(indent+"  ", w.highlight(w.rawLines(node), string(node.Language(w.source))))

	case *ast.CodeBlock:
		w.lines(indent+"  ", w.highlight(w.rawLines(node), ""))

	case *ast.Blockquote:
		bar := w.style().Faint(true).Render("│") + " "
		w.blocks(node, indent+bar, width-2)

	case *ast.List:
		number := node.Start
		for item := node.FirstChild(); item != nil; item = item.NextSibling() {
			if item != node.FirstChild() && !node.IsTight {
				w.out.WriteString(strings.TrimRight(indent, " ") + "\n")
			}
			bullet := "• "
			if node.IsOrdered() {
				bullet = fmt.Sprintf("%d. ", number)
				number++
			}
			w.listItem(item, indent, bullet, width)
		}

	case *ast.ThematicBreak:
		w.lines(indent, w.style().Faint(true).Render(strings.Repeat("─", width)))

	default:
		// HTML blocks and anything unrecognized keep their source text.
		w.lines(indent, strings.TrimRight(w.rawLines(node), "\n"))
	}
}

// listItem renders item with bullet on its first line and the rest of
// its content aligned under the bullet text.
func (w *mdWriter) listItem(item ast.Node, indent, bullet string, width int) {
	hang := strings.Repeat(" ", ansi.StringWidth(bullet))
	var inner mdWriter
	inner.markdown, inner.source = w.markdown, w.source
	inner.blocks(item, "", width-len(hang))
	body := strings.TrimRight(inner.out.String(), "\n")
	for i, line := range strings.Split(body, "\n") {
		prefix := hang
		if i == 0 {
			prefix = bullet
		}
		w.out.WriteString(strings.TrimRight(indent+prefix+line, " ") + "\n")
	}
}

// lines writes content with each line prefixed by indent.
func (w *mdWriter) lines(indent, content string) {
	for _, line := range strings.Split(content, "\n") {
		w.out.WriteString(indent + line + "\n")
	}
}

// rawLines returns the source text of a block node.
func (w *mdWriter) rawLines(node ast.Node) string {
	var buffer bytes.Buffer
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		buffer.Write(segment.Value(w.source))
	}
	return buffer.String()
}

// highlight syntax-colors code. Unknown languages, an empty language
// and colorless profiles leave the code faint or plain.
func (w *mdWriter) highlight(code, language string) string {
	code = strings.TrimRight(code, "\n")
	if w.markdown.formatter != "" && language != "" {
		var buffer strings.Builder
		if err := quick.Highlight(&buffer, code, language, w.markdown.formatter, "monokai"); err == nil {
			return strings.TrimRight(buffer.String(), "\n")
		}
	}
	return w.style().Faint(true).Render(code)
}

// inlines renders the inline children of node as one styled string.
// Soft breaks become spaces so the paragraph can be rewrapped.
func (w *mdWriter) inlines(node ast.Node) string {
	var out strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		out.WriteString(w.inline(child))
	}
	return out.String()
}

func (w *mdWriter) inline(node ast.Node) string {
	switch node := node.(type) {
	case *ast.Text:
		value := string(node.Segment.Value(w.source))
		switch {
		case node.HardLineBreak():
			value += "\n"
		case node.SoftLineBreak():
			value += " "
		}
		return value

	case *ast.String:
		return string(node.Value)

	case *ast.Emphasis:
		style := w.style().Italic(true)
		if node.Level >= 2 {
			style = w.style().Bold(true)
		}
		return style.Render(w.inlines(node))

	case *extast.Strikethrough:
		return w.style().Strikethrough(true).Render(w.inlines(node))

	case *ast.CodeSpan:
		return w.style().Foreground(lipgloss.Color("214")).Render(ansi.Strip(w.inlines(node)))

	case *ast.Link:
		label := w.inlines(node)
		destination := string(node.Destination)
		if destination == "" || ansi.Strip(label) == destination {
			return w.style().Underline(true).Render(label)
		}
		return w.style().Underline(true).Render(label) + " " + w.style().Faint(true).Render("("+destination+")")

	case *ast.AutoLink:
		return w.style().Underline(true).Render(string(node.URL(w.source)))

	case *ast.Image:
		return w.style().Faint(true).Render("[image: " + ansi.Strip(w.inlines(node)) + "]")

	case *ast.RawHTML:
		var raw strings.Builder
		for i := 0; i < node.Segments.Len(); i++ {
			segment := node.Segments.At(i)
			raw.Write(segment.Value(w.source))
		}
		return raw.String()

	default:
		return w.inlines(node)
	}
}
