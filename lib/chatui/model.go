// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"github.com/bureau-foundation/msgbridge/lib/typing"
)

// chromeLines is the number of rows outside the history viewport:
// the title, the typing indicator and the composer.
const chromeLines = 3

// bodyIndent is the indentation of multi-line message bodies.
const bodyIndent = "  "

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Reverse(true)
	timeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	peerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	selfStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	noticeStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("11"))
	typingStyle = lipgloss.NewStyle().Faint(true)
	cursorStyle = lipgloss.NewStyle().Reverse(true)
)

// Entry is one item of conversation history. It is also the message
// that appends an item to a running Model.
type Entry struct {
	Time time.Time

	// Author is the display name of the sender. Ignored for notices.
	Author string

	// Self marks messages sent by the viewing client.
	Self bool

	// Text is the message body as markdown, or the notice text.
	Text string

	// Notice marks a status line rather than a message.
	Notice bool

	// Styled marks Text as already formatted for the terminal, so it
	// is shown as is rather than rendered as markdown.
	Styled bool
}

// Notice returns a notice entry stamped now.
func Notice(format string, args ...any) Entry {
	return Entry{Time: time.Now(), Text: fmt.Sprintf(format, args...), Notice: true}
}

// TypingMsg replaces the typing indicator line. An empty string clears
// it.
type TypingMsg string

// sentMsg reports the outcome of a Send call.
type sentMsg struct {
	text string
	err  error
}

// Config configures a Model.
type Config struct {
	// Title is shown in the top row.
	Title string

	// Send delivers composed text. It runs outside the update loop.
	// Required.
	Send func(text string) error

	// SetTyping announces a typing status (typing.Typing or
	// typing.NotTyping) when the composer becomes non-empty or empty.
	// Nil disables typing announcements.
	SetTyping func(status string) error

	// History is shown before any live entry.
	History []Entry

	// Markdown renders message bodies. Nil means ANSI256 output.
	Markdown *Markdown

	// Keys overrides DefaultKeyMap.
	Keys *KeyMap
}

// Model is a bubbletea model for one conversation: a scrolling history
// above a single-line composer.
type Model struct {
	config   Config
	keys     KeyMap
	viewport viewport.Model

	entries []Entry
	typing  string

	input  []rune
	cursor int

	width int
}

// NewModel returns a Model showing config.History.
func NewModel(config Config) Model {
	if config.Markdown == nil {
		config.Markdown = NewMarkdown(termenv.ANSI256)
	}
	keys := DefaultKeyMap
	if config.Keys != nil {
		keys = *config.Keys
	}
	return Model{
		config:   config,
		keys:     keys,
		viewport: viewport.New(0, 0),
		entries:  slices.Clone(config.History),
	}
}

// Init implements tea.Model.
func (model Model) Init() tea.Cmd { return nil }

// Input returns the composer contents.
func (model Model) Input() string { return string(model.input) }

// Entries returns the history shown so far.
func (model Model) Entries() []Entry { return model.entries }

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		model.width = message.Width
		model.viewport.Width = message.Width
		model.viewport.Height = max(message.Height-chromeLines, 1)
		model.refresh(true)

	case Entry:
		model.entries = append(model.entries, message)
		model.refresh(model.viewport.AtBottom())

	case TypingMsg:
		model.typing = string(message)

	case sentMsg:
		if message.err != nil {
			model.entries = append(model.entries, Notice("not sent: %v", message.err))
			model.refresh(true)
		}

	case tea.KeyMsg:
		return model.handleKey(message)
	}
	return model, nil
}

func (model Model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	wasEmpty := len(model.input) == 0
	var commands []tea.Cmd

	switch {
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit

	case key.Matches(message, model.keys.Send):
		text := strings.TrimSpace(string(model.input))
		if text == "" {
			return model, nil
		}
		model.input, model.cursor = nil, 0
		commands = append(commands, model.send(text))

	case key.Matches(message, model.keys.DeleteBack):
		if model.cursor > 0 {
			model.input = slices.Concat(model.input[:model.cursor-1], model.input[model.cursor:])
			model.cursor--
		}

	case key.Matches(message, model.keys.Left):
		model.cursor = max(model.cursor-1, 0)

	case key.Matches(message, model.keys.Right):
		model.cursor = min(model.cursor+1, len(model.input))

	case key.Matches(message, model.keys.Home):
		model.cursor = 0

	case key.Matches(message, model.keys.End):
		model.cursor = len(model.input)

	case key.Matches(message, model.keys.ClearLine):
		model.input, model.cursor = nil, 0

	case key.Matches(message, model.keys.PageUp):
		model.viewport.LineUp(max(model.viewport.Height/2, 1))

	case key.Matches(message, model.keys.PageDown):
		model.viewport.LineDown(max(model.viewport.Height/2, 1))

	case message.Type == tea.KeySpace:
		model.insert([]rune{' '})

	case message.Type == tea.KeyRunes:
		model.insert(message.Runes)
	}

	if model.config.SetTyping != nil {
		if status, ok := typing.Transition(wasEmpty, string(model.input)); ok {
			commands = append(commands, model.announce(status))
		}
	}
	return model, tea.Batch(commands...)
}

func (model *Model) insert(runes []rune) {
	model.input = slices.Concat(model.input[:model.cursor], runes, model.input[model.cursor:])
	model.cursor += len(runes)
}

func (model Model) send(text string) tea.Cmd {
	send := model.config.Send
	return func() tea.Msg {
		return sentMsg{text: text, err: send(text)}
	}
}

// announce sends a typing status. Failures are dropped: a missed
// indicator is corrected by the next transition or the peer's expiry.
func (model Model) announce(status string) tea.Cmd {
	setTyping := model.config.SetTyping
	return func() tea.Msg {
		setTyping(status)
		return nil
	}
}

// refresh re-renders the history into the viewport, following the
// newest entry when follow is set.
func (model *Model) refresh(follow bool) {
	if model.width == 0 {
		return
	}
	model.viewport.SetContent(model.renderEntries())
	if follow {
		model.viewport.GotoBottom()
	}
}

func (model Model) renderEntries() string {
	var out strings.Builder
	for i, entry := range model.entries {
		if i > 0 {
			out.WriteByte('\n')
		}
		out.WriteString(model.renderEntry(entry))
	}
	return out.String()
}

// renderEntry formats one entry. A single-line body shares the row
// with its author; longer bodies are indented below it.
func (model Model) renderEntry(entry Entry) string {
	stamp := timeStyle.Render(entry.Time.Format("15:04"))
	if entry.Notice {
		return stamp + " " + noticeStyle.Render(entry.Text)
	}

	author := peerStyle
	if entry.Self {
		author = selfStyle
	}
	head := stamp + " " + author.Render(entry.Author+":")
	if entry.Styled {
		return head + " " + entry.Text
	}
	headWidth := ansi.StringWidth(head) + 1

	if body := model.config.Markdown.Render(entry.Text, model.width-headWidth); !strings.Contains(body, "\n") {
		return head + " " + body
	}
	body := model.config.Markdown.Render(entry.Text, model.width-len(bodyIndent))
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		lines[i] = bodyIndent + line
	}
	return head + "\n" + strings.Join(lines, "\n")
}

// View implements tea.Model.
func (model Model) View() string {
	if model.width == 0 {
		return ""
	}
	title := titleStyle.Width(model.width).Render(ansi.Truncate(model.config.Title, model.width, "…"))
	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		model.viewport.View(),
		typingStyle.Render(model.typing),
		model.composer(),
	)
}

// composer renders the input line with a block cursor, scrolled so the
// cursor stays visible.
func (model Model) composer() string {
	const prompt = "> "
	visible := max(model.width-len(prompt)-1, 1)
	start := max(model.cursor-visible, 0)

	before := string(model.input[start:model.cursor])
	at, after := " ", ""
	if model.cursor < len(model.input) {
		at = string(model.input[model.cursor])
		after = string(model.input[model.cursor+1:])
	}
	return ansi.Truncate(prompt+before+cursorStyle.Render(at)+after, model.width, "")
}
