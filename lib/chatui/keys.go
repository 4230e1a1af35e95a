// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the chat view's key bindings. Printable keys always
// go to the composer, so no binding uses a bare letter.
type KeyMap struct {
	Send       key.Binding
	DeleteBack key.Binding
	Left       key.Binding
	Right      key.Binding
	Home       key.Binding
	End        key.Binding
	ClearLine  key.Binding
	PageUp     key.Binding
	PageDown   key.Binding
	Quit       key.Binding
}

// DefaultKeyMap is the built-in binding set, following readline where
// a readline binding exists.
var DefaultKeyMap = KeyMap{
	Send:       key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
	DeleteBack: key.NewBinding(key.WithKeys("backspace", "ctrl+h")),
	Left:       key.NewBinding(key.WithKeys("left", "ctrl+b")),
	Right:      key.NewBinding(key.WithKeys("right", "ctrl+f")),
	Home:       key.NewBinding(key.WithKeys("home", "ctrl+a")),
	End:        key.NewBinding(key.WithKeys("end", "ctrl+e")),
	ClearLine:  key.NewBinding(key.WithKeys("ctrl+u")),
	PageUp:     key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
	PageDown:   key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll down")),
	Quit:       key.NewBinding(key.WithKeys("ctrl+c", "esc"), key.WithHelp("esc", "quit")),
}
