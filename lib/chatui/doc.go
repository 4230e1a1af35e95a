// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chatui implements an interactive terminal view of one
// conversation, built on bubbletea.
//
// The [Model] shows history in a scrolling viewport above a
// single-line composer. Callers feed it [Entry] and [TypingMsg] values
// through tea.Program.Send as events arrive; composed text leaves
// through [Config.Send]. Message bodies are rendered as markdown by
// [Markdown], with fenced code highlighted by chroma.
package chatui
