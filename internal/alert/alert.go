// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package alert shows blocking, modal notices to the user.
package alert

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mattn/go-runewidth"
)

// Alerter shows a modal notice with a title and a message.
type Alerter interface {
	Alert(ctx context.Context, title, message string) error
}

// Terminal draws the notice as a box and waits for Enter.
type Terminal struct {
	mu      sync.Mutex
	in      *bufio.Reader
	out     io.Writer
	dismiss string
	width   int
}

const defaultWidth = 60

// NewTerminal returns a Terminal alerter. dismiss is the hint printed below the message. A nil
// reader makes the alert non-blocking.
func NewTerminal(in *bufio.Reader, out io.Writer, dismiss string) *Terminal {
	return &Terminal{in: in, out: out, dismiss: dismiss, width: defaultWidth}
}

func (t *Terminal) Alert(ctx context.Context, title, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := io.WriteString(t.out, Box(title, message, t.width)); err != nil {
		return fmt.Errorf("failed to write alert: %w", err)
	}
	if t.in == nil {
		return nil
	}
	if t.dismiss != "" {
		if _, err := fmt.Fprintln(t.out, t.dismiss); err != nil {
			return fmt.Errorf("failed to write alert: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.in.ReadString('\n'); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to wait for alert confirmation: %w", err)
	}
	return nil
}

// Box renders title and message inside a frame. Lines are wrapped at word boundaries to fit
// maxWidth display cells; the box shrinks to the widest line.
func Box(title, message string, maxWidth int) string {
	inner := maxWidth - 4
	lines := wrap(title, inner)
	titleLines := len(lines)
	lines = append(lines, wrap(message, inner)...)

	width := 0
	for _, line := range lines {
		width = max(width, runewidth.StringWidth(line))
	}

	var sb strings.Builder
	border := "+" + strings.Repeat("-", width+2) + "+\n"
	sb.WriteString(border)
	for i, line := range lines {
		if i == titleLines {
			sb.WriteString("|" + strings.Repeat(" ", width+2) + "|\n")
		}
		sb.WriteString("| " + runewidth.FillRight(line, width) + " |\n")
	}
	sb.WriteString(border)
	return sb.String()
}

func wrap(text string, width int) []string {
	var lines []string
	for paragraph := range strings.Lines(text) {
		var line string
		for _, word := range strings.Fields(paragraph) {
			if runewidth.StringWidth(word) > width {
				word = runewidth.Truncate(word, width, "…")
			}
			switch {
			case line == "":
				line = word
			case runewidth.StringWidth(line)+1+runewidth.StringWidth(word) <= width:
				line += " " + word
			default:
				lines = append(lines, line)
				line = word
			}
		}
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
