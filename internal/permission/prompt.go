// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package permission

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/vorlif/spreak"

	"github.com/wneessen/location-picker/internal/i18n"
)

// TerminalPrompter asks a yes/no question on a terminal. Input is shared with the caller's line
// reader so no buffered input is lost.
type TerminalPrompter struct {
	in        *bufio.Reader
	out       io.Writer
	localizer *spreak.Localizer
}

func NewTerminalPrompter(in *bufio.Reader, out io.Writer, loc *spreak.Localizer) *TerminalPrompter {
	return &TerminalPrompter{in: in, out: out, localizer: loc}
}

// Prompt repeats the question until it is answered. Anything other than yes is a no once the input
// ends.
func (p *TerminalPrompter) Prompt(ctx context.Context) (bool, error) {
	yes := p.localizer.Get(i18n.AnswerYes)
	no := p.localizer.Get(i18n.AnswerNo)
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if _, err := fmt.Fprintf(p.out, "%s [%s/%s] ", p.localizer.Get(i18n.PermissionPrompt), yes, no); err != nil {
			return false, fmt.Errorf("failed to write prompt: %w", err)
		}
		line, err := p.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, fmt.Errorf("failed to read answer: %w", err)
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		switch {
		case answer == yes || answer == "y" || answer == "yes":
			return true, nil
		case answer == no || answer == "n" || answer == "no":
			return false, nil
		case errors.Is(err, io.EOF):
			return false, nil
		}
	}
}
