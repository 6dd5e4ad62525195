// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package source

import (
	"strconv"
	"strings"
)

// Command is the shell command line of one source execution together with
// a display form that is safe to log.
type Command struct {
	// Line is executed through "sh -c".
	Line string
	// Display never contains the PIN: its quoted segment is rendered as 'X'
	// when a PIN is set and '' otherwise.
	Display string
}

func (c Command) String() string {
	return c.Display
}

// Command builds "<name> <days> '<pin>' <channel>..." from the in-use channels.
func (s *Source) Command() Command {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var line, display strings.Builder
	head := s.Name + " " + strconv.Itoa(s.daysInAdvance) + " "
	line.WriteString(head)
	display.WriteString(head)

	line.WriteString(shellQuote(s.pin))
	if s.pin != "" {
		display.WriteString("'X'")
	} else {
		display.WriteString("''")
	}

	for _, ch := range s.channels {
		if !ch.InUse {
			continue
		}
		line.WriteByte(' ')
		line.WriteString(ch.ID)
		display.WriteByte(' ')
		display.WriteString(ch.ID)
	}
	return Command{Line: line.String(), Display: display.String()}
}

// shellQuote wraps v in single quotes for sh, escaping embedded quotes.
func shellQuote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
}
