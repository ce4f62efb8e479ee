// Package sse assembles server-sent event frames from a line stream.
package sse

import (
	"strings"

	"oddsflow/models"
)

// Parser accumulates lines until a blank line completes a frame. It is not
// safe for concurrent use; one parser belongs to one connection.
type Parser struct {
	eventName string
	fragments []string
	retrySeen bool
	discarded int
}

// NewParser returns an empty parser.
func NewParser() *Parser {
	return &Parser{}
}

// Feed consumes one line without its terminator. It returns a frame when the
// line completes one.
func (p *Parser) Feed(line string) (models.Frame, bool) {
	line = strings.TrimRight(line, "\r\n")

	switch {
	case line == "":
		return p.flush()
	case strings.HasPrefix(line, "event:"):
		p.eventName = strings.TrimSpace(line[len("event:"):])
	case strings.HasPrefix(line, "data:"):
		p.fragments = append(p.fragments, strings.TrimSpace(line[len("data:"):]))
	case strings.HasPrefix(line, "id:"):
	case strings.HasPrefix(line, "retry:"):
		p.retrySeen = true
	default:
		if len(p.fragments) > 0 {
			p.fragments = append(p.fragments, line)
		}
	}
	return models.Frame{}, false
}

func (p *Parser) flush() (models.Frame, bool) {
	if p.eventName == "" || len(p.fragments) == 0 {
		return models.Frame{}, false
	}
	frame := models.Frame{
		Type:      models.ParseEventType(p.eventName),
		Name:      p.eventName,
		Fragments: p.fragments,
	}
	p.clear()
	return frame, true
}

// Reset drops any partially accumulated frame. Call it when the connection
// ends; the missing events are replayed by cursor-based resumption.
func (p *Parser) Reset() {
	if p.eventName != "" || len(p.fragments) > 0 {
		p.discarded++
	}
	p.clear()
}

// Pending reports whether a partial frame is buffered.
func (p *Parser) Pending() bool {
	return p.eventName != "" || len(p.fragments) > 0
}

// Discarded returns how many partial frames Reset has dropped.
func (p *Parser) Discarded() int {
	return p.discarded
}

func (p *Parser) clear() {
	p.eventName = ""
	p.fragments = nil
	p.retrySeen = false
}
