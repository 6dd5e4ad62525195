// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package epg imports XMLTV listings delivered by EPG sources into the
// event store.
package epg

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/encoding/ianaindex"
)

// DefaultMaxBytes bounds a single source delivery.
const DefaultMaxBytes = 64 << 20

var (
	ErrTooLarge = errors.New("xmltv: input exceeds size limit")
	ErrNoTV     = errors.New("xmltv: missing <tv> root element")
)

// Programme is one <programme> element with the children we import.
type Programme struct {
	Start      string       `xml:"start,attr"`
	Stop       string       `xml:"stop,attr"`
	Channel    string       `xml:"channel,attr"`
	Titles     []Text       `xml:"title"`
	SubTitles  []Text       `xml:"sub-title"`
	Descs      []Text       `xml:"desc"`
	Credits    *Credits     `xml:"credits"`
	Date       string       `xml:"date"`
	Categories []Text       `xml:"category"`
	Countries  []Text       `xml:"country"`
	EpisodeNum []EpisodeNum `xml:"episode-num"`
	Reviews    []Text       `xml:"review"`
}

// Text is a possibly language tagged character data element.
type Text struct {
	// Lang contains the language code (optional).
	Lang string `xml:"lang,attr,omitempty"`
	// Value is the character data of the element.
	Value string `xml:",chardata"`
}

// EpisodeNum is an <episode-num> in one of the numbering systems.
type EpisodeNum struct {
	System string `xml:"system,attr"`
	Value  string `xml:",chardata"`
}

// Credits lists the people involved per role.
type Credits struct {
	Directors    []string `xml:"director"`
	Actors       []string `xml:"actor"`
	Writers      []string `xml:"writer"`
	Adapters     []string `xml:"adapter"`
	Producers    []string `xml:"producer"`
	Composers    []string `xml:"composer"`
	Editors      []string `xml:"editor"`
	Presenters   []string `xml:"presenter"`
	Commentators []string `xml:"commentator"`
	Guests       []string `xml:"guest"`
}

// Roles maps the credit role names to their people.
func (c *Credits) Roles() map[string][]string {
	if c == nil {
		return nil
	}
	return map[string][]string{
		"actor":       c.Actors,
		"adapter":     c.Adapters,
		"commentator": c.Commentators,
		"composer":    c.Composers,
		"director":    c.Directors,
		"editor":      c.Editors,
		"guest":       c.Guests,
		"presenter":   c.Presenters,
		"producer":    c.Producers,
		"writer":      c.Writers,
	}
}

// Decode streams the programmes of an XMLTV document to fn. The decoder is
// strict, refuses entity expansion and stops after maxBytes of input.
func Decode(r io.Reader, maxBytes int64, fn func(Programme) error) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	dec := xml.NewDecoder(&capReader{r: r, left: maxBytes})
	dec.Strict = true
	// Disable entity expansion to prevent XXE attacks
	dec.Entity = make(map[string]string)
	dec.CharsetReader = charsetReader

	sawTV := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if errors.Is(err, ErrTooLarge) {
				return ErrTooLarge
			}
			return fmt.Errorf("decode xmltv: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "tv":
			sawTV = true
		case "programme":
			var p Programme
			if err := dec.DecodeElement(&p, &se); err != nil {
				if errors.Is(err, ErrTooLarge) {
					return ErrTooLarge
				}
				return fmt.Errorf("decode xmltv programme: %w", err)
			}
			if err := fn(p); err != nil {
				return err
			}
		case "channel":
			if err := dec.Skip(); err != nil {
				return fmt.Errorf("decode xmltv: %w", err)
			}
		}
	}
	if !sawTV {
		return ErrNoTV
	}
	return nil
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("xmltv: unsupported charset %q", label)
	}
	return enc.NewDecoder().Reader(input), nil
}

type capReader struct {
	r    io.Reader
	left int64
}

func (c *capReader) Read(p []byte) (int, error) {
	if c.left <= 0 {
		// Only fail when more input is actually pending.
		var one [1]byte
		n, err := c.r.Read(one[:])
		if n > 0 {
			return 0, ErrTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > c.left {
		p = p[:c.left]
	}
	n, err := c.r.Read(p)
	c.left -= int64(n)
	return n, err
}

var timeLayouts = []string{
	"20060102150405 -0700",
	"20060102150405",
	"200601021504 -0700",
	"200601021504",
	"2006010215 -0700",
	"2006010215",
	"20060102",
}

// ParseTime parses an XMLTV timestamp; a missing zone means UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("xmltv: invalid time %q", s)
}

func first(texts []Text) string {
	for _, t := range texts {
		if v := strings.TrimSpace(t.Value); v != "" {
			return v
		}
	}
	return ""
}

func joinTexts(texts []Text) string {
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		if v := strings.TrimSpace(t.Value); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, ", ")
}
