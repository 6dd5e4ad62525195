// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

import (
	"regexp"
	"strings"

	"github.com/ManuGH/epgmerge/internal/store"
)

// production matches "USA 1994" or "Frankreich 2001".
var production = regexp.MustCompile(`\b([A-Z][a-zA-Z.]+)\s+((?:19|20)\d{2})\b`)

// creditLabel maps the labels found in German and English listings to the
// credit role they introduce.
type creditLabel struct {
	role string
	re   *regexp.Regexp
}

var creditLabels = []creditLabel{
	{"director", regexp.MustCompile(`(?i)\b(?:regie|directed by|director)[:\s]+([^.\n]+)`)},
	{"actor", regexp.MustCompile(`(?i)\b(?:darsteller|mit|cast|actors)[:\s]+([^.\n]+)`)},
}

// describedExtras recovers year, country and credits from free text. Used
// for listings that only carry a plain description.
func describedExtras(desc string) store.Extras {
	x := store.Extras{}
	if m := production.FindStringSubmatch(desc); m != nil {
		x[store.ExtraCountry] = m[1]
		x[store.ExtraDate] = m[2]
	}
	for _, label := range creditLabels {
		m := label.re.FindStringSubmatch(desc)
		if m == nil {
			continue
		}
		if names := splitNames(m[1]); len(names) > 0 {
			x[label.role] = strings.Join(names, ", ")
		}
	}
	return x
}

// splitNames splits a credit list and drops character names:
// "Tom Hanks (Forrest), Robin Wright" gives [Tom Hanks, Robin Wright].
func splitNames(list string) []string {
	var names []string
	for _, part := range strings.Split(list, ",") {
		name, _, _ := strings.Cut(part, "(")
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// mergeDescribed adds described values the structured listing lacks. Year
// and country only count as a pair.
func mergeDescribed(x, described store.Extras) {
	if x[store.ExtraDate] != "" || x[store.ExtraCountry] != "" {
		delete(described, store.ExtraDate)
		delete(described, store.ExtraCountry)
	}
	for k, v := range described {
		if x[k] == "" {
			x[k] = v
		}
	}
}
