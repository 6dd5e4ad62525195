// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

import (
	"regexp"
	"strconv"
	"strings"
)

// Episode numbers are one-based; zero means unknown.
type Episode struct {
	Season  int
	Episode int
	// XRef is a stable cross-reference id (crid, dd_progid) when present.
	XRef string
}

var onscreenRegex = regexp.MustCompile(`(?i)S\s*(\d{1,4})\s*E\s*(\d{1,5})`)

// parseEpisode evaluates the <episode-num> elements of a programme.
// xmltv_ns wins over onscreen for numbering.
func parseEpisode(nums []EpisodeNum) Episode {
	var ep Episode
	var ns, onscreen Episode
	for _, n := range nums {
		v := strings.TrimSpace(n.Value)
		if v == "" {
			continue
		}
		switch strings.ToLower(n.System) {
		case "xmltv_ns":
			ns.Season, ns.Episode = parseXMLTVNS(v)
		case "onscreen":
			if m := onscreenRegex.FindStringSubmatch(v); m != nil {
				onscreen.Season, _ = strconv.Atoi(m[1])
				onscreen.Episode, _ = strconv.Atoi(m[2])
			}
		case "crid", "dd_progid":
			if ep.XRef == "" {
				ep.XRef = v
			}
		}
	}
	ep.Season, ep.Episode = ns.Season, ns.Episode
	if ep.Season == 0 && ep.Episode == 0 {
		ep.Season, ep.Episode = onscreen.Season, onscreen.Episode
	}
	return ep
}

// parseXMLTVNS reads "season.episode.part" with zero-based numbers and
// optional "/total" suffixes.
func parseXMLTVNS(v string) (season, episode int) {
	parts := strings.Split(strings.ReplaceAll(v, " ", ""), ".")
	if len(parts) < 2 {
		return 0, 0
	}
	return nsNumber(parts[0]), nsNumber(parts[1])
}

func nsNumber(s string) int {
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n + 1
}
