// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reconcile

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/ManuGH/epgmerge/internal/config"
	"github.com/ManuGH/epgmerge/internal/eplists"
	"github.com/ManuGH/epgmerge/internal/host"
	"github.com/ManuGH/epgmerge/internal/store"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type mergeResult struct {
	shortText   string
	description string
	setShort    bool
	setDesc     bool
}

// apply writes the merge onto ev and marks it processed.
func (m mergeResult) apply(ev *host.Event) {
	if m.setShort {
		ev.ShortText = m.shortText
	}
	if m.setDesc {
		ev.Description = m.description
	}
	ev.Processed = true
}

func merge(imp store.Event, ev *host.Event, flags []string, labels map[string]string, episodes Episodes) mergeResult {
	has := func(f string) bool { return slices.Contains(flags, f) }

	short := ev.ShortText
	if has(config.FlagShortText) && imp.ShortText != "" {
		short = imp.ShortText
	}
	if has(config.FlagSeason) && short != "" {
		if ep, ok := resolveEpisode(imp, ev.Title, short, episodes); ok {
			prefix := episodeTag(ep)
			if !strings.HasPrefix(short, prefix) {
				short = prefix + " " + short
			}
		}
	}

	desc := ev.Description
	if has(config.FlagLongText) && imp.Description != "" {
		desc = imp.Description
	}
	if block := extrasBlock(imp, ev.Title, short, flags, labels, episodes); block != "" && !strings.Contains(desc, block) {
		if desc == "" {
			desc = block
		} else {
			desc = desc + "\n\n" + block
		}
	}

	return mergeResult{
		shortText:   short,
		description: desc,
		setShort:    short != "" && short != ev.ShortText && !strings.EqualFold(short, ev.Title),
		setDesc:     desc != "" && !strings.HasPrefix(ev.Description, desc),
	}
}

func episodeTag(ep eplists.Episode) string {
	return fmt.Sprintf("S%02dE%02d", ep.Season, ep.Episode)
}

// resolveEpisode prefers numbers stored with the import over the lists.
func resolveEpisode(imp store.Event, title, shortText string, episodes Episodes) (eplists.Episode, bool) {
	season, err1 := strconv.Atoi(imp.Extras[store.ExtraSeason])
	episode, err2 := strconv.Atoi(imp.Extras[store.ExtraEpisode])
	if err1 == nil && err2 == nil {
		overall, _ := strconv.Atoi(imp.Extras[store.ExtraEpisodeOverall])
		return eplists.Episode{Season: season, Episode: episode, Overall: overall}, true
	}
	if episodes == nil {
		return eplists.Episode{}, false
	}
	if imp.ShortText != "" {
		if ep, ok := episodes.Lookup(title, imp.ShortText); ok {
			return ep, true
		}
	}
	return episodes.Lookup(title, stripEpisodeTag(shortText))
}

func stripEpisodeTag(s string) string {
	if len(s) > 7 && s[0] == 'S' && s[3] == 'E' && s[6] == ' ' {
		return s[7:]
	}
	return s
}

// extrasBlock renders the flagged extras as "Label: value" lines.
func extrasBlock(imp store.Event, title, shortText string, flags []string, labels map[string]string, episodes Episodes) string {
	var keys []string
	for _, f := range flags {
		switch f {
		case config.FlagCredits:
			keys = append(keys, store.CreditRoles...)
		case config.FlagCountryDate:
			keys = append(keys, store.ExtraCountry, store.ExtraDate)
		case config.FlagOrigTitle:
			keys = append(keys, store.ExtraOriginalTitle)
		case config.FlagCategory:
			keys = append(keys, store.ExtraCategory)
		case config.FlagReview:
			keys = append(keys, store.ExtraReview)
		}
	}

	title2 := cases.Title(language.Und)
	var lines []string
	if slices.Contains(flags, config.FlagSeason) {
		if ep, ok := resolveEpisode(imp, title, shortText, episodes); ok {
			lines = append(lines,
				title2.String(label(labels, store.ExtraSeason))+": "+strconv.Itoa(ep.Season),
				title2.String(label(labels, store.ExtraEpisode))+": "+strconv.Itoa(ep.Episode))
		}
	}
	for _, k := range keys {
		v := strings.TrimSpace(imp.Extras[k])
		if v == "" {
			continue
		}
		lines = append(lines, title2.String(label(labels, k))+": "+v)
	}
	return strings.Join(lines, "\n")
}

func label(labels map[string]string, key string) string {
	if l, ok := labels[key]; ok && l != "" {
		return l
	}
	return key
}
