// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package eplists reads user maintained season/episode lists. Each series
// has a "<Series Title>.episodes" file with tab separated lines
//
//	season	episode	overall	short text
//
// Lines starting with '#' are comments.
package eplists

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	xglog "github.com/ManuGH/epgmerge/internal/log"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Suffix is the file extension of a list file.
const Suffix = ".episodes"

// Episode is one entry of a series list.
type Episode struct {
	Season    int    `json:"season"`
	Episode   int    `json:"episode"`
	Overall   int    `json:"overall,omitempty"`
	ShortText string `json:"short_text"`
}

type list struct {
	modTime  time.Time
	episodes map[string]Episode
}

// Store resolves episodes from a list directory. Files are parsed on first
// use and re-read when their modification time changes.
type Store struct {
	dir    string
	logger zerolog.Logger

	mu    sync.Mutex
	files map[string]string // folded title -> file name
	lists map[string]*list  // file name -> parsed list
	dirMT time.Time
}

// New returns a store reading dir. A missing directory behaves as empty.
func New(dir string) *Store {
	return &Store{
		dir:    dir,
		logger: xglog.WithComponent("eplists"),
		lists:  make(map[string]*list),
	}
}

// Dir returns the list directory.
func (s *Store) Dir() string { return s.dir }

// Fold normalizes text for case-insensitive comparison.
func Fold(v string) string {
	// Casers keep state; one per call.
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(v)))
}

// Lookup finds the episode of a series by its short text.
func (s *Store) Lookup(title, shortText string) (Episode, bool) {
	if s == nil || s.dir == "" || title == "" || shortText == "" {
		return Episode{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name, ok := s.fileFor(title)
	if !ok {
		return Episode{}, false
	}
	l, err := s.load(name)
	if err != nil {
		s.logger.Warn().Err(err).Str("file", name).Msg("failed to read episode list")
		return Episode{}, false
	}
	ep, ok := l.episodes[Fold(shortText)]
	return ep, ok
}

// Series lists the titles with an episode file.
func (s *Store) Series() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scan()
	out := make([]string, 0, len(s.files))
	for _, name := range s.files {
		out = append(out, strings.TrimSuffix(name, Suffix))
	}
	return out
}

func (s *Store) fileFor(title string) (string, bool) {
	s.scan()
	name, ok := s.files[Fold(title)]
	return name, ok
}

// scan refreshes the title index when the directory changed.
func (s *Store) scan() {
	fi, err := os.Stat(s.dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn().Err(err).Str(xglog.FieldPath, s.dir).Msg("cannot stat episode list directory")
		}
		s.files = nil
		return
	}
	if s.files != nil && fi.ModTime().Equal(s.dirMT) {
		return
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn().Err(err).Str(xglog.FieldPath, s.dir).Msg("cannot read episode list directory")
		return
	}
	files := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Suffix) {
			continue
		}
		files[Fold(strings.TrimSuffix(e.Name(), Suffix))] = e.Name()
	}
	s.files = files
	s.dirMT = fi.ModTime()
}

func (s *Store) load(name string) (*list, error) {
	path := filepath.Join(s.dir, name)
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if l, ok := s.lists[name]; ok && l.modTime.Equal(fi.ModTime()) {
		return l, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	l := &list{modTime: fi.ModTime(), episodes: make(map[string]Episode)}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		ep, ok := parseLine(sc.Text())
		if !ok {
			continue
		}
		key := Fold(ep.ShortText)
		if _, dup := l.episodes[key]; !dup {
			l.episodes[key] = ep
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	s.lists[name] = l
	return l, nil
}

func parseLine(line string) (Episode, bool) {
	if line == "" || line[0] == '#' {
		return Episode{}, false
	}
	f := strings.Split(line, "\t")
	if len(f) < 4 {
		return Episode{}, false
	}
	season, err1 := strconv.Atoi(strings.TrimSpace(f[0]))
	episode, err2 := strconv.Atoi(strings.TrimSpace(f[1]))
	if err1 != nil || err2 != nil {
		return Episode{}, false
	}
	overall, _ := strconv.Atoi(strings.TrimSpace(f[2]))
	text := strings.TrimSpace(f[3])
	if text == "" {
		return Episode{}, false
	}
	return Episode{Season: season, Episode: episode, Overall: overall, ShortText: text}, true
}
