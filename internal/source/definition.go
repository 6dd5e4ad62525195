// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package source

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// NoPIN is written to the state file when a PIN-requiring source has none.
const NoPIN = "#no pin"

type definition struct {
	mode     Mode
	needPIN  bool
	daysMax  int
	channels []string
}

type state struct {
	pin      string
	days     int
	selected []string
}

// Load reads the definition of name from sourcesDir and the optional
// runtime state from stateDir. The returned source is never nil; when the
// definition cannot be read it is not ready and the error wraps ErrConfig.
func Load(name, sourcesDir, stateDir string, ringSize int) (*Source, error) {
	s := newSource(name, sourcesDir, stateDir, ringSize)

	defPath := filepath.Join(sourcesDir, name)
	// #nosec G304 -- name comes from a directory listing of the sources dir
	f, err := os.Open(defPath)
	if err != nil {
		s.Errorf("cannot read config file %s", defPath)
		return s, fmt.Errorf("%w: %s: %v", ErrConfig, name, err)
	}
	if st, err := f.Stat(); err == nil {
		s.defModTime = st.ModTime()
	}
	s.Debugf("reading source config")
	def, err := parseDefinition(f)
	_ = f.Close()
	if err != nil {
		s.Errorf("cannot read config file %s", defPath)
		return s, fmt.Errorf("%w: %s: %v", ErrConfig, name, err)
	}

	s.Mode = def.mode
	s.NeedPIN = def.needPIN
	s.DaysMax = def.daysMax
	s.channels = make([]Channel, len(def.channels))
	for i, id := range def.channels {
		s.channels[i] = Channel{ID: id}
	}
	s.Debugf("is providing data through a %s", def.mode)
	if def.needPIN {
		s.Debugf("is needing a pin")
	}
	s.Debugf("daysmax=%d", def.daysMax)

	if err := s.loadState(); err != nil {
		// A broken state file must not disable the source.
		s.Errorf("cannot read state file: %v", err)
	}

	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	s.Debugf("is ready to parse")
	return s, nil
}

func (s *Source) loadState() error {
	path := filepath.Join(s.stateDir, s.Name)
	// #nosec G304 -- state files live in the operator-configured state dir
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	s.Debugf("reading plugin config")
	st, err := parseState(f)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.NeedPIN && st.pin != "" && st.pin != NoPIN {
		s.pin = st.pin
	}
	s.daysInAdvance = st.days
	for i := range s.channels {
		s.channels[i].InUse = slices.Contains(st.selected, s.channels[i].ID)
	}
	return nil
}

// parseDefinition reads a source definition:
//
//	line 1   pipe|file[;reserved;pin-required]
//	line 2   max advance days (a;b keeps the value after ';')
//	line 3+  channel ids, '*' prefix and ';' suffix tolerated
func parseDefinition(r io.Reader) (definition, error) {
	var def definition
	seen := make(map[string]struct{})

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	lineNr := 0
	for sc.Scan() {
		lineNr++
		line := strings.TrimRight(sc.Text(), "\r")
		switch {
		case lineNr == 1:
			if strings.HasPrefix(line, "pipe") {
				def.mode = ModePipe
			}
			parts := strings.SplitN(line, ";", 3)
			if len(parts) == 3 {
				pn := strings.TrimSpace(parts[2])
				def.needPIN = strings.HasPrefix(pn, "1")
			}
		case lineNr == 2:
			v := line
			if _, after, ok := strings.Cut(line, ";"); ok {
				v = after
			}
			def.daysMax = atoi(v)
		default:
			id, _, _ := strings.Cut(line, ";")
			id = strings.TrimPrefix(id, "*")
			if id == "" || strings.Contains(id, " ") {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			def.channels = append(def.channels, id)
		}
	}
	if err := sc.Err(); err != nil {
		return definition{}, err
	}
	if lineNr == 0 {
		return definition{}, errors.New("empty definition")
	}
	slices.Sort(def.channels)
	return def, nil
}

// parseState reads the runtime state file: PIN, days in advance, selected ids.
func parseState(r io.Reader) (state, error) {
	var st state
	sc := bufio.NewScanner(r)
	lineNr := 0
	for sc.Scan() {
		lineNr++
		line := strings.TrimRight(sc.Text(), "\r")
		switch lineNr {
		case 1:
			st.pin = line
		case 2:
			st.days = atoi(line)
		default:
			if line != "" {
				st.selected = append(st.selected, line)
			}
		}
	}
	return st, sc.Err()
}

// atoi parses a leading integer the way the definition format expects,
// yielding 0 for garbage.
func atoi(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && s[end] == '-') {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// IsDefinition reports whether name in dir looks like a source definition:
// no dot in the name and a file starting with "pipe" or "file".
func IsDefinition(dir, name string) (bool, error) {
	if strings.Contains(name, ".") {
		return false, nil
	}
	// #nosec G304 -- dir is the operator-configured sources dir
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return false, err
	}
	if st.IsDir() {
		return false, nil
	}

	var id [4]byte
	if _, err := io.ReadFull(f, id[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, err
	}
	switch string(id[:]) {
	case "pipe", "file":
		return true, nil
	default:
		return false, nil
	}
}
