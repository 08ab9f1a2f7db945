package simi

import (
	"strconv"
	"strings"
)

// Keys the instrument uses for the spatial calibration of a recording.
const (
	calibrationSection = "DISC"
	calibrationKey     = "CALIBRATION"
)

// Settings holds the sectioned key/value content of a settings file. Section
// and option order follow first appearance in the source text. Values stay
// raw strings; the format mixes booleans, integers and free text with no
// discriminator, so coercion is left to the typed accessors. A Settings is
// immutable after parsing.
type Settings struct {
	order    []string
	sections map[string]*settingsSection
}

type settingsSection struct {
	order  []string
	values map[string]string
}

// ParseSettings parses raw settings file content. Section headers are
// bracketed lines; option lines split on the first '=' only, so values may
// themselves contain '='. Comment lines (leading ';'), blank lines and
// stray formatting lines are ignored. Options appearing before any header
// land in an implicit section with an empty name.
func ParseSettings(data []byte) *Settings {
	s := &Settings{sections: make(map[string]*settingsSection)}
	var current *settingsSection
	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			current = s.ensure(strings.Trim(line, "[]"))
			continue
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			continue
		}
		if current == nil {
			current = s.ensure("")
		}
		current.set(strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]))
	}
	return s
}

func (s *Settings) ensure(name string) *settingsSection {
	if sec, ok := s.sections[name]; ok {
		return sec
	}
	sec := &settingsSection{values: make(map[string]string)}
	s.sections[name] = sec
	s.order = append(s.order, name)
	return sec
}

// set inserts preserving first-seen key order; a repeated key keeps its
// original position and takes the new value.
func (sec *settingsSection) set(key, value string) {
	if _, ok := sec.values[key]; !ok {
		sec.order = append(sec.order, key)
	}
	sec.values[key] = value
}

// Sections lists section names in first-appearance order.
func (s *Settings) Sections() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Keys lists the option names of a section in first-appearance order. The
// result is nil for an unknown section.
func (s *Settings) Keys(section string) []string {
	sec, ok := s.sections[section]
	if !ok {
		return nil
	}
	out := make([]string, len(sec.order))
	copy(out, sec.order)
	return out
}

// Lookup returns the raw string value of an option.
func (s *Settings) Lookup(section, key string) (string, bool) {
	sec, ok := s.sections[section]
	if !ok {
		return "", false
	}
	value, ok := sec.values[key]
	return value, ok
}

// Float reads an option and parses it as a float64. A missing or
// non-numeric value reports false rather than guessing.
func (s *Settings) Float(section, key string) (float64, bool) {
	raw, ok := s.Lookup(section, key)
	if !ok {
		return 0, false
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// CalibrationFactor returns the spatial calibration of the recording. The
// canonical location is the CALIBRATION key of the DISC section, but older
// files carry the key elsewhere, so every section is searched before giving
// up. Callers decide the fallback when no usable value exists.
func (s *Settings) CalibrationFactor() (float64, bool) {
	if value, ok := s.Float(calibrationSection, calibrationKey); ok {
		return value, true
	}
	for _, name := range s.order {
		if value, ok := s.Float(name, calibrationKey); ok {
			return value, true
		}
	}
	return 0, false
}
