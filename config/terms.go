package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	SelectActive = "active"
	SelectAll    = "all"
)

// SelectTerms picks terms by selector: SelectActive keeps the terms active at
// now, SelectAll keeps every term, and anything else is a comma-separated list
// of term codes that must all be configured. Order follows terms for the
// keyword selectors and the list otherwise.
func SelectTerms(terms []TermConfig, selector string, now time.Time) ([]TermConfig, error) {
	switch strings.TrimSpace(selector) {
	case "", SelectActive:
		var out []TermConfig
		for _, t := range terms {
			if t.Active(now) {
				out = append(out, t)
			}
		}
		return out, nil
	case SelectAll:
		return append([]TermConfig(nil), terms...), nil
	}

	byCode := make(map[string]TermConfig, len(terms))
	for _, t := range terms {
		byCode[t.Term] = t
	}

	var out []TermConfig
	var unknown []string
	seen := make(map[string]bool)
	for _, code := range strings.Split(selector, ",") {
		code = strings.TrimSpace(code)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		t, ok := byCode[code]
		if !ok {
			unknown = append(unknown, code)
			continue
		}
		out = append(out, t)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("config: unknown terms %s", strings.Join(unknown, ", "))
	}
	return out, nil
}
