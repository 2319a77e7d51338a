package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectTerms(t *testing.T) {
	terms := []TermConfig{
		{Term: "202510", ActiveUntil: "2024-12-20"},
		{Term: "202530", ActiveUntil: "2025-05-01"},
		{Term: "202540"},
	}
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	codes := func(ts []TermConfig) []string {
		out := []string{}
		for _, term := range ts {
			out = append(out, term.Term)
		}
		return out
	}

	tests := []struct {
		selector string
		want     []string
	}{
		{selector: "active", want: []string{"202530", "202540"}},
		{selector: "", want: []string{"202530", "202540"}},
		{selector: "all", want: []string{"202510", "202530", "202540"}},
		{selector: "202540, 202510", want: []string{"202540", "202510"}},
		{selector: "202510,202510", want: []string{"202510"}},
	}
	for _, tt := range tests {
		got, err := SelectTerms(terms, tt.selector, now)
		require.NoError(t, err, tt.selector)
		assert.Equal(t, tt.want, codes(got), tt.selector)
	}

	_, err := SelectTerms(terms, "202530,209910", now)
	assert.ErrorContains(t, err, "209910")
}

func TestTermActiveBoundary(t *testing.T) {
	term := TermConfig{Term: "202530", ActiveUntil: "2025-05-01"}
	assert.True(t, term.Active(time.Date(2025, 4, 30, 23, 59, 0, 0, time.UTC)))
	assert.False(t, term.Active(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)))
}
