package banner_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxnu/searchneu-sub001/banner"
	"github.com/sandboxnu/searchneu-sub001/banner/bannertest"
	"github.com/sandboxnu/searchneu-sub001/catalog"
)

var subjectCodes = map[string]string{
	"Computer Science": "CS",
	"Mathematics":      "MATH",
	"Data Science":     "DS",
}

type row = bannertest.PrerequisiteRow

func TestParsePrerequisites(t *testing.T) {
	tests := []struct {
		name string
		rows []row
		want catalog.Requisite
	}{
		{
			name: "none",
			want: catalog.None(),
		},
		{
			name: "single course",
			rows: []row{{Subject: "Computer Science", CourseNumber: "2500"}},
			want: catalog.CourseRef("CS", "2500"),
		},
		{
			name: "course or test",
			rows: []row{
				{Subject: "Computer Science", CourseNumber: "2500"},
				{Connector: "Or", Test: "AP Computer Science A", Score: "4"},
			},
			want: catalog.Or(catalog.CourseRef("CS", "2500"), catalog.Test("AP Computer Science A", 4)),
		},
		{
			name: "and binds tighter than or",
			rows: []row{
				{Subject: "Computer Science", CourseNumber: "2500"},
				{Connector: "And", Subject: "Mathematics", CourseNumber: "1341"},
				{Connector: "Or", Subject: "Data Science", CourseNumber: "2000"},
			},
			want: catalog.Or(
				catalog.And(catalog.CourseRef("CS", "2500"), catalog.CourseRef("MATH", "1341")),
				catalog.CourseRef("DS", "2000"),
			),
		},
		{
			name: "parentheses",
			rows: []row{
				{Open: "(", Subject: "Computer Science", CourseNumber: "2510"},
				{Connector: "Or", Subject: "Data Science", CourseNumber: "2500", Close: ")"},
				{Connector: "And", Subject: "Mathematics", CourseNumber: "1365"},
			},
			want: catalog.And(
				catalog.Or(catalog.CourseRef("CS", "2510"), catalog.CourseRef("DS", "2500")),
				catalog.CourseRef("MATH", "1365"),
			),
		},
		{
			name: "redundant parentheses collapse",
			rows: []row{{Open: "((", Subject: "Computer Science", CourseNumber: "3500", Close: "))"}},
			want: catalog.CourseRef("CS", "3500"),
		},
		{
			name: "unknown subject keeps its name",
			rows: []row{{Subject: "Underwater Basketry", CourseNumber: "1000"}},
			want: catalog.CourseRef("Underwater Basketry", "1000"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fragment := []byte("<section>")
			if len(tt.rows) > 0 {
				fragment = []byte(bannertest.PrerequisiteTable(tt.rows...))
			}
			got, err := banner.ParsePrerequisites(fragment, subjectCodes)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParsePrerequisites() mismatch (-want +got):\n%s", diff)
			}
			assert.NoError(t, got.Validate())
		})
	}
}

func TestParsePrerequisitesRejectsMalformedTables(t *testing.T) {
	tests := map[string][]row{
		"unbalanced":       {{Open: "(", Subject: "Computer Science", CourseNumber: "2500"}},
		"dangling close":   {{Subject: "Computer Science", CourseNumber: "2500", Close: ")"}},
		"leading operator": {{Connector: "And", Subject: "Computer Science", CourseNumber: "2500"}},
		"empty leaf":       {{Connector: ""}},
	}
	for name, rows := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := banner.ParsePrerequisites([]byte(bannertest.PrerequisiteTable(rows...)), subjectCodes)
			assert.Error(t, err)
		})
	}
}

func TestParseRequisiteTokens(t *testing.T) {
	cs := func(n string) banner.Token {
		return banner.Token{Type: banner.TokenRequisite, Value: catalog.CourseRef("CS", n)}
	}
	tokens := []banner.Token{
		cs("1800"),
		{Type: banner.TokenAnd},
		{Type: banner.TokenLParen},
		cs("2500"),
		{Type: banner.TokenOr},
		cs("2510"),
		{Type: banner.TokenRParen},
		{Type: banner.TokenEnd},
	}

	got, err := banner.ParseRequisite(tokens)
	require.NoError(t, err)
	want := catalog.And(catalog.CourseRef("CS", "1800"), catalog.Or(catalog.CourseRef("CS", "2500"), catalog.CourseRef("CS", "2510")))
	assert.Empty(t, cmp.Diff(want, got))
}

func TestParseCorequisites(t *testing.T) {
	got, err := banner.ParseCorequisites([]byte(bannertest.CorequisiteTable(
		[2]string{"Computer Science", "2501"},
		[2]string{"Mathematics", "1342"},
	)), subjectCodes)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(catalog.And(catalog.CourseRef("CS", "2501"), catalog.CourseRef("MATH", "1342")), got))

	got, err = banner.ParseCorequisites([]byte(bannertest.CorequisiteTable([2]string{"Computer Science", "2501"})), subjectCodes)
	require.NoError(t, err)
	assert.Equal(t, catalog.CourseRef("CS", "2501"), got)

	got, err = banner.ParseCorequisites([]byte("<section>No corequisite course information available.</section>"), subjectCodes)
	require.NoError(t, err)
	assert.True(t, got.IsNone())
}
