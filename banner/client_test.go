package banner_test

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxnu/searchneu-sub001/banner"
	"github.com/sandboxnu/searchneu-sub001/banner/bannertest"
	"github.com/sandboxnu/searchneu-sub001/catalog"
	"github.com/sandboxnu/searchneu-sub001/fetch"
)

func newClient(t *testing.T, srv *bannertest.Server, cfg banner.Config) *banner.Client {
	t.Helper()
	cfg.BaseURL = srv.BaseURL()
	engine := fetch.New(fetch.Config{
		MaxConcurrent:     8,
		MaxRetries:        1,
		InitialRetryDelay: time.Millisecond,
		MaxRetryDelay:     time.Millisecond,
		Timeout:           5 * time.Second,
	})
	return banner.New(engine, cfg, zerolog.Nop())
}

func TestTerm(t *testing.T) {
	srv := bannertest.New()
	defer srv.Close()
	srv.Terms = []bannertest.Entry{
		{Code: "202530", Description: "Spring 2025 Semester"},
		{Code: "202540", Description: "Summer 1 2025 (View Only)"},
		{Code: "202560", Description: "Summer 2 2025"},
		{Code: "202560", Description: "Summer 2 2025 Law"},
	}
	client := newClient(t, srv, banner.Config{})
	ctx := context.Background()

	term, err := client.Term(ctx, "202530")
	require.NoError(t, err)
	assert.Equal(t, catalog.Term{Code: "202530", Description: "Spring 2025 Semester"}, term)

	_, err = client.Term(ctx, "199910")
	assert.ErrorIs(t, err, banner.ErrTermNotFound)

	_, err = client.Term(ctx, "202560")
	assert.ErrorIs(t, err, banner.ErrTermAmbiguous)
}

func TestSubjects(t *testing.T) {
	srv := bannertest.New()
	defer srv.Close()
	srv.Subjects = []bannertest.Entry{
		{Code: "MATH", Description: "Mathematics"},
		{Code: "CS", Description: "Computer &amp; Information Science"},
	}

	subjects, err := newClient(t, srv, banner.Config{}).Subjects(context.Background(), "202530")
	require.NoError(t, err)
	assert.Equal(t, []catalog.Subject{
		{Code: "CS", Name: "Computer & Information Science"},
		{Code: "MATH", Name: "Mathematics"},
	}, subjects)
	assert.Equal(t, map[string]string{"Computer & Information Science": "CS", "Mathematics": "MATH"}, banner.SubjectCodes(subjects))
}

func TestSectionsPagesWithCookiePool(t *testing.T) {
	srv := bannertest.New()
	defer srv.Close()
	for i := 0; i < 23; i++ {
		srv.Records = append(srv.Records, bannertest.Record(strconv.Itoa(30000+i), "CS", "2500", "Fundies"))
	}

	records, err := newClient(t, srv, banner.Config{PageSize: 5, CookiePool: 2}).Sections(context.Background(), "202530")
	require.NoError(t, err)
	require.Len(t, records, 23)
	for i, r := range records {
		assert.Equal(t, strconv.Itoa(30000+i), r.CRN)
	}
	assert.Equal(t, 2, srv.Sessions())
	assert.Equal(t, 5, srv.Requests("searchResults"))
}

func TestSectionsRejectsMalformedRecords(t *testing.T) {
	srv := bannertest.New()
	defer srv.Close()
	srv.Records = []banner.Record{
		bannertest.Record("30001", "CS", "2500", "Fundies"),
		bannertest.Record("3002", "CS", "2500", "Fundies"),
	}

	_, err := newClient(t, srv, banner.Config{}).Sections(context.Background(), "202530")
	var schemaErr *banner.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "searchResults", schemaErr.Endpoint)
	assert.Len(t, schemaErr.Problems, 1)
}

func TestSectionsFailsOnPageFailure(t *testing.T) {
	srv := bannertest.New()
	defer srv.Close()
	srv.Records = []banner.Record{bannertest.Record("30001", "CS", "2500", "Fundies")}
	srv.Failures["searchResults"] = http.StatusInternalServerError

	_, err := newClient(t, srv, banner.Config{}).Sections(context.Background(), "202530")
	var httpErr *fetch.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
}

func TestSectionEnrichment(t *testing.T) {
	srv := bannertest.New()
	defer srv.Close()
	srv.Faculty["30001"] = []string{"Lerner, Benjamin", "Lerner, Benjamin", "Shesh, Amit"}
	srv.Titles["30001"] = "Fundamentals of Computer Science 1"
	srv.Descriptions["30001"] = "Introduces the fundamental ideas of computing &amp;amp; programming."
	srv.Prerequisites["30001"] = bannertest.PrerequisiteTable(
		bannertest.PrerequisiteRow{Subject: "Mathematics", CourseNumber: "1341"},
	)
	srv.Corequisites["30001"] = bannertest.CorequisiteTable([2]string{"Computer Science", "2501"})

	client := newClient(t, srv, banner.Config{})
	ctx := context.Background()

	faculty, err := client.Faculty(ctx, "202530", "30001")
	require.NoError(t, err)
	assert.Equal(t, []string{"Lerner, Benjamin", "Shesh, Amit"}, faculty)

	title, err := client.CatalogTitle(ctx, "202530", "30001")
	require.NoError(t, err)
	assert.Equal(t, "Fundamentals of Computer Science 1", title)

	description, err := client.Description(ctx, "202530", "30001")
	require.NoError(t, err)
	assert.Equal(t, "Introduces the fundamental ideas of computing & programming.", description)

	prereqs, err := client.Prerequisites(ctx, "202530", "30001", subjectCodes)
	require.NoError(t, err)
	assert.Equal(t, catalog.CourseRef("MATH", "1341"), prereqs)

	coreqs, err := client.Corequisites(ctx, "202530", "30001", subjectCodes)
	require.NoError(t, err)
	assert.Equal(t, catalog.CourseRef("CS", "2501"), coreqs)

	faculty, err = client.Faculty(ctx, "202530", "39999")
	require.NoError(t, err)
	assert.Empty(t, faculty)
}
