// Package banner talks to the Banner student registration API. It hides the
// session handling and the cookie-pool pagination workaround behind a small
// set of calls, and parses the HTML fragments some endpoints return.
package banner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sandboxnu/searchneu-sub001/catalog"
	"github.com/sandboxnu/searchneu-sub001/fetch"
	"golang.org/x/sync/errgroup"
)

const DefaultBaseURL = "https://nubanner.neu.edu/StudentRegistrationSsb/ssb/"

var (
	ErrTermNotFound  = errors.New("banner: term not found")
	ErrTermAmbiguous = errors.New("banner: term matched more than once")
)

// SchemaError reports an upstream response that does not have the expected
// shape. It is never retried.
type SchemaError struct {
	Endpoint string
	Problems []string
}

func (e *SchemaError) Error() string {
	const limit = 5
	problems := e.Problems
	suffix := ""
	if len(problems) > limit {
		suffix = fmt.Sprintf(" (and %d more)", len(problems)-limit)
		problems = problems[:limit]
	}
	return fmt.Sprintf("banner: unexpected %s response: %s%s", e.Endpoint, strings.Join(problems, "; "), suffix)
}

type Config struct {
	BaseURL string
	// PageSize is the searchResults page size; Banner caps it at 500.
	PageSize int
	// CookiePool is the number of sessions paging through searchResults at
	// once. One session cannot page concurrently.
	CookiePool int
}

func DefaultConfig() Config {
	return Config{
		BaseURL:    DefaultBaseURL,
		PageSize:   500,
		CookiePool: 10,
	}
}

type Client struct {
	engine     *fetch.Engine
	base       string
	pageSize   int
	cookiePool int
	log        zerolog.Logger
}

func New(engine *fetch.Engine, cfg Config, logger zerolog.Logger) *Client {
	d := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = d.BaseURL
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = d.PageSize
	}
	if cfg.CookiePool <= 0 {
		cfg.CookiePool = d.CookiePool
	}
	return &Client{
		engine:     engine,
		base:       cfg.BaseURL,
		pageSize:   cfg.PageSize,
		cookiePool: cfg.CookiePool,
		log:        logger.With().Str("component", "banner").Logger(),
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, key string, cookies []*http.Cookie) (*fetch.Response, error) {
	return c.engine.Do(ctx, fetch.Request{
		Method:  http.MethodGet,
		URL:     c.base + path,
		Query:   query,
		Key:     key,
		Cookies: cookies,
		// Required by several searchResults endpoints.
		Header: http.Header{"X-Requested-With": {"XMLHttpRequest"}},
	})
}

func (c *Client) post(ctx context.Context, path string, query, form url.Values, key string) (*fetch.Response, error) {
	return c.engine.Do(ctx, fetch.Request{
		Method: http.MethodPost,
		URL:    c.base + path,
		Query:  query,
		Form:   form,
		Key:    key,
	})
}

func decode(endpoint string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return &SchemaError{Endpoint: endpoint, Problems: []string{err.Error()}}
	}
	return nil
}

// Term resolves a term code to its display name. It fails with
// ErrTermNotFound or ErrTermAmbiguous unless exactly one term matches.
func (c *Client) Term(ctx context.Context, code string) (catalog.Term, error) {
	res, err := c.get(ctx, "classSearch/getTerms", url.Values{
		"searchTerm": {""},
		"offset":     {"1"},
		"max":        {"1000"},
	}, "getTerms", nil)
	if err != nil {
		return catalog.Term{}, fmt.Errorf("banner: list terms: %w", err)
	}

	var terms []codeDescription
	if err := decode("getTerms", res.Body, &terms); err != nil {
		return catalog.Term{}, err
	}

	var matches []catalog.Term
	for _, t := range terms {
		if t.Code == code {
			matches = append(matches, catalog.Term{Code: t.Code, Description: CleanText(t.Description)})
		}
	}
	switch len(matches) {
	case 0:
		return catalog.Term{}, fmt.Errorf("%w: %s", ErrTermNotFound, code)
	case 1:
		return matches[0], nil
	}
	return catalog.Term{}, fmt.Errorf("%w: %s (%d matches)", ErrTermAmbiguous, code, len(matches))
}

// Subjects returns the term's subject list, sorted by code.
func (c *Client) Subjects(ctx context.Context, term string) ([]catalog.Subject, error) {
	res, err := c.get(ctx, "classSearch/get_subject", url.Values{
		"term":       {term},
		"searchTerm": {""},
		"offset":     {"1"},
		"max":        {"1000"},
	}, "get_subject", nil)
	if err != nil {
		return nil, fmt.Errorf("banner: list subjects: %w", err)
	}

	var raw []codeDescription
	if err := decode("get_subject", res.Body, &raw); err != nil {
		return nil, err
	}

	subjects := make([]catalog.Subject, 0, len(raw))
	for _, s := range raw {
		subjects = append(subjects, catalog.Subject{Code: s.Code, Name: CleanText(s.Description)})
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].Code < subjects[j].Code })
	return subjects, nil
}

// SubjectCodes maps subject names, as requisite tables print them, to codes.
func SubjectCodes(subjects []catalog.Subject) map[string]string {
	codes := make(map[string]string, len(subjects))
	for _, s := range subjects {
		codes[s.Name] = s.Code
	}
	return codes
}

type session struct {
	id      int
	cookies []*http.Cookie
}

func (c *Client) newSession(ctx context.Context, id int, term string) (session, error) {
	res, err := c.post(ctx, "term/search", url.Values{"mode": {"search"}}, url.Values{"term": {term}}, "session-"+strconv.Itoa(id))
	if err != nil {
		return session{}, fmt.Errorf("banner: open session: %w", err)
	}
	if len(res.Cookies) == 0 {
		return session{}, &SchemaError{Endpoint: "term/search", Problems: []string{"no session cookie"}}
	}
	return session{id: id, cookies: res.Cookies}, nil
}

func (c *Client) page(ctx context.Context, s session, term string, offset int) (searchResults, error) {
	res, err := c.get(ctx, "searchResults/searchResults", url.Values{
		"txt_term":      {term},
		"pageOffset":    {strconv.Itoa(offset)},
		"pageMaxSize":   {strconv.Itoa(c.pageSize)},
		"sortColumn":    {"subjectDescription"},
		"sortDirection": {"asc"},
	}, "searchResults@"+strconv.Itoa(offset), s.cookies)
	if err != nil {
		return searchResults{}, fmt.Errorf("banner: section page at %d: %w", offset, err)
	}

	var results searchResults
	if err := decode("searchResults", res.Body, &results); err != nil {
		return searchResults{}, err
	}
	if !results.Success {
		return searchResults{}, &SchemaError{Endpoint: "searchResults", Problems: []string{fmt.Sprintf("page at %d not successful", offset)}}
	}
	return results, nil
}

// Sections returns every section record of the term. Pages are fetched in
// rounds, one page per pooled session per round. Any page failure fails the
// whole call: a partial section list would read as deleted sections.
func (c *Client) Sections(ctx context.Context, term string) ([]Record, error) {
	sessions := make([]session, c.cookiePool)
	g, gctx := errgroup.WithContext(ctx)
	for i := range sessions {
		g.Go(func() error {
			s, err := c.newSession(gctx, i, term)
			if err != nil {
				return err
			}
			sessions[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	first, err := c.page(ctx, sessions[0], term, 0)
	if err != nil {
		return nil, err
	}
	total := first.TotalCount

	var offsets []int
	for offset := c.pageSize; offset < total; offset += c.pageSize {
		offsets = append(offsets, offset)
	}
	c.log.Debug().Str("term", term).Int("total", total).Int("pages", len(offsets)+1).Int("sessions", len(sessions)).Msg("paging sections")

	pages := make([][]Record, len(offsets))
	for start := 0; start < len(offsets); start += len(sessions) {
		end := min(start+len(sessions), len(offsets))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			s := sessions[i-start]
			g.Go(func() error {
				results, err := c.page(gctx, s, term, offsets[i])
				if err != nil {
					return err
				}
				pages[i] = results.Data
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	records := first.Data
	for _, p := range pages {
		records = append(records, p...)
	}

	if err := validateRecords(records); err != nil {
		return nil, err
	}

	records = dedupe(records)
	if len(records) != total {
		c.log.Warn().Str("term", term).Int("total", total).Int("received", len(records)).Msg("section count differs from reported total")
	}
	return records, nil
}

// dedupe drops repeated CRNs, which appear when the result set shifts between
// pages.
func dedupe(records []Record) []Record {
	seen := make(map[string]bool, len(records))
	out := records[:0]
	for _, r := range records {
		if seen[r.CRN] {
			continue
		}
		seen[r.CRN] = true
		out = append(out, r)
	}
	return out
}

func sectionForm(term, crn string) url.Values {
	return url.Values{"term": {term}, "courseReferenceNumber": {crn}}
}

// Faculty returns the display names of a section's instructors in the order
// Banner lists them, without duplicates.
func (c *Client) Faculty(ctx context.Context, term, crn string) ([]string, error) {
	res, err := c.get(ctx, "searchResults/getFacultyMeetingTimes", sectionForm(term, crn), crn, nil)
	if err != nil {
		return nil, err
	}

	var fmts facultyMeetingTimes
	if err := decode("getFacultyMeetingTimes", res.Body, &fmts); err != nil {
		return nil, err
	}

	names := []string{}
	seen := make(map[string]bool)
	for _, m := range fmts.Fmt {
		for _, f := range m.Faculty {
			name := CleanText(f.DisplayName)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	return names, nil
}

// CatalogTitle returns the full course title from a section's catalog
// details; searchResults titles are truncated.
func (c *Client) CatalogTitle(ctx context.Context, term, crn string) (string, error) {
	res, err := c.post(ctx, "searchResults/getSectionCatalogDetails", nil, sectionForm(term, crn), crn)
	if err != nil {
		return "", err
	}
	title, err := LabeledValue(res.Body, "Title:")
	if err != nil {
		return "", &SchemaError{Endpoint: "getSectionCatalogDetails", Problems: []string{err.Error()}}
	}
	return title, nil
}

func (c *Client) Description(ctx context.Context, term, crn string) (string, error) {
	res, err := c.post(ctx, "searchResults/getCourseDescription", nil, sectionForm(term, crn), crn)
	if err != nil {
		return "", err
	}
	return FragmentText(res.Body)
}

func (c *Client) Prerequisites(ctx context.Context, term, crn string, subjects map[string]string) (catalog.Requisite, error) {
	res, err := c.post(ctx, "searchResults/getSectionPrerequisites", nil, sectionForm(term, crn), crn)
	if err != nil {
		return catalog.Requisite{}, err
	}
	req, err := ParsePrerequisites(res.Body, subjects)
	if err != nil {
		return catalog.Requisite{}, &SchemaError{Endpoint: "getSectionPrerequisites", Problems: []string{err.Error()}}
	}
	return req, nil
}

func (c *Client) Corequisites(ctx context.Context, term, crn string, subjects map[string]string) (catalog.Requisite, error) {
	res, err := c.post(ctx, "searchResults/getCorequisites", nil, sectionForm(term, crn), crn)
	if err != nil {
		return catalog.Requisite{}, err
	}
	req, err := ParseCorequisites(res.Body, subjects)
	if err != nil {
		return catalog.Requisite{}, &SchemaError{Endpoint: "getCorequisites", Problems: []string{err.Error()}}
	}
	return req, nil
}
