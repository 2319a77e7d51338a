// Package bannertest runs an in-memory Banner for tests.
package bannertest

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/sandboxnu/searchneu-sub001/banner"
)

const basePath = "/StudentRegistrationSsb/ssb/"

type Entry struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Server serves the Banner endpoints from its fields. Set the fields before
// issuing requests.
type Server struct {
	*httptest.Server

	Terms    []Entry
	Subjects []Entry
	Records  []banner.Record

	// Per-CRN enrichment data. Fragments are served as-is.
	Faculty       map[string][]string
	Titles        map[string]string
	Descriptions  map[string]string
	Prerequisites map[string]string
	Corequisites  map[string]string

	// Failures makes an endpoint answer with a status code. Keys are an
	// endpoint name ("getTerms") or endpoint and CRN ("getCourseDescription/30001").
	Failures map[string]int

	mu       sync.Mutex
	sessions map[string]string
	requests map[string]int
	nextID   atomic.Int64
}

func New() *Server {
	s := &Server{
		Faculty:       map[string][]string{},
		Titles:        map[string]string{},
		Descriptions:  map[string]string{},
		Prerequisites: map[string]string{},
		Corequisites:  map[string]string{},
		Failures:      map[string]int{},
		sessions:      map[string]string{},
		requests:      map[string]int{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// BaseURL is the Banner base URL to configure clients with.
func (s *Server) BaseURL() string {
	return s.URL + basePath
}

// Requests counts requests per endpoint name.
func (s *Server) Requests(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[endpoint]
}

// Sessions counts opened sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	endpoint := strings.TrimPrefix(r.URL.Path, basePath)
	if i := strings.LastIndex(endpoint, "/"); i >= 0 {
		endpoint = endpoint[i+1:]
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	crn := r.Form.Get("courseReferenceNumber")

	s.mu.Lock()
	s.requests[endpoint]++
	status, fail := s.Failures[endpoint]
	if !fail && crn != "" {
		status, fail = s.Failures[endpoint+"/"+crn]
	}
	s.mu.Unlock()
	if fail {
		w.WriteHeader(status)
		return
	}

	switch endpoint {
	case "search":
		s.openSession(w, r)
	case "getTerms":
		writeJSON(w, s.Terms)
	case "get_subject":
		writeJSON(w, s.Subjects)
	case "searchResults":
		s.searchResults(w, r)
	case "getFacultyMeetingTimes":
		var faculty []map[string]string
		for _, name := range s.Faculty[crn] {
			faculty = append(faculty, map[string]string{"displayName": name})
		}
		writeJSON(w, map[string]any{"fmt": []any{map[string]any{"faculty": faculty}}})
	case "getSectionCatalogDetails":
		fmt.Fprintf(w, `<section aria-labelledby="catalog"><h3>Catalog</h3><span class="status-bold">College:</span> Khoury<br/><span class="status-bold">Title:</span> %s<br/><span class="status-bold">Credit Hours:</span> 4</section>`, html.EscapeString(s.Titles[crn]))
	case "getCourseDescription":
		fmt.Fprintf(w, `<section aria-labelledby="courseDescription">%s</section>`, s.Descriptions[crn])
	case "getSectionPrerequisites":
		fmt.Fprintf(w, `<section aria-labelledby="preReqs"><h3>Catalog Prerequisites</h3>%s</section>`, s.Prerequisites[crn])
	case "getCorequisites":
		fmt.Fprintf(w, `<section aria-labelledby="coReqs">%s</section>`, s.Corequisites[crn])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) openSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Query().Get("mode") != "search" {
		http.Error(w, "bad session request", http.StatusBadRequest)
		return
	}
	id := "session-" + strconv.FormatInt(s.nextID.Add(1), 10)
	s.mu.Lock()
	s.sessions[id] = r.PostForm.Get("term")
	s.mu.Unlock()
	http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: id})
	writeJSON(w, map[string]string{"fwdURL": "/classSearch/classSearch"})
}

func (s *Server) searchResults(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie("JSESSIONID")
	if err != nil {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}
	s.mu.Lock()
	term, ok := s.sessions[cookie.Value]
	s.mu.Unlock()
	if !ok || term != r.Form.Get("txt_term") {
		writeJSON(w, map[string]any{"success": false, "totalCount": 0, "data": nil})
		return
	}

	offset, _ := strconv.Atoi(r.Form.Get("pageOffset"))
	size, _ := strconv.Atoi(r.Form.Get("pageMaxSize"))
	var page []banner.Record
	if offset < len(s.Records) {
		page = s.Records[offset:min(offset+size, len(s.Records))]
	}
	writeJSON(w, map[string]any{"success": true, "totalCount": len(s.Records), "data": page})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func ptr[T any](v T) *T { return &v }

// Record returns a searchResults row with one lecture meeting.
func Record(crn, subject, courseNumber, title string) banner.Record {
	return banner.Record{
		CRN:                     crn,
		Term:                    "202530",
		Subject:                 subject,
		SubjectDescription:      subject,
		CourseNumber:            courseNumber,
		SequenceNumber:          "01",
		CampusDescription:       "Boston",
		ScheduleTypeDescription: "Lecture",
		CourseTitle:             title,
		MaximumEnrollment:       30,
		SeatsAvailable:          10,
		WaitCapacity:            5,
		WaitAvailable:           5,
		CreditHourLow:           ptr(4.0),
		MeetingsFaculty: []banner.MeetingFaculty{{
			CRN:         crn,
			MeetingTime: Meeting("WVH", "West Village H", "210", "1430", "1610", 1, 3),
		}},
	}
}

// Meeting returns a weekly class meeting on the given weekdays (0 is Sunday).
func Meeting(building, buildingDescription, room, begin, end string, days ...int) banner.MeetingTime {
	m := banner.MeetingTime{
		BeginTime:              ptr(begin),
		EndTime:                ptr(end),
		Building:               ptr(building),
		BuildingDescription:    ptr(buildingDescription),
		Room:                   ptr(room),
		Campus:                 ptr("BOS"),
		CampusDescription:      ptr("Boston"),
		StartDate:              "01/06/2025",
		EndDate:                "04/15/2025",
		MeetingType:            "CLAS",
		MeetingTypeDescription: "Class",
	}
	for _, d := range days {
		switch d {
		case 0:
			m.Sunday = true
		case 1:
			m.Monday = true
		case 2:
			m.Tuesday = true
		case 3:
			m.Wednesday = true
		case 4:
			m.Thursday = true
		case 5:
			m.Friday = true
		case 6:
			m.Saturday = true
		}
	}
	return m
}

// PrerequisiteRow is one row of a prerequisite table.
type PrerequisiteRow struct {
	Connector    string
	Open         string
	Test         string
	Score        string
	Subject      string
	CourseNumber string
	Close        string
}

// PrerequisiteTable renders rows the way getSectionPrerequisites does.
func PrerequisiteTable(rows ...PrerequisiteRow) string {
	var b strings.Builder
	b.WriteString(`<table class="basePreqTable"><thead><tr><th>And/Or</th><th></th><th>Test</th><th>Score</th><th>Subject</th><th>Course Number</th><th>Level</th><th>Grade</th><th></th></tr></thead><tbody>`)
	for _, row := range rows {
		level, grade := "", ""
		if row.Subject != "" {
			level, grade = "Undergraduate", "D-"
		}
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>",
			row.Connector, row.Open, html.EscapeString(row.Test), row.Score, html.EscapeString(row.Subject), row.CourseNumber, level, grade, row.Close)
	}
	b.WriteString("</tbody></table>")
	return b.String()
}

// CorequisiteTable renders courses as getCorequisites does. Each course is
// a subject name and course number pair.
func CorequisiteTable(courses ...[2]string) string {
	var b strings.Builder
	b.WriteString(`<table class="basePreqTable"><thead><tr><th>Subject</th><th>Course Number</th><th>Title</th></tr></thead><tbody>`)
	for _, c := range courses {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>Lab</td></tr>", html.EscapeString(c[0]), c[1])
	}
	b.WriteString("</tbody></table>")
	return b.String()
}
