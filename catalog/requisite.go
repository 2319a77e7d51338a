package catalog

import (
	"errors"
	"fmt"
	"sort"

	"github.com/goccy/go-json"
)

// Kind tags the variant held by a Requisite.
type Kind uint8

const (
	// KindNone is the empty requisite ({} on the wire).
	KindNone Kind = iota
	KindCondition
	KindCourse
	KindTest
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindCondition:
		return "condition"
	case KindCourse:
		return "course"
	case KindTest:
		return "test"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Op joins the items of a condition.
type Op string

const (
	OpAnd Op = "and"
	OpOr  Op = "or"
)

// Requisite is a tagged union. Only the fields belonging to Kind are set:
//
//	KindNone       nothing
//	KindCondition  Op, Items (at least one)
//	KindCourse     Subject, CourseNumber
//	KindTest       Name, Score
//
// The zero value is KindNone.
type Requisite struct {
	Kind         Kind
	Op           Op
	Items        []Requisite
	Subject      string
	CourseNumber string
	Name         string
	Score        int
}

func None() Requisite { return Requisite{} }

func And(items ...Requisite) Requisite {
	return Requisite{Kind: KindCondition, Op: OpAnd, Items: items}
}

func Or(items ...Requisite) Requisite {
	return Requisite{Kind: KindCondition, Op: OpOr, Items: items}
}

func CourseRef(subject, courseNumber string) Requisite {
	return Requisite{Kind: KindCourse, Subject: subject, CourseNumber: courseNumber}
}

func Test(name string, score int) Requisite {
	return Requisite{Kind: KindTest, Name: name, Score: score}
}

func (r Requisite) IsNone() bool { return r.Kind == KindNone }

// Collapse returns a condition with a single item as that item, and an empty
// condition as None. Nested items are collapsed too.
func (r Requisite) Collapse() Requisite {
	if r.Kind != KindCondition {
		return r
	}
	items := make([]Requisite, 0, len(r.Items))
	for _, item := range r.Items {
		item = item.Collapse()
		if item.IsNone() {
			continue
		}
		items = append(items, item)
	}
	switch len(items) {
	case 0:
		return None()
	case 1:
		return items[0]
	}
	return Requisite{Kind: KindCondition, Op: r.Op, Items: items}
}

// Courses returns every course reference in the tree, in tree order.
func (r Requisite) Courses() []Requisite {
	var out []Requisite
	r.walk(func(n Requisite) {
		if n.Kind == KindCourse {
			out = append(out, n)
		}
	})
	return out
}

func (r Requisite) walk(fn func(Requisite)) {
	fn(r)
	for _, item := range r.Items {
		item.walk(fn)
	}
}

// Validate checks the structural invariants of the tree.
func (r Requisite) Validate() error {
	switch r.Kind {
	case KindNone:
		if r.Op != "" || len(r.Items) > 0 || r.Subject != "" || r.CourseNumber != "" || r.Name != "" || r.Score != 0 {
			return errors.New("empty requisite carries fields")
		}
	case KindCondition:
		if r.Op != OpAnd && r.Op != OpOr {
			return fmt.Errorf("condition has unknown type %q", r.Op)
		}
		if len(r.Items) == 0 {
			return fmt.Errorf("%s condition has no items", r.Op)
		}
		for i, item := range r.Items {
			if err := item.Validate(); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
	case KindCourse:
		if r.Subject == "" || r.CourseNumber == "" {
			return errors.New("course requisite missing subject or course number")
		}
	case KindTest:
		if r.Name == "" {
			return errors.New("test requisite missing name")
		}
	default:
		return fmt.Errorf("unknown requisite kind %d", r.Kind)
	}
	return nil
}

type conditionJSON struct {
	Type  Op          `json:"type"`
	Items []Requisite `json:"items"`
}

type courseJSON struct {
	Subject      string `json:"subject"`
	CourseNumber string `json:"courseNumber"`
}

type testJSON struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

func (r Requisite) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case KindNone:
		return []byte("{}"), nil
	case KindCondition:
		items := r.Items
		if items == nil {
			items = []Requisite{}
		}
		return json.Marshal(conditionJSON{Type: r.Op, Items: items})
	case KindCourse:
		return json.Marshal(courseJSON{Subject: r.Subject, CourseNumber: r.CourseNumber})
	case KindTest:
		return json.Marshal(testJSON{Name: r.Name, Score: r.Score})
	}
	return nil, fmt.Errorf("catalog: cannot marshal requisite kind %d", r.Kind)
}

func (r *Requisite) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("catalog: requisite: %w", err)
	}
	if raw == nil {
		return errors.New("catalog: requisite is null")
	}

	_, hasType := raw["type"]
	_, hasItems := raw["items"]
	_, hasSubject := raw["subject"]
	_, hasCourseNumber := raw["courseNumber"]
	_, hasName := raw["name"]
	_, hasScore := raw["score"]

	variants := 0
	for _, present := range []bool{hasType || hasItems, hasSubject || hasCourseNumber, hasName || hasScore} {
		if present {
			variants++
		}
	}
	if variants > 1 {
		return errors.New("catalog: requisite mixes variant fields")
	}
	if len(raw) > 0 && variants == 0 {
		keys := make([]string, 0, len(raw))
		for k := range raw {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Errorf("catalog: requisite has unknown fields %v", keys)
	}

	switch {
	case hasType || hasItems:
		var c conditionJSON
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("catalog: condition: %w", err)
		}
		*r = Requisite{Kind: KindCondition, Op: c.Type, Items: c.Items}
	case hasSubject || hasCourseNumber:
		var c courseJSON
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("catalog: course requisite: %w", err)
		}
		*r = CourseRef(c.Subject, c.CourseNumber)
	case hasName || hasScore:
		var t testJSON
		if err := json.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("catalog: test requisite: %w", err)
		}
		*r = Test(t.Name, t.Score)
	default:
		*r = None()
	}
	return nil
}
