package banner

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sandboxnu/searchneu-sub001/catalog"
)

type TokenType int

const (
	TokenRequisite TokenType = iota
	TokenLParen
	TokenRParen
	TokenAnd
	TokenOr
	TokenEnd
)

func (t TokenType) String() string {
	switch t {
	case TokenRequisite:
		return "requisite"
	case TokenLParen:
		return "("
	case TokenRParen:
		return ")"
	case TokenAnd:
		return "and"
	case TokenOr:
		return "or"
	case TokenEnd:
		return "end"
	}
	return "token(" + strconv.Itoa(int(t)) + ")"
}

// Token is one lexeme of a prerequisite table. Requisite tokens carry their
// leaf in Value.
type Token struct {
	Type  TokenType
	Value catalog.Requisite
}

// prerequisite table columns, in Banner's order
const (
	colConnector = iota
	colOpen
	colTest
	colScore
	colSubject
	colCourseNumber
	colLevel
	colGrade
	colClose
	prerequisiteColumns
)

// TokenizePrerequisites turns Banner's prerequisite table into tokens. Each
// row is [And/Or] ["("] leaf [")"]; the leaf is a test when the Test column is
// filled and a course otherwise. subjects maps subject descriptions to codes.
// A fragment without a table has no tokens besides TokenEnd.
func TokenizePrerequisites(fragment []byte, subjects map[string]string) ([]Token, error) {
	document, err := goquery.NewDocumentFromReader(bytes.NewReader(fragment))
	if err != nil {
		return nil, err
	}

	var tokens []Token
	var rowErr error
	document.Find("table").First().Find("tbody tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		cells := row.Find("td").Map(func(_ int, cell *goquery.Selection) string {
			return CleanText(cell.Text())
		})
		if len(cells) < prerequisiteColumns {
			rowErr = fmt.Errorf("prerequisite row %d has %d columns, want %d", i, len(cells), prerequisiteColumns)
			return false
		}

		switch strings.ToLower(cells[colConnector]) {
		case "and":
			tokens = append(tokens, Token{Type: TokenAnd})
		case "or":
			tokens = append(tokens, Token{Type: TokenOr})
		case "":
		default:
			rowErr = fmt.Errorf("prerequisite row %d has unknown connector %q", i, cells[colConnector])
			return false
		}

		for range strings.Count(cells[colOpen], "(") {
			tokens = append(tokens, Token{Type: TokenLParen})
		}

		leaf, err := prerequisiteLeaf(cells, subjects)
		if err != nil {
			rowErr = fmt.Errorf("prerequisite row %d: %w", i, err)
			return false
		}
		tokens = append(tokens, Token{Type: TokenRequisite, Value: leaf})

		for range strings.Count(cells[colClose], ")") {
			tokens = append(tokens, Token{Type: TokenRParen})
		}
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}

	return append(tokens, Token{Type: TokenEnd}), nil
}

func prerequisiteLeaf(cells []string, subjects map[string]string) (catalog.Requisite, error) {
	if test := cells[colTest]; test != "" {
		score := 0
		if s := cells[colScore]; s != "" {
			n, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return catalog.Requisite{}, fmt.Errorf("test %q has score %q", test, s)
			}
			score = int(n)
		}
		return catalog.Test(test, score), nil
	}

	subject, number := cells[colSubject], cells[colCourseNumber]
	if subject == "" || number == "" {
		return catalog.Requisite{}, errors.New("row has neither a test nor a course")
	}
	if code, ok := subjects[subject]; ok {
		subject = code
	}
	return catalog.CourseRef(subject, number), nil
}

// parser is a recursive-descent parser over
//
//	expression := term ("or" term)*
//	term       := factor ("and" factor)*
//	factor     := requisite | "(" expression ")"
type parser struct {
	tokens []Token
}

func (p *parser) peek() TokenType {
	if len(p.tokens) == 0 {
		return TokenEnd
	}
	return p.tokens[0].Type
}

func (p *parser) eat(tokenType TokenType) (Token, error) {
	if len(p.tokens) < 1 {
		return Token{}, errors.New("no token to eat")
	}
	if p.tokens[0].Type != tokenType {
		return Token{}, fmt.Errorf("expected %v, found %v", tokenType, p.tokens[0].Type)
	}

	token := p.tokens[0]
	p.tokens = p.tokens[1:]
	return token, nil
}

// ParseRequisite parses tokens into a collapsed requisite tree. No tokens
// (or only TokenEnd) is catalog.None.
func ParseRequisite(tokens []Token) (catalog.Requisite, error) {
	p := &parser{tokens: tokens}
	if p.peek() == TokenEnd {
		return catalog.None(), nil
	}

	expression, err := p.expression()
	if err != nil {
		return catalog.Requisite{}, err
	}
	if _, err := p.eat(TokenEnd); err != nil {
		return catalog.Requisite{}, err
	}
	return expression.Collapse(), nil
}

func (p *parser) expression() (catalog.Requisite, error) {
	head, err := p.term()
	if err != nil {
		return catalog.Requisite{}, err
	}

	terms := []catalog.Requisite{head}
	for p.peek() == TokenOr {
		if _, err := p.eat(TokenOr); err != nil {
			return catalog.Requisite{}, err
		}
		term, err := p.term()
		if err != nil {
			return catalog.Requisite{}, err
		}
		terms = append(terms, term)
	}

	if len(terms) == 1 {
		return head, nil
	}
	return catalog.Or(terms...), nil
}

func (p *parser) term() (catalog.Requisite, error) {
	head, err := p.factor()
	if err != nil {
		return catalog.Requisite{}, err
	}

	factors := []catalog.Requisite{head}
	for p.peek() == TokenAnd {
		if _, err := p.eat(TokenAnd); err != nil {
			return catalog.Requisite{}, err
		}
		factor, err := p.factor()
		if err != nil {
			return catalog.Requisite{}, err
		}
		factors = append(factors, factor)
	}

	if len(factors) == 1 {
		return head, nil
	}
	return catalog.And(factors...), nil
}

func (p *parser) factor() (catalog.Requisite, error) {
	switch p.peek() {
	case TokenRequisite:
		token, err := p.eat(TokenRequisite)
		if err != nil {
			return catalog.Requisite{}, err
		}
		return token.Value, nil
	case TokenLParen:
		if _, err := p.eat(TokenLParen); err != nil {
			return catalog.Requisite{}, err
		}
		expression, err := p.expression()
		if err != nil {
			return catalog.Requisite{}, err
		}
		if _, err := p.eat(TokenRParen); err != nil {
			return catalog.Requisite{}, err
		}
		return expression, nil
	default:
		return catalog.Requisite{}, fmt.Errorf("unexpected %v", p.peek())
	}
}

// ParsePrerequisites parses a getSectionPrerequisites fragment.
func ParsePrerequisites(fragment []byte, subjects map[string]string) (catalog.Requisite, error) {
	tokens, err := TokenizePrerequisites(fragment, subjects)
	if err != nil {
		return catalog.Requisite{}, err
	}
	return ParseRequisite(tokens)
}

// ParseCorequisites parses a getCorequisites fragment. Every listed course is
// required, so the result is an "and" of course references.
func ParseCorequisites(fragment []byte, subjects map[string]string) (catalog.Requisite, error) {
	document, err := goquery.NewDocumentFromReader(bytes.NewReader(fragment))
	if err != nil {
		return catalog.Requisite{}, err
	}

	var items []catalog.Requisite
	document.Find("table").First().Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td").Map(func(_ int, cell *goquery.Selection) string {
			return CleanText(cell.Text())
		})
		if len(cells) < 2 || cells[0] == "" || cells[1] == "" {
			return
		}
		subject := cells[0]
		if code, ok := subjects[subject]; ok {
			subject = code
		}
		items = append(items, catalog.CourseRef(subject, cells[1]))
	})

	return catalog.And(items...).Collapse(), nil
}
