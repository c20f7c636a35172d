package rules

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"property-reconciliation-engine/internal/models"

	"github.com/shopspring/decimal"
)

// Formula evaluation errors. ErrFormulaUndefined marks a division by a zero
// denominator; the orchestrator records it as a discrepancy annotation, not
// a crash. ErrNoMatchingItems marks missing inputs for a rule role, recorded
// as "insufficient data".
var (
	ErrFormulaUndefined = errors.New("formula undefined: division by zero denominator")
	ErrNoMatchingItems  = errors.New("no line items match formula reference")
)

// ExprKind discriminates the expression tree variants
type ExprKind int

const (
	// ExprLiteral is a numeric constant
	ExprLiteral ExprKind = iota
	// ExprRef aggregates line items matching an account pattern
	ExprRef
	// ExprBinary applies an arithmetic operator to two sub-expressions
	ExprBinary
)

// AggFunc is the aggregation applied by an account reference
type AggFunc string

const (
	// AggSum adds the amounts of all matching items
	AggSum AggFunc = "sum"
	// AggAvg averages the amounts of all matching items
	AggAvg AggFunc = "avg"
	// AggCount counts the matching items
	AggCount AggFunc = "count"
	// AggValue takes the amount of the single matching item
	AggValue AggFunc = "value"
)

// Expr is a node in a parsed formula expression tree. Formulas are parsed
// once at registry load and evaluated as pure functions of the line item
// snapshot, so re-runs over unchanged inputs are deterministic.
type Expr struct {
	Kind    ExprKind
	Literal decimal.Decimal
	Agg     AggFunc
	Pattern AccountPattern
	Op      byte
	Left    *Expr
	Right   *Expr
}

// References returns every account pattern the expression tree reads
func (e *Expr) References() []AccountPattern {
	switch e.Kind {
	case ExprRef:
		return []AccountPattern{e.Pattern}
	case ExprBinary:
		return append(e.Left.References(), e.Right.References()...)
	}
	return nil
}

// Evaluate computes the expression over the line item snapshot. It returns
// ErrNoMatchingItems when a reference selects nothing and ErrFormulaUndefined
// on division by zero.
func (e *Expr) Evaluate(items []*models.LineItem) (decimal.Decimal, error) {
	switch e.Kind {
	case ExprLiteral:
		return e.Literal, nil

	case ExprRef:
		selected := e.Pattern.Select(items)
		if len(selected) == 0 {
			return decimal.Zero, fmt.Errorf("%w: %s", ErrNoMatchingItems, e.Pattern)
		}

		switch e.Agg {
		case AggCount:
			return decimal.NewFromInt(int64(len(selected))), nil
		case AggValue:
			if len(selected) != 1 {
				return decimal.Zero, fmt.Errorf("value(%s) expects exactly one item, found %d",
					e.Pattern, len(selected))
			}
			return selected[0].NormalizedAmount(), nil
		case AggAvg:
			total := decimal.Zero
			for _, item := range selected {
				total = total.Add(item.NormalizedAmount())
			}
			return total.Div(decimal.NewFromInt(int64(len(selected)))), nil
		default: // AggSum
			total := decimal.Zero
			for _, item := range selected {
				total = total.Add(item.NormalizedAmount())
			}
			return total, nil
		}

	case ExprBinary:
		left, err := e.Left.Evaluate(items)
		if err != nil {
			return decimal.Zero, err
		}

		right, err := e.Right.Evaluate(items)
		if err != nil {
			return decimal.Zero, err
		}

		switch e.Op {
		case '+':
			return left.Add(right), nil
		case '-':
			return left.Sub(right), nil
		case '*':
			return left.Mul(right), nil
		case '/':
			if right.IsZero() {
				return decimal.Zero, ErrFormulaUndefined
			}
			return left.Div(right), nil
		}
	}

	return decimal.Zero, fmt.Errorf("malformed expression node")
}

// String reconstructs a canonical textual form of the expression
func (e *Expr) String() string {
	switch e.Kind {
	case ExprLiteral:
		return e.Literal.String()
	case ExprRef:
		return fmt.Sprintf("%s(%s)", e.Agg, e.Pattern)
	case ExprBinary:
		return fmt.Sprintf("(%s %c %s)", e.Left, e.Op, e.Right)
	}
	return "?"
}

// ParseFormula parses a formula string into an expression tree.
//
// Grammar:
//
//	expr   := term (('+' | '-') term)*
//	term   := factor (('*' | '/') factor)*
//	factor := number | agg '(' pattern ')' | '(' expr ')'
//	agg    := 'sum' | 'avg' | 'count' | 'value'
//
// Account patterns inside an aggregate call are taken verbatim up to the
// closing parenthesis, so globs and colons never collide with operators.
func ParseFormula(input string) (*Expr, error) {
	p := &formulaParser{input: input}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	p.skipSpace()
	if p.pos < len(p.input) {
		return nil, fmt.Errorf("unexpected trailing input at position %d: %q", p.pos, p.input[p.pos:])
	}

	return expr, nil
}

type formulaParser struct {
	input string
	pos   int
}

func (p *formulaParser) skipSpace() {
	for p.pos < len(p.input) && unicode.IsSpace(rune(p.input[p.pos])) {
		p.pos++
	}
}

func (p *formulaParser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *formulaParser) parseExpr() (*Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	for {
		p.skipSpace()
		op := p.peek()
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++

		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}

		left = &Expr{Kind: ExprBinary, Op: op, Left: left, Right: right}
	}
}

func (p *formulaParser) parseTerm() (*Expr, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}

	for {
		p.skipSpace()
		op := p.peek()
		if op != '*' && op != '/' {
			return left, nil
		}
		p.pos++

		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}

		left = &Expr{Kind: ExprBinary, Op: op, Left: left, Right: right}
	}
}

func (p *formulaParser) parseFactor() (*Expr, error) {
	p.skipSpace()

	if p.pos >= len(p.input) {
		return nil, fmt.Errorf("unexpected end of formula")
	}

	c := p.peek()

	if c == '(' {
		p.pos++
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}

		p.skipSpace()
		if p.peek() != ')' {
			return nil, fmt.Errorf("missing closing parenthesis at position %d", p.pos)
		}
		p.pos++
		return expr, nil
	}

	if unicode.IsDigit(rune(c)) || c == '.' {
		return p.parseNumber()
	}

	if unicode.IsLetter(rune(c)) {
		return p.parseRef()
	}

	return nil, fmt.Errorf("unexpected character %q at position %d", c, p.pos)
}

func (p *formulaParser) parseNumber() (*Expr, error) {
	start := p.pos
	for p.pos < len(p.input) && (unicode.IsDigit(rune(p.input[p.pos])) || p.input[p.pos] == '.') {
		p.pos++
	}

	literal, err := decimal.NewFromString(p.input[start:p.pos])
	if err != nil {
		return nil, fmt.Errorf("invalid number %q at position %d: %w", p.input[start:p.pos], start, err)
	}

	return &Expr{Kind: ExprLiteral, Literal: literal}, nil
}

func (p *formulaParser) parseRef() (*Expr, error) {
	start := p.pos
	for p.pos < len(p.input) && (unicode.IsLetter(rune(p.input[p.pos])) || p.input[p.pos] == '_') {
		p.pos++
	}
	name := strings.ToLower(p.input[start:p.pos])

	var agg AggFunc
	switch name {
	case "sum":
		agg = AggSum
	case "avg":
		agg = AggAvg
	case "count":
		agg = AggCount
	case "value":
		agg = AggValue
	default:
		return nil, fmt.Errorf("unknown aggregate %q at position %d", name, start)
	}

	p.skipSpace()
	if p.peek() != '(' {
		return nil, fmt.Errorf("expected '(' after %s at position %d", name, p.pos)
	}
	p.pos++

	closing := strings.IndexByte(p.input[p.pos:], ')')
	if closing < 0 {
		return nil, fmt.Errorf("unterminated %s(...) reference at position %d", name, start)
	}

	pattern := AccountPattern(strings.TrimSpace(p.input[p.pos : p.pos+closing]))
	p.pos += closing + 1

	if err := pattern.Validate(); err != nil {
		return nil, err
	}

	return &Expr{Kind: ExprRef, Agg: agg, Pattern: pattern}, nil
}
