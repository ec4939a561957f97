package operation

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/fgdb/internal/ir"
)

// Expression is a parsed operation: Output = Function(Inputs...).
type Expression struct {
	Output   string
	Function Ref
	Inputs   []Ref
	Source   string // Original text, trimmed
}

// String renders the expression in normalized form.
func (e *Expression) String() string {
	inputs := make([]string, len(e.Inputs))
	for i, in := range e.Inputs {
		inputs[i] = in.String()
	}
	return fmt.Sprintf("%s = %s(%s)", e.Output, e.Function, strings.Join(inputs, ", "))
}

// Parse parses a single operation expression.
//
// Fails with MALFORMED_EXPRESSION on a missing "=", unbalanced parentheses,
// empty or invalid references, an invalid output name, or trailing text.
func Parse(expr string) (*Expression, error) {
	src := strings.TrimSpace(expr)
	p := &parser{src: norm.NFC.String(src)}

	output := p.word()
	if output == "" {
		return nil, p.fail("missing output name")
	}
	if !IsName(output) || ir.IsHashCode(output) {
		return nil, p.fail("invalid output name %q", output)
	}

	if !p.accept('=') {
		return nil, p.fail("expected '=' after output name")
	}

	fnText := p.word()
	if fnText == "" {
		return nil, p.fail("missing function reference")
	}
	fn, err := ParseRef(fnText)
	if err != nil {
		return nil, p.fail("invalid function reference %q", fnText)
	}

	if !p.accept('(') {
		return nil, p.fail("expected '(' after function reference")
	}

	var inputs []Ref
	for {
		text := p.word()
		if text == "" {
			return nil, p.fail("empty input reference")
		}
		ref, err := ParseRef(text)
		if err != nil {
			return nil, p.fail("invalid input reference %q", text)
		}
		inputs = append(inputs, ref)

		if p.accept(',') {
			continue
		}
		if p.accept(')') {
			break
		}
		if p.done() {
			return nil, p.fail("unbalanced parentheses: missing ')'")
		}
		return nil, p.fail("expected ',' or ')' after input reference")
	}

	if !p.done() {
		return nil, p.fail("unexpected trailing text %q", p.rest())
	}

	return &Expression{Output: output, Function: fn, Inputs: inputs, Source: src}, nil
}

// parser is a cursor over an expression. Tokens are words (runs of name
// characters) and single punctuation runes; whitespace separates tokens.
type parser struct {
	src string
	pos int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		p.pos += size
	}
}

// word consumes the next run of name characters.
func (p *parser) word() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) {
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		if !isNameRune(r) {
			break
		}
		p.pos += size
	}
	return p.src[start:p.pos]
}

// accept consumes r if it is the next non-space rune.
func (p *parser) accept(r rune) bool {
	p.skipSpace()
	next, size := utf8.DecodeRuneInString(p.src[p.pos:])
	if p.pos < len(p.src) && next == r {
		p.pos += size
		return true
	}
	return false
}

func (p *parser) done() bool {
	p.skipSpace()
	return p.pos >= len(p.src)
}

func (p *parser) rest() string {
	return p.src[p.pos:]
}

func (p *parser) fail(format string, args ...any) *ir.Error {
	e := malformed(p.src, format, args...)
	e.Details = map[string]string{"column": fmt.Sprintf("%d", utf8.RuneCountInString(p.src[:p.pos])+1)}
	return e
}

// Line is one expression of a batch, with its 1-based line number.
type Line struct {
	Number int
	Expr   *Expression
}

// ParseBatch parses one expression per line. Blank lines and lines starting
// with '#' are skipped. The whole batch is parsed before anything runs, so a
// malformed line anywhere rejects the batch; the error names the line.
func ParseBatch(r io.Reader) ([]Line, error) {
	var lines []Line
	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		expr, err := Parse(text)
		if err != nil {
			var fe *ir.Error
			if errors.As(err, &fe) {
				fe.Message = fmt.Sprintf("line %d: %s", n, fe.Message)
				if fe.Details == nil {
					fe.Details = map[string]string{}
				}
				fe.Details["line"] = fmt.Sprintf("%d", n)
			}
			return nil, err
		}
		lines = append(lines, Line{Number: n, Expr: expr})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read operations: %w", err)
	}
	if len(lines) == 0 {
		return nil, ir.NewError(ir.ErrCodeMalformedExpression, "no operations found")
	}
	return lines, nil
}
