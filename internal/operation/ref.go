package operation

import (
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/fgdb/internal/ir"
)

// RefKind tags a Ref.
type RefKind int

const (
	// RefName is a symbolic block name.
	RefName RefKind = iota
	// RefHash is a full hash code.
	RefHash
)

// String returns "name" or "hash".
func (k RefKind) String() string {
	if k == RefHash {
		return "hash"
	}
	return "name"
}

// Ref is a reference to a block: a hash code or a symbolic name.
type Ref struct {
	Kind  RefKind
	Value string
}

// HashRef returns a hash-form reference.
func HashRef(code string) Ref { return Ref{Kind: RefHash, Value: code} }

// NameRef returns a name-form reference.
func NameRef(name string) Ref { return Ref{Kind: RefName, Value: norm.NFC.String(name)} }

// String returns the reference as written in an expression.
func (r Ref) String() string { return r.Value }

// ParseRef classifies s as a hash code or a name.
func ParseRef(s string) (Ref, error) {
	if ir.IsHashCode(s) {
		return HashRef(s), nil
	}
	if !IsName(s) {
		return Ref{}, malformed(s, "invalid block reference %q", s)
	}
	return NameRef(s), nil
}

// IsName reports whether s is a valid symbolic name. A name may start with a
// digit, since block names default to folder names; a 64 character hex
// string is always read as a hash code by ParseRef.
func IsName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
				return false
			}
			continue
		}
		if !isNameRune(r) {
			return false
		}
	}
	return true
}

func isNameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) ||
		r == '_' || r == '.' || r == '-'
}

func malformed(expr, format string, args ...any) *ir.Error {
	e := ir.NewError(ir.ErrCodeMalformedExpression, format, args...)
	e.Ref = expr
	return e
}
