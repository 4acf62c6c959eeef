package graph

import (
	"fmt"
	"regexp"
	"strings"

	apperr "github.com/BogBogdan/ot-node/internal/pkg/errors"
)

var legacyUnsafe = regexp.MustCompile(`['|\[\]\\]`)

// IRI is the single interpolation point for values placed in an IRI position.
// Characters that can terminate the IRI are rejected; characters that older
// stores treat specially ( ' | [ ] \ ) are backslash-escaped.
func IRI(raw string) (string, error) {
	if raw == "" {
		return "", apperr.Validation("INVALID_IRI", "empty IRI")
	}
	for _, r := range raw {
		switch {
		case r <= 0x20, r == 0x7f:
			return "", apperr.Validation("INVALID_IRI", "IRI %q contains whitespace or control characters", raw)
		case strings.ContainsRune("<>\"{}^`", r):
			return "", apperr.Validation("INVALID_IRI", "IRI %q contains forbidden character %q", raw, r)
		}
	}
	return "<" + legacyUnsafe.ReplaceAllString(raw, `\$0`) + ">", nil
}

// MustIRI is IRI for compile-time constants.
func MustIRI(raw string) string {
	out, err := IRI(raw)
	if err != nil {
		panic(err)
	}
	return out
}

var literalReplacer = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// Literal renders s as a quoted SPARQL string literal.
func Literal(s string) string {
	return `"` + literalReplacer.Replace(s) + `"`
}

// IRIs renders each value with IRI, one per line, for VALUES blocks.
func IRIs(raws []string) (string, error) {
	var b strings.Builder
	for i, raw := range raws {
		iri, err := IRI(raw)
		if err != nil {
			return "", fmt.Errorf("value %d: %w", i, err)
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(iri)
	}
	return b.String(), nil
}
