package core

// Canonicalizer (C1) — maps a finite triple set to a byte string that is
// invariant under blank-node relabeling and triple reordering, per
// SPEC_FULL.md §C1. The blank-node fixed-point relabeling itself is
// delegated to gonum's own RDF Dataset Canonicalization implementation
// (URDNA2015), grounded on
// other_examples/bfca6377_gonum-gonum__graph-formats-rdf-urna.go.go —
// this file only translates between this module's Triple/Term types and
// gonum's rdf.Statement/rdf.Term, then serializes and hashes the result.

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/graph/formats/rdf"
)

// TermKind distinguishes the three RDF term shapes a Triple field may take.
type TermKind uint8

const (
	TermIRI TermKind = iota
	TermBlank
	TermLiteral
)

// Term is one subject/predicate/object position of a Triple.
type Term struct {
	Kind     TermKind
	Value    string // IRI string, blank-node label (without "_:"), or literal lexical form
	Datatype string // literal only; optional
	Lang     string // literal only; optional, mutually exclusive with Datatype
}

func IRI(v string) Term       { return Term{Kind: TermIRI, Value: v} }
func Blank(label string) Term { return Term{Kind: TermBlank, Value: label} }
func Literal(lex string) Term { return Term{Kind: TermLiteral, Value: lex} }
func TypedLiteral(lex, datatype string) Term {
	return Term{Kind: TermLiteral, Value: lex, Datatype: datatype}
}
func LangLiteral(lex, lang string) Term {
	return Term{Kind: TermLiteral, Value: lex, Lang: lang}
}

// Triple is an RDF statement with no graph component; graph assignment
// happens later, at commit time, when the coordinator inserts each
// transaction's triples under its BlockGraph (SPEC_FULL.md §C4).
type Triple struct {
	Subject   Term
	Predicate Term
	Object    Term
}

// MaxBlankNodeSymmetryClass bounds the worst-case exponential tie-break
// enumeration mentioned in spec.md §9. It is expressed as a maximum
// number of blank nodes sharing an identical fingerprint after the
// fixed-point refinement; a larger class causes Canonicalize to fail
// with ErrCanonicalizationLimit rather than enumerate unboundedly.
const MaxBlankNodeSymmetryClass = 12

// Canonicalize serializes triples to a deterministic byte form: equal
// under any blank-node relabeling bijection and any reordering of the
// input slice.
func Canonicalize(triples []Triple) ([]byte, error) {
	stmts, err := toStatements(triples)
	if err != nil {
		return nil, err
	}
	if err := checkSymmetryBound(stmts); err != nil {
		return nil, err
	}
	canon, err := rdf.URDNA2015(nil, stmts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTerm, err)
	}
	lines := make([]string, 0, len(canon))
	for _, s := range canon {
		lines = append(lines, nquadLine(s))
	}
	sort.Strings(lines)
	return []byte(strings.Join(lines, "\n")), nil
}

// HashTriples is SHA-256(Canonicalize(triples)), the default transaction
// id derivation per spec.md §4.1.
func HashTriples(triples []Triple) (Hash, error) {
	b, err := Canonicalize(triples)
	if err != nil {
		return Hash{}, err
	}
	return sha256.Sum256(b), nil
}

// HashRaw is the §4.1 "Fallback" rule: SHA-256 over the raw byte payload
// directly, used when canonical_flag = 0.
func HashRaw(raw []byte) Hash {
	return sha256.Sum256(raw)
}

func checkSymmetryBound(stmts []*rdf.Statement) error {
	counts := make(map[string]int)
	for _, s := range stmts {
		for _, t := range []rdf.Term{s.Subject, s.Object} {
			if isBlankValue(t.Value) {
				counts[t.Value]++
			}
		}
	}
	// A symmetry class here is approximated by the number of distinct
	// blank-node labels sharing the same triple-degree; an exact
	// class computation happens inside URDNA2015 itself, so this is a
	// cheap pre-check against pathological inputs before we pay for
	// the fixed-point iteration.
	classes := make(map[int]int)
	for _, degree := range counts {
		classes[degree]++
	}
	for _, size := range classes {
		if size > MaxBlankNodeSymmetryClass {
			return ErrCanonicalizationLimit
		}
	}
	return nil
}

func isBlankValue(v string) bool { return strings.HasPrefix(v, "_:") }

func toStatements(triples []Triple) ([]*rdf.Statement, error) {
	out := make([]*rdf.Statement, 0, len(triples))
	for i, t := range triples {
		s, err := termToRDF(t.Subject, true)
		if err != nil {
			return nil, fmt.Errorf("triple %d subject: %w", i, err)
		}
		p, err := termToRDF(t.Predicate, false)
		if err != nil {
			return nil, fmt.Errorf("triple %d predicate: %w", i, err)
		}
		o, err := termToRDF(t.Object, true)
		if err != nil {
			return nil, fmt.Errorf("triple %d object: %w", i, err)
		}
		out = append(out, &rdf.Statement{Subject: s, Predicate: p, Object: o})
	}
	return out, nil
}

func termToRDF(t Term, allowBlankOrLiteral bool) (rdf.Term, error) {
	switch t.Kind {
	case TermIRI:
		if !validIRI(t.Value) {
			return rdf.Term{}, ErrMalformedTerm
		}
		return rdf.Term{Value: "<" + t.Value + ">"}, nil
	case TermBlank:
		if !allowBlankOrLiteral || t.Value == "" {
			return rdf.Term{}, ErrMalformedTerm
		}
		return rdf.Term{Value: "_:" + t.Value}, nil
	case TermLiteral:
		if !allowBlankOrLiteral {
			return rdf.Term{}, ErrMalformedTerm
		}
		if t.Datatype != "" && t.Lang != "" {
			return rdf.Term{}, ErrMalformedTerm
		}
		lex := `"` + escapeLiteral(t.Value) + `"`
		switch {
		case t.Lang != "":
			lex += "@" + t.Lang
		case t.Datatype != "":
			if !validIRI(t.Datatype) {
				return rdf.Term{}, ErrMalformedTerm
			}
			lex += "^^<" + t.Datatype + ">"
		}
		return rdf.Term{Value: lex}, nil
	default:
		return rdf.Term{}, ErrMalformedTerm
	}
}

func escapeLiteral(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)
	return r.Replace(s)
}

// validIRI rejects the lexical violations spec.md §4.1 calls MalformedTerm:
// empty value, embedded whitespace/control characters, or a missing
// scheme (RFC 3987 subset: ALPHA *( ALPHA / DIGIT / "+" / "-" / "." )
// followed by ":").
func validIRI(v string) bool {
	if v == "" {
		return false
	}
	for _, r := range v {
		if r <= ' ' || r == '<' || r == '>' {
			return false
		}
	}
	colon := strings.IndexByte(v, ':')
	if colon <= 0 {
		return false
	}
	return validScheme(v[:colon])
}

func validScheme(s string) bool {
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

func nquadLine(s *rdf.Statement) string {
	var b bytes.Buffer
	b.WriteString(s.Subject.Value)
	b.WriteByte(' ')
	b.WriteString(s.Predicate.Value)
	b.WriteByte(' ')
	b.WriteString(s.Object.Value)
	b.WriteString(" .")
	return b.String()
}

// ParseNQuadLines recovers a Triple slice from the byte form Canonicalize
// produces, so a decoded block's canonical-flag transactions can be
// re-verified (spec.md §8's "re-canonicalizes and rehashes each payload"
// validate_full behavior) without keeping the pre-canonicalization
// representation around.
func ParseNQuadLines(data []byte) ([]Triple, error) {
	if len(data) == 0 {
		return nil, nil
	}
	lines := strings.Split(string(data), "\n")
	out := make([]Triple, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSuffix(strings.TrimSpace(line), " .")
		if line == "" {
			continue
		}
		toks, err := tokenizeNQuad(line)
		if err != nil {
			return nil, err
		}
		if len(toks) != 3 {
			return nil, fmt.Errorf("%w: expected 3 terms, got %d", ErrMalformedTerm, len(toks))
		}
		s, err := parseTerm(toks[0])
		if err != nil {
			return nil, err
		}
		p, err := parseTerm(toks[1])
		if err != nil {
			return nil, err
		}
		o, err := parseTerm(toks[2])
		if err != nil {
			return nil, err
		}
		out = append(out, Triple{Subject: s, Predicate: p, Object: o})
	}
	return out, nil
}

func tokenizeNQuad(line string) ([]string, error) {
	var toks []string
	i := 0
	for i < len(line) {
		for i < len(line) && line[i] == ' ' {
			i++
		}
		if i >= len(line) {
			break
		}
		start := i
		switch line[i] {
		case '<':
			j := strings.IndexByte(line[i:], '>')
			if j < 0 {
				return nil, ErrMalformedTerm
			}
			i += j + 1
		case '"':
			i++
			for i < len(line) {
				if line[i] == '\\' {
					i += 2
					continue
				}
				if line[i] == '"' {
					i++
					break
				}
				i++
			}
			// optional ^^<...> or @lang suffix
			if i < len(line) && strings.HasPrefix(line[i:], "^^<") {
				j := strings.IndexByte(line[i:], '>')
				if j < 0 {
					return nil, ErrMalformedTerm
				}
				i += j + 1
			} else if i < len(line) && line[i] == '@' {
				i++
				for i < len(line) && line[i] != ' ' {
					i++
				}
			}
		default: // blank node "_:label"
			for i < len(line) && line[i] != ' ' {
				i++
			}
		}
		toks = append(toks, line[start:i])
	}
	return toks, nil
}

func parseTerm(tok string) (Term, error) {
	switch {
	case strings.HasPrefix(tok, "<") && strings.HasSuffix(tok, ">"):
		return IRI(tok[1 : len(tok)-1]), nil
	case strings.HasPrefix(tok, "_:"):
		return Blank(tok[2:]), nil
	case strings.HasPrefix(tok, `"`):
		rest := tok[1:]
		end := strings.LastIndexByte(rest, '"')
		if end < 0 {
			return Term{}, ErrMalformedTerm
		}
		lex := unescapeLiteral(rest[:end])
		suffix := rest[end+1:]
		switch {
		case strings.HasPrefix(suffix, "^^<") && strings.HasSuffix(suffix, ">"):
			return TypedLiteral(lex, suffix[3:len(suffix)-1]), nil
		case strings.HasPrefix(suffix, "@"):
			return LangLiteral(lex, suffix[1:]), nil
		default:
			return Literal(lex), nil
		}
	default:
		return Term{}, ErrMalformedTerm
	}
}

func unescapeLiteral(s string) string {
	r := strings.NewReplacer(`\\`, `\`, `\"`, `"`, `\n`, "\n", `\r`, "\r", `\t`, "\t")
	return r.Replace(s)
}
