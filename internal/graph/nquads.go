package graph

import (
	"sort"
	"strings"
)

// SplitLines turns an n-quads/n-triples document into trimmed non-empty statements.
func SplitLines(doc string) []string {
	lines := strings.Split(doc, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// Dedupe drops repeated statements, keeping first-seen order.
func Dedupe(statements []string) []string {
	seen := make(map[string]struct{}, len(statements))
	out := make([]string, 0, len(statements))
	for _, s := range statements {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Subject returns the first term of a statement.
func Subject(statement string) string {
	if i := strings.IndexByte(statement, ' '); i > 0 {
		return statement[:i]
	}
	return statement
}

// GroupBySubject groups statements that share a subject, optionally sorted by subject.
func GroupBySubject(statements []string, sorted bool) [][]string {
	idx := map[string]int{}
	var groups [][]string
	var keys []string
	for _, s := range statements {
		subj := Subject(s)
		i, ok := idx[subj]
		if !ok {
			i = len(groups)
			idx[subj] = i
			groups = append(groups, nil)
			keys = append(keys, subj)
		}
		groups[i] = append(groups[i], s)
	}
	if !sorted {
		return groups
	}
	order := make([]int, len(groups))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return keys[order[a]] < keys[order[b]] })
	out := make([][]string, 0, len(groups))
	for _, i := range order {
		out = append(out, groups[i])
	}
	return out
}

// TripleAnnotations reifies every statement of group i with annotations[i]:
// "<< s p o >> predicate annotation ."
func TripleAnnotations(grouped [][]string, predicate string, annotations []string) []string {
	var out []string
	for i, group := range grouped {
		if i >= len(annotations) {
			break
		}
		for _, t := range group {
			out = append(out, "<< "+stripTerminator(t)+" >> "+predicate+" "+annotations[i]+" .")
		}
	}
	return out
}

func stripTerminator(statement string) string {
	s := strings.TrimSpace(statement)
	s = strings.TrimSuffix(s, ".")
	return strings.TrimSpace(s)
}
