package triplestore

import (
	"regexp"
	"strings"
)

var servicePattern = regexp.MustCompile(`SERVICE\s+<([^>]+)>`)

// Resolver maps a SERVICE token from a user query to a logical repository name.
// It returns a validation error for tokens the node does not serve.
type Resolver func(token string) (string, error)

// RewriteFederated replaces every SERVICE <token> with the physical SPARQL endpoint of
// the repository the token resolves to. Only the bracketed token is touched.
func (c *Client) RewriteFederated(query string, resolve Resolver) (string, error) {
	matches := servicePattern.FindAllStringSubmatchIndex(query, -1)
	if len(matches) == 0 {
		return query, nil
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		tokStart, tokEnd := m[2], m[3]
		token := query[tokStart:tokEnd]
		name, err := resolve(token)
		if err != nil {
			return "", err
		}
		ep, err := c.endpoint(name)
		if err != nil {
			return "", err
		}
		b.WriteString(query[last:tokStart])
		b.WriteString(ep.query)
		last = tokEnd
	}
	b.WriteString(query[last:])
	return b.String(), nil
}
