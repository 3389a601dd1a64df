// Package pattern matches, formats and synthesizes href patterns with named
// {field} tokens, such as "s3://bucket/scene_{band}.TIF".
//
// Syntax: {name} captures one or more characters, {name:N} captures exactly
// N characters, {} matches anything without capturing, and {{ / }} stand for
// literal braces.
package pattern

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInconsistent indicates hrefs that do not share one template.
var ErrInconsistent = errors.New("pattern: hrefs do not share a template")

// ErrSyntax indicates a malformed pattern.
var ErrSyntax = errors.New("pattern: syntax error")

// Pattern is a compiled href pattern.
type Pattern struct {
	raw    string
	re     *regexp.Regexp
	fields []string
}

type segment struct {
	literal string
	field   string
	width   int
	capture bool
}

func parse(p string) ([]segment, error) {
	var segs []segment
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, segment{literal: lit.String()})
			lit.Reset()
		}
	}
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch {
		case c == '{' && i+1 < len(p) && p[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(p) && p[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(p[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w: unclosed '{' at %d in %q", ErrSyntax, i, p)
			}
			flush()
			body := p[i+1 : i+end]
			seg := segment{capture: body != ""}
			name, width, hasWidth := strings.Cut(body, ":")
			seg.field = name
			if hasWidth {
				n, err := strconv.Atoi(width)
				if err != nil || n <= 0 {
					return nil, fmt.Errorf("%w: bad width %q in %q", ErrSyntax, width, p)
				}
				seg.width = n
			}
			if seg.capture && !validName(name) {
				return nil, fmt.Errorf("%w: bad field name %q in %q", ErrSyntax, name, p)
			}
			segs = append(segs, seg)
			i += end
		case c == '}':
			return nil, fmt.Errorf("%w: unmatched '}' at %d in %q", ErrSyntax, i, p)
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return segs, nil
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || i > 0 && r >= '0' && r <= '9' {
			continue
		}
		return false
	}
	return true
}

// Compile parses p.
func Compile(p string) (*Pattern, error) {
	segs, err := parse(p)
	if err != nil {
		return nil, err
	}
	var expr strings.Builder
	var fields []string
	seen := make(map[string]bool)
	expr.WriteString("^")
	for _, s := range segs {
		switch {
		case s.literal != "":
			expr.WriteString(regexp.QuoteMeta(s.literal))
		case !s.capture:
			expr.WriteString(".*?")
		case seen[s.field] && s.width > 0:
			fmt.Fprintf(&expr, "(?:.{%d})", s.width)
		case seen[s.field]:
			expr.WriteString("(?:.+?)")
		case s.width > 0:
			fmt.Fprintf(&expr, "(?P<%s>.{%d})", s.field, s.width)
		default:
			fmt.Fprintf(&expr, "(?P<%s>.+?)", s.field)
		}
		if s.capture && !seen[s.field] {
			seen[s.field] = true
			fields = append(fields, s.field)
		}
	}
	expr.WriteString("$")
	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSyntax, err)
	}
	return &Pattern{raw: p, re: re, fields: fields}, nil
}

// String returns the source pattern.
func (p *Pattern) String() string { return p.raw }

// Fields returns the named fields in order of first appearance.
func (p *Pattern) Fields() []string { return append([]string(nil), p.fields...) }

// Match extracts the named fields from s. A field that appears more than
// once is captured at its first occurrence.
func (p *Pattern) Match(s string) (map[string]string, bool) {
	m := p.re.FindStringSubmatch(s)
	if m == nil {
		return nil, false
	}
	out := make(map[string]string, len(p.fields))
	for i, name := range p.re.SubexpNames() {
		if name == "" {
			continue
		}
		out[name] = m[i]
	}
	return out, true
}

// Format substitutes values into p. Every named field must have a value.
func Format(p string, values map[string]string) (string, error) {
	segs, err := parse(p)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, s := range segs {
		switch {
		case s.literal != "":
			b.WriteString(s.literal)
		case !s.capture:
			return "", fmt.Errorf("%w: cannot format anonymous field in %q", ErrSyntax, p)
		default:
			v, ok := values[s.field]
			if !ok {
				return "", fmt.Errorf("pattern: no value for field %q", s.field)
			}
			b.WriteString(v)
		}
	}
	return b.String(), nil
}

// Escape quotes the braces in s so it matches itself literally.
func Escape(s string) string {
	return strings.NewReplacer("{", "{{", "}", "}}").Replace(s)
}

// Synthesize derives a pattern from hrefs, where hrefs[i] is expected to
// contain tokens[i]. Every occurrence of the token is replaced with
// {field}.
//
// When no href contains its token, Synthesize returns "" and no error.
// When only some hrefs contain their token, or the derived templates
// differ, it returns ErrInconsistent.
func Synthesize(hrefs, tokens []string, field string) (string, error) {
	if len(hrefs) != len(tokens) {
		return "", fmt.Errorf("pattern: %d hrefs but %d tokens", len(hrefs), len(tokens))
	}
	var missing []string
	for i, h := range hrefs {
		if tokens[i] == "" || !strings.Contains(h, tokens[i]) {
			missing = append(missing, h)
		}
	}
	if len(missing) == len(hrefs) {
		return "", nil
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: token absent from %s", ErrInconsistent, strings.Join(missing, ", "))
	}

	var template string
	for i, h := range hrefs {
		t := strings.ReplaceAll(Escape(h), Escape(tokens[i]), "{"+field+"}")
		if i == 0 {
			template = t
			continue
		}
		if t != template {
			return "", fmt.Errorf("%w: %q vs %q", ErrInconsistent, template, t)
		}
	}
	return template, nil
}
