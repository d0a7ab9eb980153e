package policy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// GlobPrefix marks a whitelist entry as a glob pattern instead of a regular expression.
const GlobPrefix = "glob:"

type matcher interface {
	Match(s string) bool
}

type regexMatcher struct{ re *regexp.Regexp }

func (m regexMatcher) Match(s string) bool { return m.re.MatchString(s) }

// Whitelist protects tabs whose URL matches any pattern from rss_limit.
// A nil *Whitelist matches nothing.
type Whitelist struct {
	patterns []string
	matchers []matcher
}

// NewWhitelist compiles patterns. Entries are regular expressions unless
// prefixed with "glob:", e.g. "glob:*://localhost*".
func NewWhitelist(patterns []string) (*Whitelist, error) {
	w := &Whitelist{}
	for _, p := range patterns {
		m, err := compile(p)
		if err != nil {
			return nil, err
		}
		w.patterns = append(w.patterns, p)
		w.matchers = append(w.matchers, m)
	}
	return w, nil
}

func compile(p string) (matcher, error) {
	if g, ok := strings.CutPrefix(p, GlobPrefix); ok {
		gm, err := glob.Compile(g)
		if err != nil {
			return nil, fmt.Errorf("whitelist glob %q: %w", g, err)
		}
		return gm, nil
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, fmt.Errorf("whitelist regex %q: %w", p, err)
	}
	return regexMatcher{re: re}, nil
}

// Match reports whether url matches a pattern and returns the pattern.
func (w *Whitelist) Match(url string) (string, bool) {
	if w == nil {
		return "", false
	}
	for i, m := range w.matchers {
		if m.Match(url) {
			return w.patterns[i], true
		}
	}
	return "", false
}

func (w *Whitelist) Len() int {
	if w == nil {
		return 0
	}
	return len(w.matchers)
}
