package capture

import (
	"regexp"
	"strings"
	"sync"
)

// patternCache compiles wildcard listen patterns once and reuses them.
// A pattern is translated by expanding each `*` to `.*`; the rest of
// the pattern is passed to the regexp engine as-is, matching the
// original wildcard semantics. Matching is unanchored.
type patternCache struct {
	mu       sync.Mutex
	compiled map[string]*regexp.Regexp
}

func newPatternCache() *patternCache {
	return &patternCache{compiled: make(map[string]*regexp.Regexp)}
}

// Match reports whether url matches the wildcard pattern. A malformed
// pattern surfaces as an error; callers treat it as a non-match.
func (c *patternCache) Match(pattern, url string) (bool, error) {
	c.mu.Lock()
	re, ok := c.compiled[pattern]
	c.mu.Unlock()
	if !ok {
		var err error
		re, err = regexp.Compile(strings.ReplaceAll(pattern, "*", ".*"))
		if err != nil {
			return false, err
		}
		c.mu.Lock()
		c.compiled[pattern] = re
		c.mu.Unlock()
	}
	return re.MatchString(url), nil
}
