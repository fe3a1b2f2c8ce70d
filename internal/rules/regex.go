package rules

import "regexp"

// regexCache memoizes compiled patterns by their source text.
type regexCache struct {
	entries map[string]*regexp.Regexp
}

func newRegexCache() *regexCache {
	return &regexCache{entries: map[string]*regexp.Regexp{}}
}

func (c *regexCache) compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := c.entries[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(caseInsensitive(pattern))
	if err != nil {
		return nil, err
	}
	c.entries[pattern] = re
	return re, nil
}

func (c *regexCache) reset() {
	c.entries = map[string]*regexp.Regexp{}
}

func (c *regexCache) len() int {
	return len(c.entries)
}

func caseInsensitive(pattern string) string {
	return "(?i)" + pattern
}

// locate returns the byte span of the leftmost match.
func locate(re *regexp.Regexp, input string) (int, int, bool) {
	if re == nil {
		return 0, 0, false
	}
	loc := re.FindStringIndex(input)
	if loc == nil {
		return 0, 0, false
	}
	return loc[0], loc[1], true
}
