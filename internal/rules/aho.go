package rules

import "errors"

// AhoMatcher finds any of a fixed set of byte-string keywords in a single pass.
type AhoMatcher struct {
	nodes []ahoNode
}

type ahoNode struct {
	next map[byte]int
	fail int
	out  []string
}

func NewAhoMatcher(patterns []string) (*AhoMatcher, error) {
	if len(patterns) == 0 {
		return nil, errors.New("patterns are required")
	}

	nodes := []ahoNode{{next: map[byte]int{}, fail: 0}}
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		current := 0
		for i := 0; i < len(pattern); i++ {
			b := pattern[i]
			next, ok := nodes[current].next[b]
			if !ok {
				nodes = append(nodes, ahoNode{next: map[byte]int{}, fail: 0})
				next = len(nodes) - 1
				nodes[current].next[b] = next
			}
			current = next
		}
		nodes[current].out = append(nodes[current].out, pattern)
	}

	queue := make([]int, 0)
	for _, next := range nodes[0].next {
		nodes[next].fail = 0
		queue = append(queue, next)
	}

	for len(queue) > 0 {
		state := queue[0]
		queue = queue[1:]

		for b, next := range nodes[state].next {
			fail := nodes[state].fail
			for fail != 0 {
				if target, ok := nodes[fail].next[b]; ok {
					fail = target
					break
				}
				fail = nodes[fail].fail
			}
			if target, ok := nodes[fail].next[b]; ok {
				nodes[next].fail = target
			} else {
				nodes[next].fail = 0
			}
			nodes[next].out = append(nodes[next].out, nodes[nodes[next].fail].out...)
			queue = append(queue, next)
		}
	}

	if len(nodes) == 1 {
		return nil, errors.New("no non-empty patterns")
	}

	return &AhoMatcher{nodes: nodes}, nil
}

func mustAho(patterns ...string) *AhoMatcher {
	m, err := NewAhoMatcher(patterns)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *AhoMatcher) step(state int, b byte) int {
	for state != 0 {
		if next, ok := m.nodes[state].next[b]; ok {
			return next
		}
		state = m.nodes[state].fail
	}
	if next, ok := m.nodes[state].next[b]; ok {
		return next
	}
	return 0
}

// Match reports the first keyword found in input.
func (m *AhoMatcher) Match(input string) (bool, string) {
	state := 0
	for i := 0; i < len(input); i++ {
		state = m.step(state, input[i])
		if len(m.nodes[state].out) > 0 {
			return true, m.nodes[state].out[0]
		}
	}
	return false, ""
}

// FindAll returns every distinct keyword present in input.
func (m *AhoMatcher) FindAll(input string) map[string]bool {
	found := map[string]bool{}
	state := 0
	for i := 0; i < len(input); i++ {
		state = m.step(state, input[i])
		for _, pattern := range m.nodes[state].out {
			found[pattern] = true
		}
	}
	return found
}
