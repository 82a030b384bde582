package gate

import "strings"

// PrefixSet matches request paths against path prefixes on segment
// boundaries: "/api/webhooks" matches "/api/webhooks/paypal" but not
// "/api/webhooksx".
type PrefixSet struct {
	root *node
}

type node struct {
	children map[string]*node
	terminal bool
}

func NewPrefixSet(prefixes ...string) *PrefixSet {
	s := &PrefixSet{root: &node{}}
	for _, p := range prefixes {
		s.Add(p)
	}
	return s
}

func (s *PrefixSet) Add(prefix string) {
	n := s.root
	for _, seg := range segments(prefix) {
		if n.children == nil {
			n.children = map[string]*node{}
		}
		next, ok := n.children[seg]
		if !ok {
			next = &node{}
			n.children[seg] = next
		}
		n = next
	}
	n.terminal = true
}

// Match reports whether path equals or lies below any prefix in the set.
func (s *PrefixSet) Match(path string) bool {
	n := s.root
	if n.terminal {
		return true
	}
	for _, seg := range segments(path) {
		next, ok := n.children[seg]
		if !ok {
			return false
		}
		if next.terminal {
			return true
		}
		n = next
	}
	return false
}

func segments(path string) []string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
