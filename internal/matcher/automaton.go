// Package matcher finds municipality mentions in free text using a
// multi-pattern automaton built from the gazetteer catalog.
package matcher

// keyword is one normalized catalog name inserted into the automaton.
type keyword struct {
	key       string
	length    int
	cityID    string
	name      string
	stateCode string
}

// node is one automaton state. The node graph is stored as an arena indexed
// by int32 so failure links are plain indices instead of back-references.
type node struct {
	children map[rune]int32
	fail     int32
	outputs  []int32
}

// automaton is an Aho-Corasick matcher over normalized keys. Construction is
// O(total key length); scanning is O(text length + matches), independent of
// catalog size. Immutable after build and safe for concurrent scans.
type automaton struct {
	nodes    []node
	keywords []keyword
}

const rootNode int32 = 0

func newAutomaton() *automaton {
	return &automaton{nodes: []node{{children: map[rune]int32{}}}}
}

func (a *automaton) insert(kw keyword) {
	current := rootNode
	for _, r := range kw.key {
		next, ok := a.nodes[current].children[r]
		if !ok {
			next = int32(len(a.nodes))
			a.nodes = append(a.nodes, node{children: map[rune]int32{}})
			a.nodes[current].children[r] = next
		}
		current = next
	}
	a.keywords = append(a.keywords, kw)
	keywordID := int32(len(a.keywords) - 1)
	a.nodes[current].outputs = append(a.nodes[current].outputs, keywordID)
}

// build wires failure links breadth-first and inherits outputs through them,
// the classic Aho-Corasick construction.
func (a *automaton) build() {
	queue := make([]int32, 0, len(a.nodes))
	for _, child := range a.nodes[rootNode].children {
		a.nodes[child].fail = rootNode
		queue = append(queue, child)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for r, child := range a.nodes[current].children {
			queue = append(queue, child)

			fail := a.nodes[current].fail
			for fail != rootNode {
				if next, ok := a.nodes[fail].children[r]; ok {
					fail = next
					break
				}
				fail = a.nodes[fail].fail
			}
			if fail == rootNode {
				if next, ok := a.nodes[rootNode].children[r]; ok && next != child {
					fail = next
				}
			}
			a.nodes[child].fail = fail
			a.nodes[child].outputs = append(a.nodes[child].outputs, a.nodes[fail].outputs...)
		}
	}
}

// hit is one raw automaton match in normalized rune space.
type hit struct {
	keywordID int32
	start     int
	end       int
}

// scan walks the normalized runes and reports every keyword ending at each
// position, spans in normalized rune offsets.
func (a *automaton) scan(runes []rune) []hit {
	var hits []hit
	current := rootNode

	for index, r := range runes {
		for {
			if next, ok := a.nodes[current].children[r]; ok {
				current = next
				break
			}
			if current == rootNode {
				break
			}
			current = a.nodes[current].fail
		}

		for _, keywordID := range a.nodes[current].outputs {
			length := a.keywords[keywordID].length
			start := index - length + 1
			if start < 0 {
				continue
			}
			hits = append(hits, hit{keywordID: keywordID, start: start, end: index + 1})
		}
	}
	return hits
}
