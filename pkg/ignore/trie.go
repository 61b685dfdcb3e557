package ignore

// trieNode is a node in a prefix tree over dot/slash-segmented names.
// A non-nil marker records an explicit decision at that depth; the decision
// of the deepest marked node on the lookup path wins.
type trieNode struct {
	children map[string]*trieNode
	marker   *bool
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[string]*trieNode)}
}

// trie is the frozen, read-only form. Lookups allocate nothing and are safe
// for unsynchronized concurrent use because nothing mutates after freeze.
type trie struct {
	root *trieNode
}

// lookup walks name segment by segment and returns the value of the deepest
// marker encountered. matched is false when no prefix of name carries a marker.
func (t *trie) lookup(name string) (value, matched bool) {
	node := t.root
	if node.marker != nil {
		value, matched = *node.marker, true
	}

	start := 0
	for start <= len(name) {
		end := start
		for end < len(name) && name[end] != '.' && name[end] != '/' {
			end++
		}
		child := node.children[name[start:end]]
		if child == nil {
			break
		}
		node = child
		if node.marker != nil {
			value, matched = *node.marker, true
		}
		if end == len(name) {
			break
		}
		start = end + 1
	}
	return value, matched
}

// insert marks the node for the given segmented prefix. Later inserts at the
// same prefix overwrite earlier ones, so contributor order is authoritative.
func (t *trie) insert(prefix string, value bool) {
	node := t.root
	if prefix != "" {
		start := 0
		for start <= len(prefix) {
			end := start
			for end < len(prefix) && prefix[end] != '.' && prefix[end] != '/' {
				end++
			}
			seg := prefix[start:end]
			child := node.children[seg]
			if child == nil {
				child = newTrieNode()
				node.children[seg] = child
			}
			node = child
			if end == len(prefix) {
				break
			}
			start = end + 1
		}
	}
	v := value
	node.marker = &v
}
