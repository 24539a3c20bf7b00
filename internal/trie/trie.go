// Package trie implements the exact/prefix vocabulary index (C7): a
// compact map-of-children trie fronted by a real Bloom filter so
// membership checks that can't possibly hit skip the trie walk
// entirely. No trie library appears anywhere in the retrieved example
// pack, so the trie itself is a plain stdlib map structure; the Bloom
// filter is real, from github.com/bits-and-blooms/bloom/v3.
package trie

import (
	"bytes"
	"encoding/gob"
	"sort"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/aman-cerp/corpuscore/internal/errors"
)

// DefaultFalsePositiveRate targets ~1% FPR.
const DefaultFalsePositiveRate = 0.01

// node is a single trie edge set. Exported fields so gob can serialize
// the tree directly.
type node struct {
	Children map[rune]*node
	Terminal bool
}

func newNode() *node {
	return &node{Children: make(map[rune]*node)}
}

// Trie is a normalized-vocabulary exact/prefix index with Bloom
// prefiltering. The caller is responsible for pre-normalizing queries;
// the trie assumes that contract and does no normalization itself.
type Trie struct {
	mu    sync.RWMutex
	root  *node
	bloom *bloom.BloomFilter
	size  int
}

// Build constructs a Trie and a Bloom filter sized for ~1% FPR over
// words from a fresh vocabulary.
func Build(words []string) *Trie {
	t := &Trie{
		root:  newNode(),
		bloom: bloom.NewWithEstimates(uint(maxInt(len(words), 1)), DefaultFalsePositiveRate),
	}
	for _, w := range words {
		t.insert(w)
	}
	return t
}

func (t *Trie) insert(word string) {
	cur := t.root
	for _, r := range word {
		next, ok := cur.Children[r]
		if !ok {
			next = newNode()
			cur.Children[r] = next
		}
		cur = next
	}
	if !cur.Terminal {
		cur.Terminal = true
		t.size++
	}
	t.bloom.AddString(word)
}

// Contains reports whether q is in the vocabulary: a Bloom filter
// check first (O(1), no false negatives), then a trie walk to confirm
// (O(|q|)), so a Bloom false positive never produces a wrong answer.
func (t *Trie) Contains(q string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.bloom.TestString(q) {
		return false
	}
	n := t.walk(q)
	return n != nil && n.Terminal
}

// Prefix returns up to k words under the q prefix, found via a
// depth-first walk down from q's node. Results are returned in sorted order.
func (t *Trie) Prefix(q string, k int) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.walk(q)
	if n == nil {
		return nil
	}

	var out []string
	collect(n, q, k, &out)
	sort.Strings(out)
	return out
}

func (t *Trie) walk(q string) *node {
	cur := t.root
	for _, r := range q {
		next, ok := cur.Children[r]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

func collect(n *node, prefix string, k int, out *[]string) {
	if k > 0 && len(*out) >= k {
		return
	}
	if n.Terminal {
		*out = append(*out, prefix)
	}
	// Stable iteration order: sort child runes before descending so
	// repeated calls are deterministic.
	runes := make([]rune, 0, len(n.Children))
	for r := range n.Children {
		runes = append(runes, r)
	}
	sort.Slice(runes, func(i, j int) bool { return runes[i] < runes[j] })

	for _, r := range runes {
		if k > 0 && len(*out) >= k {
			return
		}
		collect(n.Children[r], prefix+string(r), k, out)
	}
}

// Len returns the number of distinct words in the trie.
func (t *Trie) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.size
}

// Marshal serializes the trie structure and the Bloom filter
// separately, matching TrieIndexEntity's serialized_trie/bloom_bits
// split.
func (t *Trie) Marshal() (serializedTrie []byte, bloomBits []byte, bloomHashes int, err error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var trieBuf bytes.Buffer
	if err := gob.NewEncoder(&trieBuf).Encode(trieEnvelope{Root: t.root, Size: t.size}); err != nil {
		return nil, nil, 0, errors.InternalError("failed to serialize trie", err)
	}

	var bloomBuf bytes.Buffer
	if _, err := t.bloom.WriteTo(&bloomBuf); err != nil {
		return nil, nil, 0, errors.InternalError("failed to serialize bloom filter", err)
	}

	return trieBuf.Bytes(), bloomBuf.Bytes(), int(t.bloom.K()), nil
}

// trieEnvelope is the gob-serializable payload (exported fields).
type trieEnvelope struct {
	Root *node
	Size int
}

// Unmarshal reconstructs a Trie from bytes produced by Marshal.
func Unmarshal(serialized []byte, bloomBits []byte) (*Trie, error) {
	var env trieEnvelope
	if err := gob.NewDecoder(bytes.NewReader(serialized)).Decode(&env); err != nil {
		return nil, errors.Corruption("failed to deserialize trie", err)
	}

	bf := &bloom.BloomFilter{}
	if _, err := bf.ReadFrom(bytes.NewReader(bloomBits)); err != nil {
		return nil, errors.Corruption("failed to deserialize bloom filter", err)
	}

	return &Trie{root: env.Root, bloom: bf, size: env.Size}, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
