package wire

import "github.com/fluxd-org/fluxd/pkg/chainhash"

// MerkleResult is the outcome of computing a transaction merkle root: the
// root hash, and whether the tree exhibited the CVE-2012-2459-style
// terminal-duplicate mutation the spec requires rejecting blocks for.
type MerkleResult struct {
	Root    chainhash.Hash
	Mutated bool
}

// ComputeMerkleRoot builds the Merkle root over leaves the way the teacher's
// pkg/block.ComputeMerkleRoot does (pairwise SHA256d, duplicating a lone
// trailing leaf each level), but additionally flags Mutated per the
// CVE-2012-2459-style ambiguity: at any level with an EVEN number of nodes,
// if its last two (genuinely present, not algorithm-padded) nodes are
// identical, the tree is ambiguous with one that duplicated a transaction.
// A level with an ODD number of nodes also ends in a self-paired duplicate,
// but that pairing is the padding algorithm itself, not data — it never
// sets the flag, matching the exclusion the spec calls out explicitly.
func ComputeMerkleRoot(leaves []chainhash.Hash) MerkleResult {
	if len(leaves) == 0 {
		return MerkleResult{Root: chainhash.ZeroHash}
	}
	if len(leaves) == 1 {
		return MerkleResult{Root: leaves[0]}
	}

	level := make([]chainhash.Hash, len(leaves))
	copy(level, leaves)
	mutated := false

	for len(level) > 1 {
		n := len(level)
		if n%2 == 0 && level[n-1] == level[n-2] {
			mutated = true
		}
		next := make([]chainhash.Hash, 0, (n+1)/2)
		for i := 0; i < n; i += 2 {
			left := level[i]
			right := left
			if i+1 < n {
				right = level[i+1]
			}
			next = append(next, hashPair(left, right))
		}
		level = next
	}

	return MerkleResult{Root: level[0], Mutated: mutated}
}

func hashPair(left, right chainhash.Hash) chainhash.Hash {
	buf := make([]byte, 0, 2*chainhash.Size)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return chainhash.HashB(buf)
}
