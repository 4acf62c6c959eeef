package graph

import (
	"bytes"
	"encoding/hex"
	"sort"

	"golang.org/x/crypto/sha3"
)

func keccak(parts ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// MerkleRoot hashes the sorted statements into a binary keccak256 tree. Pairs are
// ordered before hashing and an odd node is carried up unchanged. The empty set has
// the zero root.
func MerkleRoot(statements []string) string {
	sorted := make([]string, 0, len(statements))
	for _, s := range statements {
		if s = stripTerminator(s); s != "" {
			sorted = append(sorted, s)
		}
	}
	if len(sorted) == 0 {
		return "0x" + hex.EncodeToString(make([]byte, 32))
	}
	sort.Strings(sorted)

	level := make([][]byte, len(sorted))
	for i, s := range sorted {
		level[i] = keccak([]byte(s))
	}
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			a, b := level[i], level[i+1]
			if bytes.Compare(a, b) > 0 {
				a, b = b, a
			}
			next = append(next, keccak(a, b))
		}
		level = next
	}
	return "0x" + hex.EncodeToString(level[0])
}
