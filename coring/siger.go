package coring

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"sort"

	"github.com/veraison/go-cose"
)

// verKeyCode marks an Ed25519 verification key in qb64 form.
const verKeyCode = "D"

// Verfer wraps a backer's Ed25519 public key for signature verification.
// Standing in for spec.md §1's out-of-scope "signature verify" primitive
// with a concrete, testable default grounded on veraison/go-cose (the COSE
// library used throughout forestrie-go-merklelog for detached-signature
// verification over log entries).
type Verfer struct {
	Qb64     string
	key      ed25519.PublicKey
	verifier cose.Verifier
}

// NewVerfer parses a qb64-encoded Ed25519 public key (a backer identifier).
func NewVerfer(qb64 string) (Verfer, error) {
	if len(qb64) < 1 || qb64[:1] != verKeyCode {
		return Verfer{}, fmt.Errorf("coring: invalid verfer code in %q", qb64)
	}
	raw, err := base64.RawURLEncoding.DecodeString(qb64[1:])
	if err != nil {
		return Verfer{}, fmt.Errorf("coring: invalid verfer encoding: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return Verfer{}, fmt.Errorf("coring: invalid verfer key size %d", len(raw))
	}
	key := ed25519.PublicKey(raw)
	verifier, err := cose.NewVerifier(cose.AlgorithmEdDSA, key)
	if err != nil {
		return Verfer{}, fmt.Errorf("coring: build verifier: %w", err)
	}
	return Verfer{Qb64: qb64, key: key, verifier: verifier}, nil
}

// Verify checks sig as a detached Ed25519 signature over content.
func (v Verfer) Verify(content, sig []byte) bool {
	if v.verifier == nil {
		return false
	}
	return v.verifier.Verify(content, sig) == nil
}

// Siger is an indexed backer signature: Index is the offset of the signing
// backer into the event's baks/wits list at the time of signing.
type Siger struct {
	Index int
	Sig   []byte
}

// VerifySigs verifies each siger against the verfer at its index, returning
// the deduplicated (by index) subset whose signatures check out along with
// their indices, sorted ascending. This mirrors the teacher's dedup-by-key
// idiom (sqlite_store.go's ON CONFLICT upserts, file_store.go's
// last-write-wins tail) applied here to signature indices instead of store
// keys: a later valid signature at an index already seen replaces the
// earlier one.
func VerifySigs(content []byte, sigers []Siger, verfers []Verfer) ([]Siger, []int) {
	byIndex := make(map[int]Siger)
	for _, sg := range sigers {
		if sg.Index < 0 || sg.Index >= len(verfers) {
			continue
		}
		if verfers[sg.Index].Verify(content, sg.Sig) {
			byIndex[sg.Index] = sg
		}
	}
	indices := make([]int, 0, len(byIndex))
	for i := range byIndex {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	out := make([]Siger, 0, len(indices))
	for _, i := range indices {
		out = append(out, byIndex[i])
	}
	return out, indices
}
