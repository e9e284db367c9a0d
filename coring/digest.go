package coring

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

// digestCode identifies the self-addressing digest algorithm in a qb64
// string, mirroring KERI's qualified-base64 convention of a short type code
// prefix followed by the raw value's base64.
const digestCode = "E" // SHA2-256, analogous to KERI's Blake3_256 code slot

// Diger is a self-addressing digest: a qb64-style qualified encoding of a
// SHA-256 hash over an event's canonical bytes.
type Diger struct {
	Raw [sha256.Size]byte
}

// NewDiger computes the digest of raw canonical event bytes.
func NewDiger(raw []byte) Diger {
	return Diger{Raw: sha256.Sum256(raw)}
}

// Qb64 returns the qualified base64 encoding of the digest.
func (d Diger) Qb64() string {
	return digestCode + base64.RawURLEncoding.EncodeToString(d.Raw[:])
}

// Qb64b is the byte-slice form of Qb64, used when writing couples to the
// store (anc := qb64(seqner) || qb64(diger)).
func (d Diger) Qb64b() []byte { return []byte(d.Qb64()) }

// ParseDiger decodes a qb64 digest string.
func ParseDiger(qb64 string) (Diger, error) {
	if len(qb64) < 1 || qb64[:1] != digestCode {
		return Diger{}, fmt.Errorf("coring: invalid digest code in %q", qb64)
	}
	raw, err := base64.RawURLEncoding.DecodeString(qb64[1:])
	if err != nil {
		return Diger{}, fmt.Errorf("coring: invalid digest encoding: %w", err)
	}
	if len(raw) != sha256.Size {
		return Diger{}, fmt.Errorf("coring: invalid digest size %d", len(raw))
	}
	var d Diger
	copy(d.Raw[:], raw)
	return d, nil
}

// Equal reports whether two digests are the same, independent of source.
func (d Diger) Equal(o Diger) bool { return d.Raw == o.Raw }

// EqualQb64 compares a digest against a qb64-encoded digest string, as used
// when checking an event's "p" (prior digest) or "d" fields.
func (d Diger) EqualQb64(qb64 string) bool {
	other, err := ParseDiger(qb64)
	if err != nil {
		return false
	}
	return d.Equal(other)
}

// seqCode identifies a sequence-number qb64 encoding.
const seqCode = "0A"

// Seqner wraps a KEL event sequence number for qb64 encoding alongside a
// Diger in an anchor couple.
type Seqner struct {
	Sn uint64
}

// Qb64 encodes the sequence number as a fixed-width qualified base64 value.
func (s Seqner) Qb64() string {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[7-i] = byte(s.Sn >> (8 * i))
	}
	return seqCode + base64.RawURLEncoding.EncodeToString(buf[:])
}

// Qb64b is the byte-slice form of Qb64.
func (s Seqner) Qb64b() []byte { return []byte(s.Qb64()) }

// ParseSeqner decodes a qb64 sequence number string.
func ParseSeqner(qb64 string) (Seqner, error) {
	if len(qb64) < 2 || qb64[:2] != seqCode {
		return Seqner{}, fmt.Errorf("coring: invalid seqner code in %q", qb64)
	}
	raw, err := base64.RawURLEncoding.DecodeString(qb64[2:])
	if err != nil {
		return Seqner{}, fmt.Errorf("coring: invalid seqner encoding: %w", err)
	}
	if len(raw) != 8 {
		return Seqner{}, fmt.Errorf("coring: invalid seqner size %d", len(raw))
	}
	var sn uint64
	for _, b := range raw {
		sn = sn<<8 | uint64(b)
	}
	return Seqner{Sn: sn}, nil
}

// seqnerQb64Len and digerQb64Len are the fixed lengths of a Seqner and a
// Diger qb64 string, which lets a packed "couple" (seqner||diger) be split without a
// delimiter, the same couple-packing scheme sqlite_store.go's anchors
// table uses for (key, tagV, tagT) fixed-size columns.
var (
	seqnerQb64Len = len(Seqner{}.Qb64())
	digerQb64Len  = len(Diger{}.Qb64())
)

// EncodeCouple packs a seqner and diger into the anchor-couple wire form
// stored under the "anc" namespace: qb64(seqner) || qb64(diger).
func EncodeCouple(s Seqner, d Diger) []byte {
	return append([]byte(s.Qb64()), []byte(d.Qb64())...)
}

// DecodeCouple splits a packed anchor couple back into its Seqner and Diger.
func DecodeCouple(couple []byte) (Seqner, Diger, error) {
	if len(couple) != seqnerQb64Len+digerQb64Len {
		return Seqner{}, Diger{}, errors.New("coring: malformed anchor couple")
	}
	s, err := ParseSeqner(string(couple[:seqnerQb64Len]))
	if err != nil {
		return Seqner{}, Diger{}, err
	}
	d, err := ParseDiger(string(couple[seqnerQb64Len:]))
	if err != nil {
		return Seqner{}, Diger{}, err
	}
	return s, d, nil
}
