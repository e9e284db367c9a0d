package coring

import (
	"fmt"
	"strconv"
)

// ParseSN validates and parses an event sequence number: lowercase hex, no
// leading zeros (spec.md §3: "lowercase hex, no leading zeros").
func ParseSN(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("coring: empty sequence number")
	}
	if s != "0" && s[0] == '0' {
		return 0, fmt.Errorf("coring: sequence number %q has a leading zero", s)
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return 0, fmt.Errorf("coring: sequence number %q is not lowercase hex", s)
		}
	}
	sn, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("coring: invalid sequence number %q: %w", s, err)
	}
	return sn, nil
}

// FormatSN renders sn in the event-field convention: lowercase hex, no
// leading zeros.
func FormatSN(sn uint64) string {
	return strconv.FormatUint(sn, 16)
}

// Serder is a typed view over a deserialized event: its raw canonical
// bytes, the parsed field map, and the serialization kind used to produce
// both.
type Serder struct {
	Ked  map[string]any
	Raw  []byte
	Kind Kind
	dig  Diger
}

// NewSerder parses raw canonical event bytes of the given kind.
func NewSerder(raw []byte, kind Kind) (*Serder, error) {
	ked, err := Decode(raw, kind)
	if err != nil {
		return nil, fmt.Errorf("coring: decode event: %w", err)
	}
	return &Serder{Ked: ked, Raw: raw, Kind: kind, dig: NewDiger(raw)}, nil
}

// NewSerderFromKed serializes ked canonically and wraps the result.
func NewSerderFromKed(ked map[string]any, kind Kind) (*Serder, error) {
	raw, err := Encode(ked, kind)
	if err != nil {
		return nil, fmt.Errorf("coring: encode event: %w", err)
	}
	return &Serder{Ked: ked, Raw: raw, Kind: kind, dig: NewDiger(raw)}, nil
}

// Pre returns the event's "i" identifier field.
func (s *Serder) Pre() string {
	pre, _ := s.Ked["i"].(string)
	return pre
}

// Ilk returns the event's "t" kind field.
func (s *Serder) Ilk() Ilk {
	t, _ := s.Ked["t"].(string)
	return Ilk(t)
}

// Sn parses the event's "s" sequence number field.
func (s *Serder) Sn() (uint64, error) {
	sv, _ := s.Ked["s"].(string)
	return ParseSN(sv)
}

// Diger returns the digest of the event's canonical bytes.
func (s *Serder) Diger() Diger { return s.dig }

// Dig returns the qb64 digest string, the form stored/compared in TEL and
// KEL records.
func (s *Serder) Dig() string { return s.dig.Qb64() }

// Compare reports whether this event's digest matches a qb64 digest
// string, used to check hash-chain continuity against a recorded "p".
func (s *Serder) Compare(digQb64 string) bool { return s.dig.EqualQb64(digQb64) }

// StringField fetches a string-valued field, returning "" if absent or of
// the wrong type.
func (s *Serder) StringField(name string) string {
	v, _ := s.Ked[name].(string)
	return v
}

// ListField fetches a []string-valued field (e.g. "b", "br", "ba"),
// tolerating the []any shape produced by JSON/CBOR decoding.
func (s *Serder) ListField(name string) []string {
	raw, ok := s.Ked[name]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

// MapField fetches a map-valued field (e.g. "ra", "a").
func (s *Serder) MapField(name string) map[string]any {
	m, _ := s.Ked[name].(map[string]any)
	return m
}
