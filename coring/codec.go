package coring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// Kind names a canonical serialization for an event body, carried in the
// event's version string (spec.md §6: "JSON by default; CBOR and MsgPack
// supported via the version string").
type Kind string

const (
	KindJSON Kind = "JSON"
	KindCBOR Kind = "CBOR"
	KindMGPK Kind = "MGPK" // declared, no encoder wired — see DESIGN.md
)

var cborEncMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	m, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return m
}()

// Encode serializes ked canonically for the given kind. Canonical here
// means deterministic key ordering, which is all the verifier core needs
// from "serialization of event dictionaries to canonical bytes" — the
// field is an external collaborator per spec.md §1, so this is a concrete
// default implementation rather than a derivation from first principles.
func Encode(ked map[string]any, kind Kind) ([]byte, error) {
	switch kind {
	case KindJSON, "":
		return encodeCanonicalJSON(ked)
	case KindCBOR:
		return cborEncMode.Marshal(ked)
	default:
		return nil, fmt.Errorf("coring: unsupported serialization kind %q", kind)
	}
}

// Decode parses raw bytes of the given kind back into a keyed event dict.
func Decode(raw []byte, kind Kind) (map[string]any, error) {
	switch kind {
	case KindJSON, "":
		var ked map[string]any
		if err := json.Unmarshal(raw, &ked); err != nil {
			return nil, err
		}
		return ked, nil
	case KindCBOR:
		var ked map[string]any
		if err := cbor.Unmarshal(raw, &ked); err != nil {
			return nil, err
		}
		return ked, nil
	default:
		return nil, fmt.Errorf("coring: unsupported serialization kind %q", kind)
	}
}

// encodeCanonicalJSON marshals m with recursively sorted object keys so the
// same logical event always serializes to the same bytes regardless of map
// iteration order.
func encodeCanonicalJSON(m map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonicalJSON(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonicalJSON(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonicalJSON(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalJSON(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}
