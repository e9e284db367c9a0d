package coring

// DerivePrefix computes the self-addressing identifier for an event dict:
// the digest of its canonical bytes with the "i" field blanked first. Used
// by inception-style constructors (vcp) to mint a fresh registry identifier,
// and by Tever at incept time to confirm an inbound vcp's "i" matches its
// own content.
func DerivePrefix(ked map[string]any, kind Kind) (string, error) {
	cp := make(map[string]any, len(ked))
	for k, v := range ked {
		cp[k] = v
	}
	cp["i"] = ""
	raw, err := Encode(cp, kind)
	if err != nil {
		return "", err
	}
	return NewDiger(raw).Qb64(), nil
}

// VerifyPrefix reports whether ked["i"] matches the self-addressing
// identifier derived from the rest of ked.
func VerifyPrefix(ked map[string]any, kind Kind) bool {
	pre, _ := ked["i"].(string)
	derived, err := DerivePrefix(ked, kind)
	if err != nil {
		return false
	}
	return pre == derived
}
