package coring

import "testing"

func TestDigerRoundTrip(t *testing.T) {
	d := NewDiger([]byte("hello world"))
	qb64 := d.Qb64()

	parsed, err := ParseDiger(qb64)
	if err != nil {
		t.Fatalf("ParseDiger failed: %v", err)
	}
	if !d.Equal(parsed) {
		t.Fatalf("round-tripped digest does not match original")
	}
	if !d.EqualQb64(qb64) {
		t.Fatalf("EqualQb64 should match its own qb64 string")
	}
}

func TestDigerDiffers(t *testing.T) {
	a := NewDiger([]byte("a"))
	b := NewDiger([]byte("b"))
	if a.Equal(b) {
		t.Fatalf("distinct inputs should not produce equal digests")
	}
}

func TestSeqnerRoundTrip(t *testing.T) {
	s := Seqner{Sn: 42}
	parsed, err := ParseSeqner(s.Qb64())
	if err != nil {
		t.Fatalf("ParseSeqner failed: %v", err)
	}
	if parsed.Sn != s.Sn {
		t.Fatalf("got sn %d, want %d", parsed.Sn, s.Sn)
	}
}

func TestEncodeDecodeCouple(t *testing.T) {
	s := Seqner{Sn: 7}
	d := NewDiger([]byte("event bytes"))
	couple := EncodeCouple(s, d)

	gotS, gotD, err := DecodeCouple(couple)
	if err != nil {
		t.Fatalf("DecodeCouple failed: %v", err)
	}
	if gotS.Sn != s.Sn {
		t.Fatalf("got seqner sn %d, want %d", gotS.Sn, s.Sn)
	}
	if !gotD.Equal(d) {
		t.Fatalf("decoded diger does not match original")
	}
}

func TestDecodeCoupleRejectsMalformed(t *testing.T) {
	if _, _, err := DecodeCouple([]byte("too short")); err == nil {
		t.Fatalf("expected error for malformed couple")
	}
}
