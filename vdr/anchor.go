package vdr

import "github.com/karasz/televerifier/coring"

// Anchor is the (seqner, diger) couple identifying the controlling KEL
// event that is supposed to embed a TEL event's seal.
type Anchor struct {
	Seqner coring.Seqner
	Diger  coring.Diger
}
