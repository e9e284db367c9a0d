// Package db declares the storage collaborators a verifier needs: Baser,
// a read-only view onto an identifier's key event log (KEL), and Reger,
// the read/write store for TEL events, anchor couples, backer receipts,
// computed state snapshots, and the escrow queues that hold events
// pending some precondition. Both are external collaborators per
// spec.md §1 ("a KEL/KERI collaborator resolves witness pools and key
// state"); this package only fixes their shape and provides concrete
// SQLite-backed implementations of both, grounded on the teacher's per-concern-table
// sqlite_store.go.
package db

import "github.com/karasz/televerifier/coring"

// Baser resolves facts about an identifier's key event log that a TEL
// verifier needs but does not itself maintain: the latest establishment
// event (for rotation/key-state checks) and arbitrary historical events
// (for anchor-seal verification).
type Baser interface {
	// KelLast returns the most recent key event known for pre.
	KelLast(pre string) (sn uint64, dig string, raw []byte, found bool, err error)
	// KelEvt returns the key event at pre/sn, used to verify an anchor
	// seal against the event that is supposed to embed it.
	KelEvt(pre string, sn uint64) (raw []byte, found bool, err error)
}

// EscrowEntry is one parked event awaiting a precondition: a missing
// anchor, an out-of-order predecessor, or a not-yet-available backer
// state.
type EscrowEntry struct {
	Pre string
	Sn  uint64
	Dig string
	Raw []byte
}

// Escrow namespaces, mirroring the four escrow categories the verifier
// core parks events in (spec.md §7, §5 item 2 of SPEC_FULL.md's Open
// Question decisions for the brs addition). Tevery.ProcessEscrows drains
// oot, tae and brs; entries parked in twe are not drained.
const (
	EscrowOutOfOrder    = "oot" // predecessor event not yet seen
	EscrowAnchorless    = "tae" // anchor seal not yet resolvable in the KEL
	EscrowUnderWitnessed = "twe" // insufficient backer receipts
	EscrowBackerState   = "brs" // backer set for the event's anchor not yet known
)

// Reger is the TEL store: verified events, their anchor couples and
// backer receipts, the current backer set and computed state snapshot
// per registry, and the four escrow queues.
type Reger interface {
	// PutEvt records a verified TEL event at pre/sn.
	PutEvt(pre string, sn uint64, raw []byte) error
	// GetEvt fetches a verified TEL event.
	GetEvt(pre string, sn uint64) (raw []byte, found bool, err error)
	// LastEvt fetches the highest-sn verified event for pre.
	LastEvt(pre string) (sn uint64, raw []byte, found bool, err error)

	// PutAnchor records the (seqner, diger) couple anchoring pre/sn into
	// its controller's KEL.
	PutAnchor(pre string, sn uint64, seqner coring.Seqner, diger coring.Diger) error
	// GetAnchor fetches the anchor couple for pre/sn.
	GetAnchor(pre string, sn uint64) (coring.Seqner, coring.Diger, bool, error)

	// PutBackerSigs records the backer signature indices that passed
	// verification for pre/sn.
	PutBackerSigs(pre string, sn uint64, sigers []coring.Siger) error
	// GetBackerSigs fetches the recorded backer signatures for pre/sn.
	GetBackerSigs(pre string, sn uint64) ([]coring.Siger, error)

	// PutBackers records the backer (witness) list that held as of the
	// management event regk/sn, so a later credential event anchored to
	// that specific event can recover the backer set it was issued
	// under rather than whatever the registry's current set is.
	PutBackers(regk string, sn uint64, baks []string) error
	// GetBackers fetches the backer list recorded for regk/sn.
	GetBackers(regk string, sn uint64) ([]string, bool, error)

	// PutState stores the last-computed state snapshot (a serialized
	// ksn/vcstate event) for pre.
	PutState(pre string, raw []byte) error
	// GetState fetches the last-computed state snapshot for pre.
	GetState(pre string) ([]byte, bool, error)

	// PutFirstSeen records the wall-clock time an event for pre/sn was
	// first logged; a later call for the same pre/sn keeps the original time.
	PutFirstSeen(pre string, sn uint64, iso8601 string) error
	// GetFirstSeen fetches the recorded first-seen time, if any.
	GetFirstSeen(pre string, sn uint64) (string, bool, error)

	// Escrow appends an entry to the named escrow queue.
	Escrow(namespace string, e EscrowEntry) error
	// EscrowIter returns all entries currently parked in the named
	// queue, in the order they were escrowed.
	EscrowIter(namespace string) ([]EscrowEntry, error)
	// EscrowDel removes a parked entry from the named queue.
	EscrowDel(namespace string, pre string, sn uint64) error
}
