package vdr

import (
	"sync"

	"go.uber.org/zap"

	"github.com/karasz/televerifier/coring"
	"github.com/karasz/televerifier/db"
	"github.com/karasz/televerifier/help"
	"github.com/karasz/televerifier/kering"
)

// Tevery processes an incoming TEL event stream, routing each event to
// the Tever for its registry (minting a fresh one on vcp) and driving
// the escrow queues for events that arrive before their preconditions
// are satisfied.
//
// mu serializes every exported operation (ProcessEvent, ProcessQuery,
// ProcessEscrows): the verifier core is single-writer by design, and a
// background escrow drain running alongside per-request event/query
// handling would otherwise race on the tevers map and on a Tever's own
// mutable fields (Sn, Baks, ...). Internal helpers whose name doesn't
// start with "Process" assume mu is already held by their caller.
type Tevery struct {
	cueSink

	mu     sync.Mutex
	tevers map[string]*Tever

	reger     db.Reger
	baser     db.Baser
	localRegk string
	local     bool
	log       *zap.Logger
}

// NewTevery constructs a Tevery over shared registry (reger) and KEL
// (baser) stores. localRegk restricts which registries' events are
// accepted, matching Tever's own local-mode restriction.
func NewTevery(reger db.Reger, baser db.Baser, localRegk string, local bool, log *zap.Logger) *Tevery {
	if log == nil {
		log = help.NopLogger()
	}
	return &Tevery{
		tevers:    make(map[string]*Tever),
		reger:     reger,
		baser:     baser,
		localRegk: localRegk,
		local:     local,
		log:       log,
	}
}

// Tever returns the cached verifier for regk, if one has been minted.
func (tv *Tevery) Tever(regk string) (*Tever, bool) {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	t, ok := tv.tevers[regk]
	return t, ok
}

// ProcessEvent validates one TEL event, minting a new Tever on vcp or
// dispatching to the existing one otherwise. Out-of-order events are
// parked in the oot escrow and reported as kering.ErrOutOfOrder; a
// second vcp for an already-known registry is reported as
// kering.ErrLikelyDuplicitous.
func (tv *Tevery) ProcessEvent(serder *coring.Serder, anchor *Anchor, wigers []coring.Siger) error {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	return tv.processEvent(serder, anchor, wigers)
}

// processEvent is ProcessEvent's body; callers must hold tv.mu. Kept
// separate so the escrow drains (themselves run under ProcessEscrows'
// lock) can replay parked entries without relocking.
func (tv *Tevery) processEvent(serder *coring.Serder, anchor *Anchor, wigers []coring.Siger) error {
	if serder.Pre() == "" {
		return kering.New(kering.CodeInvalidArgument, "invalid pre %q for evt", serder.Pre())
	}

	regk, err := tv.registryKey(serder)
	if err != nil {
		return err
	}
	pre := serder.Pre()
	ilk := serder.Ilk()

	inceptive := ilk == coring.IlkVCP || ilk == coring.IlkISS || ilk == coring.IlkBIS
	sn, err := serder.Sn()
	if err != nil {
		return kering.Wrap(kering.CodeValidation, err, "parse sn")
	}
	if inceptive && sn != 0 {
		return kering.New(kering.CodeValidation, "invalid sn %d for inceptive evt", sn)
	}

	if tv.localRegk != "" {
		if tv.local && tv.localRegk != regk {
			return kering.New(kering.CodeInvalidArgument, "nonlocal event regk=%s when local mode for regk=%s", regk, tv.localRegk)
		}
		if !tv.local && tv.localRegk == regk {
			return kering.New(kering.CodeInvalidArgument, "local event regk=%s when nonlocal mode", regk)
		}
	}

	tever, known := tv.tevers[regk]

	if !known {
		if ilk != coring.IlkVCP {
			tv.escrowOOEvent(serder, anchor)
			return kering.New(kering.CodeOutOfOrder, "escrowed out of order event for pre=%s", pre)
		}
		newTever, err := NewTever(serder, nil, anchor, wigers, tv.reger, tv.baser, false, tv.localRegk, tv.local, tv.log)
		if err != nil {
			return err
		}
		tv.tevers[regk] = newTever
		return nil
	}

	if ilk == coring.IlkVCP {
		return kering.New(kering.CodeLikelyDuplicitous, "likely duplicitous event for pre=%s", pre)
	}

	var sno uint64
	if ilk == coring.IlkVRT {
		sno = tever.Sn + 1
	} else {
		esn, found, err := tever.VCSn(pre)
		if err != nil {
			return err
		}
		if found {
			sno = esn + 1
		} else {
			sno = 0
		}
	}

	switch {
	case sn > sno:
		tv.escrowOOEvent(serder, anchor)
		return kering.New(kering.CodeOutOfOrder, "out-of-order event for pre=%s sn=%d expecting %d", pre, sn, sno)
	case sn == sno:
		return tever.Update(serder, anchor, wigers)
	default:
		return kering.New(kering.CodeLikelyDuplicitous, "likely duplicitous event for pre=%s with sn %d", pre, sn)
	}
}

// ProcessQuery answers a tels query by replaying the management TEL and
// the named credential's TEL, queuing the result as a "replay" cue.
func (tv *Tevery) ProcessQuery(serder *coring.Serder, source string) error {
	tv.mu.Lock()
	defer tv.mu.Unlock()

	if serder.Ilk() != coring.IlkQry {
		return kering.New(kering.CodeValidation, "invalid query message ilk %s", serder.Ilk())
	}
	route := serder.StringField("r")
	qry := serder.MapField("q")
	if route != "tels" {
		return kering.New(kering.CodeValidation, "invalid query message route %q for evt", route)
	}

	mgmt, _ := qry["ri"].(string)
	vcpre, _ := qry["i"].(string)
	vck := vciKey(mgmt, vcpre)

	var msgs []byte
	for _, pre := range []string{mgmt, vck} {
		for sn := uint64(0); ; sn++ {
			raw, found, err := tv.reger.GetEvt(pre, sn)
			if err != nil {
				return err
			}
			if !found {
				break
			}
			msgs = append(msgs, raw...)
		}
	}

	if len(msgs) > 0 {
		tv.queue(Cue{Kind: "replay", Dest: source, Msgs: msgs})
	}
	return nil
}

// registryKey extracts the owning registry identifier from any TEL
// event shape: the event's own prefix for management events, "ri" for
// simple issuance/revocation, and the "ra" seal's prefix for
// backer-anchored issuance/revocation.
func (tv *Tevery) registryKey(serder *coring.Serder) (string, error) {
	switch serder.Ilk() {
	case coring.IlkVCP, coring.IlkVRT:
		return serder.Pre(), nil
	case coring.IlkISS, coring.IlkREV:
		return serder.StringField("ri"), nil
	case coring.IlkBIS, coring.IlkBRV:
		rega := serder.MapField("ra")
		regi, _ := rega["i"].(string)
		return regi, nil
	default:
		return "", kering.New(kering.CodeValidation, "invalid ilk %s for tevery event", serder.Ilk())
	}
}

// escrowOOEvent parks an out-of-order event for later reprocessing once
// its predecessor arrives.
func (tv *Tevery) escrowOOEvent(serder *coring.Serder, anchor *Anchor) {
	sn, _ := serder.Sn()
	_ = tv.reger.PutEvt(serder.Pre(), sn, serder.Raw)
	if anchor != nil {
		_ = tv.reger.PutAnchor(serder.Pre(), sn, anchor.Seqner, anchor.Diger)
	}
	_ = tv.reger.Escrow(db.EscrowOutOfOrder, db.EscrowEntry{Pre: serder.Pre(), Sn: sn, Dig: serder.Dig(), Raw: serder.Raw})
	tv.log.Info("escrowed out of order event", zap.String("pre", serder.Pre()), zap.Uint64("sn", sn))
}

// ProcessEscrows drains the anchorless (tae), out-of-order (oot) and
// backer-state (brs) escrow queues once each, logging but not
// propagating per-entry failures so one bad entry doesn't block the
// rest. Entries in the partially-witnessed (twe) queue are not drained.
func (tv *Tevery) ProcessEscrows() {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	tv.processEscrowAnchorless()
	tv.processEscrowOutOfOrders()
	tv.processEscrowBackerState()
}

// processEscrowAnchorless retries events parked for a missing anchor:
// reload the event, its backer receipts and its anchor couple, and
// replay it through processEvent. A recurring kering.ErrMissingAnchor
// leaves it parked; anything else (including success) clears the entry.
func (tv *Tevery) processEscrowAnchorless() {
	tv.drainEscrow(db.EscrowAnchorless, func(e db.EscrowEntry) error {
		serder, err := coring.NewSerder(e.Raw, coring.KindJSON)
		if err != nil {
			return err
		}
		seqner, diger, found, err := tv.reger.GetAnchor(e.Pre, e.Sn)
		if err != nil {
			return err
		}
		if !found {
			return kering.New(kering.CodeMissingEntry, "missing escrowed anchor at pre=%s sn=%d", e.Pre, e.Sn)
		}
		bigers, err := tv.reger.GetBackerSigs(e.Pre, e.Sn)
		if err != nil {
			return err
		}
		return tv.processEvent(serder, &Anchor{Seqner: seqner, Diger: diger}, bigers)
	})
}

// processEscrowOutOfOrders retries events parked for a missing
// predecessor. A replay that is still out of order re-parks the entry
// via escrowOOEvent and reports kering.ErrOutOfOrder, so the drain must
// also retain on that code — otherwise it would delete the very row
// escrowOOEvent just re-wrote for an sn whose predecessor still hasn't
// arrived.
func (tv *Tevery) processEscrowOutOfOrders() {
	tv.drainEscrow(db.EscrowOutOfOrder, func(e db.EscrowEntry) error {
		serder, err := coring.NewSerder(e.Raw, coring.KindJSON)
		if err != nil {
			return err
		}
		seqner, diger, found, err := tv.reger.GetAnchor(e.Pre, e.Sn)
		if err != nil {
			return err
		}
		var anchor *Anchor
		if found {
			anchor = &Anchor{Seqner: seqner, Diger: diger}
		}
		return tv.processEvent(serder, anchor, nil)
	}, kering.CodeOutOfOrder)
}

// processEscrowBackerState retries backer-anchored credential events
// parked because the management event their "ra" seal points at hadn't
// been logged yet.
func (tv *Tevery) processEscrowBackerState() {
	tv.drainEscrow(db.EscrowBackerState, func(e db.EscrowEntry) error {
		serder, err := coring.NewSerder(e.Raw, coring.KindJSON)
		if err != nil {
			return err
		}
		seqner, diger, found, err := tv.reger.GetAnchor(e.Pre, e.Sn)
		if err != nil {
			return err
		}
		var anchor *Anchor
		if found {
			anchor = &Anchor{Seqner: seqner, Diger: diger}
		}
		bigers, err := tv.reger.GetBackerSigs(e.Pre, e.Sn)
		if err != nil {
			return err
		}
		return tv.processEvent(serder, anchor, bigers)
	})
}

// drainEscrow replays every entry in namespace through process, removing
// each entry unless process fails with a code in the namespace's retain
// set — still waiting, leave it parked — in which case the entry is
// left untouched. kering.CodeMissingAnchor always retains (every queue
// can stall on an anchor lookup); retryCodes adds namespace-specific
// codes, e.g. the oot queue's own CodeOutOfOrder. Any other outcome,
// success included, clears the entry.
func (tv *Tevery) drainEscrow(namespace string, process func(db.EscrowEntry) error, retryCodes ...kering.Code) {
	entries, err := tv.reger.EscrowIter(namespace)
	if err != nil {
		tv.log.Error("escrow iter failed", zap.String("ns", namespace), zap.Error(err))
		return
	}

	retain := map[kering.Code]struct{}{kering.CodeMissingAnchor: {}}
	for _, c := range retryCodes {
		retain[c] = struct{}{}
	}

	for _, e := range entries {
		err := process(e)
		switch {
		case err == nil:
			_ = tv.reger.EscrowDel(namespace, e.Pre, e.Sn)
			tv.log.Info("unescrow succeeded", zap.String("ns", namespace), zap.String("pre", e.Pre), zap.Uint64("sn", e.Sn))
		default:
			if _, pending := retain[kering.CodeOf(err)]; pending {
				tv.log.Debug("unescrow still pending", zap.String("ns", namespace), zap.String("pre", e.Pre), zap.Uint64("sn", e.Sn))
				continue
			}
			_ = tv.reger.EscrowDel(namespace, e.Pre, e.Sn)
			tv.log.Error("unescrowed", zap.String("ns", namespace), zap.String("pre", e.Pre), zap.Uint64("sn", e.Sn), zap.Error(err))
		}
	}
}
