// Package vdr implements the transaction event log verifier core: Tever
// validates a single registry's hash-chained management and credential
// events, and Tevery (in tevery.go) dispatches an incoming event stream
// across many registries' Tevers, driving the escrow pipelines for
// events that arrive before their preconditions are met.
package vdr

import (
	"go.uber.org/zap"

	"github.com/karasz/televerifier/coring"
	"github.com/karasz/televerifier/db"
	"github.com/karasz/televerifier/eventing"
	"github.com/karasz/televerifier/help"
	"github.com/karasz/televerifier/kering"
)

// Tever is the verifier for one credential registry's transaction event
// log: its management chain (vcp/vrt) and every credential TEL it hosts
// (iss/rev, bis/brv).
type Tever struct {
	cueSink

	Pre       string // controlling identifier prefix (registry's issuer AID)
	Regk      string // this registry's own self-addressing identifier
	Sn        uint64
	Serder    *coring.Serder
	Ilk       coring.Ilk
	Toad      int
	Baks      []string
	Cuts      []string
	Adds      []string
	NoBackers bool

	localRegk string
	local     bool

	reger db.Reger
	baser db.Baser
	log   *zap.Logger
}

// NewTever either incepts a fresh registry from a vcp serder, or reloads
// an existing one from a previously computed state notice — mirroring
// the teacher's constructor-does-validation style in verifier.go, where
// building a verifier and validating its first input are the same step.
func NewTever(serder *coring.Serder, state *coring.Serder, anchor *Anchor, bigers []coring.Siger,
	reger db.Reger, baser db.Baser, noBackers bool, localRegk string, local bool, log *zap.Logger) (*Tever, error) {

	if serder == nil && state == nil {
		return nil, kering.New(kering.CodeInvalidArgument, "missing required arguments, need state or serder")
	}
	if log == nil {
		log = help.NopLogger()
	}

	t := &Tever{reger: reger, baser: baser, localRegk: localRegk, local: local, log: log}

	if state != nil {
		if err := t.reload(state); err != nil {
			return nil, err
		}
		return t, nil
	}

	if serder.Ilk() != coring.IlkVCP {
		return nil, kering.New(kering.CodeValidation, "expected ilk %s got %s for evt", coring.IlkVCP, serder.Ilk())
	}
	if missing := coring.MissingLabel(serder.Ked, coring.VcpLabels); missing != "" {
		return nil, kering.New(kering.CodeValidation, "missing element %s from %s event", missing, serder.Ilk())
	}

	if err := t.incept(serder); err != nil {
		return nil, err
	}
	t.config(serder, noBackers)

	valid, err := t.valAnchorBigs(serder, anchor, bigers, t.Toad, t.Baks)
	if err != nil {
		return nil, err
	}

	if err := t.logEvent(t.Regk, 0, serder, anchor, valid, t.Baks); err != nil {
		return nil, err
	}

	return t, t.pinState()
}

// reload restores Tever state from a previously computed key-state
// notice, the fast path for bringing a verifier back up without
// replaying its whole history.
func (t *Tever) reload(ksn *coring.Serder) error {
	if missing := coring.MissingLabel(ksn.Ked, coring.TsnLabels); missing != "" {
		return kering.New(kering.CodeValidation, "missing element %s from %s event", missing, coring.IlkKSN)
	}
	t.Pre = ksn.StringField("ii")
	t.Regk = ksn.StringField("i")
	sn, err := coring.ParseSN(ksn.StringField("s"))
	if err != nil {
		return kering.Wrap(kering.CodeValidation, err, "parse ksn sn")
	}
	t.Sn = sn
	t.Ilk = coring.Ilk(ksn.StringField("et"))
	toad, err := coring.ParseSN(ksn.StringField("bt"))
	if err != nil {
		return kering.Wrap(kering.CodeValidation, err, "parse ksn toad")
	}
	t.Toad = int(toad)
	t.Baks = ksn.ListField("b")
	t.Cuts = ksn.ListField("br")
	t.Adds = ksn.ListField("ba")
	t.NoBackers = hasTrait(ksn.ListField("c"), coring.TraitNoBackers)

	raw, found, err := t.reger.GetEvt(t.Regk, t.Sn)
	if err != nil {
		return err
	}
	if !found {
		return kering.New(kering.CodeMissingEntry, "corresponding event for state d=%s not found", ksn.StringField("d"))
	}
	serder, err := coring.NewSerder(raw, coring.KindJSON)
	if err != nil {
		return err
	}
	t.Serder = serder
	return nil
}

// State builds the current key-state notice for this registry.
func (t *Tever) State() (*coring.Serder, error) {
	seqner, diger, found, err := t.reger.GetAnchor(t.Regk, t.Sn)
	if err != nil {
		return nil, err
	}
	a := map[string]any{}
	if found {
		a = map[string]any{"s": coring.FormatSN(seqner.Sn), "d": diger.Qb64()}
	}
	return eventing.State(t.Pre, t.Serder.Dig(), t.Sn, t.Regk, t.Ilk, t.Cuts, t.Adds, a, eventing.StateOpts{
		Toad:      &t.Toad,
		Wits:      t.Baks,
		NoBackers: t.NoBackers,
	})
}

func (t *Tever) pinState() error {
	state, err := t.State()
	if err != nil {
		return err
	}
	return t.reger.PutState(t.Regk, state.Raw)
}

// incept parses and validates a vcp event, populating Tever's initial
// attributes.
func (t *Tever) incept(serder *coring.Serder) error {
	ked := serder.Ked
	t.Pre = serder.StringField("ii")

	if !coring.VerifyPrefix(ked, serder.Kind) {
		return kering.New(kering.CodeValidation, "invalid prefix %s for registry inception evt", serder.Pre())
	}

	sn, err := serder.Sn()
	if err != nil {
		return kering.Wrap(kering.CodeValidation, err, "parse vcp sn")
	}
	if sn != 0 {
		return kering.New(kering.CodeValidation, "invalid sn %d for inceptive evt", sn)
	}
	t.Sn = 0

	t.Cuts = nil
	t.Adds = nil
	baks := serder.ListField("b")
	if hasDuplicates(baks) {
		return kering.New(kering.CodeValidation, "invalid baks %v, has duplicates for evt", baks)
	}
	t.Baks = baks

	toad, err := coring.ParseSN(serder.StringField("bt"))
	if err != nil {
		return kering.Wrap(kering.CodeValidation, err, "parse vcp toad")
	}
	if err := validateToad(int(toad), baks); err != nil {
		return err
	}
	t.Toad = int(toad)
	t.Serder = serder
	t.Regk = serder.Pre()
	return nil
}

// config applies the vcp event's configuration traits, honoring an
// explicit noBackers override.
func (t *Tever) config(serder *coring.Serder, noBackers bool) {
	t.NoBackers = noBackers
	if hasTrait(serder.ListField("c"), coring.TraitNoBackers) {
		t.NoBackers = true
	}
}

// Update processes a non-inception registry or credential event against
// the current Tever state: vrt for the registry itself, iss/bis/rev/brv
// for its credentials.
func (t *Tever) Update(serder *coring.Serder, anchor *Anchor, bigers []coring.Siger) error {
	ked := serder.Ked
	ilk := serder.Ilk()

	inceptive := ilk == coring.IlkISS || ilk == coring.IlkBIS
	sn, err := serder.Sn()
	if err != nil {
		return kering.Wrap(kering.CodeValidation, err, "parse sn")
	}
	if inceptive && sn != 0 {
		return kering.New(kering.CodeValidation, "invalid sn %d for inceptive evt", sn)
	}
	if !inceptive && ilk == coring.IlkVRT && sn == 0 {
		return kering.New(kering.CodeValidation, "invalid sn 0 for non-inceptive evt")
	}

	switch ilk {
	case coring.IlkVRT:
		if t.NoBackers {
			return kering.New(kering.CodeValidation, "invalid rotation evt against backerless registry %s", t.Regk)
		}
		toad, baks, cuts, adds, err := t.rotate(serder, sn)
		if err != nil {
			return err
		}
		valid, err := t.valAnchorBigs(serder, anchor, bigers, toad, baks)
		if err != nil {
			return err
		}
		t.Sn = sn
		t.Serder = serder
		t.Ilk = ilk
		t.Toad = toad
		t.Baks = baks
		t.Cuts = cuts
		t.Adds = adds

		if err := t.logEvent(t.Regk, sn, serder, anchor, valid, t.Baks); err != nil {
			return err
		}
		return t.pinState()

	case coring.IlkISS, coring.IlkBIS:
		return t.issue(serder, anchor, sn, bigers)

	case coring.IlkREV, coring.IlkBRV:
		return t.revoke(serder, anchor, sn, bigers)

	default:
		return kering.New(kering.CodeValidation, "unsupported ilk %s for evt", ked["t"])
	}
}

// rotate validates a vrt event against the current backer set and
// returns the recomputed toad/baks/cuts/adds.
func (t *Tever) rotate(serder *coring.Serder, sn uint64) (int, []string, []string, []string, error) {
	dig := serder.StringField("p")

	if serder.Pre() != t.Regk {
		return 0, nil, nil, nil, kering.New(kering.CodeValidation,
			"mismatch event aid prefix %s expecting %s for evt", serder.Pre(), t.Regk)
	}
	if sn != t.Sn+1 {
		return 0, nil, nil, nil, kering.New(kering.CodeOutOfOrder,
			"invalid sn %d expecting %d for evt", sn, t.Sn+1)
	}
	if !t.Serder.Compare(dig) {
		return 0, nil, nil, nil, kering.New(kering.CodeValidation,
			"mismatch event dig %s with state dig %s for evt", dig, t.Serder.Dig())
	}

	witset := toSet(t.Baks)
	cuts := serder.ListField("br")
	cutset := toSet(cuts)
	if hasDuplicates(cuts) {
		return 0, nil, nil, nil, kering.New(kering.CodeValidation, "invalid cuts %v, has duplicates for evt", cuts)
	}
	for c := range cutset {
		if _, ok := witset[c]; !ok {
			return 0, nil, nil, nil, kering.New(kering.CodeValidation, "invalid cuts %v, not all members in baks for evt", cuts)
		}
	}

	adds := serder.ListField("ba")
	addset := toSet(adds)
	if hasDuplicates(adds) {
		return 0, nil, nil, nil, kering.New(kering.CodeValidation, "invalid adds %v, has duplicates for evt", adds)
	}
	for a := range addset {
		if _, ok := cutset[a]; ok {
			return 0, nil, nil, nil, kering.New(kering.CodeValidation, "intersecting cuts %v and adds %v for evt", cuts, adds)
		}
	}
	for a := range addset {
		if _, ok := witset[a]; ok {
			return 0, nil, nil, nil, kering.New(kering.CodeValidation, "intersecting baks %v and adds %v for evt", t.Baks, adds)
		}
	}

	baks := make([]string, 0, len(t.Baks)-len(cuts)+len(adds))
	for _, b := range t.Baks {
		if _, cut := cutset[b]; !cut {
			baks = append(baks, b)
		}
	}
	baks = append(baks, adds...)

	if len(baks) != len(t.Baks)-len(cuts)+len(adds) {
		return 0, nil, nil, nil, kering.New(kering.CodeValidation,
			"invalid member combination among baks %v, cuts %v, adds %v for evt", t.Baks, cuts, adds)
	}

	toad, err := coring.ParseSN(serder.StringField("bt"))
	if err != nil {
		return 0, nil, nil, nil, kering.Wrap(kering.CodeValidation, err, "parse vrt toad")
	}
	if err := validateToad(int(toad), baks); err != nil {
		return 0, nil, nil, nil, err
	}

	return int(toad), baks, cuts, adds, nil
}

// issue validates a VC TEL issuance event, simple (iss) or
// backer-anchored (bis).
func (t *Tever) issue(serder *coring.Serder, anchor *Anchor, sn uint64, bigers []coring.Siger) error {
	ked := serder.Ked
	vcpre := serder.Pre()
	ilk := serder.Ilk()
	vci := vciKey(t.Regk, vcpre)

	labels := coring.IssLabels
	if ilk == coring.IlkBIS {
		labels = coring.BisLabels
	}
	if missing := coring.MissingLabel(ked, labels); missing != "" {
		return kering.New(kering.CodeValidation, "missing element %s from %s event", missing, ilk)
	}

	switch ilk {
	case coring.IlkISS:
		if !t.NoBackers {
			return kering.New(kering.CodeValidation, "invalid simple issue evt against backer based registry %s", t.Regk)
		}
		if serder.StringField("ri") != t.Regk {
			return kering.New(kering.CodeValidation, "mismatch event ri prefix %s expecting %s for evt", serder.StringField("ri"), t.Regk)
		}
		if !t.verifyAnchor(serder, anchor) {
			if t.escrowALEvent(serder, anchor, nil, nil) {
				t.cueAnchor(anchor)
			}
			return kering.New(kering.CodeMissingAnchor, "failure to verify event %v", ked)
		}
		return t.logEvent(vci, sn, serder, anchor, nil, nil)

	case coring.IlkBIS:
		if t.NoBackers {
			return kering.New(kering.CodeValidation, "invalid backer issue evt against backerless registry %s", t.Regk)
		}
		rtoad, baks, err := t.getBackerState(ked)
		if err != nil {
			if kering.CodeOf(err) == kering.CodeMissingAnchor {
				t.escrowBSEvent(serder, anchor, bigers)
			}
			return err
		}
		valid, err := t.valAnchorBigs(serder, anchor, bigers, rtoad, baks)
		if err != nil {
			return err
		}
		return t.logEvent(vci, sn, serder, anchor, valid, nil)

	default:
		return kering.New(kering.CodeValidation, "unsupported ilk %s for evt", ked["t"])
	}
}

// revoke validates a VC TEL revocation event, simple (rev) or
// backer-anchored (brv), checking chain continuity against the
// credential's recorded issuance.
func (t *Tever) revoke(serder *coring.Serder, anchor *Anchor, sn uint64, bigers []coring.Siger) error {
	ked := serder.Ked
	vcpre := serder.Pre()
	ilk := serder.Ilk()

	labels := coring.RevLabels
	if ilk == coring.IlkBRV {
		labels = coring.BrvLabels
	}
	if missing := coring.MissingLabel(ked, labels); missing != "" {
		return kering.New(kering.CodeValidation, "missing element %s from %s event", missing, ilk)
	}
	if sn != 1 {
		return kering.New(kering.CodeValidation, "invalid sn %d for revocation evt", sn)
	}

	vci := vciKey(t.Regk, vcpre)

	_, iraw, found, err := t.reger.LastEvt(vci)
	if err != nil {
		return err
	}
	if !found {
		return kering.New(kering.CodeValidation, "revoke without issue, probably have to escrow")
	}
	iserder, err := coring.NewSerder(iraw, serder.Kind)
	if err != nil {
		return err
	}
	if !iserder.Compare(serder.StringField("p")) {
		return kering.New(kering.CodeValidation, "mismatch event dig %s with state dig %s for evt",
			serder.StringField("p"), t.Serder.Dig())
	}

	switch ilk {
	case coring.IlkREV:
		if !t.NoBackers {
			return kering.New(kering.CodeValidation, "invalid simple revoke evt against backer based registry %s", t.Regk)
		}
		if !t.verifyAnchor(serder, anchor) {
			if t.escrowALEvent(serder, anchor, nil, nil) {
				t.cueAnchor(anchor)
			}
			return kering.New(kering.CodeMissingAnchor, "failure to verify event %v", ked)
		}
		return t.logEvent(vci, sn, serder, anchor, nil, nil)

	case coring.IlkBRV:
		if t.NoBackers {
			return kering.New(kering.CodeValidation, "invalid backer revoke evt against backerless registry %s", t.Regk)
		}
		rtoad, baks, err := t.getBackerState(ked)
		if err != nil {
			if kering.CodeOf(err) == kering.CodeMissingAnchor {
				t.escrowBSEvent(serder, anchor, bigers)
			}
			return err
		}
		valid, err := t.valAnchorBigs(serder, anchor, bigers, rtoad, baks)
		if err != nil {
			return err
		}
		return t.logEvent(vci, sn, serder, anchor, valid, nil)

	default:
		return kering.New(kering.CodeValidation, "unsupported ilk %s for evt", ked["t"])
	}
}

// VCState computes the current issued/revoked state of a credential
// hosted in this registry, or returns found=false if it was never
// issued here.
func (t *Tever) VCState(vcpre string) (*coring.Serder, bool, error) {
	vci := vciKey(t.Regk, vcpre)
	sn, raw, found, err := t.reger.LastEvt(vci)
	if err != nil || !found {
		return nil, false, err
	}
	serder, err := coring.NewSerder(raw, coring.KindJSON)
	if err != nil {
		return nil, false, err
	}

	var vcilk coring.Ilk
	if t.NoBackers {
		if sn == 0 {
			vcilk = coring.IlkISS
		} else {
			vcilk = coring.IlkREV
		}
	} else {
		if sn == 0 {
			vcilk = coring.IlkBIS
		} else {
			vcilk = coring.IlkBRV
		}
	}

	seqner, diger, found, err := t.reger.GetAnchor(vci, sn)
	if err != nil {
		return nil, false, err
	}
	a := map[string]any{}
	if found {
		a = map[string]any{"s": coring.FormatSN(seqner.Sn), "d": diger.Qb64()}
	}

	state, err := eventing.VCState(vcpre, serder.Dig(), sn, t.Regk, vcilk, a, "", coring.KindJSON)
	if err != nil {
		return nil, false, err
	}
	return state, true, nil
}

// VCSn returns the current TEL sequence number of a credential, or
// found=false if it was never issued here.
func (t *Tever) VCSn(vcpre string) (uint64, bool, error) {
	vci := vciKey(t.Regk, vcpre)
	sn, _, found, err := t.reger.LastEvt(vci)
	return sn, found, err
}

// logEvent persists a verified event: its anchor couple, backer
// signatures, backer set, first-seen time, and the event body itself,
// idempotently.
func (t *Tever) logEvent(pre string, sn uint64, serder *coring.Serder, anchor *Anchor, bigers []coring.Siger, baks []string) error {
	if anchor != nil {
		if err := t.reger.PutAnchor(pre, sn, anchor.Seqner, anchor.Diger); err != nil {
			return err
		}
	}
	if len(bigers) > 0 {
		if err := t.reger.PutBackerSigs(pre, sn, bigers); err != nil {
			return err
		}
	}
	if len(baks) > 0 {
		if err := t.reger.PutBackers(pre, sn, baks); err != nil {
			return err
		}
	}
	if err := t.reger.PutFirstSeen(pre, sn, help.NowIso8601()); err != nil {
		return err
	}
	if err := t.reger.PutEvt(pre, sn, serder.Raw); err != nil {
		return err
	}
	t.log.Info("added to tel",
		zap.String("pre", pre), zap.Uint64("sn", sn), zap.String("ilk", string(serder.Ilk())))
	return nil
}

// valAnchorBigs verifies backer signatures and anchoring for an event,
// escrowing it (and returning an error) if either precondition fails,
// otherwise returning the deduplicated set of valid signatures.
func (t *Tever) valAnchorBigs(serder *coring.Serder, anchor *Anchor, bigers []coring.Siger, toad int, baks []string) ([]coring.Siger, error) {
	verfers := make([]coring.Verfer, 0, len(baks))
	for _, b := range baks {
		vf, err := coring.NewVerfer(b)
		if err != nil {
			return nil, kering.Wrap(kering.CodeValidation, err, "parse backer verfer %s", b)
		}
		verfers = append(verfers, vf)
	}
	valid, indices := coring.VerifySigs(serder.Raw, bigers, verfers)

	if !t.verifyAnchor(serder, anchor) {
		if t.escrowALEvent(serder, anchor, valid, baks) {
			t.cueAnchor(anchor)
		}
		return nil, kering.New(kering.CodeMissingAnchor, "failure to verify event %v", serder.Ked)
	}

	if (len(baks) > 0 && t.localRegk == "") ||
		(len(baks) > 0 && !t.local && t.localRegk != "" && !contains(baks, t.localRegk)) {
		if toad < 0 || len(baks) < toad {
			return nil, kering.New(kering.CodeValidation, "invalid toad %d for wits %v for evt", toad, baks)
		}
		if len(indices) < toad {
			t.escrowPWEvent(serder, anchor, valid)
			return nil, kering.New(kering.CodeMissingWitnessSignature,
				"failure satisfying toad %d on witness sigs for evt", toad)
		}
	}

	return valid, nil
}

// verifyAnchor retrieves the controlling KEL event named by anchor and
// checks that it embeds a seal matching serder's identity.
func (t *Tever) verifyAnchor(serder *coring.Serder, anchor *Anchor) bool {
	if anchor == nil {
		return false
	}
	raw, found, err := t.baser.KelEvt(t.Pre, anchor.Seqner.Sn)
	if err != nil || !found {
		return false
	}
	eserder, err := coring.NewSerder(raw, serder.Kind)
	if err != nil {
		return false
	}
	if eserder.Dig() != anchor.Diger.Qb64() {
		return false
	}

	rawSeals, _ := eserder.Ked["a"].([]any)
	if len(rawSeals) != 1 {
		return false
	}
	seal, _ := rawSeals[0].(map[string]any)
	if seal == nil {
		return false
	}
	spre, _ := seal["i"].(string)
	ssn, _ := seal["s"].(string)
	sdig, _ := seal["d"].(string)

	return spre == serder.Pre() && ssn == serder.StringField("s") && serder.Dig() == sdig
}

// escrowPWEvent parks a partially-witnessed event in the twe queue.
func (t *Tever) escrowPWEvent(serder *coring.Serder, anchor *Anchor, bigers []coring.Siger) {
	sn, _ := serder.Sn()
	if anchor != nil {
		_ = t.reger.PutAnchor(serder.Pre(), sn, anchor.Seqner, anchor.Diger)
	}
	if len(bigers) > 0 {
		_ = t.reger.PutBackerSigs(serder.Pre(), sn, bigers)
	}
	_ = t.reger.PutEvt(serder.Pre(), sn, serder.Raw)
	_ = t.reger.Escrow(db.EscrowUnderWitnessed, db.EscrowEntry{Pre: serder.Pre(), Sn: sn, Dig: serder.Dig(), Raw: serder.Raw})
	t.log.Info("escrowed partially witnessed event", zap.String("pre", serder.Pre()), zap.Uint64("sn", sn))
}

// escrowALEvent parks an anchorless event in the tae queue. Returns
// false if the event was already escrowed (idempotent) or the escrow
// write fails.
func (t *Tever) escrowALEvent(serder *coring.Serder, anchor *Anchor, bigers []coring.Siger, baks []string) bool {
	sn, _ := serder.Sn()
	if anchor != nil {
		_ = t.reger.PutAnchor(serder.Pre(), sn, anchor.Seqner, anchor.Diger)
	}
	if len(bigers) > 0 {
		_ = t.reger.PutBackerSigs(serder.Pre(), sn, bigers)
	}
	if len(baks) > 0 {
		_ = t.reger.PutBackers(serder.Pre(), sn, baks)
	}
	_ = t.reger.PutEvt(serder.Pre(), sn, serder.Raw)
	t.log.Info("escrowed anchorless event", zap.String("pre", serder.Pre()), zap.Uint64("sn", sn))
	parked, err := t.reger.EscrowIter(db.EscrowAnchorless)
	if err != nil {
		return false
	}
	already := false
	for _, e := range parked {
		if e.Pre == serder.Pre() && e.Sn == sn {
			already = true
			break
		}
	}
	if err := t.reger.Escrow(db.EscrowAnchorless, db.EscrowEntry{Pre: serder.Pre(), Sn: sn, Dig: serder.Dig(), Raw: serder.Raw}); err != nil {
		return false
	}
	return !already
}

// escrowBSEvent parks a backer-anchored credential event in the brs
// queue when the management event its "ra" seal points at hasn't been
// logged yet — the gap the original implementation left as a bare
// "have to escrow this somewhere" failure.
func (t *Tever) escrowBSEvent(serder *coring.Serder, anchor *Anchor, bigers []coring.Siger) {
	sn, _ := serder.Sn()
	if anchor != nil {
		_ = t.reger.PutAnchor(serder.Pre(), sn, anchor.Seqner, anchor.Diger)
	}
	if len(bigers) > 0 {
		_ = t.reger.PutBackerSigs(serder.Pre(), sn, bigers)
	}
	_ = t.reger.PutEvt(serder.Pre(), sn, serder.Raw)
	_ = t.reger.Escrow(db.EscrowBackerState, db.EscrowEntry{Pre: serder.Pre(), Sn: sn, Dig: serder.Dig(), Raw: serder.Raw})
	t.log.Info("escrowed backer-state-missing event", zap.String("pre", serder.Pre()), zap.Uint64("sn", sn))
}

// cueAnchor queues a query notice for the missing anchoring KEL event.
func (t *Tever) cueAnchor(anchor *Anchor) {
	sn := uint64(0)
	if anchor != nil {
		sn = anchor.Seqner.Sn
	}
	t.cue("query", t.Pre, sn)
}

// getBackerState resolves the backer set and toad that held at the
// management event named by a bis/brv event's "ra" seal. If
// that management event hasn't been logged yet, it returns
// kering.ErrMissingAnchor so the caller escrows into the brs queue
// instead of failing outright.
func (t *Tever) getBackerState(ked map[string]any) (int, []string, error) {
	rega, _ := ked["ra"].(map[string]any)
	regi, _ := rega["i"].(string)
	regsStr, _ := rega["s"].(string)
	regd, _ := rega["d"].(string)

	if regi != t.Regk {
		return 0, nil, kering.New(kering.CodeValidation, "mismatch event regk prefix %s expecting %s for evt", regi, t.Regk)
	}
	regsn, err := coring.ParseSN(regsStr)
	if err != nil {
		return 0, nil, kering.Wrap(kering.CodeValidation, err, "parse ra seal sn")
	}

	raw, found, err := t.reger.GetEvt(regi, regsn)
	if err != nil {
		return 0, nil, err
	}
	if !found {
		return 0, nil, kering.New(kering.CodeMissingAnchor,
			"backer state for management evt %s/%d not yet available", regi, regsn)
	}
	rserder, err := coring.NewSerder(raw, coring.KindJSON)
	if err != nil {
		return 0, nil, err
	}
	if rserder.Dig() != regd {
		return 0, nil, kering.New(kering.CodeValidation, "mismatch ra seal dig %s with logged evt dig %s", regd, rserder.Dig())
	}
	rtoad, err := coring.ParseSN(rserder.StringField("bt"))
	if err != nil {
		return 0, nil, kering.Wrap(kering.CodeValidation, err, "parse management evt toad")
	}

	baks, found, err := t.reger.GetBackers(regi, regsn)
	if err != nil {
		return 0, nil, err
	}
	if !found {
		baks = nil
	}

	return int(rtoad), baks, nil
}

func hasTrait(cnfg []string, trait string) bool {
	for _, c := range cnfg {
		if c == trait {
			return true
		}
	}
	return false
}

func hasDuplicates(list []string) bool {
	seen := make(map[string]struct{}, len(list))
	for _, v := range list {
		if _, ok := seen[v]; ok {
			return true
		}
		seen[v] = struct{}{}
	}
	return false
}

func toSet(list []string) map[string]struct{} {
	s := make(map[string]struct{}, len(list))
	for _, v := range list {
		s[v] = struct{}{}
	}
	return s
}

func contains(list []string, v string) bool {
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}

func validateToad(toad int, baks []string) error {
	if len(baks) > 0 {
		if toad < 1 || toad > len(baks) {
			return kering.New(kering.CodeValidation, "invalid toad %d for baks %v for evt", toad, baks)
		}
		return nil
	}
	if toad != 0 {
		return kering.New(kering.CodeValidation, "invalid toad %d for baks %v for evt", toad, baks)
	}
	return nil
}
