package vdr

import (
	"crypto/ed25519"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/karasz/televerifier/coring"
	"github.com/karasz/televerifier/db"
	"github.com/karasz/televerifier/eventing"
	"github.com/karasz/televerifier/kering"
)

func newStores(t *testing.T) (*db.SQLiteReger, *db.SQLiteBaser) {
	t.Helper()
	dir, err := os.MkdirTemp("", "vdr-test")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	reger, err := db.OpenSQLiteReger(filepath.Join(dir, "reger.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteReger: %v", err)
	}
	t.Cleanup(func() { _ = reger.Close() })

	baser, err := db.OpenSQLiteBaser(filepath.Join(dir, "baser.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteBaser: %v", err)
	}
	t.Cleanup(func() { _ = baser.Close() })

	return reger, baser
}

// seedAnchor plants a fake KEL event at pre/sn that embeds a seal pointing
// at target, and returns the Anchor a caller would present alongside target.
func seedAnchor(t *testing.T, baser *db.SQLiteBaser, pre string, sn uint64, target *coring.Serder) *Anchor {
	t.Helper()
	kelKed := map[string]any{
		"v": "KERI10JSON00000_",
		"i": pre,
		"s": coring.FormatSN(sn),
		"t": "rot",
		"a": []any{map[string]any{
			"i": target.Pre(),
			"s": target.StringField("s"),
			"d": target.Dig(),
		}},
	}
	kelSerder, err := coring.NewSerderFromKed(kelKed, coring.KindJSON)
	if err != nil {
		t.Fatalf("build fake KEL event: %v", err)
	}
	if err := baser.PutEvt(pre, sn, kelSerder.Raw); err != nil {
		t.Fatalf("seed KEL event: %v", err)
	}
	return &Anchor{Seqner: coring.Seqner{Sn: sn}, Diger: kelSerder.Diger()}
}

func genBacker(t *testing.T) (string, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	qb64 := "D" + base64.RawURLEncoding.EncodeToString(pub)
	return qb64, priv
}

func TestNewTever_NoBackersIncept(t *testing.T) {
	reger, baser := newStores(t)
	issuerPre := "EIssuerPre"

	vcp, err := eventing.Incept(issuerPre, eventing.InceptOpts{NoBackers: true})
	if err != nil {
		t.Fatalf("Incept: %v", err)
	}
	anchor := seedAnchor(t, baser, issuerPre, 4, vcp)

	tever, err := NewTever(vcp, nil, anchor, nil, reger, baser, false, "", false, nil)
	if err != nil {
		t.Fatalf("NewTever: %v", err)
	}
	if tever.Regk != vcp.Pre() {
		t.Errorf("Regk = %q, want %q", tever.Regk, vcp.Pre())
	}
	if !tever.NoBackers {
		t.Errorf("NoBackers should be true for an NB vcp")
	}
	if tever.Sn != 0 {
		t.Errorf("Sn = %d, want 0", tever.Sn)
	}

	raw, found, err := reger.GetEvt(tever.Regk, 0)
	if err != nil || !found {
		t.Fatalf("GetEvt(regk, 0): found=%v err=%v", found, err)
	}
	if string(raw) != string(vcp.Raw) {
		t.Errorf("logged event bytes do not match the inception event")
	}
}

func TestNewTever_RejectsMissingAnchor(t *testing.T) {
	reger, baser := newStores(t)
	vcp, err := eventing.Incept("EIssuerPre", eventing.InceptOpts{NoBackers: true})
	if err != nil {
		t.Fatalf("Incept: %v", err)
	}

	_, err = NewTever(vcp, nil, nil, nil, reger, baser, false, "", false, nil)
	if err == nil {
		t.Fatalf("expected error for a vcp with no anchor")
	}
	if kering.CodeOf(err) != kering.CodeMissingAnchor {
		t.Errorf("CodeOf(err) = %v, want CodeMissingAnchor", kering.CodeOf(err))
	}

	entries, err := reger.EscrowIter(db.EscrowAnchorless)
	if err != nil {
		t.Fatalf("EscrowIter: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected the anchorless vcp to be escrowed, got %d entries", len(entries))
	}
}

func TestNewTever_BackedIncept_RequiresToadSigs(t *testing.T) {
	reger, baser := newStores(t)
	issuerPre := "EIssuerPre"
	bak1, priv1 := genBacker(t)
	bak2, _ := genBacker(t)

	vcp, err := eventing.Incept(issuerPre, eventing.InceptOpts{Baks: []string{bak1, bak2}})
	if err != nil {
		t.Fatalf("Incept: %v", err)
	}
	anchor := seedAnchor(t, baser, issuerPre, 0, vcp)

	// Ample(2) == 2, so a single signature should not satisfy toad.
	sig0 := ed25519.Sign(priv1, vcp.Raw)
	_, err = NewTever(vcp, nil, anchor, []coring.Siger{{Index: 0, Sig: sig0}}, reger, baser, false, "", false, nil)
	if err == nil {
		t.Fatalf("expected error: one signature should not satisfy toad 2")
	}
	if kering.CodeOf(err) != kering.CodeMissingWitnessSignature {
		t.Errorf("CodeOf(err) = %v, want CodeMissingWitnessSignature", kering.CodeOf(err))
	}

	entries, err := reger.EscrowIter(db.EscrowUnderWitnessed)
	if err != nil {
		t.Fatalf("EscrowIter: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected the under-witnessed vcp to be escrowed, got %d", len(entries))
	}
}

func TestTevery_ProcessEvent_MintsOnVCP(t *testing.T) {
	reger, baser := newStores(t)
	tv := NewTevery(reger, baser, "", false, nil)
	issuerPre := "EIssuerPre"

	vcp, err := eventing.Incept(issuerPre, eventing.InceptOpts{NoBackers: true})
	if err != nil {
		t.Fatalf("Incept: %v", err)
	}
	anchor := seedAnchor(t, baser, issuerPre, 0, vcp)

	if err := tv.ProcessEvent(vcp, anchor, nil); err != nil {
		t.Fatalf("ProcessEvent(vcp): %v", err)
	}
	if _, ok := tv.Tever(vcp.Pre()); !ok {
		t.Fatalf("expected a Tever to be minted for the new registry")
	}
}

func TestTevery_ProcessEvent_DuplicateVCPIsDuplicitous(t *testing.T) {
	reger, baser := newStores(t)
	tv := NewTevery(reger, baser, "", false, nil)
	issuerPre := "EIssuerPre"

	vcp, err := eventing.Incept(issuerPre, eventing.InceptOpts{NoBackers: true})
	if err != nil {
		t.Fatalf("Incept: %v", err)
	}
	anchor := seedAnchor(t, baser, issuerPre, 0, vcp)
	if err := tv.ProcessEvent(vcp, anchor, nil); err != nil {
		t.Fatalf("ProcessEvent(vcp): %v", err)
	}

	err = tv.ProcessEvent(vcp, anchor, nil)
	if err == nil {
		t.Fatalf("expected error for a repeated vcp against a known registry")
	}
	if kering.CodeOf(err) != kering.CodeLikelyDuplicitous {
		t.Errorf("CodeOf(err) = %v, want CodeLikelyDuplicitous", kering.CodeOf(err))
	}
}

func TestTevery_ProcessEvent_UnknownRegistryEscrowsOutOfOrder(t *testing.T) {
	reger, baser := newStores(t)
	tv := NewTevery(reger, baser, "", false, nil)

	iss, err := eventing.Issue("EVcDig", "EUnknownRegk", "2021-01-01T00:00:00Z", coring.KindJSON)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	err = tv.ProcessEvent(iss, nil, nil)
	if err == nil {
		t.Fatalf("expected out-of-order error for an issuance against an unknown registry")
	}
	if kering.CodeOf(err) != kering.CodeOutOfOrder {
		t.Errorf("CodeOf(err) = %v, want CodeOutOfOrder", kering.CodeOf(err))
	}

	entries, err := reger.EscrowIter(db.EscrowOutOfOrder)
	if err != nil {
		t.Fatalf("EscrowIter: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected the orphaned issuance to be escrowed, got %d", len(entries))
	}
}

func TestTever_SimpleIssueAndRevoke(t *testing.T) {
	reger, baser := newStores(t)
	tv := NewTevery(reger, baser, "", false, nil)
	issuerPre := "EIssuerPre"

	vcp, err := eventing.Incept(issuerPre, eventing.InceptOpts{NoBackers: true})
	if err != nil {
		t.Fatalf("Incept: %v", err)
	}
	vcpAnchor := seedAnchor(t, baser, issuerPre, 0, vcp)
	if err := tv.ProcessEvent(vcp, vcpAnchor, nil); err != nil {
		t.Fatalf("ProcessEvent(vcp): %v", err)
	}

	vcdig := "EVcDig"
	iss, err := eventing.Issue(vcdig, vcp.Pre(), "2021-01-01T00:00:00Z", coring.KindJSON)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	issAnchor := seedAnchor(t, baser, issuerPre, 1, iss)
	if err := tv.ProcessEvent(iss, issAnchor, nil); err != nil {
		t.Fatalf("ProcessEvent(iss): %v", err)
	}

	tever, ok := tv.Tever(vcp.Pre())
	if !ok {
		t.Fatalf("expected registry Tever to exist")
	}
	sn, found, err := tever.VCSn(vcdig)
	if err != nil || !found {
		t.Fatalf("VCSn: found=%v err=%v", found, err)
	}
	if sn != 0 {
		t.Errorf("VCSn after issue = %d, want 0", sn)
	}

	rev, err := eventing.Revoke(vcdig, vcp.Pre(), iss.Dig(), "2021-01-02T00:00:00Z", coring.KindJSON)
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	revAnchor := seedAnchor(t, baser, issuerPre, 2, rev)
	if err := tv.ProcessEvent(rev, revAnchor, nil); err != nil {
		t.Fatalf("ProcessEvent(rev): %v", err)
	}

	sn, found, err = tever.VCSn(vcdig)
	if err != nil || !found {
		t.Fatalf("VCSn after revoke: found=%v err=%v", found, err)
	}
	if sn != 1 {
		t.Errorf("VCSn after revoke = %d, want 1", sn)
	}

	state, found, err := tever.VCState(vcdig)
	if err != nil || !found {
		t.Fatalf("VCState: found=%v err=%v", found, err)
	}
	if state.StringField("et") != string(coring.IlkREV) {
		t.Errorf("VCState et = %q, want rev", state.StringField("et"))
	}
}

func TestTever_RevokeWithoutIssueFails(t *testing.T) {
	reger, baser := newStores(t)
	tv := NewTevery(reger, baser, "", false, nil)
	issuerPre := "EIssuerPre"

	vcp, err := eventing.Incept(issuerPre, eventing.InceptOpts{NoBackers: true})
	if err != nil {
		t.Fatalf("Incept: %v", err)
	}
	anchor := seedAnchor(t, baser, issuerPre, 0, vcp)
	if err := tv.ProcessEvent(vcp, anchor, nil); err != nil {
		t.Fatalf("ProcessEvent(vcp): %v", err)
	}

	rev, err := eventing.Revoke("ENeverIssued", vcp.Pre(), "Epriordig", "2021-01-02T00:00:00Z", coring.KindJSON)
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	revAnchor := seedAnchor(t, baser, issuerPre, 1, rev)
	err = tv.ProcessEvent(rev, revAnchor, nil)
	if err == nil {
		t.Fatalf("expected error revoking a credential that was never issued")
	}
}

func TestTevery_BackerStateEscrowAndDrain(t *testing.T) {
	reger, baser := newStores(t)
	tv := NewTevery(reger, baser, "", false, nil)
	issuerPre := "EIssuerPre"
	bak1, priv1 := genBacker(t)

	vcp, err := eventing.Incept(issuerPre, eventing.InceptOpts{Baks: []string{bak1}})
	if err != nil {
		t.Fatalf("Incept: %v", err)
	}
	vcpAnchor := seedAnchor(t, baser, issuerPre, 0, vcp)
	vcpSig := ed25519.Sign(priv1, vcp.Raw)
	if err := tv.ProcessEvent(vcp, vcpAnchor, []coring.Siger{{Index: 0, Sig: vcpSig}}); err != nil {
		t.Fatalf("ProcessEvent(vcp): %v", err)
	}

	vcdig := "EVcDig"
	// bis anchored to a management event (regsn=0) that has already logged.
	bis, err := eventing.BackerIssue(vcdig, vcp.Pre(), 0, vcp.Dig(), "2021-01-01T00:00:00Z", coring.KindJSON)
	if err != nil {
		t.Fatalf("BackerIssue: %v", err)
	}
	bisAnchor := seedAnchor(t, baser, issuerPre, 1, bis)
	bisSig := ed25519.Sign(priv1, bis.Raw)
	if err := tv.ProcessEvent(bis, bisAnchor, []coring.Siger{{Index: 0, Sig: bisSig}}); err != nil {
		t.Fatalf("ProcessEvent(bis): %v", err)
	}

	tever, ok := tv.Tever(vcp.Pre())
	if !ok {
		t.Fatalf("expected registry Tever to exist")
	}
	sn, found, err := tever.VCSn(vcdig)
	if err != nil || !found || sn != 0 {
		t.Fatalf("VCSn after bis: sn=%d found=%v err=%v", sn, found, err)
	}

	// Compute the rotation that will eventually anchor sn=1, without yet
	// submitting it, so the brv below can reference its real digest.
	vrt, err := eventing.Rotate(vcp.Pre(), vcp.Dig(), 1, eventing.RotateOpts{Baks: []string{bak1}})
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	// A brv anchored to that management event, which is NOT yet logged,
	// should park in the brs queue rather than fail outright.
	brv, err := eventing.BackerRevoke(vcdig, vcp.Pre(), 1, vrt.Dig(), bis.Dig(), "2021-01-02T00:00:00Z", coring.KindJSON)
	if err != nil {
		t.Fatalf("BackerRevoke: %v", err)
	}
	brvAnchor := seedAnchor(t, baser, issuerPre, 2, brv)
	brvSig := ed25519.Sign(priv1, brv.Raw)
	err = tv.ProcessEvent(brv, brvAnchor, []coring.Siger{{Index: 0, Sig: brvSig}})
	if err == nil {
		t.Fatalf("expected error: management event for ra seal not yet logged")
	}
	if kering.CodeOf(err) != kering.CodeMissingAnchor {
		t.Errorf("CodeOf(err) = %v, want CodeMissingAnchor", kering.CodeOf(err))
	}

	entries, err := reger.EscrowIter(db.EscrowBackerState)
	if err != nil {
		t.Fatalf("EscrowIter(brs): %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected the brv to be parked in brs, got %d entries", len(entries))
	}

	// Now submit the rotation so sn=1 is logged, then drain brs.
	vrtAnchor := seedAnchor(t, baser, issuerPre, 3, vrt)
	vrtSig := ed25519.Sign(priv1, vrt.Raw)
	if err := tv.ProcessEvent(vrt, vrtAnchor, []coring.Siger{{Index: 0, Sig: vrtSig}}); err != nil {
		t.Fatalf("ProcessEvent(vrt): %v", err)
	}

	tv.ProcessEscrows()

	entries, err = reger.EscrowIter(db.EscrowBackerState)
	if err != nil {
		t.Fatalf("EscrowIter(brs) after drain: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected brs to be drained once its management event was logged, got %d left", len(entries))
	}
}
