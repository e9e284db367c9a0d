package eventing

import (
	"testing"

	"github.com/karasz/televerifier/coring"
)

func TestAmple(t *testing.T) {
	cases := []struct {
		n    int
		want int
	}{
		{0, 0},
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 3},
		{5, 3},
		{6, 4},
	}
	for _, c := range cases {
		if got := Ample(c.n); got != c.want {
			t.Errorf("Ample(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}

func TestInceptDefaultsToadViaAmple(t *testing.T) {
	s, err := Incept("EIssuerPre", InceptOpts{Baks: []string{"Bwit1", "Bwit2", "Bwit3"}})
	if err != nil {
		t.Fatalf("Incept failed: %v", err)
	}
	if s.StringField("bt") != "2" {
		t.Errorf("bt = %q, want %q (Ample(3))", s.StringField("bt"), "2")
	}
	if s.Pre() == "" {
		t.Errorf("Incept should derive a self-addressing registry prefix")
	}
}

func TestInceptRejectsDuplicateBaks(t *testing.T) {
	_, err := Incept("EIssuerPre", InceptOpts{Baks: []string{"Bwit1", "Bwit1"}})
	if err == nil {
		t.Fatalf("expected error for duplicate backers")
	}
}

func TestInceptNoBackersRejectsBaks(t *testing.T) {
	_, err := Incept("EIssuerPre", InceptOpts{NoBackers: true, Baks: []string{"Bwit1"}})
	if err == nil {
		t.Fatalf("expected error when NB trait set with backers present")
	}
}

func TestInceptRejectsBadToad(t *testing.T) {
	toad := 5
	_, err := Incept("EIssuerPre", InceptOpts{Baks: []string{"Bwit1"}, Toad: &toad})
	if err == nil {
		t.Fatalf("expected error for toad exceeding backer count")
	}
}

func TestRotateAppliesCutsAndAdds(t *testing.T) {
	s, err := Rotate("ERegk", "Eprior", 1, RotateOpts{
		Baks: []string{"B1", "B2", "B3"},
		Cuts: []string{"B2"},
		Adds: []string{"B4"},
	})
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if s.StringField("s") != "1" {
		t.Errorf("s = %q, want %q", s.StringField("s"), "1")
	}
	cuts := s.ListField("br")
	if len(cuts) != 1 || cuts[0] != "B2" {
		t.Errorf("br = %v, want [B2]", cuts)
	}
}

func TestRotateRejectsSnZero(t *testing.T) {
	_, err := Rotate("ERegk", "Eprior", 0, RotateOpts{})
	if err == nil {
		t.Fatalf("expected error for sn 0 in a rotation event")
	}
}

func TestRotateRejectsCutNotInBaks(t *testing.T) {
	_, err := Rotate("ERegk", "Eprior", 1, RotateOpts{
		Baks: []string{"B1"},
		Cuts: []string{"B2"},
	})
	if err == nil {
		t.Fatalf("expected error for cutting a backer not in baks")
	}
}

func TestRotateRejectsIntersectingCutsAndAdds(t *testing.T) {
	_, err := Rotate("ERegk", "Eprior", 1, RotateOpts{
		Baks: []string{"B1"},
		Cuts: []string{"B1"},
		Adds: []string{"B1"},
	})
	if err == nil {
		t.Fatalf("expected error for overlapping cuts and adds")
	}
}

func TestQueryIndependentDtaDtb(t *testing.T) {
	s, err := Query("ERegk", "EVcpre", QueryOpts{Dta: "2021-01-01T00:00:00Z", Dtb: "2021-02-02T00:00:00Z"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	q, ok := s.Ked["q"].(map[string]any)
	if !ok {
		t.Fatalf("q field missing or wrong type")
	}
	if q["dta"] != "2021-01-01T00:00:00Z" {
		t.Errorf("dta = %v, want distinct value from dtb", q["dta"])
	}
	if q["dtb"] != "2021-02-02T00:00:00Z" {
		t.Errorf("dtb = %v, want distinct value from dta", q["dtb"])
	}
}

func TestIssueRevokeChain(t *testing.T) {
	iss, err := Issue("EVcDig", "ERegk", "2021-01-01T00:00:00Z", coring.KindJSON)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	rev, err := Revoke("EVcDig", "ERegk", iss.Dig(), "2021-01-02T00:00:00Z", coring.KindJSON)
	if err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if rev.StringField("p") != iss.Dig() {
		t.Errorf("rev.p = %q, want iss digest %q", rev.StringField("p"), iss.Dig())
	}
	if rev.StringField("s") != "1" {
		t.Errorf("rev.s = %q, want %q", rev.StringField("s"), "1")
	}
}
