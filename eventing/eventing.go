// Package eventing holds the pure factories that build well-formed TEL
// event bodies: registry inception/rotation, credential issuance/
// revocation (simple and backer-anchored), and the notice/query builders.
// Each validates its structural preconditions and fails with
// kering.ErrInvalidArgument otherwise, matching spec.md §4.1.
package eventing

import (
	"fmt"
	"math"

	"github.com/karasz/televerifier/coring"
	"github.com/karasz/televerifier/help"
	"github.com/karasz/televerifier/kering"
)

// Ample computes the default backer threshold for n backers: the smallest
// integer giving majority-with-one-fault tolerance, max(1, ceil((n+1)/2)).
// For n <= 0 (no backers) it returns 0.
func Ample(n int) int {
	if n <= 0 {
		return 0
	}
	return int(math.Max(1, math.Ceil(float64(n+1)/2)))
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

func anyStrings(list []string) []any {
	out := make([]any, len(list))
	for i, v := range list {
		out[i] = v
	}
	return out
}

func validateToad(toad int, baks []string) error {
	if len(baks) > 0 {
		if toad < 1 || toad > len(baks) {
			return kering.New(kering.CodeInvalidArgument, "invalid toad %d for baks %v", toad, baks)
		}
		return nil
	}
	if toad != 0 {
		return kering.New(kering.CodeInvalidArgument, "invalid toad %d for empty baks", toad)
	}
	return nil
}

// InceptOpts configures Incept; zero value means "no backers, NB trait
// absent, default toad."
type InceptOpts struct {
	Toad     *int // nil means compute via Ample
	Baks     []string
	NoBackers bool
	Kind     coring.Kind
}

// Incept builds a vcp (registry inception) event for controlling issuer
// prefix pre.
func Incept(pre string, opts InceptOpts) (*coring.Serder, error) {
	baks := opts.Baks
	if opts.NoBackers && len(baks) > 0 {
		return nil, kering.New(kering.CodeInvalidArgument,
			"%d backers specified for NB vcp, 0 allowed", len(baks))
	}
	if hasDuplicates(baks) {
		return nil, kering.New(kering.CodeInvalidArgument, "invalid baks %v, has duplicates", baks)
	}

	toad := 0
	if opts.Toad != nil {
		toad = *opts.Toad
	} else if len(baks) > 0 {
		toad = Ample(len(baks))
	}
	if err := validateToad(toad, baks); err != nil {
		return nil, err
	}

	cnfg := []any{}
	if opts.NoBackers {
		cnfg = append(cnfg, coring.TraitNoBackers)
	}

	kind := opts.Kind
	if kind == "" {
		kind = coring.KindJSON
	}

	ked := map[string]any{
		"v":  versionString(kind),
		"i":  "",
		"ii": pre,
		"s":  coring.FormatSN(0),
		"t":  string(coring.IlkVCP),
		"c":  cnfg,
		"bt": fmt.Sprintf("%x", toad),
		"b":  anyStrings(baks),
	}

	derived, err := coring.DerivePrefix(ked, kind)
	if err != nil {
		return nil, kering.Wrap(kering.CodeValidation, err, "derive registry prefix")
	}
	ked["i"] = derived

	return coring.NewSerderFromKed(ked, kind)
}

// RotateOpts configures Rotate.
type RotateOpts struct {
	Toad *int
	Baks []string // current backers before this rotation
	Cuts []string
	Adds []string
	Kind coring.Kind
}

// Rotate builds a vrt (registry rotation) event. regk is the registry
// identifier, dig the prior event's digest, sn the new sequence number
// (must be >= 1).
func Rotate(regk, dig string, sn uint64, opts RotateOpts) (*coring.Serder, error) {
	if sn < 1 {
		return nil, kering.New(kering.CodeInvalidArgument, "invalid sn %d for vrt", sn)
	}

	baks := opts.Baks
	bakSet := toSet(baks)
	if hasDuplicates(baks) {
		return nil, kering.New(kering.CodeInvalidArgument, "invalid baks %v, has duplicates", baks)
	}

	cuts := opts.Cuts
	cutSet := toSet(cuts)
	if hasDuplicates(cuts) {
		return nil, kering.New(kering.CodeInvalidArgument, "invalid cuts %v, has duplicates", cuts)
	}
	for c := range cutSet {
		if _, ok := bakSet[c]; !ok {
			return nil, kering.New(kering.CodeInvalidArgument, "invalid cuts %v, not all members in baks", cuts)
		}
	}

	adds := opts.Adds
	addSet := toSet(adds)
	if hasDuplicates(adds) {
		return nil, kering.New(kering.CodeInvalidArgument, "invalid adds %v, has duplicates", adds)
	}
	for a := range addSet {
		if _, ok := cutSet[a]; ok {
			return nil, kering.New(kering.CodeInvalidArgument, "intersecting cuts %v and adds %v", cuts, adds)
		}
	}
	for a := range addSet {
		if _, ok := bakSet[a]; ok {
			return nil, kering.New(kering.CodeInvalidArgument, "intersecting baks %v and adds %v", baks, adds)
		}
	}

	newBaks := make([]string, 0, len(baks)-len(cuts)+len(adds))
	for _, b := range baks {
		if _, cut := cutSet[b]; !cut {
			newBaks = append(newBaks, b)
		}
	}
	newBaks = append(newBaks, adds...)

	if len(newBaks) != len(baks)-len(cuts)+len(adds) {
		return nil, kering.New(kering.CodeInvalidArgument,
			"invalid member combination among baks %v, cuts %v, adds %v", baks, cuts, adds)
	}

	toad := 0
	if opts.Toad != nil {
		toad = *opts.Toad
	} else if len(newBaks) > 0 {
		toad = Ample(len(newBaks))
	}
	if err := validateToad(toad, newBaks); err != nil {
		return nil, err
	}

	kind := opts.Kind
	if kind == "" {
		kind = coring.KindJSON
	}

	ked := map[string]any{
		"v":  versionString(kind),
		"i":  regk,
		"p":  dig,
		"s":  coring.FormatSN(sn),
		"t":  string(coring.IlkVRT),
		"bt": fmt.Sprintf("%x", toad),
		"br": anyStrings(cuts),
		"ba": anyStrings(adds),
	}

	return coring.NewSerderFromKed(ked, kind)
}

// Issue builds an iss (simple issuance) event for a backerless registry.
func Issue(vcdig, regk string, dt string, kind coring.Kind) (*coring.Serder, error) {
	if kind == "" {
		kind = coring.KindJSON
	}
	if dt == "" {
		dt = help.NowIso8601()
	}
	ked := map[string]any{
		"v":  versionString(kind),
		"i":  vcdig,
		"s":  coring.FormatSN(0),
		"t":  string(coring.IlkISS),
		"ri": regk,
		"dt": dt,
	}
	return coring.NewSerderFromKed(ked, kind)
}

// Revoke builds a rev (simple revocation) event.
func Revoke(vcdig, regk, dig string, dt string, kind coring.Kind) (*coring.Serder, error) {
	if kind == "" {
		kind = coring.KindJSON
	}
	if dt == "" {
		dt = help.NowIso8601()
	}
	ked := map[string]any{
		"v":  versionString(kind),
		"i":  vcdig,
		"s":  coring.FormatSN(1),
		"t":  string(coring.IlkREV),
		"ri": regk,
		"p":  dig,
		"dt": dt,
	}
	return coring.NewSerderFromKed(ked, kind)
}

// BackerIssue builds a bis (backer-anchored issuance) event. regsn/regd
// identify the management-TEL event whose backer set governs this
// credential (the "ra" seal).
func BackerIssue(vcdig, regk string, regsn uint64, regd string, dt string, kind coring.Kind) (*coring.Serder, error) {
	if kind == "" {
		kind = coring.KindJSON
	}
	if dt == "" {
		dt = help.NowIso8601()
	}
	ked := map[string]any{
		"v":  versionString(kind),
		"i":  vcdig,
		"ii": regk,
		"s":  coring.FormatSN(0),
		"t":  string(coring.IlkBIS),
		"ra": map[string]any{"i": regk, "s": coring.FormatSN(regsn), "d": regd},
		"dt": dt,
	}
	return coring.NewSerderFromKed(ked, kind)
}

// BackerRevoke builds a brv (backer-anchored revocation) event.
func BackerRevoke(vcdig, regk string, regsn uint64, regd, dig string, dt string, kind coring.Kind) (*coring.Serder, error) {
	if kind == "" {
		kind = coring.KindJSON
	}
	if dt == "" {
		dt = help.NowIso8601()
	}
	ked := map[string]any{
		"v":  versionString(kind),
		"i":  vcdig,
		"s":  coring.FormatSN(1),
		"t":  string(coring.IlkBRV),
		"p":  dig,
		"ra": map[string]any{"i": regk, "s": coring.FormatSN(regsn), "d": regd},
		"dt": dt,
	}
	return coring.NewSerderFromKed(ked, kind)
}

// StateOpts configures State.
type StateOpts struct {
	Toad *int
	Wits []string
	NoBackers bool
	Dts  string
	Kind coring.Kind
}

// State builds a ksn (registry key/transaction state notice) reflecting a
// registry snapshot: the latest event's pre/dig/sn/ilk, backer cuts/adds,
// and the anchor seal a={s,d}.
func State(pre, dig string, sn uint64, ri string, eilk coring.Ilk, br, ba []string, a map[string]any, opts StateOpts) (*coring.Serder, error) {
	if eilk != coring.IlkVCP && eilk != coring.IlkVRT {
		return nil, kering.New(kering.CodeInvalidArgument, "invalid event type et=%s in key state", eilk)
	}
	wits := opts.Wits
	if hasDuplicates(wits) {
		return nil, kering.New(kering.CodeInvalidArgument, "invalid wits %v, has duplicates", wits)
	}
	toad := 0
	if opts.Toad != nil {
		toad = *opts.Toad
	} else if len(wits) > 0 {
		toad = Ample(len(wits))
	}
	if err := validateToad(toad, wits); err != nil {
		return nil, err
	}
	if hasDuplicates(br) {
		return nil, kering.New(kering.CodeInvalidArgument, "invalid cuts %v in latest est event, has duplicates", br)
	}
	if hasDuplicates(ba) {
		return nil, kering.New(kering.CodeInvalidArgument, "invalid adds %v in latest est event, has duplicates", ba)
	}

	kind := opts.Kind
	if kind == "" {
		kind = coring.KindJSON
	}
	dts := opts.Dts
	if dts == "" {
		dts = help.NowIso8601()
	}
	cnfg := []any{}
	if opts.NoBackers {
		cnfg = append(cnfg, coring.TraitNoBackers)
	}

	ksd := map[string]any{
		"v":  versionString(kind),
		"i":  ri,
		"s":  coring.FormatSN(sn),
		"d":  dig,
		"ii": pre,
		"dt": dts,
		"et": string(eilk),
		"a":  a,
		"bt": fmt.Sprintf("%x", toad),
		"br": anyStrings(br),
		"ba": anyStrings(ba),
		"b":  anyStrings(wits),
		"c":  cnfg,
	}

	return coring.NewSerderFromKed(ksd, kind)
}

// VCState builds a credential-state notice reflecting a credential's
// current sn/ilk under a registry.
func VCState(vcpre, dig string, sn uint64, ri string, eilk coring.Ilk, a map[string]any, dts string, kind coring.Kind) (*coring.Serder, error) {
	switch eilk {
	case coring.IlkISS, coring.IlkBIS, coring.IlkREV, coring.IlkBRV:
	default:
		return nil, kering.New(kering.CodeInvalidArgument, "invalid event type et=%s in key state", eilk)
	}
	if kind == "" {
		kind = coring.KindJSON
	}
	if dts == "" {
		dts = help.NowIso8601()
	}
	ksd := map[string]any{
		"v":  versionString(kind),
		"i":  vcpre,
		"s":  coring.FormatSN(sn),
		"d":  dig,
		"ri": ri,
		"a":  a,
		"dt": dts,
		"et": string(eilk),
	}
	return coring.NewSerderFromKed(ksd, kind)
}

// QueryOpts configures Query.
type QueryOpts struct {
	Route      string
	ReplyRoute string
	Dt         string
	Dta        string
	Dtb        string
	Kind       coring.Kind
}

// Query builds a qry (TEL query) event envelope. Unlike the distilled
// Python source (spec.md §9 Open Questions), dta and dtb each carry their
// own value rather than both being assigned dt.
func Query(regk, vcid string, opts QueryOpts) (*coring.Serder, error) {
	qry := map[string]any{"i": vcid, "ri": regk}
	if opts.Dt != "" {
		qry["dt"] = opts.Dt
	}
	if opts.Dta != "" {
		qry["dta"] = opts.Dta
	}
	if opts.Dtb != "" {
		qry["dtb"] = opts.Dtb
	}

	kind := opts.Kind
	if kind == "" {
		kind = coring.KindJSON
	}
	ked := map[string]any{
		"v": versionString(kind),
		"t": string(coring.IlkQry),
		"r": opts.Route,
		"rr": opts.ReplyRoute,
		"q": qry,
	}
	return coring.NewSerderFromKed(ked, kind)
}

func versionString(kind coring.Kind) string {
	return fmt.Sprintf("KERI10%s00000_", kind)
}
