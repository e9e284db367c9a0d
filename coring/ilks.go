package coring

// Ilk is the event kind tag carried in an event's "t" field.
type Ilk string

const (
	IlkVCP Ilk = "vcp" // registry inception
	IlkVRT Ilk = "vrt" // registry rotation
	IlkISS Ilk = "iss" // simple issuance (backerless registry)
	IlkREV Ilk = "rev" // simple revocation
	IlkBIS Ilk = "bis" // backer-anchored issuance
	IlkBRV Ilk = "brv" // backer-anchored revocation
	IlkKSN Ilk = "ksn" // registry key-state notice
	IlkQry Ilk = "qry" // query
)

// VcpLabels are the required fields of a vcp event.
var VcpLabels = []string{"v", "i", "s", "t", "bt", "b", "c"}

// VrtLabels are the required fields of a vrt event.
var VrtLabels = []string{"v", "i", "s", "t", "p", "bt", "ba", "br"}

// IssLabels are the required fields of an iss event.
var IssLabels = []string{"v", "i", "s", "t", "ri", "dt"}

// BisLabels are the required fields of a bis event.
var BisLabels = []string{"v", "i", "s", "t", "ra", "dt"}

// RevLabels are the required fields of a rev event.
var RevLabels = []string{"v", "i", "s", "t", "p", "dt"}

// BrvLabels are the required fields of a brv event.
var BrvLabels = []string{"v", "i", "s", "t", "ra", "p", "dt"}

// TsnLabels are the required fields of a ksn (transaction state notice)
// event. Unlike the other event labels, a state notice carries no "t"
// field of its own — "et" already names the management event kind the
// state reflects — so reload must not require one.
var TsnLabels = []string{"v", "i", "s", "d", "ii", "a", "et", "bt", "b", "c", "br", "ba"}

// TraitNoBackers is the "NB" configuration trait: the registry operates with
// no backers; vrt is forbidden; iss/rev are mandatory over bis/brv.
const TraitNoBackers = "NB"

// MissingLabel returns the first field in labels absent from ked, or "" if
// all are present.
func MissingLabel(ked map[string]any, labels []string) string {
	for _, k := range labels {
		if _, ok := ked[k]; !ok {
			return k
		}
	}
	return ""
}
