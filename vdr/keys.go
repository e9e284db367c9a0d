package vdr

// vciKey namespaces a credential identifier under the registry that
// issues it, so a credential's TEL lives in its own key range distinct
// from the registry's own management TEL and from same credential ids
// reused across different registries.
func vciKey(regk, vcpre string) string {
	return regk + "/" + vcpre
}
