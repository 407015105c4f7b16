package domain

// Control tags carry backend state semantics and are never namespaced.
const (
	TagError  = "ERROR"
	TagWarn   = "WARN"
	TagOK     = "OK"
	TagNoData = "NODATA"
	TagMonad  = "MONAD"
)

// ControlTags returns tags excluded from prefixing and trigger discovery.
// Params: none.
// Returns: fresh slice.
func ControlTags() []string {
	return []string{TagError, TagWarn, TagOK, TagNoData, TagMonad}
}

// SubscriptionDiscoveryExcludedTags returns tags ignored when matching
// untracked subscriptions by tag intersection.
// Params: none.
// Returns: fresh slice.
func SubscriptionDiscoveryExcludedTags() []string {
	return []string{TagError, TagOK, TagNoData, "CRITICAL", TagWarn, "Critical", "critical", TagMonad}
}

// ContainsTag reports whether tags contains tag.
func ContainsTag(tags []string, tag string) bool {
	for _, value := range tags {
		if value == tag {
			return true
		}
	}
	return false
}
