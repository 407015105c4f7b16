package ownership

import "strings"

// Keys builds store keys under one namespace prefix.
type Keys struct {
	prefix string
}

// NewKeys returns key builder for namespace (default "autoconf").
func NewKeys(prefix string) Keys {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "autoconf"
	}
	return Keys{prefix: prefix}
}

// Triggers returns the trigger-ID set key of token.
func (k Keys) Triggers(token string) string {
	return k.TriggerPrefix() + token
}

// TriggerPrefix is the common prefix of all trigger-ID set keys.
func (k Keys) TriggerPrefix() string {
	return k.prefix + ":token:"
}

// Subscriptions returns the subscription-ID set key of token.
func (k Keys) Subscriptions(token string) string {
	return k.SubscriptionPrefix() + token
}

// SubscriptionPrefix is the common prefix of all subscription-ID set keys.
func (k Keys) SubscriptionPrefix() string {
	return k.prefix + ":token-alerting:"
}

// TriggerDefaults is the blob key holding the defaults file.
func (k Keys) TriggerDefaults() string {
	return k.prefix + ":defaults:triggers"
}

// TokenOf strips a known set prefix from key.
func (k Keys) TokenOf(key string) string {
	for _, prefix := range []string{k.SubscriptionPrefix(), k.TriggerPrefix()} {
		if strings.HasPrefix(key, prefix) {
			return strings.TrimPrefix(key, prefix)
		}
	}
	return key
}
