package domain

// Document is the normalized desired state loaded from alert.yaml.
type Document struct {
	Version  float64
	Prefix   string
	Triggers []TriggerSpec
	Alerting []Subscription
}

// PrefixedVersion is the first document version that supports prefixes.
const PrefixedVersion = 1.1

// Prefixed reports whether the document declares a namespace prefix.
// Params: none.
// Returns: true for version >= 1.1 with non-empty prefix.
func (d Document) Prefixed() bool {
	return d.Version >= PrefixedVersion && d.Prefix != ""
}

// DefaultCondition selects triggers a default rule applies to.
type DefaultCondition struct {
	Tags []string
}

// Applies reports whether all condition tags are present on the trigger.
// Params: desired trigger.
// Returns: true when condition tags are a subset of trigger tags.
func (c DefaultCondition) Applies(trigger TriggerSpec) bool {
	return IsSubset(c.Tags, trigger.Tags)
}

// DefaultRule injects parent references into matching triggers.
type DefaultRule struct {
	Condition DefaultCondition
	Parents   []ParentRef
}
