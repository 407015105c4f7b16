package reconcile

// Action names for report counters.
const (
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionDeleted   = "deleted"
	ActionUnchanged = "unchanged"
	ActionSkipped   = "skipped"
	ActionProtected = "protected"
	ActionHealed    = "healed"
)

// Entity kinds for report counters.
const (
	KindTrigger      = "trigger"
	KindSubscription = "subscription"
)

// Counts tallies decisions for one entity kind.
type Counts struct {
	Created   int
	Updated   int
	Deleted   int
	Unchanged int
	Skipped   int
	Protected int
	Healed    int
}

// Mutations is the number of backend writes.
func (c Counts) Mutations() int {
	return c.Created + c.Updated + c.Deleted
}

func (c Counts) each(fn func(action string, n int)) {
	fn(ActionCreated, c.Created)
	fn(ActionUpdated, c.Updated)
	fn(ActionDeleted, c.Deleted)
	fn(ActionUnchanged, c.Unchanged)
	fn(ActionSkipped, c.Skipped)
	fn(ActionProtected, c.Protected)
	fn(ActionHealed, c.Healed)
}

// Report summarizes one reconciliation run.
type Report struct {
	Triggers      Counts
	Subscriptions Counts
}

// Each visits every counter, including zero ones.
// Params: callback receiving kind, action, and count.
// Returns: none.
func (r Report) Each(fn func(kind, action string, n int)) {
	r.Triggers.each(func(action string, n int) { fn(KindTrigger, action, n) })
	r.Subscriptions.each(func(action string, n int) { fn(KindSubscription, action, n) })
}
