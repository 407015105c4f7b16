package reconcile

import (
	"context"
	"fmt"

	"alert-autoconf/internal/domain"
)

// Phase selects how a trigger pass treats inheritance.
type Phase int

const (
	// PhaseDetached ignores declared parents; it creates and refreshes triggers
	// so every parent candidate carries a backend id.
	PhaseDetached Phase = iota + 1
	// PhaseLinked resolves parent references and applies parent ids.
	PhaseLinked
)

// String returns phase name for logs.
func (p Phase) String() string {
	switch p {
	case PhaseDetached:
		return "detached"
	case PhaseLinked:
		return "linked"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

func (p Phase) ignoresInheritance() bool {
	return p == PhaseDetached
}

// ReconcileTriggers runs the detached pass and then the linked pass over specs.
// Params: context, desired triggers, and whether the document declares a prefix.
// Returns: accumulated counts of both passes and first fatal error.
func (e *Engine) ReconcileTriggers(ctx context.Context, specs []domain.TriggerSpec, prefixed bool) (Counts, error) {
	var counts Counts
	for _, phase := range []Phase{PhaseDetached, PhaseLinked} {
		if err := e.reconcileTriggerPhase(ctx, phase, specs, prefixed, &counts); err != nil {
			return counts, fmt.Errorf("%s pass: %w", phase, err)
		}
	}
	return counts, nil
}

// reconcileTriggerPhase converges triggers owned by the token for one phase.
// Params: context, phase, desired specs, prefix flag, and counters to update.
// Returns: fatal backend/store/resolution error.
func (e *Engine) reconcileTriggerPhase(ctx context.Context, phase Phase, specs []domain.TriggerSpec, prefixed bool, counts *Counts) error {
	logger := e.logger.With("kind", KindTrigger, "phase", phase.String())
	key := e.keys.Triggers(e.opts.Token)

	desired, err := e.desiredTriggers(ctx, phase, specs)
	if err != nil {
		return err
	}

	tracked, err := e.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check tracked triggers: %w", err)
	}
	if len(desired) == 0 && !tracked {
		logger.Info("no triggers desired or tracked, nothing to do")
		return nil
	}

	observed, discovered, err := e.observeTriggers(ctx, key, tracked, desired, prefixed, counts)
	if err != nil {
		return err
	}
	if len(observed) == 0 {
		logger.Info("no observed triggers for token", "key", key)
	}

	pending := make([]domain.Trigger, 0, len(desired))
	for _, want := range desired {
		match, ok := e.findEqualTrigger(want, observed, phase)
		if !ok {
			pending = append(pending, want)
			continue
		}
		counts.Unchanged++
		logger.Debug("trigger unchanged", "id", match.ID, "name", match.Name, "tags", match.Tags)
		if discovered {
			if err := e.store.Add(ctx, key, match.ID); err != nil {
				return fmt.Errorf("track trigger %s: %w", match.ID, err)
			}
		}
	}

	for _, have := range observed {
		if !anySameTrigger(desired, have) {
			if err := e.deleteTrigger(ctx, key, have, counts); err != nil {
				return err
			}
			continue
		}
		idx := firstSameTrigger(pending, have)
		if idx < 0 {
			continue
		}
		update := pending[idx].Clone()
		if phase.ignoresInheritance() {
			update.Parents = append([]string(nil), have.Parents...)
		}
		if _, err := e.backend.UpdateTrigger(ctx, have.ID, update); err != nil {
			return err
		}
		if err := e.store.Add(ctx, key, have.ID); err != nil {
			return fmt.Errorf("track trigger %s: %w", have.ID, err)
		}
		counts.Updated++
		logger.Info("trigger updated", "id", have.ID, "name", update.Name, "tags", update.Tags)
		pending = append(pending[:idx], pending[idx+1:]...)
	}

	for _, want := range pending {
		created, err := e.backend.CreateTrigger(ctx, want)
		if err != nil {
			return err
		}
		if err := e.store.Add(ctx, key, created.ID); err != nil {
			return fmt.Errorf("track trigger %s: %w", created.ID, err)
		}
		counts.Created++
		logger.Info("trigger created", "id", created.ID, "name", want.Name, "tags", want.Tags)
	}
	return nil
}

// desiredTriggers builds backend-shaped desired triggers for phase.
// Detached phase clears parents; linked phase resolves parent references
// against one snapshot of all backend triggers before any write.
func (e *Engine) desiredTriggers(ctx context.Context, phase Phase, specs []domain.TriggerSpec) ([]domain.Trigger, error) {
	var all []domain.Trigger
	loaded := false
	out := make([]domain.Trigger, 0, len(specs))
	for _, spec := range specs {
		trigger := spec.Trigger.Clone()
		trigger.ID = ""
		trigger.Parents = nil
		if !phase.ignoresInheritance() && len(spec.ParentRefs) > 0 {
			if !loaded {
				fetched, err := e.backend.FetchAllTriggers(ctx)
				if err != nil {
					return nil, err
				}
				all, loaded = fetched, true
			}
			parents, err := resolveParents(spec.Name, spec.ParentRefs, all)
			if err != nil {
				return nil, err
			}
			trigger.Parents = parents
		}
		out = append(out, trigger)
	}
	return out, nil
}

// resolveParents maps each reference to the single trigger with equal name and tag set.
// Params: child name for errors, references, and all backend triggers.
// Returns: parent ids in reference order or ParentResolutionError.
func resolveParents(child string, refs []domain.ParentRef, all []domain.Trigger) ([]string, error) {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		var candidates []string
		for _, trigger := range all {
			if ref.Equal(domain.ParentRef{Name: trigger.Name, Tags: trigger.Tags}) {
				candidates = append(candidates, trigger.ID)
			}
		}
		if len(candidates) != 1 {
			return nil, &ParentResolutionError{Child: child, Ref: ref, Candidates: len(candidates)}
		}
		ids = append(ids, candidates[0])
	}
	return ids, nil
}

// observeTriggers loads triggers this token owns.
// Tracked ids are fetched directly and stale ids are dropped from the store.
// Untracked tokens with a prefix discover candidates by custom tags.
// Returns: observed triggers and whether they came from discovery.
func (e *Engine) observeTriggers(ctx context.Context, key string, tracked bool, desired []domain.Trigger, prefixed bool, counts *Counts) ([]domain.Trigger, bool, error) {
	logger := e.logger.With("kind", KindTrigger)
	if tracked {
		ids, err := e.store.Members(ctx, key)
		if err != nil {
			return nil, false, fmt.Errorf("read tracked triggers: %w", err)
		}
		logger.Debug("tracked trigger ids", "key", key, "ids", ids)
		observed := make([]domain.Trigger, 0, len(ids))
		for _, id := range ids {
			trigger, found, err := e.backend.FetchTrigger(ctx, id)
			if err != nil {
				return nil, false, err
			}
			if !found {
				logger.Info("tracked trigger absent in backend, untracking", "id", id)
				if err := e.store.Remove(ctx, key, id); err != nil {
					return nil, false, fmt.Errorf("untrack trigger %s: %w", id, err)
				}
				counts.Healed++
				continue
			}
			observed = append(observed, trigger)
		}
		if len(observed) > 0 {
			return observed, false, nil
		}
	}

	if !prefixed {
		return nil, false, nil
	}
	tags := customTags(desired, e.opts.ControlTags)
	if len(tags) == 0 {
		return nil, false, nil
	}
	ids, err := e.backend.FetchTriggerIDsByTags(ctx, tags)
	if err != nil {
		return nil, false, err
	}
	logger.Debug("discovered trigger ids by tags", "tags", tags, "ids", ids)
	observed := make([]domain.Trigger, 0, len(ids))
	for _, id := range ids {
		trigger, found, err := e.backend.FetchTrigger(ctx, id)
		if err != nil {
			return nil, false, err
		}
		if found {
			observed = append(observed, trigger)
		}
	}
	return observed, true, nil
}

// findEqualTrigger returns the first observed trigger fully equal to want.
// Comparison errors are logged and count as "not equal" for that pair.
func (e *Engine) findEqualTrigger(want domain.Trigger, observed []domain.Trigger, phase Phase) (domain.Trigger, bool) {
	for _, have := range observed {
		diff, err := compareTriggers(want, have, phase)
		if err != nil {
			e.logger.Warn("trigger comparison failed, treating as changed", "id", have.ID, "name", want.Name, "error", err.Error())
			continue
		}
		if diff == nil {
			return have, true
		}
		if diff.Field != "name" && sameTriggerEntity(want, have) {
			e.logger.Info("detected difference in trigger",
				"id", have.ID, "field", diff.Field, "desired", diff.Desired, "observed", diff.Observed, "phase", phase.String())
		}
	}
	return domain.Trigger{}, false
}

func (e *Engine) deleteTrigger(ctx context.Context, key string, have domain.Trigger, counts *Counts) error {
	deleted, err := e.backend.DeleteTrigger(ctx, have.ID)
	if err != nil {
		return err
	}
	if err := e.store.Remove(ctx, key, have.ID); err != nil {
		return fmt.Errorf("untrack trigger %s: %w", have.ID, err)
	}
	if deleted {
		counts.Deleted++
		e.logger.Info("trigger deleted", "id", have.ID, "name", have.Name, "tags", have.Tags)
	} else {
		e.logger.Info("trigger already absent, untracked", "id", have.ID, "name", have.Name)
	}
	return nil
}

func anySameTrigger(desired []domain.Trigger, have domain.Trigger) bool {
	return firstSameTrigger(desired, have) >= 0
}

func firstSameTrigger(candidates []domain.Trigger, have domain.Trigger) int {
	for i, want := range candidates {
		if sameTriggerEntity(want, have) {
			return i
		}
	}
	return -1
}

// customTags collects desired tags except control tags.
func customTags(desired []domain.Trigger, controlTags []string) []string {
	var tags []string
	for _, trigger := range desired {
		for _, tag := range trigger.Tags {
			if !domain.ContainsTag(controlTags, tag) {
				tags = append(tags, tag)
			}
		}
	}
	return domain.SortedSet(tags)
}
