package defaults

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"alert-autoconf/internal/domain"
	"alert-autoconf/internal/ownership"
)

type rawFile struct {
	Defaults []rawRule `yaml:"defaults"`
}

type rawRule struct {
	Condition struct {
		Tags []string `yaml:"tags"`
	} `yaml:"condition"`
	Values struct {
		Parents []struct {
			Name string   `yaml:"name"`
			Tags []string `yaml:"tags"`
		} `yaml:"parents"`
	} `yaml:"values"`
}

// Parse decodes and validates a defaults file.
// Params: YAML bytes shaped as {defaults: [{condition: {tags}, values: {parents}}]}.
// Returns: default rules or decode/validation error.
func Parse(data []byte) ([]domain.DefaultRule, error) {
	var raw rawFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode defaults: empty file")
		}
		return nil, fmt.Errorf("decode defaults: %w", err)
	}
	if raw.Defaults == nil {
		return nil, fmt.Errorf("decode defaults: defaults list is required")
	}

	rules := make([]domain.DefaultRule, 0, len(raw.Defaults))
	for i, rr := range raw.Defaults {
		if len(rr.Condition.Tags) == 0 {
			return nil, fmt.Errorf("defaults[%d].condition.tags is required", i)
		}
		rule := domain.DefaultRule{
			Condition: domain.DefaultCondition{Tags: append([]string(nil), rr.Condition.Tags...)},
		}
		for j, rp := range rr.Values.Parents {
			if strings.TrimSpace(rp.Name) == "" {
				return nil, fmt.Errorf("defaults[%d].values.parents[%d].name is required", i, j)
			}
			rule.Parents = append(rule.Parents, domain.ParentRef{Name: rp.Name, Tags: append([]string(nil), rp.Tags...)})
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Apply extends parents of every matching trigger without duplicates.
// Params: desired triggers (mutated in place) and rules.
// Returns: number of triggers that gained at least one parent.
func Apply(triggers []domain.TriggerSpec, rules []domain.DefaultRule) int {
	changed := 0
	for i := range triggers {
		before := len(triggers[i].ParentRefs)
		for _, rule := range rules {
			if rule.Condition.Applies(triggers[i]) {
				triggers[i].ParentRefs = extendWithoutDuplicates(triggers[i].ParentRefs, rule.Parents)
			}
		}
		if len(triggers[i].ParentRefs) > before {
			changed++
		}
	}
	return changed
}

func extendWithoutDuplicates(current, extension []domain.ParentRef) []domain.ParentRef {
	if current == nil {
		current = []domain.ParentRef{}
	}
	for _, candidate := range extension {
		duplicate := false
		for _, existing := range current {
			if existing.Equal(candidate) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			current = append(current, candidate)
		}
	}
	return current
}

// Load reads stored defaults file.
// Params: context, ownership store, and key namespace.
// Returns: rules, false when no defaults were stored, or read/decode error.
func Load(ctx context.Context, store ownership.Store, keys ownership.Keys) ([]domain.DefaultRule, bool, error) {
	body, err := store.Get(ctx, keys.TriggerDefaults())
	if err != nil {
		if errors.Is(err, ownership.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read defaults: %w", err)
	}
	rules, err := Parse(body)
	if err != nil {
		return nil, false, err
	}
	return rules, true, nil
}

// Save validates defaults file and stores it verbatim.
// Params: context, ownership store, key namespace, and YAML bytes.
// Returns: number of stored rules or validation/write error.
func Save(ctx context.Context, store ownership.Store, keys ownership.Keys, data []byte) (int, error) {
	rules, err := Parse(data)
	if err != nil {
		return 0, err
	}
	if err := store.Put(ctx, keys.TriggerDefaults(), data); err != nil {
		return 0, fmt.Errorf("store defaults: %w", err)
	}
	return len(rules), nil
}

// Merge loads stored defaults and applies them to the document.
// Params: context, store, key namespace, document, and logger.
// Returns: load error.
func Merge(ctx context.Context, store ownership.Store, keys ownership.Keys, doc *domain.Document, logger *slog.Logger) error {
	rules, found, err := Load(ctx, store, keys)
	if err != nil {
		return err
	}
	if !found {
		logger.Info("defaults not found in store, skipping", "key", keys.TriggerDefaults())
		return nil
	}
	changed := Apply(doc.Triggers, rules)
	logger.Debug("defaults applied", "rules", len(rules), "triggers_changed", changed)
	return nil
}
