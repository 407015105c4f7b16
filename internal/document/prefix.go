package document

import (
	"strings"

	"alert-autoconf/internal/domain"
)

// ApplyPrefix namespaces trigger names and trigger/subscription tags.
// Control tags keep their value and move after prefixed tags.
// Parent references are left as written.
// Params: document to mutate and tags exempt from prefixing.
// Returns: none.
func ApplyPrefix(doc *domain.Document, controlTags []string) {
	prefix := doc.Prefix
	if prefix == "" {
		return
	}
	for i := range doc.Triggers {
		doc.Triggers[i].Name = prefix + doc.Triggers[i].Name
		doc.Triggers[i].Tags = prefixTags(prefix, doc.Triggers[i].Tags, controlTags)
	}
	for i := range doc.Alerting {
		doc.Alerting[i].Tags = prefixTags(prefix, doc.Alerting[i].Tags, controlTags)
	}
}

func prefixTags(prefix string, tags, controlTags []string) []string {
	out := make([]string, 0, len(tags))
	var control []string
	for _, tag := range tags {
		if domain.ContainsTag(controlTags, tag) {
			control = append(control, tag)
			continue
		}
		out = append(out, prefix+tag)
	}
	return append(out, control...)
}

// ApplyCluster replaces ClusterPlaceholder in trigger tags, targets,
// parent tags and subscription tags.
// Params: document to mutate and cluster name.
// Returns: ErrClusterNotSet when placeholder is used with empty cluster.
func ApplyCluster(doc *domain.Document, cluster string) error {
	for i := range doc.Triggers {
		spec := &doc.Triggers[i]
		if err := substituteCluster(spec.Tags, cluster); err != nil {
			return err
		}
		if err := substituteCluster(spec.Targets, cluster); err != nil {
			return err
		}
		for j := range spec.ParentRefs {
			if err := substituteCluster(spec.ParentRefs[j].Tags, cluster); err != nil {
				return err
			}
		}
	}
	for i := range doc.Alerting {
		if err := substituteCluster(doc.Alerting[i].Tags, cluster); err != nil {
			return err
		}
	}
	return nil
}

func substituteCluster(values []string, cluster string) error {
	for i, value := range values {
		if !strings.Contains(value, ClusterPlaceholder) {
			continue
		}
		if cluster == "" {
			return ErrClusterNotSet
		}
		values[i] = strings.ReplaceAll(value, ClusterPlaceholder, cluster)
	}
	return nil
}
