package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"alert-autoconf/internal/domain"
)

// ClusterPlaceholder is replaced by the cluster name in tags, targets and parent tags.
const ClusterPlaceholder = "{cluster}"

// ErrClusterNotSet reports ClusterPlaceholder usage without a cluster name.
var ErrClusterNotSet = errors.New("document uses " + ClusterPlaceholder + " but cluster name is not set")

// Options tunes document normalization.
// Params: cluster name and tags exempt from prefixing.
// Returns: loader options.
type Options struct {
	Cluster     string
	ControlTags []string
}

// rawDocument mirrors alert.yaml before defaults and validation.
type rawDocument struct {
	Version  *float64          `yaml:"version"`
	Prefix   string            `yaml:"prefix"`
	Triggers []rawTrigger      `yaml:"triggers"`
	Alerting []rawSubscription `yaml:"alerting"`
}

type rawTrigger struct {
	ID              string          `yaml:"id"`
	Name            string          `yaml:"name"`
	Tags            []string        `yaml:"tags"`
	Targets         []string        `yaml:"targets"`
	WarnValue       *float64        `yaml:"warn_value"`
	ErrorValue      *float64        `yaml:"error_value"`
	Desc            string          `yaml:"desc"`
	TTL             *int            `yaml:"ttl"`
	TTLState        string          `yaml:"ttl_state"`
	Expression      string          `yaml:"expression"`
	IsPullType      bool            `yaml:"is_pull_type"`
	Dashboard       string          `yaml:"dashboard"`
	PendingInterval int             `yaml:"pending_interval"`
	DayDisable      []string        `yaml:"day_disable"`
	TimeStart       string          `yaml:"time_start"`
	TimeEnd         string          `yaml:"time_end"`
	Parents         []rawParentRef  `yaml:"parents"`
	Saturation      []rawSaturation `yaml:"saturation"`
}

type rawParentRef struct {
	Name string   `yaml:"name"`
	Tags []string `yaml:"tags"`
}

type rawSaturation struct {
	Type       string         `yaml:"type"`
	Fallback   string         `yaml:"fallback"`
	Parameters map[string]any `yaml:"parameters"`
}

type rawSubscription struct {
	Tags        []string        `yaml:"tags"`
	Contacts    []rawContact    `yaml:"contacts"`
	Escalations []rawEscalation `yaml:"escalations"`
	DayDisable  []string        `yaml:"day_disable"`
	TimeStart   string          `yaml:"time_start"`
	TimeEnd     string          `yaml:"time_end"`
}

type rawContact struct {
	ID            string `yaml:"id"`
	Type          string `yaml:"type"`
	Value         string `yaml:"value"`
	FallbackValue string `yaml:"fallback_value"`
}

type rawEscalation struct {
	Contacts        []rawContact `yaml:"contacts"`
	OffsetInMinutes int          `yaml:"offset_in_minutes"`
}

// Load reads alert.yaml and returns the normalized desired state.
// Params: document path and normalization options.
// Returns: validated document with prefix and cluster applied.
func Load(path string, opts Options) (domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("read document: %w", err)
	}
	doc, err := Parse(data, opts)
	if err != nil {
		return domain.Document{}, fmt.Errorf("load %s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes, validates and normalizes document bytes.
// Params: YAML content and normalization options.
// Returns: ready desired state or first decode/validation error.
func Parse(data []byte, opts Options) (domain.Document, error) {
	var raw rawDocument
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return domain.Document{}, fmt.Errorf("decode document: %w", err)
	}

	doc, err := normalize(raw)
	if err != nil {
		return domain.Document{}, err
	}
	controlTags := opts.ControlTags
	if controlTags == nil {
		controlTags = domain.ControlTags()
	}
	if doc.Prefixed() {
		ApplyPrefix(&doc, controlTags)
	}
	if err := ApplyCluster(&doc, opts.Cluster); err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}
