package domain

import (
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Release is the last successfully applied artifact for a target. Rollback
// and drift auto-fix both re-apply it.
type Release struct {
	TargetKey    string
	DeploymentID uuid.UUID
	Artifact     Artifact
	UpdatedAt    time.Time
}

// ResourceState describes one provisioned resource. "Desired" instances are
// written at apply time and superseded by the next successful deployment;
// "actual" instances are fetched live during drift scans and never persisted.
type ResourceState struct {
	ResourceID string
	Type       string
	Properties map[string]any
}

// PropertyKeys returns the resource's property names in sorted order so
// comparisons and reports are stable
func (r ResourceState) PropertyKeys() []string {
	keys := make([]string, 0, len(r.Properties))
	for k := range r.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PropertiesEqual deep-compares two property values: order-insensitive for
// maps, order-sensitive for lists
func PropertiesEqual(expected, actual any) bool {
	return reflect.DeepEqual(normalizeValue(expected), normalizeValue(actual))
}

// normalizeValue converts numeric types to float64 so values that round-trip
// through JSON or YAML compare equal to their in-memory originals
func normalizeValue(v any) any {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}

// IndexResourceStates builds a lookup by resource id
func IndexResourceStates(states []ResourceState) map[string]ResourceState {
	index := make(map[string]ResourceState, len(states))
	for _, s := range states {
		index[s.ResourceID] = s
	}
	return index
}
