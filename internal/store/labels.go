package store

import (
	"slices"
	"strconv"
	"strings"

	"github.com/prometheus/common/model"
)

// NewLabelSet builds a label set from plain strings.
func NewLabelSet(labels map[string]string) model.LabelSet {
	ls := make(model.LabelSet, len(labels))
	for name, value := range labels {
		ls[model.LabelName(name)] = model.LabelValue(value)
	}
	return ls
}

// labelKey is the canonical identity of a label set: pairs sorted by label
// name, values quoted. Two sets with the same pairs share a key regardless of
// how they were built.
func labelKey(ls model.LabelSet) string {
	names := make([]string, 0, len(ls))
	for name := range ls {
		names = append(names, string(name))
	}
	slices.Sort(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(strconv.Quote(string(ls[model.LabelName(name)])))
	}
	return b.String()
}

// namesKey identifies a set of label names independent of order.
func namesKey(names []string) string {
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	return strings.Join(sorted, ",")
}

func sameNames(ls model.LabelSet, names []string) bool {
	if len(ls) != len(names) {
		return false
	}
	for _, n := range names {
		if _, ok := ls[model.LabelName(n)]; !ok {
			return false
		}
	}
	return true
}
