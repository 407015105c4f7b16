package domain

import "sort"

// SortedSet returns unique values in ascending order.
// Params: values in any order, duplicates allowed.
// Returns: new sorted slice without duplicates.
func SortedSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}

// SameSet reports set equality of two string lists.
// Params: two lists; order and duplicates are ignored.
// Returns: true when both contain the same values.
func SameSet(left, right []string) bool {
	l := SortedSet(left)
	r := SortedSet(right)
	if len(l) != len(r) {
		return false
	}
	for i := range l {
		if l[i] != r[i] {
			return false
		}
	}
	return true
}

// IsSubset reports whether every value of subset is in superset.
// Params: candidate subset and superset.
// Returns: true when subset is contained.
func IsSubset(subset, superset []string) bool {
	index := make(map[string]struct{}, len(superset))
	for _, value := range superset {
		index[value] = struct{}{}
	}
	for _, value := range subset {
		if _, ok := index[value]; !ok {
			return false
		}
	}
	return true
}
