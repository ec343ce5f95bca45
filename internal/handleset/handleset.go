// Package handleset implements ordered, duplicate-free lists of identity
// handles. Friend lists, request lists and mission crews are sets
// semantically but keep insertion order when serialised.
package handleset

// Contains reports whether h is in set.
func Contains(set []string, h string) bool {
	for _, v := range set {
		if v == h {
			return true
		}
	}
	return false
}

// Add appends h unless it is already present.
func Add(set []string, h string) []string {
	if Contains(set, h) {
		return set
	}
	return append(set, h)
}

// Remove returns set without h. The result is never nil.
func Remove(set []string, h string) []string {
	out := make([]string, 0, len(set))
	for _, v := range set {
		if v != h {
			out = append(out, v)
		}
	}
	return out
}

// Replace swaps every occurrence of from with to, collapsing the duplicate
// that appears if to was already present.
func Replace(set []string, from, to string) []string {
	out := make([]string, 0, len(set))
	for _, v := range set {
		if v == from {
			v = to
		}
		out = Add(out, v)
	}
	return out
}

// Normalize drops empty handles, duplicates and any handle equal to self.
// Pass an empty self to keep every non-empty handle.
func Normalize(set []string, self string) []string {
	out := make([]string, 0, len(set))
	for _, v := range set {
		if v == "" || (self != "" && v == self) {
			continue
		}
		out = Add(out, v)
	}
	return out
}
