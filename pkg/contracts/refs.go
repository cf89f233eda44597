package contracts

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// LineRef builds a line-addressable evidence reference, "file:Lnnn".
// Line numbers are 1-based.
func LineRef(file string, line int) string {
	return fmt.Sprintf("%s:L%d", file, line)
}

// HasLineRef reports whether ref points at a specific line rather than
// a whole artifact. FAIL verdicts must carry at least one such ref.
func HasLineRef(ref string) bool {
	i := strings.LastIndex(ref, ":L")
	if i < 0 || i == 0 {
		return false
	}
	n, err := strconv.Atoi(ref[i+2:])
	return err == nil && n >= 1
}

// AnyLineRef reports whether at least one ref in refs is line-addressable.
func AnyLineRef(refs []string) bool {
	for _, r := range refs {
		if HasLineRef(r) {
			return true
		}
	}
	return false
}

// NormalizeRefs sorts refs and drops duplicates. Empty strings are
// kept so that validation can reject them instead of masking a buggy
// producer.
func NormalizeRefs(refs []string) []string {
	if len(refs) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))
	for _, r := range refs {
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
