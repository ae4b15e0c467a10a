//go:build linux

package magicmount

import "strings"

// ParsePartitions splits a comma-separated partition list (as accepted by
// `hymoctl magic-mount --extra-partitions`), trimming whitespace and
// dropping empty entries.
func ParsePartitions(list string) []string {
	var out []string

	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}

	return out
}
