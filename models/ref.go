package models

import (
	"fmt"
	"strconv"
	"strings"
)

// SectionRef derives the external reference for one section of a base text.
// Section indices are 0-based internally and 1-based in the external form, so
// section 0 of "Berakhot 2a" is "Berakhot 2a:1".
func SectionRef(base string, index int) string {
	return fmt.Sprintf("%s:%d", base, index+1)
}

// SectionIndex splits a section reference back into its base and 0-based index.
// ok is false when the reference carries no trailing ":digits" suffix.
func SectionIndex(ref string) (base string, index int, ok bool) {
	i := strings.LastIndex(ref, ":")
	if i < 0 {
		return ref, 0, false
	}
	n, err := strconv.Atoi(ref[i+1:])
	if err != nil || n < 1 {
		return ref, 0, false
	}
	return ref[:i], n - 1, true
}

// FormatRef cleans a reference for display: URL-style underscores become spaces.
func FormatRef(ref string) string {
	return strings.TrimSpace(strings.ReplaceAll(ref, "_", " "))
}
