package session

import "github.com/mordechaipotash/talmudic-study-app/models"

// The mutation helpers below keep both backends' semantics identical: the path
// is append-only except for the explicit back/home operations, and each section
// holds at most one expanded commentary.

// AppendRef records a visit at the end of the path.
func AppendRef(st models.NavigationState, ref string) models.NavigationState {
	st.Path = append(st.Path, ref)
	return st
}

// TruncateToParent drops the last path element (back).
func TruncateToParent(st models.NavigationState) models.NavigationState {
	if len(st.Path) > 0 {
		st.Path = st.Path[:len(st.Path)-1]
	}
	return st
}

// ClearPath empties the path (home).
func ClearPath(st models.NavigationState) models.NavigationState {
	st.Path = nil
	return st
}

// ToggleExpanded flips a tree node's expanded flag.
func ToggleExpanded(st models.NavigationState, ref string) models.NavigationState {
	for i, r := range st.Expanded {
		if r == ref {
			st.Expanded = append(st.Expanded[:i], st.Expanded[i+1:]...)
			return st
		}
	}
	st.Expanded = append(st.Expanded, ref)
	return st
}

// SetExpandedCommentary opens one commentary under a section, replacing any
// previously open one; an empty commentary ref closes the section.
func SetExpandedCommentary(st models.NavigationState, sectionRef, commentaryRef string) models.NavigationState {
	if st.ExpandedCommentary == nil {
		st.ExpandedCommentary = make(map[string]string)
	}
	if commentaryRef == "" {
		delete(st.ExpandedCommentary, sectionRef)
		return st
	}
	st.ExpandedCommentary[sectionRef] = commentaryRef
	return st
}
