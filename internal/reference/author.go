package reference

import "strings"

// Author is one person in a reference's author list.
type Author struct {
	First string `json:"first,omitempty" yaml:"first,omitempty"` // given name(s) or initials
	Last  string `json:"last" yaml:"last"`                        // family name
}

// String renders the author as "Last, First".
func (a Author) String() string {
	if a.First == "" {
		return a.Last
	}
	return a.Last + ", " + a.First
}

// FamilyKey is the lowercased family name used for author comparisons.
func (a Author) FamilyKey() string {
	return strings.ToLower(strings.TrimSpace(a.Last))
}
