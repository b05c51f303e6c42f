// Package label defines the structural roles a citation token can take.
package label

import "fmt"

// Label is the structural role assigned to a single token.
type Label uint8

// The label set is closed. Order matters: it is the row/column order of the
// model's weight matrices and is persisted in model files.
const (
	Author Label = iota
	Title
	Year
	Journal
	Publisher
	Pages
	Volume
	Other
)

// Count is the number of labels.
const Count = int(Other) + 1

var names = [Count]string{
	Author:    "author",
	Title:     "title",
	Year:      "year",
	Journal:   "journal",
	Publisher: "publisher",
	Pages:     "pages",
	Volume:    "volume",
	Other:     "other",
}

// All returns every label in matrix order.
func All() []Label {
	out := make([]Label, Count)
	for i := range out {
		out[i] = Label(i)
	}
	return out
}

// String returns the field name used for the label.
func (l Label) String() string {
	if int(l) < Count {
		return names[l]
	}
	return fmt.Sprintf("label(%d)", uint8(l))
}

// Valid reports whether l is one of the defined labels.
func (l Label) Valid() bool {
	return int(l) < Count
}

// Parse converts a field name into a Label.
func Parse(s string) (Label, error) {
	for i, n := range names {
		if n == s {
			return Label(i), nil
		}
	}
	return Other, fmt.Errorf("unknown label: %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (l Label) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid label %d", uint8(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Label) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
