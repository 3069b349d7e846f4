// Package pattern searches program binaries for fixed byte markers.
package pattern

import "bytes"

const (
	// AnchorIDLSeed is both a marker and the seed Anchor uses for the IDL account.
	AnchorIDLSeed = "anchor:idl"
	// IdlCreateAccount is the name of Anchor's IDL bootstrap instruction.
	IdlCreateAccount = "IdlCreateAccount"
)

// Marker is a literal byte sequence with a display name.
type Marker struct {
	Name  string
	Bytes []byte
}

// MarkerSet is an ordered list of markers that must all be present.
type MarkerSet []Marker

// DefaultMarkers returns the markers left in a binary by Anchor's IDL instructions.
func DefaultMarkers() MarkerSet {
	return MarkerSet{
		{Name: AnchorIDLSeed, Bytes: []byte(AnchorIDLSeed)},
		{Name: IdlCreateAccount, Bytes: []byte(IdlCreateAccount)},
	}
}

// Match is the outcome for one marker.
type Match struct {
	Marker Marker
	Found  bool
}

// MarkerResult holds one Match per marker, in set order.
type MarkerResult []Match

// All reports whether every marker was found. An empty result is false.
func (r MarkerResult) All() bool {
	if len(r) == 0 {
		return false
	}
	for _, m := range r {
		if !m.Found {
			return false
		}
	}
	return true
}

// Found looks up a marker by name.
func (r MarkerResult) Found(name string) bool {
	for _, m := range r {
		if m.Marker.Name == name {
			return m.Found
		}
	}
	return false
}

// Contains reports whether marker occurs as a contiguous byte run in buf. It is an exact,
// case-sensitive comparison. An empty marker occurs in every buffer, including an empty one.
func Contains(buf, marker []byte) bool {
	if len(buf) < len(marker) {
		return false
	}
	return bytes.Contains(buf, marker)
}

// Scan runs Contains once per marker.
func Scan(buf []byte, set MarkerSet) MarkerResult {
	result := make(MarkerResult, 0, len(set))
	for _, m := range set {
		result = append(result, Match{Marker: m, Found: Contains(buf, m.Bytes)})
	}
	return result
}
