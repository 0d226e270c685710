package market

import (
	"fmt"
	"strconv"
	"strings"
)

// Restriction is the legality code attached to an availability rating.
type Restriction string

const (
	RestrictionNone       Restriction = ""
	RestrictionRestricted Restriction = "R"
	RestrictionForbidden  Restriction = "F"
)

var restrictionSeverity = map[Restriction]int{
	RestrictionNone:       0,
	RestrictionRestricted: 1,
	RestrictionForbidden:  2,
}

// ParseRestriction validates a restriction letter.
func ParseRestriction(raw string) (Restriction, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "":
		return RestrictionNone, nil
	case "R":
		return RestrictionRestricted, nil
	case "F":
		return RestrictionForbidden, nil
	}
	return RestrictionNone, fmt.Errorf("%w: unknown restriction %q", ErrInvalidAvailability, raw)
}

// String returns the restriction letter ("" for unrestricted).
func (restriction Restriction) String() string {
	return string(restriction)
}

// Availability is an immutable numeric rating plus restriction code.
type Availability struct {
	Numeric     int
	Restriction Restriction
}

// NewAvailability validates an availability rating.
func NewAvailability(numeric int, restriction Restriction) (Availability, error) {
	if numeric < 0 {
		return Availability{}, fmt.Errorf("%w: numeric must be >= 0", ErrInvalidAvailability)
	}
	if _, known := restrictionSeverity[restriction]; !known {
		return Availability{}, fmt.Errorf("%w: unknown restriction %q", ErrInvalidAvailability, restriction)
	}
	return Availability{Numeric: numeric, Restriction: restriction}, nil
}

// ParseAvailability decodes the "<digits><optional letter>" wire form.
// Unparsable input degrades to the zero rating rather than failing, matching
// how the sheet data treats blank or malformed availability strings.
func ParseAvailability(raw string) Availability {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Availability{}
	}
	digits := trimmed
	letter := ""
	if last := trimmed[len(trimmed)-1]; last < '0' || last > '9' {
		digits = trimmed[:len(trimmed)-1]
		letter = trimmed[len(trimmed)-1:]
	}
	numeric, err := strconv.Atoi(digits)
	if err != nil || numeric < 0 {
		return Availability{}
	}
	restriction, err := ParseRestriction(letter)
	if err != nil {
		return Availability{}
	}
	return Availability{Numeric: numeric, Restriction: restriction}
}

// String re-encodes the wire form; ParseAvailability(a.String()) == a.
func (availability Availability) String() string {
	return strconv.Itoa(availability.Numeric) + availability.Restriction.String()
}

// CombineAvailability aggregates ratings: numerics sum, the restriction is the
// highest severity present. An empty input combines to the zero rating.
func CombineAvailability(ratings []Availability) Availability {
	combined := Availability{}
	for _, rating := range ratings {
		combined.Numeric += rating.Numeric
		if restrictionSeverity[rating.Restriction] > restrictionSeverity[combined.Restriction] {
			combined.Restriction = rating.Restriction
		}
	}
	return combined
}
