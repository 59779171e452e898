package metadata

import "fmt"

// ValidateValue rejects values containing control characters (runes < 0x20
// or == 0x7F), which the archive would store verbatim.
func ValidateValue(s string) error {
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			return fmt.Errorf("value %q contains invalid control character", s)
		}
	}
	return nil
}

func validateEntries(entries []Entry) error {
	for _, e := range entries {
		if e.Attribute == "" {
			return fmt.Errorf("entry with value %q has no attribute", e.Value)
		}
		if err := ValidateValue(e.Attribute); err != nil {
			return fmt.Errorf("attribute: %w", err)
		}
		if err := ValidateValue(e.Value); err != nil {
			return fmt.Errorf("attribute %s: %w", e.Attribute, err)
		}
	}
	return nil
}
