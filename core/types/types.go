// Package types defines the core domain types shared by pricing and checkout.
package types

import "strings"

// ResourceKind identifies a metered resource with its own tier table
type ResourceKind string

const (
	// ResourceTokens is model usage, metered in blocks of one million tokens
	ResourceTokens ResourceKind = "tokens"

	// ResourceConsultationHours is expert consultation time
	ResourceConsultationHours ResourceKind = "consultationHours"

	// ResourceDevelopmentHours is contracted development time
	ResourceDevelopmentHours ResourceKind = "developmentHours"
)

// AllResourceKinds lists every kind in display order
var AllResourceKinds = []ResourceKind{
	ResourceTokens,
	ResourceConsultationHours,
	ResourceDevelopmentHours,
}

// String returns the string representation
func (k ResourceKind) String() string {
	return string(k)
}

// IsValid checks if the kind is known
func (k ResourceKind) IsValid() bool {
	for _, known := range AllResourceKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseResourceKind accepts canonical names case-insensitively plus snake_case aliases.
func ParseResourceKind(s string) (ResourceKind, bool) {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
	for _, known := range AllResourceKinds {
		if strings.ToLower(string(known)) == normalized {
			return known, true
		}
	}
	return "", false
}
