package types

import "strings"

// Address is the shipping snapshot captured on orders and subscriptions.
type Address struct {
	Name       string  `json:"name" validate:"required"`
	Phone      string  `json:"phone" validate:"required"`
	Email      string  `json:"email,omitempty" validate:"omitempty,email"`
	Line1      string  `json:"line1" validate:"required"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city" validate:"required"`
	Area       string  `json:"area,omitempty"`
	PostalCode string  `json:"postal_code,omitempty"`
	Country    string  `json:"country,omitempty"`
}

// Normalized trims every field and upper-cases the country code.
func (a Address) Normalized() Address {
	out := Address{
		Name:       strings.TrimSpace(a.Name),
		Phone:      strings.TrimSpace(a.Phone),
		Email:      strings.ToLower(strings.TrimSpace(a.Email)),
		Line1:      strings.TrimSpace(a.Line1),
		City:       strings.TrimSpace(a.City),
		Area:       strings.TrimSpace(a.Area),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(a.Country)),
	}
	if a.Line2 != nil {
		line2 := strings.TrimSpace(*a.Line2)
		if line2 != "" {
			out.Line2 = &line2
		}
	}
	return out
}

// SingleLine renders the address for courier payloads.
func (a Address) SingleLine() string {
	parts := []string{a.Line1}
	if a.Line2 != nil && *a.Line2 != "" {
		parts = append(parts, *a.Line2)
	}
	for _, p := range []string{a.Area, a.City, a.PostalCode, a.Country} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
