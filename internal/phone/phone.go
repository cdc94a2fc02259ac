// Package phone normalizes contact numbers into the digits-only international form the provider expects.
package phone

import (
	"strings"

	"github.com/aniladanir/hospital-messenger-service/internal/domain"
)

const (
	localLength = 10
	minLength   = 12
	maxLength   = 15
)

type Normalizer struct {
	countryCode string
}

// NewNormalizer returns a normalizer that prefixes 10-digit local numbers with countryCode.
func NewNormalizer(countryCode string) *Normalizer {
	return &Normalizer{countryCode: Digits(countryCode)}
}

// Digits strips every non-digit character.
func Digits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Normalize returns the canonical number or domain.ErrInvalidPhone.
func (n *Normalizer) Normalize(raw string) (string, error) {
	d := Digits(raw)
	if len(d) == localLength {
		d = n.countryCode + d
	}
	if len(d) < minLength || len(d) > maxLength {
		return "", domain.ErrInvalidPhone
	}
	return d, nil
}

func (n *Normalizer) Valid(raw string) bool {
	_, err := n.Normalize(raw)
	return err == nil
}
