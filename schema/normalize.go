package schema

import (
	"fmt"
	"strings"
	"unicode"
)

// NormalizeProfile trims fields, applies defaults and validates the result.
// Name and host are required; the port must be within 1..65535.
func NormalizeProfile(p Profile) (Profile, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Host = strings.TrimSpace(p.Host)
	p.Username = strings.TrimSpace(p.Username)
	p.Credential.KeyPath = strings.TrimSpace(p.Credential.KeyPath)
	if p.Name == "" {
		return p, fmt.Errorf("%w: name is required", ErrInvalidProfile)
	}
	if p.Host == "" {
		return p, fmt.Errorf("%w: host is required", ErrInvalidProfile)
	}
	if strings.IndexFunc(p.Host, unicode.IsSpace) >= 0 {
		return p, fmt.Errorf("%w: host must not contain whitespace", ErrInvalidProfile)
	}
	if p.Port == 0 {
		p.Port = DefaultPort
	}
	if p.Port < 1 || p.Port > 65535 {
		return p, fmt.Errorf("%w: port %d out of range", ErrInvalidProfile, p.Port)
	}
	if p.Username == "" {
		p.Username = DefaultUsername
	}
	return p, nil
}
