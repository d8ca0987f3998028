package schema

import (
	"net"
	"strconv"
	"strings"
)

// ProfileID identifies a saved connection profile.
type ProfileID string

// SessionID identifies one open (or attempted) remote shell session.
type SessionID string

// ThemeName identifies a UI theme.
type ThemeName string

const (
	// DefaultPort is the SSH port used when a profile leaves it unset.
	DefaultPort = 22
	// DefaultUsername is the login used when a profile leaves it unset.
	DefaultUsername = "root"
)

// Credential holds either a secret password or a private key file reference.
// When both are set the key is tried first.
type Credential struct {
	Password string
	KeyPath  string
}

// HasKey reports whether the credential references a private key file.
func (c Credential) HasKey() bool {
	return strings.TrimSpace(c.KeyPath) != ""
}

// Profile is a saved, reusable connection definition.
type Profile struct {
	ID         ProfileID
	Name       string
	Host       string
	Port       int
	Username   string
	Credential Credential
}

// Addr returns the host:port dial address.
func (p Profile) Addr() string {
	port := p.Port
	if port <= 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(p.Host, strconv.Itoa(port))
}

// Label returns the user-facing profile name.
func (p Profile) Label() string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	if p.Username != "" {
		return p.Username + "@" + p.Host
	}
	return p.Host
}

// ProfileFields carries a partial profile update. Nil fields are left untouched.
type ProfileFields struct {
	Name     *string
	Host     *string
	Port     *int
	Username *string
	Password *string
	KeyPath  *string
}

// Apply returns p with the non-nil fields applied.
func (f ProfileFields) Apply(p Profile) Profile {
	if f.Name != nil {
		p.Name = *f.Name
	}
	if f.Host != nil {
		p.Host = *f.Host
	}
	if f.Port != nil {
		p.Port = *f.Port
	}
	if f.Username != nil {
		p.Username = *f.Username
	}
	if f.Password != nil {
		p.Credential.Password = *f.Password
	}
	if f.KeyPath != nil {
		p.Credential.KeyPath = *f.KeyPath
	}
	return p
}

// Zone is one of the two mutually exclusive keyboard focus targets.
type Zone string

const (
	// ZoneList routes keys to the profile list.
	ZoneList Zone = "list"
	// ZoneContent routes keys to the active session.
	ZoneContent Zone = "content"
)
