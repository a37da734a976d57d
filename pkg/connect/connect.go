// Package connect defines the destination and identity types shared by the
// onboarding flow, the command router, and the bookmark store.
package connect

import (
	"net"
	"strconv"
	"strings"
	"time"
)

// DefaultPort is the standard Minecraft server port.
const DefaultPort uint16 = 25565

// Type is the authentication mode used against the backend server.
type Type string

const (
	// Online authenticates with a Mojang/Microsoft account.
	Online Type = "ONLINE"

	// Offline joins with the client's own username, unauthenticated.
	Offline Type = "OFFLINE"

	// TheAltening authenticates with a shared-pool alt token.
	TheAltening Type = "THEALTENING"
)

// Valid reports whether t is one of the known connect types.
func (t Type) Valid() bool {
	switch t {
	case Online, Offline, TheAltening:
		return true
	}
	return false
}

// ParseType maps a user-supplied mode keyword to a Type.
// It accepts any casing and returns false for unknown keywords.
func ParseType(s string) (Type, bool) {
	switch Type(strings.ToUpper(s)) {
	case Online:
		return Online, true
	case Offline:
		return Offline, true
	case TheAltening:
		return TheAltening, true
	}
	return "", false
}

// Credential is the opaque bundle produced by a successful online or
// TheAltening authentication. It is cached on the session and reused across
// in-session server switches.
type Credential struct {
	// Username is the profile name the backend sees.
	Username string

	// ProfileID is the Minecraft profile UUID (no dashes).
	ProfileID string

	// AccessToken authenticates against the backend's session services.
	AccessToken string

	// ClientToken pairs with AccessToken for Yggdrasil-style servers.
	ClientToken string

	// ExpiresOn is when the credential stops being usable.
	ExpiresOn time.Time

	// TheAltening marks credentials minted by the alt-token exchange.
	TheAltening bool
}

// Request is a fully resolved switch destination. It is produced once by the
// command router or a wizard and consumed exactly once by the switch
// coordinator.
type Request struct {
	Host       string
	Port       uint16
	Mode       Type
	Credential *Credential
}

// Addr renders the destination as host:port for messages and logs.
func (r Request) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(int(r.Port)))
}
