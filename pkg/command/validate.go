package command

import (
	"context"
	"errors"
	"strconv"

	"github.com/xenonsan/eagpaas/pkg/connect"
	"github.com/xenonsan/eagpaas/pkg/netcheck"
)

// HostValidator judges whether a destination host is safe and reachable.
type HostValidator interface {
	IsValidHost(ctx context.Context, host string) bool
}

// Policy holds the instance-wide destination rules. Every path that accepts a
// destination (router commands, /join, wizards) runs the same checks through
// ValidateDestination.
type Policy struct {
	// AllowCustomPorts permits an explicit port argument. When false, any
	// supplied port is rejected, even the default one.
	AllowCustomPorts bool

	// DisallowHypixel rejects hypixel.net destinations, which are known to
	// flag Eaglercraft clients.
	DisallowHypixel bool
}

// Destination validation failures, all user-recoverable.
var (
	ErrPortNotAllowed = errors.New("custom server ports are not allowed on this instance")
	ErrInvalidPort    = errors.New("the port must be a number between 1 and 65535")
	ErrHostBlocked    = errors.New("connections to Hypixel are refused: Hypixel is known to falsely flag Eaglercraft clients")
	ErrInvalidHost    = errors.New("that server address is not valid")
)

// ParsePort converts a user-supplied port argument.
func ParsePort(s string) (uint16, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 65535 {
		return 0, ErrInvalidPort
	}
	return uint16(n), nil
}

// ValidateDestination applies the port policy, the Hypixel block, and the
// host validator. portSupplied distinguishes an explicit port argument from
// the default; the policy only restricts explicit ones.
func ValidateDestination(ctx context.Context, v HostValidator, p Policy, host string, portSupplied bool) error {
	if portSupplied && !p.AllowCustomPorts {
		return ErrPortNotAllowed
	}
	if p.DisallowHypixel && netcheck.IsHypixel(host) {
		return ErrHostBlocked
	}
	if v != nil && !v.IsValidHost(ctx, host) {
		return ErrInvalidHost
	}
	return nil
}

// JoinUsage renders the /join usage string honoring the port policy.
func (p Policy) JoinUsage() string {
	if p.AllowCustomPorts {
		return "/join <host> [port]"
	}
	return "/join <host>"
}

// SwitchUsage renders the /eag-switchservers usage string.
func (p Policy) SwitchUsage() string {
	usage := "/eag-switchservers <mode: online|offline> <host>"
	if p.AllowCustomPorts {
		usage += " [port]"
	}
	return usage
}

// DefaultRequest builds a Request with the default port applied.
func DefaultRequest(host string, port uint16, mode connect.Type) *connect.Request {
	if port == 0 {
		port = connect.DefaultPort
	}
	return &connect.Request{Host: host, Port: port, Mode: mode}
}
