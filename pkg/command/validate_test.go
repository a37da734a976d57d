package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePort(t *testing.T) {
	p, err := ParsePort("25565")
	require.NoError(t, err)
	assert.Equal(t, uint16(25565), p)

	for _, bad := range []string{"0", "-1", "65536", "port", "", "25565.0"} {
		_, err := ParsePort(bad)
		assert.ErrorIs(t, err, ErrInvalidPort, "input %q", bad)
	}
}

func TestValidateDestinationPortPolicy(t *testing.T) {
	ctx := context.Background()

	err := ValidateDestination(ctx, allowAll{}, Policy{AllowCustomPorts: false}, "mc.example.com", true)
	assert.ErrorIs(t, err, ErrPortNotAllowed)

	assert.NoError(t, ValidateDestination(ctx, allowAll{}, Policy{AllowCustomPorts: false}, "mc.example.com", false))
	assert.NoError(t, ValidateDestination(ctx, allowAll{}, Policy{AllowCustomPorts: true}, "mc.example.com", true))
}

func TestValidateDestinationHypixel(t *testing.T) {
	ctx := context.Background()
	policy := Policy{DisallowHypixel: true}

	assert.ErrorIs(t, ValidateDestination(ctx, allowAll{}, policy, "hypixel.net", false), ErrHostBlocked)
	assert.ErrorIs(t, ValidateDestination(ctx, allowAll{}, policy, "mc.hypixel.net", false), ErrHostBlocked)
	assert.NoError(t, ValidateDestination(ctx, allowAll{}, policy, "mc.example.com", false))

	// Allowed when the policy does not care.
	assert.NoError(t, ValidateDestination(ctx, allowAll{}, Policy{}, "hypixel.net", false))
}

func TestValidateDestinationHostValidator(t *testing.T) {
	ctx := context.Background()

	assert.ErrorIs(t, ValidateDestination(ctx, denyAll{}, Policy{}, "mc.example.com", false), ErrInvalidHost)
	assert.NoError(t, ValidateDestination(ctx, nil, Policy{}, "mc.example.com", false))
}

func TestUsageStringsHonorPortPolicy(t *testing.T) {
	assert.Equal(t, "/join <host>", Policy{}.JoinUsage())
	assert.Equal(t, "/join <host> [port]", Policy{AllowCustomPorts: true}.JoinUsage())
	assert.Equal(t, "/eag-switchservers <mode: online|offline> <host>", Policy{}.SwitchUsage())
	assert.Equal(t, "/eag-switchservers <mode: online|offline> <host> [port]", Policy{AllowCustomPorts: true}.SwitchUsage())
}

func TestDefaultRequestAppliesDefaultPort(t *testing.T) {
	req := DefaultRequest("mc.example.com", 0, "ONLINE")
	assert.Equal(t, uint16(25565), req.Port)

	req = DefaultRequest("mc.example.com", 25570, "ONLINE")
	assert.Equal(t, uint16(25570), req.Port)
}
