package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenonsan/eagpaas/pkg/connect"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

func TestResumeRoundTrip(t *testing.T) {
	issuer := NewResumeIssuer(testSigningKey, time.Hour)
	require.True(t, issuer.Enabled())

	token, err := issuer.Issue("steve", connect.Request{
		Host: "mc.example.com", Port: 25570, Mode: connect.Offline,
	})
	require.NoError(t, err)

	req, username, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "steve", username)
	assert.Equal(t, "mc.example.com", req.Host)
	assert.Equal(t, uint16(25570), req.Port)
	assert.Equal(t, connect.Offline, req.Mode)
	assert.Nil(t, req.Credential)
}

func TestResumeZeroPortGetsDefault(t *testing.T) {
	issuer := NewResumeIssuer(testSigningKey, time.Hour)

	token, err := issuer.Issue("steve", connect.Request{Host: "mc.example.com", Mode: connect.Online})
	require.NoError(t, err)

	req, _, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, connect.DefaultPort, req.Port)
}

func TestResumeRejectsWrongKey(t *testing.T) {
	issuer := NewResumeIssuer(testSigningKey, time.Hour)
	other := NewResumeIssuer("another-signing-key-of-32-bytes!", time.Hour)

	token, err := issuer.Issue("steve", connect.Request{Host: "mc.example.com", Port: 25565, Mode: connect.Offline})
	require.NoError(t, err)

	_, _, err = other.Parse(token)
	assert.Error(t, err)
}

func TestResumeRejectsExpiredToken(t *testing.T) {
	issuer := NewResumeIssuer(testSigningKey, time.Hour)

	issued := time.Now()
	issuer.now = func() time.Time { return issued }
	token, err := issuer.Issue("steve", connect.Request{Host: "mc.example.com", Port: 25565, Mode: connect.Offline})
	require.NoError(t, err)

	issuer.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, _, err = issuer.Parse(token)
	assert.Error(t, err)
}

func TestResumeRejectsGarbage(t *testing.T) {
	issuer := NewResumeIssuer(testSigningKey, time.Hour)
	_, _, err := issuer.Parse("not-a-jwt")
	assert.Error(t, err)
}

func TestResumeDisabledWithoutKey(t *testing.T) {
	issuer := NewResumeIssuer("", time.Hour)
	assert.False(t, issuer.Enabled())

	_, err := issuer.Issue("steve", connect.Request{Host: "mc.example.com"})
	assert.ErrorIs(t, err, ErrResumeDisabled)

	_, _, err = issuer.Parse("anything")
	assert.ErrorIs(t, err, ErrResumeDisabled)
}
