package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drive-ledger/internal/auth"
	"drive-ledger/internal/config"
)

func runToken(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("AUTH_JWT_SECRET", "test-secret")

	configPath := t.TempDir()
	cmd := newTokenCmd(&configPath)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestTokenCommand_User(t *testing.T) {
	token, err := runToken(t, "--user", "42")
	require.NoError(t, err)

	claims, err := auth.NewTokens("test-secret", "driveledger").Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.False(t, claims.IsAdmin())
}

func TestTokenCommand_Admin(t *testing.T) {
	token, err := runToken(t, "--admin", "--subject", "ops@example.com")
	require.NoError(t, err)

	claims, err := auth.NewTokens("test-secret", "driveledger").Verify(token)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin())
	assert.Equal(t, "ops@example.com", claims.Actor())
}

func TestTokenCommand_Validation(t *testing.T) {
	_, err := runToken(t)
	assert.ErrorContains(t, err, "--user")

	_, err = runToken(t, "--admin")
	assert.ErrorContains(t, err, "--subject")
}

func TestSetupLogging(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())

	setupLogging(config.LogConfig{Level: "WARN", Format: "json"})
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	setupLogging(config.LogConfig{Level: "bogus"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
