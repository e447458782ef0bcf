package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkglogger "github.com/kdlacuna/kainan/pkg/logger"
)

func testBootstrapLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestEnsureAdminAccount_RejectsWeakPassword(t *testing.T) {
	t.Setenv("ADMIN_EMAIL", "admin@example.com")
	t.Setenv("ADMIN_PASSWORD", "a")

	logger := testBootstrapLogger()
	// Validation runs before any storage access; a nil repository proves it.
	err := ensureAdminAccount(context.Background(), nil, pkglogger.NewAuditLogger(logger), logger)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADMIN_PASSWORD rejected")
}

func TestEnsureAdminAccount_RejectsDigitlessPassword(t *testing.T) {
	t.Setenv("ADMIN_EMAIL", "admin@example.com")
	t.Setenv("ADMIN_PASSWORD", "longenoughbutletters")

	logger := testBootstrapLogger()
	err := ensureAdminAccount(context.Background(), nil, pkglogger.NewAuditLogger(logger), logger)

	require.Error(t, err)
}

func TestEnsureAdminAccount_SkipsWhenUnset(t *testing.T) {
	t.Setenv("ADMIN_EMAIL", "")
	t.Setenv("ADMIN_PASSWORD", "")

	logger := testBootstrapLogger()
	err := ensureAdminAccount(context.Background(), nil, pkglogger.NewAuditLogger(logger), logger)

	assert.NoError(t, err)
}
