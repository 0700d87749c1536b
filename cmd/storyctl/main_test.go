package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playperu/storyline/internal/session"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestContentValidate(t *testing.T) {
	out, err := execute(t, "content", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "chapter 1")
	assert.Contains(t, out, "chapter 5")
	assert.Contains(t, out, "content OK")
}

func TestContentValidateBadDir(t *testing.T) {
	_, err := execute(t, "content", "validate", "--dir", filepath.Join(os.TempDir(), "storyline-missing-"+uuid.NewString()))
	assert.Error(t, err)
}

func TestTokenIssue(t *testing.T) {
	user := uuid.New()
	out, err := execute(t, "token", "issue", "--secret", "dev-secret", "--user", user.String())
	require.NoError(t, err)

	v, err := session.NewVerifier("dev-secret", "", slog.Default())
	require.NoError(t, err)
	got, err := v.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, user, got)
}

func TestTokenIssueNeedsSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := execute(t, "token", "issue")
	assert.ErrorContains(t, err, "no secret")
}

func TestRemoteNeedsDSN(t *testing.T) {
	t.Setenv("REMOTE_DSN", "")
	_, err := execute(t, "remote", "migrate")
	assert.ErrorContains(t, err, "REMOTE_DSN")
}

func TestDeviceRegister(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "device", "register", "--db-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "device ")
	assert.FileExists(t, filepath.Join(dir, "devices.db"))
}
