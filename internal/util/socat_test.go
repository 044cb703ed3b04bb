package util

import (
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSocatManager_MissingBinary(t *testing.T) {
	m := NewSocatManager(zaptest.NewLogger(t))
	m.command = "lorafall-no-such-socat"
	dir := t.TempDir()
	err := m.CreatePair(filepath.Join(dir, "a"), filepath.Join(dir, "b"), time.Second)
	assert.Error(t, err)
	assert.Empty(t, m.Links())
	m.Cleanup()
	m.Cleanup()
}

func TestSocatManager_CreatePair(t *testing.T) {
	if _, err := exec.LookPath("socat"); err != nil {
		t.Skip("socat not installed")
	}
	m := NewSocatManager(zaptest.NewLogger(t))
	dir := t.TempDir()
	left, right := filepath.Join(dir, "ttyA"), filepath.Join(dir, "ttyB")
	require.NoError(t, m.CreatePair(left, right, 3*time.Second))
	assert.Equal(t, []string{left, right}, m.Links())
	assert.True(t, linkExists(left))

	m.Cleanup()
	assert.False(t, linkExists(left))
	assert.Error(t, m.CreatePair(left, right, time.Second))
}
