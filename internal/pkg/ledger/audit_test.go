package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/VipLedger/app/models"
)

func TestLogFileName(t *testing.T) {
	assert.Equal(t, "player1.txt", logFileName("player1"))
	assert.Equal(t, "El_Pibe.txt", logFileName("El Pibe"))
	assert.Equal(t, "___etc_passwd.txt", logFileName("../etc/passwd"))
	assert.Equal(t, "___config.txt", logFileName("..\\config"))
}

func TestAppendPlayerAuditStaysInLogDir(t *testing.T) {
	chdirTemp(t)

	appendPlayerAudit("../escape", nil, []models.VipRow{{Tag: "escape", VIP: 4}})

	_, err := os.Stat(filepath.Join(playerLogDir, "___escape.txt"))
	require.NoError(t, err)
	_, err = os.Stat("escape.txt")
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join("..", "escape.txt"))
	assert.True(t, os.IsNotExist(err))
}

// chdirTemp is a stand-in for t.Chdir (added in Go 1.24): it moves the test
// into a temp dir and restores the working directory on cleanup.
func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
