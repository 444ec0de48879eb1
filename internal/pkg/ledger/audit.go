package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/VipLedger/app/models"
)

const playerLogDir = "vip_logs"

// logFileName maps a player tag to a file name that stays inside the log
// directory. Tags come from payment metadata and may carry path separators
// or dot sequences, so anything outside a safe set becomes an underscore.
func logFileName(tag string) string {
	safe := []rune(tag)
	for i, r := range safe {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			safe[i] = '_'
		}
	}
	return string(safe) + ".txt"
}

// appendPlayerAudit writes a before/after snapshot of a player's rows to an
// append-only per-player log. Diagnostic only; write failures never fail the
// merge.
func appendPlayerAudit(tag string, before, after []models.VipRow) {
	if err := os.MkdirAll(playerLogDir, 0o755); err != nil {
		log.Errorf("[Ledger] creating %s: %v", playerLogDir, err)
		return
	}

	beforeJSON, err := json.MarshalIndent(before, "", "  ")
	if err != nil {
		log.Errorf("[Ledger] marshaling audit snapshot for %s: %v", tag, err)
		return
	}
	afterJSON, err := json.MarshalIndent(after, "", "  ")
	if err != nil {
		log.Errorf("[Ledger] marshaling audit snapshot for %s: %v", tag, err)
		return
	}

	path := filepath.Join(playerLogDir, logFileName(tag))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Errorf("[Ledger] opening %s: %v", path, err)
		return
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "Before result:\n%s\nAfter result:\n%s\n", beforeJSON, afterJSON); err != nil {
		log.Errorf("[Ledger] writing %s: %v", path, err)
	}
}
