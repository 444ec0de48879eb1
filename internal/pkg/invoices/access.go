package invoices

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/ManuelReschke/VipLedger/app/models"
	"github.com/ManuelReschke/VipLedger/internal/pkg/env"
	"github.com/ManuelReschke/VipLedger/internal/pkg/tenant"
)

// AccessLevel gates how much of a tenant's payment history a credential can
// read. The default level only sees administrative purchases.
type AccessLevel int

const (
	// AccessDefault sees administrative purchases only.
	AccessDefault AccessLevel = iota
	// AccessStaff sees administrative purchases and passes the panel check
	// from an allowed host.
	AccessStaff
	// AccessFull sees every payment row.
	AccessFull
)

// ResolveAccess maps a plaintext credential to an access level by comparing
// it against the bcrypt hashes configured in LEDGER_ADMIN_HASH and
// LEDGER_STAFF_HASH. Missing hashes simply never match.
func ResolveAccess(credential string) AccessLevel {
	if credential == "" {
		return AccessDefault
	}
	if matchesHash(env.GetEnv("LEDGER_ADMIN_HASH", ""), credential) {
		return AccessFull
	}
	if matchesHash(env.GetEnv("LEDGER_STAFF_HASH", ""), credential) {
		return AccessStaff
	}
	return AccessDefault
}

func matchesHash(hash, credential string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(credential)) == nil
}

// VerifyAccess answers the web panels' login probe. Full credentials pass
// from anywhere; staff credentials only pass when the request's referer host
// is on the LEDGER_STAFF_HOSTS allow list.
func VerifyAccess(credential, referer string) bool {
	switch ResolveAccess(credential) {
	case AccessFull:
		return true
	case AccessStaff:
		return refererAllowed(referer)
	default:
		return false
	}
}

func refererAllowed(referer string) bool {
	allowed := env.GetEnv("LEDGER_STAFF_HOSTS", "")
	if allowed == "" || referer == "" {
		return false
	}
	u, err := url.Parse(referer)
	if err != nil || u.Hostname() == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range strings.Split(allowed, ",") {
		if strings.ToLower(strings.TrimSpace(h)) == host {
			return true
		}
	}
	return false
}

// Payments lists a tenant's payment history. byMonth selects the month view
// (n is a month number) over the recency view (n is a row limit). Credentials
// below full access only see administrative purchases.
func (s *Service) Payments(ctx context.Context, byMonth bool, n int, svname, credential string) ([]models.Payment, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative selector %d", ErrInvalidRequest, n)
	}
	if byMonth && (n < 1 || n > 12) {
		return nil, fmt.Errorf("%w: month %d out of range", ErrInvalidRequest, n)
	}

	level := ResolveAccess(credential)
	adminOnly := level != AccessFull

	repo, release, err := s.open(tenant.PaymentsStore(svname))
	if err != nil {
		return nil, err
	}
	defer release()

	if byMonth {
		return repo.PaymentsByMonth(n, adminOnly)
	}
	if n == 0 {
		n = 50
	}
	if adminOnly {
		log.Infof("[Payments] restricted listing for tenant %s", svname)
	}
	return repo.RecentPayments(n, adminOnly)
}
