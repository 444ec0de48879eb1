package tenant

import (
	"errors"
	"fmt"
	"sort"
)

// StoreID identifies one physical tenant data store as configured in tenantdb.
type StoreID int

const StoreNone StoreID = -1

var ErrUnknownTenant = errors.New("unknown tenant")

// instanceStores maps (tenant name, instance number) to the entitlement store
// for that instance. Unknown combinations fail closed.
var instanceStores = map[string]map[int]StoreID{
	"ps":     {0: 0, 1: 1, 2: 5, 3: 6},
	"tcs":    {0: 2, 1: 3},
	"brick":  {0: 4},
	"gaming": {0: 7},
	"vs":     {0: 8},
	"cg":     {0: 11},
	"test":   {0: 12},
}

// paymentStores maps a tenant name to the store holding its payment ledger.
// Payments are billed per tenant, not per instance.
var paymentStores = map[string]StoreID{
	"ps":     1,
	"tcs":    2,
	"brick":  4,
	"gaming": 7,
	"vs":     8,
	"cg":     11,
}

var prefixes = map[string]string{
	"ps":     "[PS]",
	"tcs":    "[TCS]",
	"brick":  "[BG]",
	"gaming": "[GG]",
	"cg":     "[CG]",
	"vs":     "[VS]",
}

var instanceNames = map[string][]string{
	"ps":     {"PUBLICO", "PUB FRUTA", "", "PUBLICO II"},
	"tcs":    {"PUBLICO"},
	"brick":  {"PUBLICO", "AUTOMIX #1", "AUTOMIX #2"},
	"gaming": {"PUBLICO"},
	"cg":     {"PUBLICO"},
	"vs":     {"PUBLICO"},
}

// BillingTenant is one entry of the statically configured balance aggregation
// list: tenant name, human readable name and its payment store.
type BillingTenant struct {
	Name        string
	DisplayName string
	Store       StoreID
}

var billingTenants = []BillingTenant{
	{Name: "ps", DisplayName: "Patagonia Strike", Store: 1},
	{Name: "tcs", DisplayName: "Taringa CS", Store: 2},
	{Name: "brick", DisplayName: "BrickGame", Store: 4},
	{Name: "gaming", DisplayName: "Gaming Group", Store: 7},
	{Name: "vs", DisplayName: "Vieja School", Store: 8},
	{Name: "cg", DisplayName: "Classic Gamers", Store: 11},
}

// Resolve maps a (tenant name, instance number) pair to its entitlement store.
func Resolve(name string, instance int) (StoreID, error) {
	group, ok := instanceStores[name]
	if !ok {
		return StoreNone, fmt.Errorf("%w: %s", ErrUnknownTenant, name)
	}
	id, ok := group[instance]
	if !ok {
		return StoreNone, fmt.Errorf("%w: %s instance %d", ErrUnknownTenant, name, instance)
	}
	return id, nil
}

// PaymentsStore resolves a tenant name to the store holding its payment
// records. Unrecognized names fall back to the ps store; the legacy web
// panels omit the tenant name for the original single-tenant deployment.
func PaymentsStore(name string) StoreID {
	if id, ok := paymentStores[name]; ok {
		return id
	}
	return paymentStores["ps"]
}

// Prefix returns the line-item prefix for a tenant, e.g. "[PS]".
func Prefix(name string) string {
	return prefixes[name]
}

// InstanceName returns the display name of a tenant instance, e.g. "PUBLICO".
func InstanceName(name string, instance int) string {
	names, ok := instanceNames[name]
	if !ok || instance < 0 || instance >= len(names) {
		return ""
	}
	return names[instance]
}

// Names returns all known tenant names.
func Names() []string {
	out := make([]string, 0, len(instanceStores))
	for name := range instanceStores {
		out = append(out, name)
	}
	return out
}

// EntitlementStores returns every distinct entitlement store across all
// tenant instances, in ascending order. The test tenant is excluded; its
// store carries no player scores.
func EntitlementStores() []StoreID {
	seen := make(map[StoreID]struct{})
	var out []StoreID
	for name, group := range instanceStores {
		if name == "test" {
			continue
		}
		for _, id := range group {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BillingTenants returns the fixed list of tenants included in balance
// aggregation, in display order.
func BillingTenants() []BillingTenant {
	return billingTenants
}

// Validate checks every mapping target against the configured store list.
// It is called once at startup so that unknown mappings fail closed before
// any request hits them.
func Validate(configured []StoreID) error {
	known := make(map[StoreID]struct{}, len(configured))
	for _, id := range configured {
		known[id] = struct{}{}
	}

	for name, group := range instanceStores {
		for instance, id := range group {
			if _, ok := known[id]; !ok {
				return fmt.Errorf("tenant %s instance %d maps to unconfigured store %d", name, instance, id)
			}
		}
	}
	for name, id := range paymentStores {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("tenant %s payments map to unconfigured store %d", name, id)
		}
	}
	for _, bt := range billingTenants {
		if _, ok := known[bt.Store]; !ok {
			return fmt.Errorf("billing tenant %s maps to unconfigured store %d", bt.Name, bt.Store)
		}
	}
	return nil
}
