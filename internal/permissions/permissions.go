// Package permissions implements the gateway's role-based RPC access
// control: a small set of methods (device pairing approval, cron
// management, config writes) are restricted to configured owner IDs.
package permissions

// Role is a coarse authorization level for an authenticated client.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleDevice Role = "device"
	RoleGuest  Role = "guest"
)

// ownerOnlyMethods lists RPC methods that require RoleOwner.
var ownerOnlyMethods = map[string]bool{
	"device.pair.approve": true,
	"device.pair.revoke":  true,
	"cron.create":         true,
	"cron.update":         true,
	"cron.delete":         true,
	"config.apply":        true,
	"config.patch":        true,
	"agents.create":       true,
	"agents.update":       true,
	"agents.delete":       true,
}

// PolicyEngine decides whether a given sender ID is an owner and whether a
// role may call a given RPC method.
type PolicyEngine struct {
	ownerIDs map[string]bool
}

// NewPolicyEngine builds a PolicyEngine treating any sender ID in ownerIDs
// as RoleOwner. An empty ownerIDs list means everyone is treated as an
// owner (single-user/local-dev default).
func NewPolicyEngine(ownerIDs []string) *PolicyEngine {
	set := make(map[string]bool, len(ownerIDs))
	for _, id := range ownerIDs {
		set[id] = true
	}
	return &PolicyEngine{ownerIDs: set}
}

// IsOwner reports whether id is configured as an owner.
func (p *PolicyEngine) IsOwner(id string) bool {
	if len(p.ownerIDs) == 0 {
		return true
	}
	return p.ownerIDs[id]
}

// RoleFor resolves the role for a sender ID.
func (p *PolicyEngine) RoleFor(id string) Role {
	if p.IsOwner(id) {
		return RoleOwner
	}
	return RoleGuest
}

// Allow reports whether role may invoke method.
func (p *PolicyEngine) Allow(role Role, method string) bool {
	if !ownerOnlyMethods[method] {
		return true
	}
	return role == RoleOwner
}
