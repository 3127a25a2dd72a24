package store

import "time"

// PairingStatus is the lifecycle state of a device pairing request (spec §4.10).
type PairingStatus string

const (
	PairingPending  PairingStatus = "pending"
	PairingApproved PairingStatus = "approved"
	PairingRejected PairingStatus = "rejected"
	PairingExpired  PairingStatus = "expired"
	PairingRevoked  PairingStatus = "revoked"
)

// PairingRequest is a persisted device/channel pairing request or, once
// approved, the paired device's record.
type PairingRequest struct {
	Code       string        `json:"code"`
	SenderID   string        `json:"senderId"`
	Channel    string        `json:"channel"`
	ChannelID  string        `json:"channelId,omitempty"`
	AgentID    string        `json:"agentId,omitempty"`
	Status     PairingStatus `json:"status"`
	Token      string        `json:"token,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
	ExpiresAt  time.Time     `json:"expiresAt"`
	ApprovedBy string        `json:"approvedBy,omitempty"`
}

// PairingStore persists device pairing requests and the approved pairings
// derived from them. Channels call IsPaired/RequestPairing directly; the
// gateway's pairing RPC methods drive the rest (spec §4.10).
type PairingStore interface {
	// IsPaired reports whether senderID on channel has an approved pairing.
	IsPaired(senderID, channel string) bool
	// RequestPairing creates (or refreshes) a pending pairing request and
	// returns its human-readable code.
	RequestPairing(senderID, channel, channelID, agentID string) (code string, err error)

	List() ([]*PairingRequest, error)
	Get(code string) (*PairingRequest, error)

	// Approve marks a pending request approved, mints an access token for it,
	// and returns the minted token.
	Approve(code, approvedBy string) (token string, err error)
	Reject(code string) error
	// RotateToken mints a new token for an already-approved pairing.
	RotateToken(code string) (token string, err error)
	RevokeToken(code string) error

	// SetOnApprove registers a hook invoked after a pairing request transitions to approved.
	SetOnApprove(handler func(req *PairingRequest))
}
