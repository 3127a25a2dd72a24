// Package pairing implements device/channel pairing (spec §4.10): a sender
// with no paired session gets a short human-readable code to read out to the
// bot owner, who approves it out-of-band (an RPC call today; a "pairing
// approve" CLI command in earlier builds). Approval mints a bearer token the
// store treats as proof of pairing from then on.
package pairing

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nextlevelbuilder/agentgate/internal/store"
)

const (
	codeAlphabet  = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ" // no 0/O/1/I
	codeLength    = 6
	requestTTL    = 15 * time.Minute
	tokenByteSize = 32
)

// Service is a JSON-file-backed PairingStore implementation.
type Service struct {
	path string

	mu       sync.Mutex
	requests map[string]*store.PairingRequest // keyed by code
	onApprove func(req *store.PairingRequest)
}

func NewService(path string) *Service {
	s := &Service{path: path, requests: make(map[string]*store.PairingRequest)}
	s.load()
	return s
}

func (s *Service) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var reqs []*store.PairingRequest
	if err := json.Unmarshal(data, &reqs); err != nil {
		return
	}
	for _, r := range reqs {
		s.requests[r.Code] = r
	}
}

func (s *Service) saveLocked() error {
	reqs := make([]*store.PairingRequest, 0, len(s.requests))
	for _, r := range s.requests {
		reqs = append(reqs, r)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(reqs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

func (s *Service) SetOnApprove(handler func(req *store.PairingRequest)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onApprove = handler
}

// IsPaired reports whether senderID has an approved, non-revoked pairing on channel.
func (s *Service) IsPaired(senderID, channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if r.SenderID == senderID && r.Channel == channel && r.Status == store.PairingApproved {
			return true
		}
	}
	return false
}

// RequestPairing returns the existing pending code for senderID/channel if
// one hasn't expired, otherwise mints a fresh one.
func (s *Service) RequestPairing(senderID, channel, channelID, agentID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, r := range s.requests {
		if r.SenderID == senderID && r.Channel == channel && r.Status == store.PairingPending && now.Before(r.ExpiresAt) {
			return r.Code, nil
		}
	}

	code, err := s.newCode()
	if err != nil {
		return "", err
	}
	req := &store.PairingRequest{
		Code:      code,
		SenderID:  senderID,
		Channel:   channel,
		ChannelID: channelID,
		AgentID:   agentID,
		Status:    store.PairingPending,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(requestTTL),
	}
	s.requests[code] = req
	if err := s.saveLocked(); err != nil {
		return "", err
	}
	return code, nil
}

func (s *Service) newCode() (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		buf := make([]byte, codeLength)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		code := make([]byte, codeLength)
		for i, b := range buf {
			code[i] = codeAlphabet[int(b)%len(codeAlphabet)]
		}
		if _, exists := s.requests[string(code)]; !exists {
			return string(code), nil
		}
	}
	return "", fmt.Errorf("pairing: failed to generate unique code")
}

func (s *Service) List() ([]*store.PairingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()
	out := make([]*store.PairingRequest, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, r)
	}
	return out, nil
}

func (s *Service) Get(code string) (*store.PairingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()
	r, ok := s.requests[code]
	if !ok {
		return nil, fmt.Errorf("pairing code %q not found", code)
	}
	return r, nil
}

// expireLocked transitions TTL-elapsed pending requests to expired. Callers must hold s.mu.
func (s *Service) expireLocked() {
	now := time.Now()
	changed := false
	for _, r := range s.requests {
		if r.Status == store.PairingPending && now.After(r.ExpiresAt) {
			r.Status = store.PairingExpired
			r.UpdatedAt = now
			changed = true
		}
	}
	if changed {
		_ = s.saveLocked()
	}
}

func (s *Service) Approve(code, approvedBy string) (string, error) {
	s.mu.Lock()
	r, ok := s.requests[code]
	if !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("pairing code %q not found", code)
	}
	if r.Status != store.PairingPending {
		s.mu.Unlock()
		return "", fmt.Errorf("pairing code %q is not pending (status=%s)", code, r.Status)
	}
	token, err := newToken()
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	r.Status = store.PairingApproved
	r.Token = token
	r.ApprovedBy = approvedBy
	r.UpdatedAt = time.Now()
	if err := s.saveLocked(); err != nil {
		s.mu.Unlock()
		return "", err
	}
	handler := s.onApprove
	s.mu.Unlock()

	if handler != nil {
		handler(r)
	}
	return token, nil
}

func (s *Service) Reject(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[code]
	if !ok {
		return fmt.Errorf("pairing code %q not found", code)
	}
	r.Status = store.PairingRejected
	r.UpdatedAt = time.Now()
	return s.saveLocked()
}

func (s *Service) RotateToken(code string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[code]
	if !ok {
		return "", fmt.Errorf("pairing code %q not found", code)
	}
	if r.Status != store.PairingApproved {
		return "", fmt.Errorf("pairing code %q is not approved", code)
	}
	token, err := newToken()
	if err != nil {
		return "", err
	}
	r.Token = token
	r.UpdatedAt = time.Now()
	if err := s.saveLocked(); err != nil {
		return "", err
	}
	return token, nil
}

func (s *Service) RevokeToken(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[code]
	if !ok {
		return fmt.Errorf("pairing code %q not found", code)
	}
	r.Status = store.PairingRevoked
	r.Token = ""
	r.UpdatedAt = time.Now()
	return s.saveLocked()
}

func newToken() (string, error) {
	buf := make([]byte, tokenByteSize)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", buf), nil
}
