// Package token implements the Token Service (spec §4.6): issuing,
// refreshing, verifying and revoking short-lived signed bearer tokens with
// monotonic per-relay sequences, grounded on the teacher's database package's
// constructor/lifecycle style and the HKDF/HMAC primitives wired in from the
// rest of the example corpus.
package token

import (
	"sync"
	"time"

	"relaygate.dev/interfaces/registry"
	"relaygate.dev/utils/chk"
	"relaygate.dev/utils/context"
	"relaygate.dev/utils/log"
)

// Record is the live token state for one relayKey (spec §3 TokenRecord).
type Record struct {
	RelayKey        string
	Token           string
	RelayAuthToken  string
	Pubkey          string
	Scope           []string
	Sequence        uint64
	IssuedAt        time.Time
	ExpiresAt       time.Time
	RefreshAfter    time.Time
	RevokedAt       time.Time
	LastValidatedAt time.Time
}

// IssueOptions parameterizes IssueToken and RefreshToken.
type IssueOptions struct {
	RelayAuthToken string
	Pubkey         string
	Scope          []string
	TTL            time.Duration
}

// RevocationHandler is invoked after a successful revocation so the Session
// Manager can broadcast the ["TOKEN","REVOKED",...] control frame and close
// affected sessions (spec §4.6).
type RevocationHandler func(relayKey, reason string, sequence uint64)

// Service is the Token Service.
type Service struct {
	signer        *signer
	registrations registry.I
	refreshWindow time.Duration

	mutex   sync.Mutex
	records map[string]*Record

	onRevoke RevocationHandler
}

// NewService builds a Service. sharedSecret is the HMAC root key; refreshWindow
// is how long before expiry a token enters its refresh period.
func NewService(
	sharedSecret []byte, registrations registry.I, refreshWindow time.Duration,
) (*Service, error) {
	s, err := newSigner(sharedSecret)
	if err != nil {
		return nil, err
	}
	return &Service{
		signer:        s,
		registrations: registrations,
		refreshWindow: refreshWindow,
		records:       make(map[string]*Record),
	}, nil
}

// OnRevoke registers the handler called after every successful revocation.
func (svc *Service) OnRevoke(h RevocationHandler) { svc.onRevoke = h }

func (svc *Service) currentSequence(relayKey string) uint64 {
	if r, ok := svc.records[relayKey]; ok {
		return r.Sequence
	}
	return 0
}

// IssueToken issues a new token for relayKey (spec §4.6 issueToken).
func (svc *Service) IssueToken(
	c context.T, relayKey string, opts IssueOptions,
) (*Record, error) {
	desc, err := svc.registrations.GetRelay(c, relayKey)
	if chk.E(err) {
		return nil, err
	}
	if desc == nil {
		return nil, newErr(ReasonRelayUnregistered)
	}
	var storedSequence uint64
	if meta, metaErr := svc.registrations.GetTokenMetadata(c, relayKey); metaErr == nil && meta != nil {
		storedSequence = meta.Sequence
	}
	svc.mutex.Lock()
	defer svc.mutex.Unlock()
	now := time.Now()
	sequence := svc.currentSequence(relayKey)
	if storedSequence > sequence {
		sequence = storedSequence
	}
	sequence++
	expiresAt := now.Add(opts.TTL)
	record := &Record{
		RelayKey:       relayKey,
		RelayAuthToken: opts.RelayAuthToken,
		Pubkey:         opts.Pubkey,
		Scope:          opts.Scope,
		Sequence:       sequence,
		IssuedAt:       now,
		ExpiresAt:      expiresAt,
		RefreshAfter:   expiresAt.Add(-svc.refreshWindow),
	}
	envelope, err := svc.signer.encode(payload{
		RelayKey:       relayKey,
		RelayAuthToken: opts.RelayAuthToken,
		Pubkey:         opts.Pubkey,
		Scope:          opts.Scope,
		ExpiresAt:      toUnix(expiresAt),
		Sequence:       sequence,
	})
	if err != nil {
		return nil, err
	}
	record.Token = envelope
	svc.records[relayKey] = record
	if err = svc.registrations.StoreTokenMetadata(c, &registry.TokenMetadata{
		RelayKey: relayKey, Sequence: sequence,
	}); chk.E(err) {
	}
	return record, nil
}

// RefreshToken reissues the token for relayKey if presented matches the
// currently stored one (spec §4.6 refreshToken).
func (svc *Service) RefreshToken(
	c context.T, relayKey, presented string, ttl time.Duration,
) (*Record, error) {
	svc.mutex.Lock()
	current, ok := svc.records[relayKey]
	if !ok {
		svc.mutex.Unlock()
		return nil, newErr(ReasonNoActiveToken)
	}
	if current.Token != presented {
		svc.mutex.Unlock()
		return nil, newErr(ReasonMismatch)
	}
	opts := IssueOptions{
		RelayAuthToken: current.RelayAuthToken,
		Pubkey:         current.Pubkey,
		Scope:          current.Scope,
		TTL:            ttl,
	}
	svc.mutex.Unlock()
	return svc.IssueToken(c, relayKey, opts)
}

// RevokeToken clears the stored token for relayKey and advances its
// sequence (spec §4.6 revokeToken). The caller broadcasts the resulting
// control frame; RevokeToken only invokes the registered RevocationHandler.
func (svc *Service) RevokeToken(
	c context.T, relayKey, reason string,
) (sequence uint64, err error) {
	svc.mutex.Lock()
	record, ok := svc.records[relayKey]
	if !ok {
		svc.mutex.Unlock()
		return 0, newErr(ReasonNoActiveToken)
	}
	record.Sequence++
	record.Token = ""
	record.RevokedAt = time.Now()
	sequence = record.Sequence
	svc.mutex.Unlock()
	if err = svc.registrations.StoreTokenMetadata(c, &registry.TokenMetadata{
		RelayKey: relayKey, Sequence: sequence, RevokedAt: record.RevokedAt,
	}); chk.E(err) {
	}
	if svc.onRevoke != nil {
		svc.onRevoke(relayKey, reason, sequence)
	}
	log.I.F("token revoked for relay %s: %s (sequence=%d)", relayKey, reason, sequence)
	return sequence, nil
}

// VerifyToken validates presented against the stored record for relayKey
// (spec §4.6 verifyToken).
func (svc *Service) VerifyToken(
	c context.T, presented, relayKey string,
) (*Record, error) {
	p, err := svc.signer.decode(presented)
	if err != nil {
		return nil, err
	}
	if p.RelayKey != relayKey {
		return nil, newErr(ReasonRelayMismatch)
	}
	svc.mutex.Lock()
	defer svc.mutex.Unlock()
	record, ok := svc.records[relayKey]
	if !ok {
		return nil, newErr(ReasonNoActiveToken)
	}
	if !record.RevokedAt.IsZero() {
		return nil, newErr(ReasonRevoked)
	}
	if p.Sequence < record.Sequence {
		return nil, newErr(ReasonStale)
	}
	if time.Now().After(fromUnix(p.ExpiresAt)) {
		return nil, newErr(ReasonExpired)
	}
	record.LastValidatedAt = time.Now()
	return record, nil
}
