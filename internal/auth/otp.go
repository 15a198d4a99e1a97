package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"
)

const demoCode = "123456"

// OTPStore keeps one-time login codes in process memory with TTL eviction
// and a bounded attempt counter per phone number.
type OTPStore struct {
	mu          sync.Mutex
	codes       map[string]*otpRecord
	ttl         time.Duration
	maxAttempts int
	demoMode    bool
	now         func() time.Time
}

type otpRecord struct {
	code      string
	expiresAt time.Time
	attempts  int
}

// NewOTPStore builds the store. In demo mode a fixed code is issued so the
// flow can be exercised without an SMS provider.
func NewOTPStore(ttl time.Duration, maxAttempts int, demoMode bool) *OTPStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &OTPStore{
		codes:       make(map[string]*otpRecord),
		ttl:         ttl,
		maxAttempts: maxAttempts,
		demoMode:    demoMode,
		now:         time.Now,
	}
}

// Generate issues a fresh code for the phone, replacing any previous one.
func (s *OTPStore) Generate(phone string) (string, error) {
	code := demoCode
	if !s.demoMode {
		n, err := rand.Int(rand.Reader, big.NewInt(900000))
		if err != nil {
			return "", err
		}
		code = fmt.Sprintf("%06d", n.Int64()+100000)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpiredLocked()
	s.codes[phone] = &otpRecord{
		code:      code,
		expiresAt: s.now().Add(s.ttl),
	}
	return code, nil
}

// VerifyResult explains a failed verification.
type VerifyResult struct {
	Valid   bool
	Message string
}

// Verify checks the code. A correct code consumes the record; too many
// wrong attempts or expiry also consume it, forcing a fresh Generate.
func (s *OTPStore) Verify(phone, code string) VerifyResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.codes[phone]
	if !ok {
		return VerifyResult{Message: "code not found, request a new one"}
	}
	if s.now().After(record.expiresAt) {
		delete(s.codes, phone)
		return VerifyResult{Message: "code expired, request a new one"}
	}
	if record.attempts >= s.maxAttempts {
		delete(s.codes, phone)
		return VerifyResult{Message: "too many attempts, request a new code"}
	}

	record.attempts++
	if record.code != code {
		return VerifyResult{Message: "invalid code"}
	}

	delete(s.codes, phone)
	return VerifyResult{Valid: true}
}

// Clear drops any pending code for the phone.
func (s *OTPStore) Clear(phone string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, phone)
}

func (s *OTPStore) evictExpiredLocked() {
	now := s.now()
	for phone, record := range s.codes {
		if now.After(record.expiresAt) {
			delete(s.codes, phone)
		}
	}
}
