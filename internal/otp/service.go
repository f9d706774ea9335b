package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"CampusVote/internal/config"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const codeLength = 6

// store is the persistence surface the ledger needs. *Repository satisfies
// it; tests substitute an in-memory fake.
type store interface {
	Insert(ctx context.Context, o *OTP) error
	FindUnused(ctx context.Context, ownerID primitive.ObjectID, purpose Purpose) ([]*OTP, error)
	MarkUsed(ctx context.Context, id primitive.ObjectID) error
	InvalidateUnused(ctx context.Context, ownerID primitive.ObjectID, purpose Purpose) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// Service is the OTP ledger: the single point that issues, verifies, and
// retires one-time codes.
type Service struct {
	store    store
	notifier config.Notifier
	limiter  *RateLimiter
	logger   *zap.Logger
	ttl      time.Duration
	now      func() time.Time
	generate func() (string, error)
}

func NewService(repo *Repository, notifier config.Notifier, logger *zap.Logger) *Service {
	ttl := 5 * time.Minute
	if raw := os.Getenv("OTP_TTL_MINUTES"); raw != "" {
		if minutes, err := strconv.Atoi(raw); err == nil && minutes > 0 {
			ttl = time.Duration(minutes) * time.Minute
		}
	}
	return &Service{
		store:    repo,
		notifier: notifier,
		limiter:  NewRateLimiter(DefaultWindow, DefaultMaxRequests),
		logger:   logger,
		ttl:      ttl,
		now:      time.Now,
		generate: randomCode,
	}
}

// randomCode draws a crypto-random 6-digit code uniform over
// [100000, 999999].
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return strconv.FormatInt(n.Int64()+100000, 10), nil
}

func subjectFor(purpose Purpose) string {
	switch purpose {
	case PurposeVote:
		return "Your voting code"
	case PurposePasswordReset:
		return "Your password reset code"
	default:
		return "Your login code"
	}
}

// Issue creates a fresh code for (owner, purpose), invalidating any prior
// unused ones first, and emails it to the owner. If delivery fails the stored
// record is deleted so no undeliverable live code lingers.
func (s *Service) Issue(ctx context.Context, ownerID primitive.ObjectID, purpose Purpose, email string) error {
	if ownerID.IsZero() || email == "" {
		return ErrValidation
	}

	if allowed, retryAfter := s.limiter.Allow(ownerID.Hex()); !allowed {
		return &RateLimitError{RetryAfterMinutes: retryAfter}
	}

	code, err := s.generate()
	if err != nil {
		return err
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}

	if err := s.store.InvalidateUnused(ctx, ownerID, purpose); err != nil {
		return err
	}

	record := &OTP{
		ID:        primitive.NewObjectID(),
		OwnerID:   ownerID,
		Purpose:   purpose,
		Email:     email,
		CodeHash:  HashCode(salt, code),
		Salt:      salt,
		ExpiresAt: s.now().Add(s.ttl),
		CreatedAt: s.now(),
	}
	if err := s.store.Insert(ctx, record); err != nil {
		return err
	}

	body := fmt.Sprintf("<p>Your one-time code is <strong>%s</strong>. It expires in %d minutes.</p>",
		code, int(s.ttl.Minutes()))
	if err := s.notifier.Send(email, subjectFor(purpose), body); err != nil {
		// Compensate: an undelivered code must not stay live.
		if delErr := s.store.Delete(ctx, record.ID); delErr != nil {
			s.logger.Error("Failed to delete undelivered code", zap.Error(delErr))
		}
		s.logger.Warn("Code delivery failed", zap.String("owner", ownerID.Hex()), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrNotifierFailure, err)
	}

	s.logger.Info("Code issued",
		zap.String("owner", ownerID.Hex()), zap.String("purpose", string(purpose)))
	return nil
}

// Verify checks a candidate code for (owner, purpose). Expired codes found on
// the way are lazily retired. On a match the OTP is returned unconsumed; the
// caller decides when to Consume it relative to the action it protects.
func (s *Service) Verify(ctx context.Context, ownerID primitive.ObjectID, purpose Purpose, code string) (*OTP, error) {
	if ownerID.IsZero() || !validCode(code) {
		return nil, ErrValidation
	}

	otps, err := s.store.FindUnused(ctx, ownerID, purpose)
	if err != nil {
		return nil, err
	}
	if len(otps) == 0 {
		return nil, ErrNoActiveCode
	}

	live := 0
	for _, o := range otps {
		if o.ExpiredAt(s.now()) {
			if err := s.store.MarkUsed(ctx, o.ID); err != nil {
				s.logger.Warn("Failed to retire expired code", zap.Error(err))
			}
			continue
		}
		live++
		if o.MatchesCode(code) {
			return o, nil
		}
	}

	if live == 0 {
		return nil, ErrExpired
	}
	return nil, ErrIncorrect
}

// Consume marks a verified code used. A consumed code never verifies again.
func (s *Service) Consume(ctx context.Context, o *OTP) error {
	return s.store.MarkUsed(ctx, o.ID)
}

func validCode(code string) bool {
	if len(code) != codeLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
