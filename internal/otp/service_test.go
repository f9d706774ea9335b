package otp

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fakeStore struct {
	records []*OTP
}

func (f *fakeStore) Insert(ctx context.Context, o *OTP) error {
	copied := *o
	f.records = append(f.records, &copied)
	return nil
}

func (f *fakeStore) FindUnused(ctx context.Context, ownerID primitive.ObjectID, purpose Purpose) ([]*OTP, error) {
	var out []*OTP
	// Newest first: reverse insertion order.
	for i := len(f.records) - 1; i >= 0; i-- {
		o := f.records[i]
		if o.OwnerID == ownerID && o.Purpose == purpose && !o.Used {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkUsed(ctx context.Context, id primitive.ObjectID) error {
	for _, o := range f.records {
		if o.ID == id {
			o.Used = true
			return nil
		}
	}
	return errors.New("otp not found")
}

func (f *fakeStore) InvalidateUnused(ctx context.Context, ownerID primitive.ObjectID, purpose Purpose) error {
	for _, o := range f.records {
		if o.OwnerID == ownerID && o.Purpose == purpose && !o.Used {
			o.Used = true
		}
	}
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	for i, o := range f.records {
		if o.ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return nil
}

type fakeNotifier struct {
	sent []string
	err  error
}

func (f *fakeNotifier) Send(to, subject, html string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeStore, *fakeNotifier, *time.Time) {
	t.Helper()
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := &Service{
		store:    store,
		notifier: notifier,
		limiter:  NewRateLimiter(DefaultWindow, DefaultMaxRequests),
		logger:   zap.NewNop(),
		ttl:      5 * time.Minute,
		now:      func() time.Time { return now },
		generate: func() (string, error) { return "123456", nil },
	}
	svc.limiter.now = svc.now
	return svc, store, notifier, &now
}

func TestIssue_StoresHashNeverPlaintext(t *testing.T) {
	svc, store, notifier, _ := newTestService(t)
	owner := primitive.NewObjectID()

	if err := svc.Issue(context.Background(), owner, PurposeVote, "a@campus.edu"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(store.records) != 1 {
		t.Fatalf("expected 1 stored record, got %d", len(store.records))
	}
	record := store.records[0]
	if string(record.CodeHash) == "123456" {
		t.Fatal("plaintext code stored")
	}
	if !record.MatchesCode("123456") {
		t.Fatal("stored hash does not match the issued code")
	}
	if record.MatchesCode("654321") {
		t.Fatal("hash matches a wrong code")
	}
	if len(notifier.sent) != 1 || notifier.sent[0] != "a@campus.edu" {
		t.Fatalf("expected delivery to a@campus.edu, got %v", notifier.sent)
	}
}

func TestIssue_InvalidatesPriorCodes(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	owner := primitive.NewObjectID()
	ctx := context.Background()

	if err := svc.Issue(ctx, owner, PurposeVote, "a@campus.edu"); err != nil {
		t.Fatalf("first issue: %v", err)
	}
	svc.generate = func() (string, error) { return "222222", nil }
	if err := svc.Issue(ctx, owner, PurposeVote, "a@campus.edu"); err != nil {
		t.Fatalf("second issue: %v", err)
	}

	if !store.records[0].Used {
		t.Fatal("prior code not invalidated by reissue")
	}
	if _, err := svc.Verify(ctx, owner, PurposeVote, "123456"); !errors.Is(err, ErrIncorrect) {
		t.Fatalf("old code should no longer verify, got %v", err)
	}
	if _, err := svc.Verify(ctx, owner, PurposeVote, "222222"); err != nil {
		t.Fatalf("new code should verify: %v", err)
	}
}

func TestIssue_CompensatesWhenDeliveryFails(t *testing.T) {
	svc, store, notifier, _ := newTestService(t)
	notifier.err = errors.New("smtp down")
	owner := primitive.NewObjectID()

	err := svc.Issue(context.Background(), owner, PurposeVote, "a@campus.edu")
	if !errors.Is(err, ErrNotifierFailure) {
		t.Fatalf("expected ErrNotifierFailure, got %v", err)
	}
	if len(store.records) != 0 {
		t.Fatalf("undelivered code left in store: %d records", len(store.records))
	}
}

func TestIssue_RateLimited(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	owner := primitive.NewObjectID()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := svc.Issue(ctx, owner, PurposeVote, "a@campus.edu"); err != nil {
			t.Fatalf("issue %d: %v", i+1, err)
		}
	}

	err := svc.Issue(ctx, owner, PurposeVote, "a@campus.edu")
	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rateErr.RetryAfterMinutes <= 0 {
		t.Fatalf("expected positive retry_after, got %d", rateErr.RetryAfterMinutes)
	}
}

func TestVerify_SingleUse(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	owner := primitive.NewObjectID()
	ctx := context.Background()

	if err := svc.Issue(ctx, owner, PurposeVote, "a@campus.edu"); err != nil {
		t.Fatalf("issue: %v", err)
	}

	matched, err := svc.Verify(ctx, owner, PurposeVote, "123456")
	if err != nil {
		t.Fatalf("first verify: %v", err)
	}
	if err := svc.Consume(ctx, matched); err != nil {
		t.Fatalf("consume: %v", err)
	}

	if _, err := svc.Verify(ctx, owner, PurposeVote, "123456"); !errors.Is(err, ErrNoActiveCode) {
		t.Fatalf("consumed code should not verify again, got %v", err)
	}
}

func TestVerify_DoesNotConsumeByItself(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	owner := primitive.NewObjectID()
	ctx := context.Background()

	if err := svc.Issue(ctx, owner, PurposeVote, "a@campus.edu"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Verify(ctx, owner, PurposeVote, "123456"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if store.records[0].Used {
		t.Fatal("verify alone must not consume the code")
	}
}

func TestVerify_ExpiredCodeNeverMatches(t *testing.T) {
	svc, store, _, now := newTestService(t)
	owner := primitive.NewObjectID()
	ctx := context.Background()

	if err := svc.Issue(ctx, owner, PurposeVote, "a@campus.edu"); err != nil {
		t.Fatalf("issue: %v", err)
	}

	*now = now.Add(6 * time.Minute)
	if _, err := svc.Verify(ctx, owner, PurposeVote, "123456"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if !store.records[0].Used {
		t.Fatal("expired code should be lazily retired")
	}
	// Retired on the first scan, so the second attempt sees nothing active.
	if _, err := svc.Verify(ctx, owner, PurposeVote, "123456"); !errors.Is(err, ErrNoActiveCode) {
		t.Fatalf("expected ErrNoActiveCode after lazy retirement, got %v", err)
	}
}

func TestVerify_FailureTaxonomy(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	owner := primitive.NewObjectID()
	ctx := context.Background()

	if _, err := svc.Verify(ctx, owner, PurposeVote, "123456"); !errors.Is(err, ErrNoActiveCode) {
		t.Fatalf("no code issued: expected ErrNoActiveCode, got %v", err)
	}

	if err := svc.Issue(ctx, owner, PurposeVote, "a@campus.edu"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Verify(ctx, owner, PurposeVote, "999999"); !errors.Is(err, ErrIncorrect) {
		t.Fatalf("wrong code: expected ErrIncorrect, got %v", err)
	}
}

func TestVerify_RejectsMalformedInputBeforeStore(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	owner := primitive.NewObjectID()
	ctx := context.Background()

	for _, code := range []string{"", "12345", "1234567", "12a456"} {
		if _, err := svc.Verify(ctx, owner, PurposeVote, code); !errors.Is(err, ErrValidation) {
			t.Fatalf("code %q: expected ErrValidation, got %v", code, err)
		}
	}
	if _, err := svc.Verify(ctx, primitive.NilObjectID, PurposeVote, "123456"); !errors.Is(err, ErrValidation) {
		t.Fatalf("zero owner: expected ErrValidation, got %v", err)
	}
}

func TestVerify_PurposesAreIsolated(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	owner := primitive.NewObjectID()
	ctx := context.Background()

	if err := svc.Issue(ctx, owner, PurposeLogin, "a@campus.edu"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Verify(ctx, owner, PurposeVote, "123456"); !errors.Is(err, ErrNoActiveCode) {
		t.Fatalf("login code must not verify for vote purpose, got %v", err)
	}
}
