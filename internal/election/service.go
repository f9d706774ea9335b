package election

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"CampusVote/internal/auth"
	"CampusVote/internal/config"
	"CampusVote/internal/otp"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// store is the persistence surface the election needs. *Repository satisfies
// it; tests substitute an in-memory fake that enforces the same vote
// uniqueness the Mongo index does.
type store interface {
	Settings(ctx context.Context) (*Settings, error)
	UpdateSettings(ctx context.Context, settings *Settings) error
	FindUser(ctx context.Context, id primitive.ObjectID) (*auth.User, error)
	EligibleCandidates(ctx context.Context) ([]*auth.User, error)
	InsertVote(ctx context.Context, vote *Vote) error
	ListVotes(ctx context.Context) ([]*Vote, error)
	IncrementVoteCount(ctx context.Context, candidateID primitive.ObjectID) error
	MarkVoted(ctx context.Context, voterID primitive.ObjectID, receipt string) error
	SetAssignedPosition(ctx context.Context, candidateID primitive.ObjectID, position string) error
	SetApproval(ctx context.Context, candidateID primitive.ObjectID, status auth.ApprovalStatus) error
	VotersWithEmail(ctx context.Context) ([]string, error)
}

type codeLedger interface {
	Issue(ctx context.Context, ownerID primitive.ObjectID, purpose otp.Purpose, email string) error
	Verify(ctx context.Context, ownerID primitive.ObjectID, purpose otp.Purpose, code string) (*otp.OTP, error)
	Consume(ctx context.Context, o *otp.OTP) error
}

// Service sequences the voting transaction: settings gate, OTP verification,
// the guarded vote write, and the ranking recompute.
type Service struct {
	store    store
	codes    codeLedger
	notifier config.Notifier
	logger   *zap.Logger
	titles   []string
	now      func() time.Time
}

func NewService(repo *Repository, codes *otp.Service, notifier config.Notifier, logger *zap.Logger) *Service {
	return &Service{
		store:    repo,
		codes:    codes,
		notifier: notifier,
		logger:   logger,
		titles:   PositionTitles(),
		now:      time.Now,
	}
}

// VotingStatus is the settings gate. It returns nil while voting is open and
// a typed rejection otherwise.
func (s *Service) VotingStatus(ctx context.Context) error {
	settings, err := s.store.Settings(ctx)
	if err != nil {
		return err
	}
	now := s.now()
	switch {
	case now.Before(settings.StartDate):
		return ErrNotStarted
	case now.After(settings.EndDate):
		return ErrEnded
	case !settings.IsActive:
		return ErrDisabled
	}
	return nil
}

// RequestVoteOTP issues a vote-purpose code to the voter's registered email.
func (s *Service) RequestVoteOTP(ctx context.Context, voterID primitive.ObjectID) error {
	voter, err := s.store.FindUser(ctx, voterID)
	if err != nil {
		return err
	}
	if voter == nil {
		return ErrNotFound
	}
	return s.codes.Issue(ctx, voterID, otp.PurposeVote, voter.Email)
}

// VerifyVoteOTP checks a vote code without consuming it, for client-side
// pre-validation.
func (s *Service) VerifyVoteOTP(ctx context.Context, voterID primitive.ObjectID, code string) error {
	_, err := s.codes.Verify(ctx, voterID, otp.PurposeVote, code)
	return err
}

// CastBallot runs the voting state machine. The OTP is consumed before the
// vote write: a consumed code followed by an AlreadyVoted rejection is
// correct, a reusable code is not. Existence checks run before consumption so
// a mistyped candidate id does not burn a code against the issuance budget.
func (s *Service) CastBallot(ctx context.Context, voterID, candidateID primitive.ObjectID, code string) error {
	if err := s.VotingStatus(ctx); err != nil {
		return err
	}

	matched, err := s.codes.Verify(ctx, voterID, otp.PurposeVote, code)
	if err != nil {
		return err
	}

	voter, err := s.store.FindUser(ctx, voterID)
	if err != nil {
		return err
	}
	if voter == nil {
		return ErrNotFound
	}
	candidate, err := s.store.FindUser(ctx, candidateID)
	if err != nil {
		return err
	}
	if candidate == nil || !candidate.EligibleCandidate() {
		return ErrNotFound
	}

	if err := s.codes.Consume(ctx, matched); err != nil {
		return err
	}

	if err := s.recordVote(ctx, voterID, candidateID); err != nil {
		return err
	}

	// Best-effort: the ballot is committed, a ranking failure only delays the
	// standings.
	if _, err := s.AssignPositions(ctx); err != nil {
		s.logger.Warn("Position recompute failed after vote", zap.Error(err))
	}
	return nil
}

// recordVote is the vote ledger. The insert goes first so the unique index
// decides the race; tally and voter flags follow and are retried once if they
// fail after the insert succeeded.
func (s *Service) recordVote(ctx context.Context, voterID, candidateID primitive.ObjectID) error {
	vote := &Vote{
		ID:          primitive.NewObjectID(),
		VoterID:     voterID,
		CandidateID: candidateID,
		CreatedAt:   s.now(),
	}
	if err := s.store.InsertVote(ctx, vote); err != nil {
		return err
	}

	s.withRetry(ctx, "increment tally", func() error {
		return s.store.IncrementVoteCount(ctx, candidateID)
	})
	s.withRetry(ctx, "mark voter", func() error {
		return s.store.MarkVoted(ctx, voterID, newReceipt())
	})

	s.logger.Info("Vote recorded",
		zap.String("vote_id", vote.ID.Hex()), zap.String("candidate_id", candidateID.Hex()))
	return nil
}

// withRetry gives the post-insert side effects at-least-once semantics. After
// a successful vote insert they must not silently vanish; a second failure is
// logged for reconciliation rather than rolling back the ballot.
func (s *Service) withRetry(ctx context.Context, what string, fn func() error) {
	err := fn()
	if err == nil {
		return
	}
	s.logger.Warn("Retrying after failure", zap.String("op", what), zap.Error(err))
	if err := fn(); err != nil {
		s.logger.Error("Vote side effect needs reconciliation", zap.String("op", what), zap.Error(err))
	}
}

func newReceipt() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return primitive.NewObjectID().Hex()
	}
	return hex.EncodeToString(buf)
}

// Standings lists every eligible candidate with tally and position.
func (s *Service) Standings(ctx context.Context) ([]Standing, error) {
	candidates, err := s.store.EligibleCandidates(ctx)
	if err != nil {
		return nil, err
	}
	standings := make([]Standing, 0, len(candidates))
	for _, c := range candidates {
		standings = append(standings, Standing{
			CandidateID:      c.ID.Hex(),
			Name:             c.Name,
			Votes:            c.VoteCount,
			AssignedPosition: c.AssignedPosition,
		})
	}
	return standings, nil
}

// AuditVotes exposes the ballot trail without voter linkage.
func (s *Service) AuditVotes(ctx context.Context) ([]AuditVote, error) {
	votes, err := s.store.ListVotes(ctx)
	if err != nil {
		return nil, err
	}
	audit := make([]AuditVote, 0, len(votes))
	for _, v := range votes {
		audit = append(audit, AuditVote{
			ID:          v.ID.Hex(),
			CandidateID: v.CandidateID.Hex(),
			CreatedAt:   v.CreatedAt,
		})
	}
	return audit, nil
}

func (s *Service) GetSettings(ctx context.Context) (*Settings, error) {
	return s.store.Settings(ctx)
}

// UpdateSettings saves the window and, when the election is switched on,
// emails an announcement to voters (best-effort).
func (s *Service) UpdateSettings(ctx context.Context, settings *Settings) error {
	current, err := s.store.Settings(ctx)
	if err != nil {
		return err
	}
	if err := s.store.UpdateSettings(ctx, settings); err != nil {
		return err
	}
	if settings.IsActive && !current.IsActive {
		go s.announce(settings)
	}
	return nil
}

func (s *Service) announce(settings *Settings) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	emails, err := s.store.VotersWithEmail(ctx)
	if err != nil {
		s.logger.Warn("Failed to load voter emails for announcement", zap.Error(err))
		return
	}
	body := fmt.Sprintf("<p>%s is open from %s to %s. Log in to cast your vote.</p>",
		settings.Title,
		settings.StartDate.Format(time.RFC1123),
		settings.EndDate.Format(time.RFC1123))
	for _, email := range emails {
		if err := s.notifier.Send(email, settings.Title+" is open", body); err != nil {
			s.logger.Warn("Announcement email failed", zap.String("to", email), zap.Error(err))
		}
	}
}

func (s *Service) SetCandidateApproval(ctx context.Context, candidateID primitive.ObjectID, status auth.ApprovalStatus) error {
	switch status {
	case auth.ApprovalPending, auth.ApprovalApproved, auth.ApprovalRejected:
	default:
		return ErrValidation
	}
	return s.store.SetApproval(ctx, candidateID, status)
}
