package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"CampusVote/internal/otp"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrOTPRequired signals a first login: a code was emailed and the client
	// must call the verify endpoint before a token is issued.
	ErrOTPRequired = errors.New("one-time code required")
	ErrNotFound    = errors.New("user not found")
)

const tokenTTL = 12 * time.Hour

type userStore interface {
	FindByStudentID(ctx context.Context, studentID string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	MarkVerified(ctx context.Context, id primitive.ObjectID) error
	UpdatePasswordHash(ctx context.Context, id primitive.ObjectID, hash string) error
}

type codeLedger interface {
	Issue(ctx context.Context, ownerID primitive.ObjectID, purpose otp.Purpose, email string) error
	Verify(ctx context.Context, ownerID primitive.ObjectID, purpose otp.Purpose, code string) (*otp.OTP, error)
	Consume(ctx context.Context, o *otp.OTP) error
}

type UserService struct {
	repo   userStore
	codes  codeLedger
	logger *zap.Logger
	now    func() time.Time
}

func NewUserService(repo *UserRepository, codes *otp.Service, logger *zap.Logger) *UserService {
	return &UserService{repo: repo, codes: codes, logger: logger, now: time.Now}
}

func (s *UserService) RegisterUser(ctx context.Context, req RegisterRequest) error {
	if req.StudentID == "" || req.Email == "" || req.Password == "" {
		return errors.New("student id, email and password are required")
	}

	role := RoleVoter
	approval := ApprovalNone
	if req.AsCandidate {
		role = RoleCandidate
		approval = ApprovalPending
	}

	user := &User{
		ID:             primitive.NewObjectID(),
		StudentID:      req.StudentID,
		Name:           req.Name,
		Email:          strings.ToLower(req.Email),
		Role:           role,
		ApprovalStatus: approval,
		CreatedAt:      s.now(),
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash

	// The unique indexes on student_id and email decide duplicates, not a
	// lookup beforehand.
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return err
	}
	s.logger.Info("User registered",
		zap.String("student_id", user.StudentID), zap.String("role", string(user.Role)))
	return nil
}

func (s *UserService) findByIdentifier(ctx context.Context, identifier string) (*User, error) {
	if strings.Contains(identifier, "@") {
		return s.repo.FindByEmail(ctx, strings.ToLower(identifier))
	}
	return s.repo.FindByStudentID(ctx, identifier)
}

// AuthenticateUser checks the password and returns a token. A first login on
// an unverified account issues a login code instead and returns
// ErrOTPRequired.
func (s *UserService) AuthenticateUser(ctx context.Context, cred Credential) (string, error) {
	user, err := s.findByIdentifier(ctx, cred.Identifier)
	if err != nil {
		return "", err
	}
	if user == nil || !CheckPasswordHash(cred.Password, user.PasswordHash) {
		return "", ErrInvalidCredentials
	}

	if !user.Verified {
		if err := s.codes.Issue(ctx, user.ID, otp.PurposeLogin, user.Email); err != nil {
			return "", err
		}
		return "", ErrOTPRequired
	}

	return GenerateJWT(user, tokenTTL)
}

// VerifyLoginOTP consumes a login code, marks the account verified, and
// issues a token.
func (s *UserService) VerifyLoginOTP(ctx context.Context, identifier, code string) (string, error) {
	user, err := s.findByIdentifier(ctx, identifier)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrNotFound
	}

	matched, err := s.codes.Verify(ctx, user.ID, otp.PurposeLogin, code)
	if err != nil {
		return "", err
	}
	if err := s.codes.Consume(ctx, matched); err != nil {
		return "", err
	}
	if err := s.repo.MarkVerified(ctx, user.ID); err != nil {
		return "", err
	}
	user.Verified = true
	return GenerateJWT(user, tokenTTL)
}

func (s *UserService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(email))
	if err != nil {
		return err
	}
	if user == nil {
		return ErrNotFound
	}
	return s.codes.Issue(ctx, user.ID, otp.PurposePasswordReset, user.Email)
}

// ResetPassword consumes a password-reset code and replaces the hash.
func (s *UserService) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(req.Email))
	if err != nil {
		return err
	}
	if user == nil {
		return ErrNotFound
	}

	matched, err := s.codes.Verify(ctx, user.ID, otp.PurposePasswordReset, req.Code)
	if err != nil {
		return err
	}
	if err := s.codes.Consume(ctx, matched); err != nil {
		return err
	}

	hash, err := HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	return s.repo.UpdatePasswordHash(ctx, user.ID, hash)
}
