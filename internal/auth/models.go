package auth

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role is a closed set. Anything unset is a plain voter; there is no
// three-valued "maybe candidate" state.
type Role string

const (
	RoleVoter     Role = "voter"
	RoleCandidate Role = "candidate"
	RoleAdmin     Role = "admin"
)

// ApprovalStatus applies to candidates only. The empty value covers legacy
// records created before approval existed; the ranking engine treats it as
// eligible.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalNone     ApprovalStatus = ""
)

type User struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	StudentID        string             `bson:"student_id"`
	Name             string             `bson:"name"`
	Email            string             `bson:"email"`
	PasswordHash     string             `bson:"password_hash"`
	Role             Role               `bson:"role"`
	Verified         bool               `bson:"verified"`
	HasVoted         bool               `bson:"has_voted"`
	VoteReceipt      string             `bson:"vote_receipt,omitempty"`
	VoteCount        int                `bson:"vote_count"`
	AssignedPosition string             `bson:"assigned_position,omitempty"`
	ApprovalStatus   ApprovalStatus     `bson:"approval_status,omitempty"`
	CreatedAt        time.Time          `bson:"created_at"`
}

// EligibleCandidate reports whether the user participates in position
// ranking.
func (u *User) EligibleCandidate() bool {
	return u.Role == RoleCandidate &&
		(u.ApprovalStatus == ApprovalApproved || u.ApprovalStatus == ApprovalNone)
}

type RegisterRequest struct {
	StudentID   string `json:"student_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	AsCandidate bool   `json:"as_candidate"`
}

type Credential struct {
	Identifier string `json:"identifier"` // student id or email
	Password   string `json:"password"`
}

type VerifyLoginOTPRequest struct {
	Identifier string `json:"identifier"`
	Code       string `json:"code"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}
