package election

import (
	"os"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Settings is the singleton election window. Voting is open only while
// IsActive and now falls inside [StartDate, EndDate].
type Settings struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	Title     string             `bson:"title" json:"title"`
	StartDate time.Time          `bson:"start_date" json:"start_date"`
	EndDate   time.Time          `bson:"end_date" json:"end_date"`
	IsActive  bool               `bson:"is_active" json:"is_active"`
}

// Vote is the immutable record of one ballot. The unique index on voter_id is
// the single arbiter of "exactly one vote per voter".
type Vote struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	VoterID     primitive.ObjectID `bson:"voter_id"`
	CandidateID primitive.ObjectID `bson:"candidate_id"`
	CreatedAt   time.Time          `bson:"created_at"`
}

// AuditVote is the reporting view of a vote: no voter linkage.
type AuditVote struct {
	ID          string    `json:"vote_id"`
	CandidateID string    `json:"candidate_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Assignment is one row of the ranking result.
type Assignment struct {
	Position    string `json:"position"`
	CandidateID string `json:"candidate_id"`
	Name        string `json:"name"`
	Votes       int    `json:"votes"`
}

// Standing is a candidate's public tally.
type Standing struct {
	CandidateID      string `json:"candidate_id"`
	Name             string `json:"name"`
	Votes            int    `json:"votes"`
	AssignedPosition string `json:"assigned_position,omitempty"`
}

// DefaultPositionTitles is the slate used when POSITION_TITLES is unset. The
// order is the rank order.
var DefaultPositionTitles = []string{
	"President",
	"Vice President",
	"General Secretary",
	"Treasurer",
	"Sports Secretary",
	"Cultural Secretary",
	"Media Coordinator",
}

// PositionTitles reads the slate from POSITION_TITLES (comma-separated), in
// rank order.
func PositionTitles() []string {
	raw := os.Getenv("POSITION_TITLES")
	if raw == "" {
		return DefaultPositionTitles
	}
	var titles []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			titles = append(titles, t)
		}
	}
	if len(titles) == 0 {
		return DefaultPositionTitles
	}
	return titles
}

type VoteRequest struct {
	VoterID     string `json:"voter_id"`
	CandidateID string `json:"candidate_id"`
	OTPCode     string `json:"otp_code"`
}

type RequestOTPRequest struct {
	VoterID string `json:"voter_id"`
}

type VerifyOTPRequest struct {
	VoterID string `json:"voter_id"`
	Code    string `json:"code"`
}

type ApprovalRequest struct {
	Status string `json:"status"` // approved | rejected | pending
}
