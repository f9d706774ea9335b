package otp

import (
	"crypto/sha256"
	"crypto/subtle"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Purpose names the sensitive action a code authorizes. A code issued for one
// purpose never verifies for another.
type Purpose string

const (
	PurposeLogin         Purpose = "login"
	PurposePasswordReset Purpose = "password_reset"
	PurposeVote          Purpose = "vote"
)

// OTP is a one-time code at rest. Only the salted hash is stored; the
// plaintext exists solely in the delivery email.
type OTP struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	OwnerID   primitive.ObjectID `bson:"owner_id"`
	Purpose   Purpose            `bson:"purpose"`
	Email     string             `bson:"email"`
	CodeHash  []byte             `bson:"code_hash"`
	Salt      []byte             `bson:"salt"`
	ExpiresAt time.Time          `bson:"expires_at"`
	Used      bool               `bson:"used"`
	CreatedAt time.Time          `bson:"created_at"`
}

func (o *OTP) ExpiredAt(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// HashCode derives the stored digest for a code under the given salt.
func HashCode(salt []byte, code string) []byte {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(code))
	return h.Sum(nil)
}

// MatchesCode compares a candidate code against the stored hash in constant
// time.
func (o *OTP) MatchesCode(code string) bool {
	return subtle.ConstantTimeCompare(o.CodeHash, HashCode(o.Salt, code)) == 1
}
