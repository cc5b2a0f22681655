package model

import "time"

// VerificationType distinguishes what a verification token proves.
type VerificationType string

const (
	VerificationEmail         VerificationType = "EMAIL"
	VerificationPasswordReset VerificationType = "PASSWORD_RESET"
)

// VerificationToken is a short-lived record binding a principal to a random
// numeric code and an opaque token string. The pair (code, token) is the
// proof of possession presented back by the client; rows are deleted once
// consumed and ignored once expired.
//
// Fields:
//
//	Principal – tagged owner reference.
//	Code      – 8 digit numeric code sent by email.
//	Token     – opaque random string paired with the code.
//	Type      – EMAIL or PASSWORD_RESET.
//	ExpiresAt – hard expiry; expired rows fail verification.
type VerificationToken struct {
	ID        uint64
	Principal PrincipalRef
	Code      string
	Token     string
	Type      VerificationType
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the token is past its expiry at the given time.
func (v *VerificationToken) Expired(now time.Time) bool {
	return now.After(v.ExpiresAt)
}
