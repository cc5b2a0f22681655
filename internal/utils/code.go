package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// NewVerificationCode returns a cryptographically random 8 digit numeric
// code for email verification and password reset mails.
func NewVerificationCode() (string, error) {
	// 10000000..99999999 keeps a fixed width without a leading zero.
	n, err := rand.Int(rand.Reader, big.NewInt(90000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", n.Int64()+10000000), nil
}
