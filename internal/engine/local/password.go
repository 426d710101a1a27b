package local

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// hashPassword hashes plaintext password using bcrypt.
func hashPassword(password string, cost int) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
