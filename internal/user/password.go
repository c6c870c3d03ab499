package user

import "golang.org/x/crypto/bcrypt"

type PasswordVerifier interface {
	Verify(plaintext, hash string) bool
}

type BcryptVerifier struct{}

func (BcryptVerifier) Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// dummyHash is ready before the first login so an unknown identifier never
// pays for hashing on top of the comparison.
var dummyHash = mustHash("not-a-real-password")

// DummyHash is compared against when the login identifier is unknown so both
// failure paths cost one bcrypt comparison.
func DummyHash() string {
	return dummyHash
}

func mustHash(plaintext string) string {
	hash, err := HashPassword(plaintext)
	if err != nil {
		panic(err)
	}
	return hash
}
