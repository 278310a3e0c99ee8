// Package secure holds the token and crypto primitives: opaque identifier
// generation, constant-time credential checks, password hashing and the
// symmetric encryption applied to packed bundles.
package secure

import (
	"crypto/subtle"

	"github.com/lithammer/shortuuid/v4"
	"golang.org/x/crypto/bcrypt"
)

// Token prefixes keep the three namespaces visually and programmatically
// distinct: a download token can never be mistaken for an edit token.
const (
	DownloadTokenPrefix = "dl_"
	EditTokenPrefix     = "ed_"
	FileTokenPrefix     = "sf_"
)

func NewDownloadToken() string {
	return DownloadTokenPrefix + shortuuid.New()
}

func NewEditToken() string {
	return EditTokenPrefix + shortuuid.New()
}

func NewFileToken() string {
	return FileTokenPrefix + shortuuid.New()
}

// CompareTokens reports whether two tokens match without leaking the match
// position through timing.
func CompareTokens(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func HashPassword(password string) (string, error) {
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashBytes), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
