package util

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// HashToken returns the hex SHA-256 of an API token as stored in
// users.api_token_hash.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

func HmacSHA256(secret, data string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// SignDeviceBody returns the X-Device-Signature value for body.
func SignDeviceBody(secret string, body []byte) string {
	return "sha256=" + HmacSHA256(secret, string(body))
}

func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// MaskRFID hides all but the last two characters of a card code for logs.
func MaskRFID(code string) string {
	if len(code) <= 2 {
		return "****"
	}
	return "****" + code[len(code)-2:]
}
