package snowflake

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenLifetime is the validity of every key-pair JWT.
const TokenLifetime = time.Hour

// keyPairClaims keeps the payload to exactly iss, sub, iat, exp.
type keyPairClaims struct {
	Issuer    string           `json:"iss"`
	Subject   string           `json:"sub"`
	IssuedAt  *jwt.NumericDate `json:"iat"`
	ExpiresAt *jwt.NumericDate `json:"exp"`
}

func (c keyPairClaims) GetExpirationTime() (*jwt.NumericDate, error) { return c.ExpiresAt, nil }
func (c keyPairClaims) GetIssuedAt() (*jwt.NumericDate, error)       { return c.IssuedAt, nil }
func (c keyPairClaims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (c keyPairClaims) GetIssuer() (string, error)                   { return c.Issuer, nil }
func (c keyPairClaims) GetSubject() (string, error)                  { return c.Subject, nil }
func (c keyPairClaims) GetAudience() (jwt.ClaimStrings, error)       { return nil, nil }

// AccountIdentifier normalizes an account locator for JWT claims:
// upper-cased, dashes replaced by underscores, region suffix dropped.
func AccountIdentifier(account string) string {
	acct := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(account)), "-", "_")
	if i := strings.IndexByte(acct, '.'); i >= 0 {
		acct = acct[:i]
	}
	return acct
}

// Fingerprint returns "SHA256:" + base64(sha256(DER SubjectPublicKeyInfo)).
func Fingerprint(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return "SHA256:" + base64.StdEncoding.EncodeToString(sum[:]), nil
}

// signKeyPairJWT builds the RS256 token the SQL API expects.
func signKeyPairJWT(account, user, fingerprint string, key *rsa.PrivateKey, now time.Time) (string, keyPairClaims, error) {
	subject := AccountIdentifier(account) + "." + strings.ToUpper(user)
	claims := keyPairClaims{
		Issuer:    subject + "." + fingerprint,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(TokenLifetime)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", claims, fmt.Errorf("sign jwt: %w", err)
	}
	return signed, claims, nil
}

// normalizePEM accepts keys as stored in env vars: escaped newlines, or a
// bare base64 body without armour.
func normalizePEM(s, blockType string) []byte {
	s = strings.TrimSpace(strings.ReplaceAll(s, `\n`, "\n"))
	if !strings.Contains(s, "-----BEGIN") {
		s = "-----BEGIN " + blockType + "-----\n" + s + "\n-----END " + blockType + "-----"
	}
	return []byte(s)
}

// ParsePrivateKey reads a PKCS#1 or PKCS#8 RSA private key.
func ParsePrivateKey(pemText string) (*rsa.PrivateKey, error) {
	if strings.TrimSpace(pemText) == "" {
		return nil, errors.New("private key is empty")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(normalizePEM(pemText, "PRIVATE KEY"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// ParsePublicKey reads a PKIX or PKCS#1 RSA public key.
func ParsePublicKey(pemText string) (*rsa.PublicKey, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM(normalizePEM(pemText, "PUBLIC KEY"))
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return key, nil
}
