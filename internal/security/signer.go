package security

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/cwrk-planet/presence-service/internal/domain"
)

// Signer issues tokens the way the auth service does. Used by tests and local tooling.
type Signer struct {
	private  *rsa.PrivateKey
	issuer   string
	audience string
	ttl      time.Duration
}

func NewSigner(private *rsa.PrivateKey, issuer, audience string, ttl time.Duration) *Signer {
	return &Signer{private: private, issuer: issuer, audience: audience, ttl: ttl}
}

func (s *Signer) Sign(id domain.Identity, now time.Time) (string, error) {
	claims := AccessClaims{
		StandardClaims: jwt.StandardClaims{
			Subject:   fmt.Sprint(id.UserID),
			Issuer:    s.issuer,
			Audience:  s.audience,
			IssuedAt:  now.Unix(),
			NotBefore: now.Unix(),
			ExpiresAt: now.Add(s.ttl).Unix(),
		},
		Nickname: id.Nickname,
		Profile:  id.Profile,
	}

	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.private)
}
