// Package auth is the authentication collaborator of the sync core.
//
// It answers one question for everybody else: "who is signed in right now?"
//
// SESSION FLOW OVERVIEW:
//  1. A token is minted for an authentication subject (cmd/issue-token, or any
//     identity provider that signs with the same secret)
//  2. The client signs in with it → Manager.SignIn parses and stores the session
//  3. Listeners registered with OnAuthStateChange hear SIGNED_IN
//  4. Refresh re-issues the token (TOKEN_REFRESHED), SignOut drops it (SIGNED_OUT)
//
// TWO IDENTIFIERS:
// The token's "sub" claim is the authentication subject, the id the backend
// uses for ownership and membership. The "profile" claim carries the user's
// display profile, whose id is a different key. They travel together but are
// never the same field.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: algorithm + token type → {"alg":"HS256","typ":"JWT"}
//	- Payload: claims → {"sub":"<subject>","profile":{...},"exp":1234567890}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/studysync/internal/model"
)

// DefaultIssuer is used when NewTokenService is given an empty issuer.
const DefaultIssuer = "studysync"

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret key used to sign and verify tokens.
// The same secret must be used for both operations.
type TokenService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenService creates a TokenService with the given secret and issuer.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret, issuer string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &TokenService{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// claims is the JWT payload: the registered claims plus the user's profile.
type claims struct {
	jwt.RegisteredClaims
	Profile *model.User `json:"profile,omitempty"`
}

// Session is a validated sign-in.
type Session struct {
	Token     string
	Subject   model.SubjectID
	User      *model.User // nil when the token carried no profile
	ExpiresAt time.Time
}

// Expired reports whether the session is no longer usable at now.
func (s *Session) Expired(now time.Time) bool {
	return s == nil || !now.Before(s.ExpiresAt)
}

// Issue signs a token for subject, carrying user as the profile claim.
//
// Signing algorithm: HS256 (HMAC-SHA256), symmetric, same key for signing
// and verifying.
func (s *TokenService) Issue(subject model.SubjectID, user *model.User, ttl time.Duration) (string, error) {
	if subject.IsZero() {
		return "", errors.New("auth: token needs a subject")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("auth: token lifetime must be positive, got %s", ttl)
	}
	now := s.now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    s.issuer,
		},
		Profile: user,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Parse verifies a JWT string and returns the session it describes.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid
//   - Token is not expired
//   - Issuer matches
//   - Algorithm is HS256 (rules out the "none" algorithm confusion attack)
func (s *TokenService) Parse(tokenStr string) (*Session, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("auth: token has no subject")
	}

	return &Session{
		Token:     tokenStr,
		Subject:   model.SubjectID(c.Subject),
		User:      c.Profile,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
