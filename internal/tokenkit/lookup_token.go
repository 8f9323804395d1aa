package tokenkit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LookupTokenIssuer is the issuer claim of athlete lookup tokens.
const LookupTokenIssuer = "stravarelay"

var (
	// ErrInvalidLookupToken indicates a lookup token failed signature, issuer, or expiry checks.
	ErrInvalidLookupToken = errors.New("lookup_token.invalid")

	errEmptyLookupSubject = errors.New("lookup_token.mint.empty_subject")
	errEmptySigningKey    = errors.New("lookup_token.empty_signing_key")
)

// LookupClaims authorize reading one athlete's profile through the relay.
type LookupClaims struct {
	AthleteID string `json:"athlete_id"`
	jwt.RegisteredClaims
}

// MintLookupToken creates a signed HS256 token scoped to athleteID.
func MintLookupToken(clock Clock, athleteID string, signingKey []byte, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(athleteID) == "" {
		return "", time.Time{}, errEmptyLookupSubject
	}
	if len(signingKey) == 0 {
		return "", time.Time{}, errEmptySigningKey
	}
	issuedAt := clock.Now().UTC()
	expiresAt := issuedAt.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, LookupClaims{
		AthleteID: athleteID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    LookupTokenIssuer,
			Subject:   athleteID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt.Add(-30 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(signingKey)
	return signed, expiresAt, err
}

// ParseLookupToken verifies the token and returns its claims.
func ParseLookupToken(clock Clock, tokenString string, signingKey []byte) (*LookupClaims, error) {
	if len(signingKey) == 0 {
		return nil, errEmptySigningKey
	}
	parsedToken, parseErr := jwt.ParseWithClaims(tokenString, &LookupClaims{}, func(parsed *jwt.Token) (interface{}, error) {
		return signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(LookupTokenIssuer),
		jwt.WithTimeFunc(clock.Now),
	)
	if parseErr != nil || parsedToken == nil || !parsedToken.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLookupToken, parseErr)
	}
	claims, ok := parsedToken.Claims.(*LookupClaims)
	if !ok || claims.Subject == "" || claims.Subject != claims.AthleteID {
		return nil, ErrInvalidLookupToken
	}
	return claims, nil
}
