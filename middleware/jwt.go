package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenIssuer tags tokens minted by this service. Other Jazzify
// backends share the signing secret, so the issuer check keeps their
// tokens from being honored here.
const tokenIssuer = "jazzify-guild"

// ErrTokenInvalid covers verification failures that are not parse
// errors: wrong claims type or a token without a usable account id.
var ErrTokenInvalid = errors.New("invalid account token")

// AccountClaims is the payload of a player session token. AccountID
// duplicates the registered subject as a typed field so callers never
// re-parse the subject string.
type AccountClaims struct {
	AccountID int64 `json:"account_id"`
	jwt.RegisteredClaims
}

// NewAccountToken mints an HS256 session token for the account.
// Expiry here is the hard ceiling; the session cache entry written at
// login is what logout and bans revoke early.
func NewAccountToken(accountID int64, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &AccountClaims{
		AccountID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatInt(accountID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseAccountToken verifies the signature, expiry and issuer of a
// session token and returns its claims.
func ParseAccountToken(tokenStr, secret string) (*AccountClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &AccountClaims{},
		func(t *jwt.Token) (interface{}, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*AccountClaims)
	if !ok || !token.Valid || claims.AccountID <= 0 {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
