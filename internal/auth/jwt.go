package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "seatdesk"

// Claims are the session claims for an admin.
type Claims struct {
	AdminID uuid.UUID `json:"admin_id"`
	jwt.RegisteredClaims
}

// CreateToken signs an HS256 session token for adminID that expires after
// sessionDays.
func CreateToken(adminID uuid.UUID, secret string, sessionDays int) (string, error) {
	now := time.Now()
	expiresAt := now.Add(time.Duration(sessionDays) * 24 * time.Hour)

	claims := &Claims{
		AdminID: adminID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   adminID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// ValidateToken parses a session token. Expired, foreign-issuer, or
// non-HMAC tokens are rejected.
func ValidateToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.AdminID == uuid.Nil {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}
