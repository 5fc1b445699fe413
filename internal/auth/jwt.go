package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims identify the operator behind a request. The operator name is stamped
// on every event the request writes.
type Claims struct {
	Operator string
	TokenID  uuid.UUID
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Operator string `json:"operator"`
}

const issuer = "fund-ledger"

func GenerateToken(operator string, secret string, expiry time.Duration) (string, error) {
	if operator == "" {
		return "", fmt.Errorf("GenerateToken: operator is required")
	}

	now := time.Now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   operator,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Operator: operator,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("GenerateToken: %w", err)
	}
	return signed, nil
}

func ValidateToken(tokenString string, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("ValidateToken: %w", err)
	}

	tc, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("ValidateToken: invalid token claims")
	}
	if tc.Operator == "" {
		return nil, fmt.Errorf("ValidateToken: token has no operator")
	}

	tokenID, err := uuid.Parse(tc.ID)
	if err != nil {
		return nil, fmt.Errorf("ValidateToken: invalid jti in token: %w", err)
	}

	return &Claims{
		Operator: tc.Operator,
		TokenID:  tokenID,
	}, nil
}
