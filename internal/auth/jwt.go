package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/session"
)

// Claims carries the session inside the token.
type Claims struct {
	jwt.RegisteredClaims
	UserID  string `json:"uid"`
	StoreID string `json:"sid"`
	Role    string `json:"role"`
}

func GenerateToken(s session.Session, secretKey []byte, validity time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		UserID:  s.UserID,
		StoreID: s.StoreID,
		Role:    s.Role,
	})

	return token.SignedString(secretKey)
}

// ParseToken validates tokenString and returns the session it carries.
// Every failure is reported as common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*session.Session, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: expired", common.ErrInvalidToken)
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}

	return &session.Session{UserID: claims.UserID, StoreID: claims.StoreID, Role: claims.Role}, nil
}
