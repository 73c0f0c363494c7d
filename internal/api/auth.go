package api

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ChannelClaims scope a WebSocket subscription to one txid.
type ChannelClaims struct {
	TxID string `json:"txid"`
	jwt.RegisteredClaims
}

func (a *API) channelToken(txID string, expiresAt time.Time) (string, error) {
	claims := &ChannelClaims{
		TxID: txID,
		RegisteredClaims: jwt.RegisteredClaims{
			// The client may keep waiting past the charge expiry to learn
			// the final status.
			ExpiresAt: jwt.NewNumericDate(expiresAt.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(a.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to create token: %w", err)
	}
	return tokenString, nil
}

// verifyChannelToken checks the token and that it was issued for txID.
func (a *API) verifyChannelToken(tokenString, txID string) error {
	claims := &ChannelClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return a.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return fmt.Errorf("invalid token")
	}
	if claims.TxID != txID {
		return fmt.Errorf("token issued for another txid")
	}
	return nil
}
