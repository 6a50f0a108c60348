package security

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token has expired")
	ErrWrongTokenType = errors.New("wrong token type for this endpoint")
)

type TokenType string

const (
	TokenTypeCheckout TokenType = "checkout"
)

// CheckoutClaims bind a bearer to one checkout session and its vehicle
type CheckoutClaims struct {
	SessionID string    `json:"sid"`
	VehicleID int32     `json:"vehicle_id"`
	Type      TokenType `json:"type"`
	jwt.RegisteredClaims
}

type TokenManager interface {
	// GenerateCheckoutToken opens a new session and returns its id with the signed token
	GenerateCheckoutToken(vehicleID int32) (sessionID, token string, err error)
	ValidateToken(tokenString string) (*CheckoutClaims, error)
}

type tokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) TokenManager {
	return &tokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (m *tokenManager) GenerateCheckoutToken(vehicleID int32) (string, string, error) {
	sessionID := uuid.New().String()
	now := m.now()
	claims := CheckoutClaims{
		SessionID: sessionID,
		VehicleID: vehicleID,
		Type:      TokenTypeCheckout,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(int(vehicleID)),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "checkout-service",
			Audience:  jwt.ClaimStrings{"checkout"},
			ID:        sessionID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", "", err
	}
	return sessionID, signed, nil
}

func (m *tokenManager) ValidateToken(tokenString string) (*CheckoutClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CheckoutClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithAudience("checkout"), jwt.WithTimeFunc(m.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*CheckoutClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != TokenTypeCheckout {
		return nil, ErrWrongTokenType
	}
	if claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
