package utils

import (
	"errors"
	"strconv"
	"time"

	"airswitch/internal/config"
	"airswitch/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "airswitch-api"

// JWT signs and parses HS256 bearer tokens.
type JWT struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWT(cfg config.JWTConfig) (*JWT, error) {
	if cfg.Secret == "" {
		return nil, errors.New("JWT_SECRET not configured")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	return &JWT{secret: []byte(cfg.Secret), ttl: cfg.TTL, now: time.Now}, nil
}

// GenerateToken issues a token for user carrying its current token version.
func (j *JWT) GenerateToken(user *models.User) (string, time.Time, error) {
	now := j.now()
	expires := now.Add(j.ttl)
	claims := models.UserClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
		},
		UserID:       user.ID,
		Email:        user.Email,
		Role:         user.Role,
		TokenVersion: user.TokenVersion,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// ParseToken parses and validates a JWT token string.
func (j *JWT) ParseToken(tokenStr string) (*models.UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &models.UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return j.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(j.now))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*models.UserClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
