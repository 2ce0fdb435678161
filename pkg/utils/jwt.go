package utils

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// StateClaims travel in the OAuth "state" parameter so the callback can tell
// which user started the connect flow.
type StateClaims struct {
	UserID   string `json:"user_id"`
	Platform string `json:"platform,omitempty"`
	jwt.RegisteredClaims
}

func GenerateStateToken(secretKey string, userID int64, platform string, tokenDuration time.Duration) (string, error) {
	claims := StateClaims{
		UserID:   strconv.FormatInt(userID, 10),
		Platform: platform,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "postflow",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(secretKey))
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	return signedToken, nil
}

func ValidateStateToken(secretKey, tokenString string) (*StateClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &StateClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid token signing method")
		}
		return []byte(secretKey), nil
	})

	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	if claims, ok := token.Claims.(*StateClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// UserIDFromState validates the state token and returns the user it was
// issued for along with its claims.
func UserIDFromState(secretKey, tokenString string) (int64, *StateClaims, error) {
	claims, err := ValidateStateToken(secretKey, tokenString)
	if err != nil {
		return 0, nil, err
	}
	userID, err := strconv.ParseInt(claims.UserID, 10, 64)
	if err != nil || userID <= 0 {
		return 0, nil, errors.New("state token carries no valid user")
	}
	return userID, claims, nil
}
