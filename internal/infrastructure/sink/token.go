package sink

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// CallbackClaims identifies which queue entry and task a callback belongs to.
type CallbackClaims struct {
	QueueID string `json:"queue_id"`
	TaskID  string `json:"task_id"`
	jwt.RegisteredClaims
}

// SignCallbackToken issues an HS256 token embedded in callback URLs so the
// callback endpoints can reject forged reports.
func SignCallbackToken(secret, queueID, taskID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("callback secret not configured")
	}
	claims := CallbackClaims{
		QueueID: queueID,
		TaskID:  taskID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "taskchase",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// VerifyCallbackToken validates a callback token and returns its claims.
func VerifyCallbackToken(secret, tokenString string) (*CallbackClaims, error) {
	claims := &CallbackClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid callback token")
	}
	return claims, nil
}
