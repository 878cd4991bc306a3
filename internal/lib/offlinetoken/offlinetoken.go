// Package offlinetoken реализует подписанные оффлайн-токены лицензий.
//
// Токен возвращается из /check-license вместе с grace_days: клиент может
// кэшировать его и пережить кратковременную недоступность сервиса, проверяя
// подпись локально. Срок действия токена ограничен льготным периодом.
package offlinetoken

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims описывает данные лицензии, зашитые в оффлайн-токен.
type Claims struct {
	Code                 string `json:"code"`    // Код лицензии
	PlanType             string `json:"plan"`    // Тип плана
	Flagged              bool   `json:"flagged"` // Флаг подозрения на шаринг
	jwt.RegisteredClaims        // ExpiresAt, IssuedAt и пр.
}

// Maker описывает интерфейс для выпуска и проверки оффлайн-токенов.
type Maker interface {
	Generate(code, planType string, flagged bool, validUntil time.Time) (string, error)
	Parse(tokenStr string) (*Claims, error)
}

// MakerImpl реализует Maker на основе секретного ключа HS256.
type MakerImpl struct {
	secretKey string
}

// NewMaker создаёт новый экземпляр MakerImpl.
func NewMaker(secretKey string) *MakerImpl {
	return &MakerImpl{secretKey: secretKey}
}

// Generate выпускает токен, действительный до validUntil.
func (m *MakerImpl) Generate(code, planType string, flagged bool, validUntil time.Time) (string, error) {
	claims := Claims{
		Code:     code,
		PlanType: planType,
		Flagged:  flagged,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(validUntil),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.secretKey))
}

// Parse проверяет подпись и срок действия токена, возвращая его claims.
func (m *MakerImpl) Parse(tokenStr string) (*Claims, error) {
	const op = "offlinetoken.Parse"
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(m.secretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: invalid token", op)
	}
	return claims, nil
}
