// Package secret реализует проверку разделяемых секретов (админский ключ,
// hottok провайдера покупок) без утечек по времени сравнения.
//
// Секрет в конфигурации может храниться открытым текстом или bcrypt-хэшем:
// хэш распознаётся по префиксу $2. Hash используется при провижининге
// для получения хэша из открытого значения.
package secret

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Equal сравнивает два секрета за постоянное время.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Verify проверяет предъявленный секрет против сконфигурированного.
// Возвращает false и для пустого сконфигурированного значения:
// незаполненный секрет никогда не аутентифицирует.
func Verify(configured, presented string) bool {
	if configured == "" || presented == "" {
		return false
	}
	if strings.HasPrefix(configured, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(presented)) == nil
	}
	return Equal(configured, presented)
}

// Hash возвращает bcrypt-хэш секрета для хранения в конфигурации.
func Hash(value string) (string, error) {
	const op = "secret.Hash"
	hashed, err := bcrypt.GenerateFromPassword([]byte(value), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(hashed), nil
}
