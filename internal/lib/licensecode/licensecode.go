// Package licensecode генерирует непрозрачные коды лицензий.
//
// Формат кода: LP-XXXX-XXXX-XXXX, для пробных лицензий LP-T7-XXXX-XXXX.
// Сегменты берутся из шестнадцатеричного представления случайного UUID.
package licensecode

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Prefix общий префикс всех кодов лицензий.
const Prefix = "LP"

func segments(n int) []string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	segs := make([]string, n)
	for i := 0; i < n; i++ {
		segs[i] = raw[i*4 : i*4+4]
	}
	return segs
}

// New возвращает новый код лицензии вида LP-XXXX-XXXX-XXXX.
func New() string {
	return fmt.Sprintf("%s-%s", Prefix, strings.Join(segments(3), "-"))
}

// NewTrial возвращает новый код пробной лицензии вида LP-T7-XXXX-XXXX.
func NewTrial() string {
	return fmt.Sprintf("%s-T7-%s", Prefix, strings.Join(segments(2), "-"))
}

// Normalize приводит введённый пользователем код к канонической форме.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
