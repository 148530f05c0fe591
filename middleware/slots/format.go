package slots

import (
	"strconv"
	"time"
)

func formatInt(v int) string { return strconv.Itoa(v) }

// retryAfterSeconds arredonda para baixo, mas nunca devolve 0 para um atraso positivo.
func retryAfterSeconds(d time.Duration) string {
	s := int(d.Seconds())
	if s <= 0 && d > 0 {
		s = 1
	}
	return formatInt(s)
}
