package events

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatUnits renders base units in display units with the given number of
// decimals, trimming trailing zeros.
func FormatUnits(v uint64, decimals int) string {
	if decimals <= 0 {
		return strconv.FormatUint(v, 10)
	}
	scale := uint64(1)
	for i := 0; i < decimals; i++ {
		scale *= 10
	}
	whole := v / scale
	frac := v % scale
	if frac == 0 {
		return strconv.FormatUint(whole, 10)
	}
	fracStr := strings.TrimRight(fmt.Sprintf("%0*d", decimals, frac), "0")
	return fmt.Sprintf("%d.%s", whole, fracStr)
}
