package ids

import (
	"fmt"
	"strconv"
	"strings"
)

const bodyPrefix = "B"

// BodyID names the body created by the seq-th spawn attempt.
func BodyID(seq uint64) string {
	return fmt.Sprintf("%s%06d", bodyPrefix, seq)
}

func ParseBodyID(id string) (seq uint64, ok bool) {
	digits, found := strings.CutPrefix(id, bodyPrefix)
	if !found || len(digits) < 6 {
		return 0, false
	}
	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
