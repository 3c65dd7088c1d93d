package security

import (
	"errors"
	"fmt"
)

// MaxArgBytes is the largest single command line argument Linux accepts
// (MAX_ARG_STRLEN, 32 pages). The backend prompt travels as one argument.
const MaxArgBytes = 128 << 10

// ErrMessageTooLarge is returned when a payload exceeds its size limit.
var ErrMessageTooLarge = errors.New("security: message too large")

// ValidateMessageSize checks that data does not exceed limit bytes.
// If limit is <= 0, MaxArgBytes is used.
func ValidateMessageSize(data []byte, limit int) error {
	if limit <= 0 {
		limit = MaxArgBytes
	}
	if len(data) > limit {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, len(data), limit)
	}
	return nil
}
