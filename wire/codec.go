// Package wire carries line frames between client and server. A frame is the
// standard base64 encoding of a UTF-8 payload.
package wire

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrFrameTooLarge  = errors.New("frame too large")
)

func Encode(payload string) string {
	return base64.StdEncoding.EncodeToString([]byte(payload))
}

func Decode(frame string) (string, error) {
	frame = strings.TrimSpace(frame)
	data, err := base64.StdEncoding.DecodeString(frame)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return string(data), nil
}
