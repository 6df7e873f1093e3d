package passenger

import (
	"errors"
	"strings"
)

// Method records how a status change was captured.
type Method string

const (
	MethodQR     Method = "qr"
	MethodManual Method = "manual"
	MethodAuto   Method = "auto"
)

var ErrInvalidMethod = errors.New("invalid check-in method")

// ParseMethod normalizes (lowercases+trims) and validates a method string.
func ParseMethod(in string) (Method, error) {
	method := Method(strings.ToLower(strings.TrimSpace(in)))
	if method.Valid() {
		return method, nil
	}
	return "", ErrInvalidMethod
}

// Valid reports whether method is one of the allowed method constants.
func (method Method) Valid() bool {
	switch method {
	case MethodQR, MethodManual, MethodAuto:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Method.
func (method Method) String() string {
	return string(method)
}
