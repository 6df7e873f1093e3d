package scan

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrUnknownCode = errors.New("scanned code does not match a student on this trip")

// payload is the JSON printed into student badges. Older badges use snake_case or a bare id.
type payload struct {
	StudentID      string `json:"studentId"`
	StudentIDSnake string `json:"student_id"`
	ID             string `json:"id"`
}

// ParsePayload extracts the student identifier from a raw scanned string.
// Anything that is not a JSON object carrying an id is treated as the identifier itself.
func ParsePayload(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrUnknownCode
	}

	if strings.HasPrefix(raw, "{") {
		var p payload
		if err := json.Unmarshal([]byte(raw), &p); err == nil {
			for _, id := range []string{p.StudentID, p.StudentIDSnake, p.ID} {
				if id = strings.TrimSpace(id); id != "" {
					return id, nil
				}
			}
		}
	}

	return raw, nil
}
