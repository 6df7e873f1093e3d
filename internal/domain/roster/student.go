package roster

import (
	"errors"
	"strings"

	"school-bus/internal/domain/geo"
)

// Contact holds guardian contact details shown to the crew.
type Contact struct {
	GuardianName string `json:"guardian_name,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Address      string `json:"address,omitempty"`
}

// Student is a roster entry and the stop it is picked up from or dropped at.
// Location is nil when the student's address was never geocoded.
type Student struct {
	ID       string
	SchoolID string
	Name     string
	Location *geo.Point
	Contact  Contact
}

var (
	ErrStudentIDRequired = errors.New("student id is required")
	ErrSchoolIDRequired  = errors.New("school id is required")
	ErrNameRequired      = errors.New("student name is required")
)

// Validate checks invariants of the Student. A missing or unusable location is allowed.
func (student *Student) Validate() error {
	if strings.TrimSpace(student.ID) == "" {
		return ErrStudentIDRequired
	}
	if strings.TrimSpace(student.SchoolID) == "" {
		return ErrSchoolIDRequired
	}
	if strings.TrimSpace(student.Name) == "" {
		return ErrNameRequired
	}
	return nil
}

// HasLocation reports whether the student can be placed on a route.
func (student *Student) HasLocation() bool {
	return geo.UsablePtr(student.Location)
}

// Index maps student IDs to roster entries.
func Index(students []Student) map[string]Student {
	out := make(map[string]Student, len(students))
	for _, s := range students {
		out[s.ID] = s
	}
	return out
}
