package actor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Role uint8

const (
	RoleUnknown Role = iota
	RoleDoctor
	RolePatient
	RoleAdmin
)

var ErrUnknownRole = errors.New("unknown role")

func (r Role) String() string {
	switch r {
	case RoleDoctor:
		return "DOCTOR"
	case RolePatient:
		return "PATIENT"
	case RoleAdmin:
		return "ADMIN"
	default:
		return "UNKNOWN"
	}
}

// ParseRole accepts the role names issued by the identity provider, case-insensitively.
func ParseRole(s string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DOCTOR":
		return RoleDoctor, nil
	case "PATIENT":
		return RolePatient, nil
	case "ADMIN":
		return RoleAdmin, nil
	default:
		return RoleUnknown, fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// Actor is the authenticated caller. It is produced by the identity layer and trusted as-is.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

func Doctor(id uuid.UUID) Actor  { return Actor{ID: id, Role: RoleDoctor} }
func Patient(id uuid.UUID) Actor { return Actor{ID: id, Role: RolePatient} }
func Admin(id uuid.UUID) Actor   { return Actor{ID: id, Role: RoleAdmin} }

func (a Actor) IsDoctor() bool  { return a.Role == RoleDoctor }
func (a Actor) IsPatient() bool { return a.Role == RolePatient }
func (a Actor) IsAdmin() bool   { return a.Role == RoleAdmin }

func (a Actor) Valid() bool {
	return a.ID != uuid.Nil && a.Role != RoleUnknown
}

func (a Actor) String() string {
	return fmt.Sprintf("%s:%s", a.Role, a.ID)
}
