package actor

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"DOCTOR":  RoleDoctor,
		"patient": RolePatient,
		" Admin ": RoleAdmin,
	}
	for in, want := range cases {
		got, err := ParseRole(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseRole("nurse")
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestActorCapabilities(t *testing.T) {
	id := uuid.New()

	assert.True(t, Doctor(id).IsDoctor())
	assert.False(t, Doctor(id).IsPatient())
	assert.True(t, Patient(id).IsPatient())
	assert.True(t, Admin(id).IsAdmin())

	assert.True(t, Patient(id).Valid())
	assert.False(t, Actor{ID: id}.Valid())
	assert.False(t, Patient(uuid.Nil).Valid())
	assert.Equal(t, "DOCTOR:"+id.String(), Doctor(id).String())
}
