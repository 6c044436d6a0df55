package uuidx

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	id := New()
	assert.Equal(t, uuid.Version(7), id.Version(), "UUID should be version 7")
	assert.Equal(t, uuid.RFC4122, id.Variant(), "UUID should have RFC4122 variant")

	id2 := New()
	assert.NotEqual(t, id, id2, "Generated UUIDs should be unique")
}

func TestNewString(t *testing.T) {
	idStr := NewString()
	id, err := uuid.Parse(idStr)
	assert.NoError(t, err, "NewString should return a valid UUID string")
	assert.Equal(t, uuid.Version(7), id.Version(), "UUID should be version 7")

	idStr2 := NewString()
	assert.NotEqual(t, idStr, idStr2, "Generated UUID strings should be unique")
}
