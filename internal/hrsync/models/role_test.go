package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultHierarchy(t *testing.T) {
	assert.Equal(t, 1, DefaultHierarchy(RoleOwner))
	assert.Equal(t, 2, DefaultHierarchy(RoleManager))
	assert.Equal(t, 3, DefaultHierarchy(RoleCollaborator))
	assert.Equal(t, 0, DefaultHierarchy("Intern"), "non-default roles carry no implied hierarchy")
}
