package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermission(t *testing.T) {
	assert.True(t, PermissionView.Valid())
	assert.True(t, PermissionEdit.Valid())
	assert.False(t, Permission("admin").Valid())

	assert.True(t, PermissionEdit.Allows(PermissionView))
	assert.True(t, PermissionEdit.Allows(PermissionEdit))
	assert.True(t, PermissionView.Allows(PermissionView))
	assert.False(t, PermissionView.Allows(PermissionEdit))
	assert.False(t, Permission("admin").Allows(PermissionView))
}
