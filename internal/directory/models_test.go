package directory

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/access"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/documents"
)

func TestUserActor(t *testing.T) {
	dept := uuid.New()
	user := &User{
		ID:           uuid.New(),
		DepartmentID: &dept,
		Roles:        []string{access.RoleFinance},
		Clearance:    documents.SecurityConfidential,
	}

	actor := user.Actor()
	assert.Equal(t, user.ID, actor.ID)
	assert.False(t, actor.IsAdmin)
	assert.True(t, actor.InDepartment(&dept))
	assert.True(t, actor.HasRole(access.RoleFinance))
	assert.Equal(t, documents.SecurityConfidential, actor.Clearance)

	actor.Roles[0] = "changed"
	*actor.DepartmentID = uuid.New()
	assert.Equal(t, access.RoleFinance, user.Roles[0])
	assert.Equal(t, dept, *user.DepartmentID)
}
