package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name          string
		required      RoleSet
		current       Role
		corroboration Corroboration
		want          Decision
	}{
		{name: "pending teacher", required: TeacherArea.Roles, current: RoleTeacher, corroboration: Pending, want: Loading},
		{name: "pending admin", required: AdminArea.Roles, current: RoleAdmin, corroboration: Pending, want: Loading},
		{name: "no role", required: AdminArea.Roles, current: RoleNone, corroboration: Uncorroborated, want: RedirectLogin},
		{name: "uncorroborated teacher", required: TeacherArea.Roles, current: RoleTeacher, corroboration: Uncorroborated, want: RedirectLogin},
		{name: "uncorroborated guardian", required: GuardianArea.Roles, current: RoleGuardian, corroboration: Uncorroborated, want: RedirectLogin},
		{name: "admin never needs a session", required: AdminArea.Roles, current: RoleAdmin, corroboration: Uncorroborated, want: Allow},
		{name: "teacher in admin area", required: AdminArea.Roles, current: RoleTeacher, corroboration: Corroborated, want: RedirectHome},
		{name: "guardian in teacher area", required: TeacherArea.Roles, current: RoleGuardian, corroboration: Corroborated, want: RedirectHome},
		{name: "admin in guardian area", required: GuardianArea.Roles, current: RoleAdmin, corroboration: Uncorroborated, want: RedirectHome},
		{name: "teacher in teacher area", required: TeacherArea.Roles, current: RoleTeacher, corroboration: Corroborated, want: Allow},
		{name: "guardian in guardian area", required: GuardianArea.Roles, current: RoleGuardian, corroboration: Corroborated, want: Allow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Check(tt.required, tt.current, tt.corroboration))
		})
	}
}

func TestCheck_neverAllowsOutsideRole(t *testing.T) {
	for _, area := range Areas {
		for _, role := range append([]Role{RoleNone}, AllRoles...) {
			for _, corr := range []Corroboration{Uncorroborated, Pending, Corroborated} {
				got := Check(area.Roles, role, corr)
				if !area.Roles.Has(role) {
					assert.NotEqual(t, Allow, got, "role %q in %s (%s)", role, area.Path, corr)
				}
				if corr == Pending {
					assert.Equal(t, Loading, got)
				}
			}
		}
	}
}

func TestCapabilitiesOf(t *testing.T) {
	admin := CapabilitiesOf(RoleAdmin)
	assert.True(t, admin.ManageUsers)
	assert.True(t, admin.EditInvoices)
	assert.Equal(t, ScopeAll, admin.InvoiceScope)

	teacher := CapabilitiesOf(RoleTeacher)
	assert.False(t, teacher.ManageUsers)
	assert.False(t, teacher.EditCatalog)
	assert.False(t, teacher.EditInvoices)
	assert.True(t, teacher.EditGrades)
	assert.True(t, teacher.PostActivity)
	assert.True(t, teacher.EditCalendar)
	assert.Equal(t, ScopeNone, teacher.InvoiceScope)

	guardian := CapabilitiesOf(RoleGuardian)
	assert.False(t, guardian.EditGrades)
	assert.False(t, guardian.PostActivity)
	assert.False(t, guardian.EditCalendar)
	assert.Equal(t, ScopeOwn, guardian.InvoiceScope)
	assert.Equal(t, ScopeOwn, guardian.ActivityScope)

	assert.Equal(t, Capabilities{}, CapabilitiesOf(RoleNone))
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole(" Teacher ")
	assert.True(t, ok)
	assert.Equal(t, RoleTeacher, r)

	r, ok = ParseRole("student")
	assert.False(t, ok)
	assert.Equal(t, RoleNone, r)

	area, ok := HomeArea(RoleGuardian)
	assert.True(t, ok)
	assert.Equal(t, "/guardian", area.Path)
	assert.True(t, area.HasSection(SectionGrades))
	assert.False(t, AdminArea.HasSection(SectionGrades))
}
