package access

type Section string

// Sections
const (
	SectionUsers     Section = "users"
	SectionAcademic  Section = "academic"
	SectionFinancial Section = "financial"
	SectionCalendar  Section = "calendar"
	SectionFeed      Section = "feed"
	SectionGrades    Section = "grades"
)

// Area is a role-scoped part of the application.
type Area struct {
	Path     string
	Roles    RoleSet
	Sections []Section
}

func (a Area) HasSection(s Section) bool {
	for _, sec := range a.Sections {
		if sec == s {
			return true
		}
	}
	return false
}

var (
	AdminArea = Area{
		Path:     "/admin",
		Roles:    NewRoleSet(RoleAdmin),
		Sections: []Section{SectionUsers, SectionAcademic, SectionFinancial, SectionCalendar, SectionFeed},
	}
	TeacherArea = Area{
		Path:     "/teacher",
		Roles:    NewRoleSet(RoleTeacher),
		Sections: []Section{SectionAcademic, SectionFeed, SectionCalendar},
	}
	GuardianArea = Area{
		Path:     "/guardian",
		Roles:    NewRoleSet(RoleGuardian),
		Sections: []Section{SectionFinancial, SectionFeed, SectionCalendar, SectionGrades},
	}

	Areas = []Area{AdminArea, TeacherArea, GuardianArea}
)

// HomeArea returns the landing area of `role`.
func HomeArea(role Role) (Area, bool) {
	for _, a := range Areas {
		if a.Roles.Has(role) {
			return a, true
		}
	}
	return Area{}, false
}
