package access

// Scope restricts which rows a role may read.
type Scope int

const (
	ScopeNone Scope = iota
	ScopeOwn        // rows linked to the caller's identity
	ScopeAll
)

type Capabilities struct {
	ManageUsers   bool
	EditCatalog   bool
	EditGrades    bool
	EditInvoices  bool
	PostActivity  bool
	EditCalendar  bool
	InvoiceScope  Scope
	ActivityScope Scope
	GradeScope    Scope
}

var capabilities = map[Role]Capabilities{
	RoleAdmin: {
		ManageUsers:   true,
		EditCatalog:   true,
		EditGrades:    true,
		EditInvoices:  true,
		PostActivity:  true,
		EditCalendar:  true,
		InvoiceScope:  ScopeAll,
		ActivityScope: ScopeAll,
		GradeScope:    ScopeAll,
	},
	RoleTeacher: {
		EditGrades:    true,
		PostActivity:  true,
		EditCalendar:  true,
		InvoiceScope:  ScopeNone,
		ActivityScope: ScopeAll,
		GradeScope:    ScopeAll,
	},
	RoleGuardian: {
		InvoiceScope:  ScopeOwn,
		ActivityScope: ScopeOwn,
		GradeScope:    ScopeOwn,
	},
}

// CapabilitiesOf returns what `role` may do; RoleNone may do nothing.
func CapabilitiesOf(role Role) Capabilities {
	return capabilities[role]
}
