package user

// ScopeKind is the closed set of data-access scopes a request can run under.
type ScopeKind int

const (
	// ScopeRepresentative sees only the students (and their grades & payments) they represent.
	ScopeRepresentative ScopeKind = iota
	// ScopeTeacher sees only the subjects they teach.
	ScopeTeacher
	// ScopeStaff (admins & clerks) sees everything.
	ScopeStaff
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeStaff:
		return "staff"
	case ScopeTeacher:
		return "teacher"
	default:
		return "representative"
	}
}

// Scope is resolved once per request from the authenticated User
// and handed to repositories as a query restriction.
type Scope struct {
	Kind   ScopeKind
	UserID string
}

// ScopeOf resolves the widest scope granted by the User's roles.
// Users without a known role are treated as representatives.
func ScopeOf(usr User) Scope {
	switch {
	case usr.IsStaff():
		return Scope{Kind: ScopeStaff, UserID: usr.ID}
	case usr.IsTeacher():
		return Scope{Kind: ScopeTeacher, UserID: usr.ID}
	default:
		return Scope{Kind: ScopeRepresentative, UserID: usr.ID}
	}
}

func (s Scope) IsStaff() bool          { return s.Kind == ScopeStaff }
func (s Scope) IsTeacher() bool        { return s.Kind == ScopeTeacher }
func (s Scope) IsRepresentative() bool { return s.Kind == ScopeRepresentative }
