package protocol

// Role is one of the two fixed endpoint identities in a session.
type Role string

const (
	RoleDesktop Role = "desktop"
	RoleMobile  Role = "mobile"
)

// String returns the string form of the role.
func (r Role) String() string { return string(r) }

// Valid reports whether r is desktop or mobile.
func (r Role) Valid() bool { return r == RoleDesktop || r == RoleMobile }

// Other returns the opposite role. It returns "" for an invalid role.
func (r Role) Other() Role {
	switch r {
	case RoleDesktop:
		return RoleMobile
	case RoleMobile:
		return RoleDesktop
	}
	return ""
}
