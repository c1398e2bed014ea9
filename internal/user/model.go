package user

// Role is the authorization level of a stored account.
type Role int

const (
	// RoleUnauthenticated marks a user value that is still being built from a
	// registration request and has not been persisted yet.
	RoleUnauthenticated Role = iota
	RoleRegular
	RoleAdmin
)

// String returns the role name as stored in the database.
func (r Role) String() string {
	switch r {
	case RoleRegular:
		return "regular"
	case RoleAdmin:
		return "admin"
	default:
		return "unauthenticated"
	}
}

// ParseRole maps a stored role name back to a Role. Unknown names fall back
// to RoleRegular rather than granting anything.
func ParseRole(s string) Role {
	if s == "admin" {
		return RoleAdmin
	}
	return RoleRegular
}

// Account holds the login identity: the username is the unique key across all
// stored users, the password is compared in plaintext during authentication.
type Account struct {
	Username string
	Password string
}

// Profile holds the personal data attached to an account. No uniqueness
// constraints apply to any of its fields.
type Profile struct {
	FirstName string
	LastName  string
	Email     string
}

// User is an account plus profile plus role. Role changes always produce a new
// value; stored records are never mutated in place.
type User struct {
	Account
	Profile
	Role Role
}

// IsAdmin reports whether the user holds admin privileges.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// WithRole returns a copy of the user with the given role.
func (u User) WithRole(r Role) User {
	u.Role = r
	return u
}
