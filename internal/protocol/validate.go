package protocol

// Flag sentinels. Validation is positional: each command expects specific
// sentinels at specific even indexes, values at the odd ones.
const (
	FlagUsername    = "--username"
	FlagPassword    = "--password"
	FlagFirstName   = "--first-name"
	FlagLastName    = "--last-name"
	FlagEmail       = "--email"
	FlagSessionID   = "--session-id"
	FlagNewUsername = "--new-username"
	FlagNewFirst    = "--new-first-name"
	FlagNewLast     = "--new-last-name"
	FlagNewEmail    = "--new-email"
	FlagOldPassword = "--old-password"
	FlagNewPassword = "--new-password"
)

const (
	respWrongArgCount   = "<Wrong number of arguments>"
	respMissingSentinel = "<Missing authentication sentinel/data>"
)

// Validate checks the command's argument shape and returns the user-facing
// rejection string, or "" when the shape is acceptable. The argument count
// is checked before the sentinels, so a short line always reads as a count
// problem rather than a sentinel problem.
func Validate(cmd Command) string {
	switch cmd.Type {
	case TypeRegister:
		return validateShape(cmd.Args, 10, map[int]string{
			0: FlagUsername, 2: FlagPassword, 4: FlagFirstName, 6: FlagLastName, 8: FlagEmail,
		})
	case TypeLogin:
		return validateLogin(cmd.Args)
	case TypeLogout:
		return validateShape(cmd.Args, 2, map[int]string{0: FlagSessionID})
	case TypeUpdateUser:
		return validateUpdateUser(cmd.Args)
	case TypeResetPassword:
		return validateShape(cmd.Args, 8, map[int]string{
			0: FlagSessionID, 2: FlagUsername, 4: FlagOldPassword, 6: FlagNewPassword,
		})
	case TypeAddAdmin, TypeRemoveAdmin, TypeDeleteUser:
		return validateShape(cmd.Args, 4, map[int]string{0: FlagSessionID, 2: FlagUsername})
	default:
		return ""
	}
}

func validateShape(args []string, count int, sentinels map[int]string) string {
	if len(args) != count {
		return respWrongArgCount
	}
	for idx, flag := range sentinels {
		if args[idx] != flag {
			return respMissingSentinel
		}
	}
	return ""
}

// validateLogin accepts either the credential form (4 tokens) or the session
// resume form (2 tokens).
func validateLogin(args []string) string {
	switch len(args) {
	case 4:
		if args[0] != FlagUsername || args[2] != FlagPassword {
			return respMissingSentinel
		}
	case 2:
		if args[0] != FlagSessionID {
			return respMissingSentinel
		}
	default:
		return respWrongArgCount
	}
	return ""
}

// validateUpdateUser accepts a session pair plus zero to three change pairs.
// Only the session sentinel is checked here; unknown change flags are
// dropped later during extraction.
func validateUpdateUser(args []string) string {
	n := len(args)
	if n < 2 || n > 8 || n%2 != 0 {
		return respWrongArgCount
	}
	if args[0] != FlagSessionID {
		return respMissingSentinel
	}
	return ""
}

// IsSessionForm reports whether a validated login command is the session
// resume form rather than the credential form.
func IsSessionForm(args []string) bool {
	return len(args) > 0 && args[0] == FlagSessionID
}
