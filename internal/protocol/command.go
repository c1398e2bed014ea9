// Package protocol parses and validates the line-oriented command format:
// a command name followed by flag/value pairs separated by single spaces.
package protocol

import "strings"

// Type identifies a wire command.
type Type int

const (
	TypeRegister Type = iota
	TypeLogin
	TypeUpdateUser
	TypeResetPassword
	TypeLogout
	TypeAddAdmin
	TypeRemoveAdmin
	TypeDeleteUser
	TypeInvalid
)

// commandNames is matched in order by prefix against the whole input line,
// so "registerX ..." still reads as a register command. That looseness is
// part of the wire contract.
var commandNames = []struct {
	t    Type
	name string
}{
	{TypeRegister, "register"},
	{TypeLogin, "login"},
	{TypeUpdateUser, "update-user"},
	{TypeResetPassword, "reset-password"},
	{TypeLogout, "logout"},
	{TypeAddAdmin, "add-admin-user"},
	{TypeRemoveAdmin, "remove-admin-user"},
	{TypeDeleteUser, "delete-user"},
}

// Command is a parsed input line: the matched type plus every token after
// the command name, flags and values interleaved.
type Command struct {
	Type Type
	Args []string
}

// Parse tokenizes an input line. A line without a single space, or one whose
// head matches no command name, parses as TypeInvalid.
func Parse(line string) Command {
	if !strings.Contains(line, " ") {
		return Command{Type: TypeInvalid}
	}

	t := TypeInvalid
	for _, c := range commandNames {
		if strings.HasPrefix(line, c.name) {
			t = c.t
			break
		}
	}

	tokens := strings.Split(line, " ")
	return Command{Type: t, Args: tokens[1:]}
}
