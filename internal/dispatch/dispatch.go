// Package dispatch routes parsed commands to the engine and renders the
// fixed wire responses. Every response is a single bracket-delimited string;
// the exact text of each success and failure path is a compatibility surface
// and must not be reworded.
package dispatch

import (
	"errors"
	"fmt"

	"github.com/skordev/authline/internal/audit"
	"github.com/skordev/authline/internal/connect"
	"github.com/skordev/authline/internal/defend"
	"github.com/skordev/authline/internal/engine"
	"github.com/skordev/authline/internal/protocol"
)

const (
	respSystemProblem   = "<A problem in the system has occurred, please try again>"
	respUnknownCommand  = "<Unknown command>"
	respBlocked         = "<You are currently blocked>"
	respUsernameTaken   = "<Username is taken, choose another one>"
	respRegisterBound   = "<You are logged in>"
	respRegisteredFirst = "<You have been successfully registered. Since you are the first user in the system, you are admin>"
	respRegistered      = "<You have been successfully registered>"
	respWrongCombo      = "<Wrong username/password combination>"
	respWrongSession    = "<Wrong session id>"
	respAlreadyLoggedIn = "<You are already logged in>"
	respNotLoggedIn     = "<You are not logged in>"
	respLoggedOut       = "<You logged out successfully>"
	respNoChanges       = "<You did not request any changes>"
	respProfileUpdated  = "<You successfully updated your profile>"
	respOnlyAdminAdd    = "<Only a admin can add new admin>"
	respAdminAdded      = "<You successfully added new admin to the system>"
	respOnlyAdminRemove = "<Only a admin can remove admin>"
	respAdminRemoved    = "<You removed a admin successfully>"
	respOnlyAdminDelete = "<Only a admin can remove user>"
	respUserDeleted     = "<You deleted a user successfully>"
)

// Dispatcher executes commands for the transport layer. It owns no session
// state itself; it composes the engine, the brute-force defense and the
// audit trail.
type Dispatcher struct {
	engine       *engine.Engine
	defender     *defend.Defender
	audit        *audit.Logger
	keyByAddress bool
}

// New creates a dispatcher. With keyByAddress the brute-force defense keys
// attempts on the remote host instead of the connection handle, so a
// reconnecting attacker cannot reset their failure count for free.
func New(eng *engine.Engine, def *defend.Defender, aud *audit.Logger, keyByAddress bool) *Dispatcher {
	return &Dispatcher{
		engine:       eng,
		defender:     def,
		audit:        aud,
		keyByAddress: keyByAddress,
	}
}

// Execute runs one command and returns the response line to send back.
func (d *Dispatcher) Execute(cmd protocol.Command, conn connect.Conn) string {
	if conn == nil {
		return respSystemProblem
	}

	switch cmd.Type {
	case protocol.TypeRegister:
		return d.handleRegister(cmd, conn)
	case protocol.TypeLogin:
		return d.handleLogin(cmd, conn)
	case protocol.TypeUpdateUser:
		return d.handleUpdateUser(cmd, conn)
	case protocol.TypeResetPassword:
		return d.handleResetPassword(cmd, conn)
	case protocol.TypeLogout:
		return d.handleLogout(cmd, conn)
	case protocol.TypeAddAdmin:
		return d.handleAddAdmin(cmd, conn)
	case protocol.TypeRemoveAdmin:
		return d.handleRemoveAdmin(cmd, conn)
	case protocol.TypeDeleteUser:
		return d.handleDeleteUser(cmd, conn)
	default:
		return respUnknownCommand
	}
}

func (d *Dispatcher) handleRegister(cmd protocol.Command, conn connect.Conn) string {
	if resp := protocol.Validate(cmd); resp != "" {
		return resp
	}

	if d.defender.IsBlocked(d.origin(conn)) {
		return respBlocked
	}

	acct, prof := protocol.ExtractRegistration(cmd.Args)

	first, err := d.engine.Register(conn, acct, prof)
	switch {
	case errors.Is(err, engine.ErrUsernameTaken):
		return respUsernameTaken
	case errors.Is(err, engine.ErrAlreadyLoggedIn):
		return respRegisterBound
	case err != nil:
		return respSystemProblem
	}

	d.defender.ClearHistory(d.origin(conn))

	if first {
		return respRegisteredFirst
	}
	return respRegistered
}

func (d *Dispatcher) handleLogin(cmd protocol.Command, conn connect.Conn) string {
	if resp := protocol.Validate(cmd); resp != "" {
		return resp
	}

	if d.defender.IsBlocked(d.origin(conn)) {
		return respBlocked
	}

	var token string
	var err error
	if protocol.IsSessionForm(cmd.Args) {
		token, err = d.engine.LoginWithToken(conn, cmd.Args[1])
	} else {
		token, err = d.engine.LoginWithPassword(conn, cmd.Args[1], cmd.Args[3])
	}

	switch {
	case errors.Is(err, engine.ErrInvalidCombination):
		d.defender.RegisterInvalidTry(d.origin(conn))
		d.audit.FailedLogin(d.remoteHost(conn))
		return respWrongCombo
	case errors.Is(err, engine.ErrInvalidSession):
		d.defender.RegisterInvalidTry(d.origin(conn))
		d.audit.FailedLogin(d.remoteHost(conn))
		return respWrongSession
	case errors.Is(err, engine.ErrAlreadyLoggedIn):
		return respAlreadyLoggedIn
	case err != nil:
		return respSystemProblem
	}

	d.defender.ClearHistory(d.origin(conn))

	return fmt.Sprintf("<You have been successfully logged in, your session id is <%s>>", token)
}

func (d *Dispatcher) handleUpdateUser(cmd protocol.Command, conn connect.Conn) string {
	if resp := protocol.Validate(cmd); resp != "" {
		return resp
	}

	err := d.engine.UpdateProfile(conn, cmd.Args[1], protocol.ExtractChanges(cmd.Args))
	switch {
	case errors.Is(err, engine.ErrInvalidSession):
		return respWrongSession
	case errors.Is(err, engine.ErrNotLoggedIn):
		return respNotLoggedIn
	case errors.Is(err, engine.ErrNoUpdateRequested):
		return respNoChanges
	case err != nil:
		return respSystemProblem
	}

	return respProfileUpdated
}

func (d *Dispatcher) handleResetPassword(cmd protocol.Command, conn connect.Conn) string {
	if resp := protocol.Validate(cmd); resp != "" {
		return resp
	}

	err := d.engine.UpdatePassword(conn, cmd.Args[1], cmd.Args[3], cmd.Args[5], cmd.Args[7])
	switch {
	case errors.Is(err, engine.ErrNotLoggedIn):
		return respNotLoggedIn
	case errors.Is(err, engine.ErrInvalidCombination):
		return respWrongCombo
	case errors.Is(err, engine.ErrInvalidSession):
		return respWrongSession
	case err != nil:
		return respSystemProblem
	}

	return fmt.Sprintf("<You successfully changed your password to <%s>>", cmd.Args[7])
}

func (d *Dispatcher) handleLogout(cmd protocol.Command, conn connect.Conn) string {
	if resp := protocol.Validate(cmd); resp != "" {
		return resp
	}

	err := d.engine.Logout(conn, cmd.Args[1])
	switch {
	case errors.Is(err, engine.ErrNotLoggedIn):
		return respNotLoggedIn
	case errors.Is(err, engine.ErrInvalidSession):
		return respWrongSession
	case err != nil:
		return respSystemProblem
	}

	return respLoggedOut
}

func (d *Dispatcher) handleAddAdmin(cmd protocol.Command, conn connect.Conn) string {
	if resp := protocol.Validate(cmd); resp != "" {
		return resp
	}

	if !d.engine.IsLoggedIn(conn) {
		return respNotLoggedIn
	}
	if !d.engine.IsSessionValid(cmd.Args[1]) {
		return respWrongSession
	}

	acting, _ := d.engine.CurrentUser(conn)
	perpetrator := acting.Username
	target := cmd.Args[3]
	ip := d.remoteHost(conn)

	d.audit.ConfigChangeBegin(audit.OpAddAdmin, ip, perpetrator, target)

	err := d.engine.MakeAdmin(conn, cmd.Args[1], target)
	switch {
	case errors.Is(err, engine.ErrUserNotFound):
		d.audit.ConfigChangeEnd(audit.OpAddAdmin, ip, perpetrator, target, false)
		return fmt.Sprintf("<User with username <%s> does not exist>", target)
	case errors.Is(err, engine.ErrNotAuthorized):
		d.audit.ConfigChangeEnd(audit.OpAddAdmin, ip, perpetrator, target, false)
		return respOnlyAdminAdd
	case errors.Is(err, engine.ErrAlreadyAuthorized):
		d.audit.ConfigChangeEnd(audit.OpAddAdmin, ip, perpetrator, target, false)
		return fmt.Sprintf("<User with username <%s> is already admin>", target)
	case errors.Is(err, engine.ErrNotLoggedIn):
		return respNotLoggedIn
	case errors.Is(err, engine.ErrInvalidSession):
		return respWrongSession
	case err != nil:
		d.audit.ConfigChangeEnd(audit.OpAddAdmin, ip, perpetrator, target, false)
		return respSystemProblem
	}

	d.audit.ConfigChangeEnd(audit.OpAddAdmin, ip, perpetrator, target, true)

	return respAdminAdded
}

func (d *Dispatcher) handleRemoveAdmin(cmd protocol.Command, conn connect.Conn) string {
	if resp := protocol.Validate(cmd); resp != "" {
		return resp
	}

	if !d.engine.IsLoggedIn(conn) {
		return respNotLoggedIn
	}
	if !d.engine.IsSessionValid(cmd.Args[1]) {
		return respWrongSession
	}

	acting, _ := d.engine.CurrentUser(conn)
	perpetrator := acting.Username
	target := cmd.Args[3]
	ip := d.remoteHost(conn)

	d.audit.ConfigChangeBegin(audit.OpRemoveAdmin, ip, perpetrator, target)

	err := d.engine.RemoveAdmin(conn, cmd.Args[1], target)
	switch {
	case errors.Is(err, engine.ErrNotAuthorized):
		d.audit.ConfigChangeEnd(audit.OpRemoveAdmin, ip, perpetrator, target, false)
		return respOnlyAdminRemove
	case errors.Is(err, engine.ErrUserNotFound):
		d.audit.ConfigChangeEnd(audit.OpRemoveAdmin, ip, perpetrator, target, false)
		return fmt.Sprintf("<User with username <%s> does not exist>", target)
	case errors.Is(err, engine.ErrAlreadyNotAuthorized):
		d.audit.ConfigChangeEnd(audit.OpRemoveAdmin, ip, perpetrator, target, false)
		return fmt.Sprintf("<User with username <%s> is not admin>", target)
	case errors.Is(err, engine.ErrNotLoggedIn):
		return respNotLoggedIn
	case errors.Is(err, engine.ErrInvalidSession):
		return respWrongSession
	case err != nil:
		// The last-admin rejection lands here too; it reads as a backend
		// refusal at the wire level.
		d.audit.ConfigChangeEnd(audit.OpRemoveAdmin, ip, perpetrator, target, false)
		return respSystemProblem
	}

	d.audit.ConfigChangeEnd(audit.OpRemoveAdmin, ip, perpetrator, target, true)

	return respAdminRemoved
}

func (d *Dispatcher) handleDeleteUser(cmd protocol.Command, conn connect.Conn) string {
	if resp := protocol.Validate(cmd); resp != "" {
		return resp
	}

	if !d.engine.IsLoggedIn(conn) {
		return respNotLoggedIn
	}
	if !d.engine.IsSessionValid(cmd.Args[1]) {
		return respWrongSession
	}

	target := cmd.Args[3]

	err := d.engine.DeleteUser(conn, cmd.Args[1], target)
	switch {
	case errors.Is(err, engine.ErrNotLoggedIn):
		return respNotLoggedIn
	case errors.Is(err, engine.ErrInvalidSession):
		return respWrongSession
	case errors.Is(err, engine.ErrNotAuthorized):
		return respOnlyAdminDelete
	case errors.Is(err, engine.ErrUserNotFound):
		return fmt.Sprintf("<User with username <%s> does not exist>", target)
	case err != nil:
		return respSystemProblem
	}

	return respUserDeleted
}

// origin is the brute-force defense key for the connection.
func (d *Dispatcher) origin(conn connect.Conn) any {
	if d.keyByAddress {
		return d.remoteHost(conn)
	}
	return conn
}

// remoteHost resolves the peer host for audit records. Failure here means
// the transport is unusable and continuing would silently produce an
// incomplete audit trail, so it is a hard fault rather than a response.
func (d *Dispatcher) remoteHost(conn connect.Conn) string {
	host, err := conn.RemoteHost()
	if err != nil {
		panic(fmt.Sprintf("dispatch: cannot resolve remote host: %v", err))
	}
	return host
}
