package dispatch

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skordev/authline/internal/audit"
	"github.com/skordev/authline/internal/crypt"
	"github.com/skordev/authline/internal/defend"
	"github.com/skordev/authline/internal/engine"
	"github.com/skordev/authline/internal/protocol"
	"github.com/skordev/authline/internal/session"
	"github.com/skordev/authline/internal/store"
)

type fakeConn struct{ host string }

func (f *fakeConn) RemoteHost() (string, error) { return f.host, nil }

type harness struct {
	t        *testing.T
	dsp      *Dispatcher
	eng      *engine.Engine
	auditBuf *bytes.Buffer
	now      *time.Time
}

func newHarness(t *testing.T, keyByAddress bool) *harness {
	t.Helper()

	crypter, err := crypt.New(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)

	users, err := store.Open(filepath.Join(t.TempDir(), "users.db"), crypter)
	require.NoError(t, err)
	t.Cleanup(func() { _ = users.Close() })

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	h := &harness{t: t, auditBuf: &bytes.Buffer{}, now: &now}

	registry := session.NewRegistryWithClock(10*time.Second, func() time.Time { return *h.now })
	h.eng = engine.New(registry, users)
	defender := defend.NewDefender(3, 15*time.Second)
	h.dsp = New(h.eng, defender, audit.NewLogger(h.auditBuf), keyByAddress)
	return h
}

func (h *harness) exec(conn *fakeConn, line string) string {
	return h.dsp.Execute(protocol.Parse(line), conn)
}

func (h *harness) register(conn *fakeConn, name string) string {
	return h.exec(conn, fmt.Sprintf(
		"register --username %s --password %s-pass --first-name First --last-name Last --email %s@example.com",
		name, name, name))
}

// login runs a credential login and returns the token from the response.
func (h *harness) login(conn *fakeConn, name string) string {
	resp := h.exec(conn, fmt.Sprintf("login --username %s --password %s-pass", name, name))

	start := strings.Index(resp, "is <")
	require.NotEqual(h.t, -1, start, "unexpected login response: %q", resp)
	token := strings.TrimSuffix(resp[start+len("is <"):], ">>")
	require.NotEmpty(h.t, token)
	return token
}

func TestFullSessionLifecycle(t *testing.T) {
	h := newHarness(t, false)
	conn := &fakeConn{host: "10.0.0.1"}

	resp := h.register(conn, "alice")
	require.Equal(t,
		"<You have been successfully registered. Since you are the first user in the system, you are admin>",
		resp)

	token := h.login(conn, "alice")

	resp = h.exec(conn, "add-admin-user --session-id "+token+" --username bob")
	require.Equal(t, "<User with username <bob> does not exist>", resp)

	resp = h.exec(conn, "logout --session-id "+token)
	require.Equal(t, "<You logged out successfully>", resp)

	resp = h.exec(conn, "update-user --session-id "+token+" --new-email a@b")
	require.Equal(t, "<You are not logged in>", resp)
}

func TestSecondRegistrationIsRegular(t *testing.T) {
	h := newHarness(t, false)
	conn := &fakeConn{host: "10.0.0.1"}

	h.register(conn, "alice")
	resp := h.register(conn, "bob")
	require.Equal(t, "<You have been successfully registered>", resp)

	resp = h.register(conn, "bob")
	require.Equal(t, "<Username is taken, choose another one>", resp)
}

func TestRegisterWhileLoggedIn(t *testing.T) {
	h := newHarness(t, false)
	conn := &fakeConn{host: "10.0.0.1"}

	h.register(conn, "alice")
	h.login(conn, "alice")

	resp := h.register(conn, "bob")
	require.Equal(t, "<You are logged in>", resp)
}

func TestLoginFailures(t *testing.T) {
	h := newHarness(t, false)
	conn := &fakeConn{host: "10.0.0.1"}
	h.register(conn, "alice")

	resp := h.exec(conn, "login --username alice --password wrong")
	require.Equal(t, "<Wrong username/password combination>", resp)

	resp = h.exec(conn, "login --session-id bogus")
	require.Equal(t, "<Wrong session id>", resp)
}

func TestSessionResumeOnAnotherConnection(t *testing.T) {
	h := newHarness(t, false)
	first := &fakeConn{host: "10.0.0.1"}
	second := &fakeConn{host: "10.0.0.2"}

	h.register(first, "alice")
	token := h.login(first, "alice")

	resp := h.exec(second, "login --session-id "+token)
	require.Equal(t,
		fmt.Sprintf("<You have been successfully logged in, your session id is <%s>>", token),
		resp)
}

func TestBlockedAfterThreeBadLogins(t *testing.T) {
	h := newHarness(t, false)
	conn := &fakeConn{host: "10.0.0.1"}
	h.register(conn, "alice")

	for i := 0; i < 3; i++ {
		resp := h.exec(conn, "login --username alice --password wrong")
		require.Equal(t, "<Wrong username/password combination>", resp, "attempt %d", i+1)
	}

	// The fourth attempt is rejected before credentials are even checked,
	// and well-formed register attempts are rejected too.
	resp := h.exec(conn, "login --username alice --password alice-pass")
	require.Equal(t, "<You are currently blocked>", resp)

	resp = h.register(conn, "bob")
	require.Equal(t, "<You are currently blocked>", resp)
}

func TestSuccessfulLoginResetsFailureCount(t *testing.T) {
	h := newHarness(t, false)
	conn := &fakeConn{host: "10.0.0.1"}
	h.register(conn, "alice")

	h.exec(conn, "login --username alice --password wrong")
	h.exec(conn, "login --username alice --password wrong")
	token := h.login(conn, "alice")
	h.exec(conn, "logout --session-id "+token)

	// The two pre-login failures were forgiven; two more do not block.
	h.exec(conn, "login --username alice --password wrong")
	h.exec(conn, "login --username alice --password wrong")
	resp := h.exec(conn, "login --username alice --password alice-pass")
	require.Contains(t, resp, "successfully logged in")
}

func TestFailureCountKeyedByConnection(t *testing.T) {
	h := newHarness(t, false)
	first := &fakeConn{host: "10.0.0.1"}
	second := &fakeConn{host: "10.0.0.1"}
	h.register(first, "alice")

	for i := 0; i < 3; i++ {
		h.exec(first, "login --username alice --password wrong")
	}

	// Same host, different connection handle: not blocked.
	resp := h.exec(second, "login --username alice --password alice-pass")
	require.Contains(t, resp, "successfully logged in")
}

func TestFailureCountKeyedByAddress(t *testing.T) {
	h := newHarness(t, true)
	first := &fakeConn{host: "10.0.0.1"}
	second := &fakeConn{host: "10.0.0.1"}
	other := &fakeConn{host: "10.0.0.2"}
	h.register(first, "alice")

	for i := 0; i < 3; i++ {
		h.exec(first, "login --username alice --password wrong")
	}

	// Reconnecting from the same host does not shed the suspension.
	resp := h.exec(second, "login --username alice --password alice-pass")
	require.Equal(t, "<You are currently blocked>", resp)

	resp = h.exec(other, "login --username alice --password alice-pass")
	require.Contains(t, resp, "successfully logged in")
}

func TestUpdateUserAndResetPassword(t *testing.T) {
	h := newHarness(t, false)
	conn := &fakeConn{host: "10.0.0.1"}
	h.register(conn, "alice")
	token := h.login(conn, "alice")

	resp := h.exec(conn, "update-user --session-id "+token+" --new-email new@example.com")
	require.Equal(t, "<You successfully updated your profile>", resp)

	resp = h.exec(conn, "update-user --session-id "+token)
	require.Equal(t, "<You did not request any changes>", resp)

	resp = h.exec(conn, "reset-password --session-id "+token+
		" --username alice --old-password alice-pass --new-password fresh")
	require.Equal(t, "<You successfully changed your password to <fresh>>", resp)

	resp = h.exec(conn, "reset-password --session-id "+token+
		" --username alice --old-password alice-pass --new-password again")
	require.Equal(t, "<Wrong username/password combination>", resp,
		"the old password must match the credentials cached at login")
}

func TestLogoutWithForeignToken(t *testing.T) {
	h := newHarness(t, false)
	conn := &fakeConn{host: "10.0.0.1"}
	h.register(conn, "alice")
	token := h.login(conn, "alice")

	resp := h.exec(conn, "logout --session-id other")
	require.Equal(t, "<Wrong session id>", resp)

	// The rejected logout leaves the session usable.
	resp = h.exec(conn, "update-user --session-id "+token+" --new-email a@b")
	require.Equal(t, "<You successfully updated your profile>", resp)
}

func TestExpiredSessionReadsAsNotLoggedIn(t *testing.T) {
	h := newHarness(t, false)
	conn := &fakeConn{host: "10.0.0.1"}
	h.register(conn, "alice")
	token := h.login(conn, "alice")

	*h.now = h.now.Add(11 * time.Second)

	resp := h.exec(conn, "update-user --session-id "+token+" --new-email a@b")
	require.Equal(t, "<You are not logged in>", resp)
}

func TestAdminLifecycle(t *testing.T) {
	h := newHarness(t, false)
	conn := &fakeConn{host: "10.0.0.1"}
	h.register(conn, "alice")
	h.register(conn, "bob")
	token := h.login(conn, "alice")

	resp := h.exec(conn, "add-admin-user --session-id "+token+" --username bob")
	require.Equal(t, "<You successfully added new admin to the system>", resp)

	resp = h.exec(conn, "add-admin-user --session-id "+token+" --username bob")
	require.Equal(t, "<User with username <bob> is already admin>", resp)

	resp = h.exec(conn, "remove-admin-user --session-id "+token+" --username bob")
	require.Equal(t, "<You removed a admin successfully>", resp)

	resp = h.exec(conn, "remove-admin-user --session-id "+token+" --username bob")
	require.Equal(t, "<User with username <bob> is not admin>", resp)

	resp = h.exec(conn, "delete-user --session-id "+token+" --username bob")
	require.Equal(t, "<You deleted a user successfully>", resp)
}

func TestAdminCommandsRequireAdmin(t *testing.T) {
	h := newHarness(t, false)
	admin := &fakeConn{host: "10.0.0.1"}
	h.register(admin, "alice")
	h.register(admin, "bob")

	conn := &fakeConn{host: "10.0.0.2"}
	resp := h.exec(conn, "login --username bob --password bob-pass")
	require.Contains(t, resp, "successfully logged in")
	token := strings.TrimSuffix(resp[strings.Index(resp, "is <")+len("is <"):], ">>")

	resp = h.exec(conn, "add-admin-user --session-id "+token+" --username alice")
	require.Equal(t, "<Only a admin can add new admin>", resp)

	resp = h.exec(conn, "remove-admin-user --session-id "+token+" --username alice")
	require.Equal(t, "<Only a admin can remove admin>", resp)

	resp = h.exec(conn, "delete-user --session-id "+token+" --username alice")
	require.Equal(t, "<Only a admin can remove user>", resp)
}

func TestAdminCommandsWithoutSession(t *testing.T) {
	h := newHarness(t, false)
	conn := &fakeConn{host: "10.0.0.1"}
	h.register(conn, "alice")

	resp := h.exec(conn, "add-admin-user --session-id s --username alice")
	require.Equal(t, "<You are not logged in>", resp)

	h.login(conn, "alice")
	resp = h.exec(conn, "add-admin-user --session-id bogus --username alice")
	require.Equal(t, "<Wrong session id>", resp)
}

func TestRemovingLastAdminFails(t *testing.T) {
	h := newHarness(t, false)
	conn := &fakeConn{host: "10.0.0.1"}
	h.register(conn, "alice")
	token := h.login(conn, "alice")

	resp := h.exec(conn, "remove-admin-user --session-id "+token+" --username alice")
	require.Equal(t, "<A problem in the system has occurred, please try again>", resp)
}

func TestValidationResponses(t *testing.T) {
	h := newHarness(t, false)
	conn := &fakeConn{host: "10.0.0.1"}

	resp := h.exec(conn, "register --username a --password b")
	require.Equal(t, "<Wrong number of arguments>", resp)

	resp = h.exec(conn, "login --user a --password b")
	require.Equal(t, "<Missing authentication sentinel/data>", resp)

	resp = h.exec(conn, "frobnicate --foo bar")
	require.Equal(t, "<Unknown command>", resp)

	resp = h.exec(conn, "register")
	require.Equal(t, "<Unknown command>", resp, "a line without a space is not a command")
}

func TestNilConnection(t *testing.T) {
	h := newHarness(t, false)

	resp := h.dsp.Execute(protocol.Parse("login --username a --password b"), nil)
	require.Equal(t, "<A problem in the system has occurred, please try again>", resp)
}

func TestFailedLoginIsAudited(t *testing.T) {
	h := newHarness(t, false)
	conn := &fakeConn{host: "203.0.113.9"}
	h.register(conn, "alice")

	h.exec(conn, "login --username alice --password wrong")

	out := h.auditBuf.String()
	require.Contains(t, out, "Type: Failed log in attempt\n")
	require.Contains(t, out, "IP: 203.0.113.9\n")
}

func TestConfigChangeAuditPairing(t *testing.T) {
	h := newHarness(t, false)
	conn := &fakeConn{host: "10.0.0.1"}
	h.register(conn, "alice")
	h.register(conn, "bob")
	token := h.login(conn, "alice")

	h.auditBuf.Reset()
	h.exec(conn, "add-admin-user --session-id "+token+" --username bob")

	out := h.auditBuf.String()
	require.Equal(t, 2, strings.Count(out, "Type: Configuration change\n"),
		"a config change writes a begin and an end record")
	require.Contains(t, out, "Perpetrator: alice, IP: 10.0.0.1\n")
	require.Contains(t, out, "Target: bob\n")
	require.Contains(t, out, "Operation: ADD_ADMIN\nResult: Success\n")

	h.auditBuf.Reset()
	h.exec(conn, "add-admin-user --session-id "+token+" --username ghost")

	out = h.auditBuf.String()
	require.Contains(t, out, "Target: ghost\n")
	require.Contains(t, out, "Operation: ADD_ADMIN\nResult: Fail\n")
}

func TestUnauthenticatedAdminAttemptIsNotAudited(t *testing.T) {
	h := newHarness(t, false)
	conn := &fakeConn{host: "10.0.0.1"}
	h.register(conn, "alice")

	h.auditBuf.Reset()
	h.exec(conn, "add-admin-user --session-id s --username alice")

	require.Empty(t, h.auditBuf.String(),
		"rejections before authentication leave no config-change trail")
}
