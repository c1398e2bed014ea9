// Package audit writes the security audit trail: failed login attempts and
// privileged configuration changes. Records are plain multi-line text blocks
// framed by a fixed separator line; consumers parse them by splitting on that
// separator, so the field labels and ordering are a compatibility surface.
package audit

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"
)

// Separator frames every record, one copy before and one after.
const Separator = "........................"

// timeLayout matches an ISO-8601 local timestamp without a zone offset.
const timeLayout = "2006-01-02T15:04:05"

// Operation names a privileged configuration change.
type Operation string

const (
	OpAddAdmin    Operation = "ADD_ADMIN"
	OpRemoveAdmin Operation = "REMOVE_ADMIN"
)

// Logger formats records and appends them to the sink. Safe for concurrent
// use. A write failure is reported to the process log and otherwise
// swallowed; the audit trail is best effort by design of the wire protocol,
// which has no way to report it.
type Logger struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewLogger creates a logger appending to w.
func NewLogger(w io.Writer) *Logger {
	return &Logger{w: w, now: time.Now}
}

// FailedLogin records a failed login attempt from the given host.
func (l *Logger) FailedLogin(ip string) {
	l.write(l.formatFailedLogin(ip))
}

// ConfigChangeBegin records the start of a privileged operation, before its
// outcome is known.
func (l *Logger) ConfigChangeBegin(op Operation, ip, perpetrator, target string) {
	l.write(l.formatConfigChange(op, ip, perpetrator, target, nil))
}

// ConfigChangeEnd records the outcome of a privileged operation. Every begin
// record is paired with exactly one end record, success or not.
func (l *Logger) ConfigChangeEnd(op Operation, ip, perpetrator, target string, succeeded bool) {
	l.write(l.formatConfigChange(op, ip, perpetrator, target, &succeeded))
}

func (l *Logger) write(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := io.WriteString(l.w, event); err != nil {
		log.Printf("audit: write failed: %v", err)
	}
}

func (l *Logger) formatFailedLogin(ip string) string {
	var b strings.Builder
	b.WriteString(Separator + "\n")
	fmt.Fprintf(&b, "Timestamp: %s\n", l.now().Format(timeLayout))
	b.WriteString("Type: Failed log in attempt\n")
	fmt.Fprintf(&b, "IP: %s\n", ip)
	b.WriteString(Separator + "\n")
	return b.String()
}

// formatConfigChange renders a begin record when result is nil, an end
// record otherwise.
func (l *Logger) formatConfigChange(op Operation, ip, perpetrator, target string, result *bool) string {
	var b strings.Builder
	b.WriteString(Separator + "\n")
	fmt.Fprintf(&b, "Timestamp: %s\n", l.now().Format(timeLayout))
	b.WriteString("Type: Configuration change\n")
	fmt.Fprintf(&b, "Perpetrator: %s, IP: %s\n", perpetrator, ip)
	fmt.Fprintf(&b, "Target: %s\n", target)
	fmt.Fprintf(&b, "Operation: %s\n", op)
	if result != nil {
		outcome := "Fail"
		if *result {
			outcome = "Success"
		}
		fmt.Fprintf(&b, "Result: %s\n", outcome)
	}
	b.WriteString(Separator + "\n")
	return b.String()
}
