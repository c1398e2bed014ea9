package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	_ "modernc.org/sqlite"

	"github.com/skordev/authline/internal/crypt"
	"github.com/skordev/authline/internal/user"
)

// SQLite is the Store backed by a SQLite database. Passwords are encrypted
// on the way in and decrypted on the way out; the rows never hold plaintext.
type SQLite struct {
	db      *sql.DB
	crypter *crypt.Crypter
}

// Open creates or opens the database at path and runs pending migrations.
func Open(path string, crypter *crypt.Crypter) (*SQLite, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	// WAL is best effort: on some filesystems switching journal modes fails
	// with "disk I/O error", and the default journaling works fine.
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		log.Printf("Warning: failed to enable WAL mode (%v); continuing without WAL", err)
	}

	if _, err := sqlDB.Exec("PRAGMA foreign_keys=ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLite{db: sqlDB, crypter: crypter}

	if err := s.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// SetBusyTimeout sets SQLite's busy timeout, best effort. The admin tool
// uses it to reduce SQLITE_BUSY failures while the server is online.
func (s *SQLite) SetBusyTimeout(ms int) {
	_, _ = s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
}

func (s *SQLite) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	for i, m := range migrations {
		version := i + 1
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", version, err)
		}
		if count > 0 {
			continue
		}

		log.Printf("Running migration %d: %s", version, m.name)
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("migration %d (%s): %w", version, m.name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("record migration %d: %w", version, err)
		}
	}

	return nil
}

// Add inserts a new account.
func (s *SQLite) Add(u user.User) error {
	exists, err := s.Has(u.Username)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicateUser
	}

	encrypted, err := s.crypter.Encrypt(u.Password)
	if err != nil {
		return fmt.Errorf("encrypt password: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO users (username, password, first_name, last_name, email, role)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.Username, encrypted, u.FirstName, u.LastName, u.Email, u.Role.String())
	if err != nil {
		return fmt.Errorf("insert user %s: %w", u.Username, err)
	}
	return nil
}

// Remove deletes the account, refusing to delete the only remaining admin.
func (s *SQLite) Remove(username string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin remove: %w", err)
	}
	defer tx.Rollback()

	u, err := s.extractTx(tx, username)
	if err != nil {
		return err
	}

	if u.IsAdmin() {
		admins, err := countAdmins(tx)
		if err != nil {
			return err
		}
		if admins <= 1 {
			return ErrLastAdmin
		}
	}

	if _, err := tx.Exec("DELETE FROM users WHERE username = ?", username); err != nil {
		return fmt.Errorf("delete user %s: %w", username, err)
	}
	return tx.Commit()
}

// Update applies the overlay as an atomic remove-then-add so a username
// change and a profile change commit together or not at all.
func (s *SQLite) Update(username string, ch Changes) (user.User, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return user.User{}, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	current, err := s.extractTx(tx, username)
	if err != nil {
		return user.User{}, err
	}

	updated := applyChanges(current, ch)

	if updated.Username != username {
		var count int
		if err := tx.QueryRow("SELECT COUNT(*) FROM users WHERE username = ?", updated.Username).Scan(&count); err != nil {
			return user.User{}, fmt.Errorf("check username %s: %w", updated.Username, err)
		}
		if count > 0 {
			return user.User{}, ErrDuplicateUser
		}
	}

	encrypted, err := s.crypter.Encrypt(updated.Password)
	if err != nil {
		return user.User{}, fmt.Errorf("encrypt password: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM users WHERE username = ?", username); err != nil {
		return user.User{}, fmt.Errorf("delete user %s: %w", username, err)
	}
	if _, err := tx.Exec(`
		INSERT INTO users (username, password, first_name, last_name, email, role)
		VALUES (?, ?, ?, ?, ?, ?)
	`, updated.Username, encrypted, updated.FirstName, updated.LastName, updated.Email, updated.Role.String()); err != nil {
		return user.User{}, fmt.Errorf("insert user %s: %w", updated.Username, err)
	}

	if err := tx.Commit(); err != nil {
		return user.User{}, fmt.Errorf("commit update: %w", err)
	}
	return updated, nil
}

// Has reports whether an account exists under the username. The lookup is
// case-sensitive.
func (s *SQLite) Has(username string) (bool, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&count); err != nil {
		return false, fmt.Errorf("check user %s: %w", username, err)
	}
	return count > 0, nil
}

// Extract fetches the account with the password decrypted.
func (s *SQLite) Extract(username string) (user.User, error) {
	row := s.db.QueryRow(`
		SELECT username, password, first_name, last_name, email, role
		FROM users WHERE username = ?
	`, username)
	return s.scanUser(row)
}

// IsEmpty reports whether no accounts exist yet.
func (s *SQLite) IsEmpty() (bool, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return count == 0, nil
}

// SetRole changes the account's role, refusing to demote the only admin.
func (s *SQLite) SetRole(username string, role user.Role) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin role change: %w", err)
	}
	defer tx.Rollback()

	u, err := s.extractTx(tx, username)
	if err != nil {
		return err
	}

	if u.IsAdmin() && role != user.RoleAdmin {
		admins, err := countAdmins(tx)
		if err != nil {
			return err
		}
		if admins <= 1 {
			return ErrLastAdmin
		}
	}

	if _, err := tx.Exec(`
		UPDATE users SET role = ?, updated_at = CURRENT_TIMESTAMP WHERE username = ?
	`, role.String(), username); err != nil {
		return fmt.Errorf("set role for %s: %w", username, err)
	}
	return tx.Commit()
}

// List returns every account ordered by username.
func (s *SQLite) List() ([]user.User, error) {
	rows, err := s.db.Query(`
		SELECT username, password, first_name, last_name, email, role
		FROM users ORDER BY username
	`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []user.User
	for rows.Next() {
		u, err := s.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLite) scanUser(row rowScanner) (user.User, error) {
	var u user.User
	var encrypted, role string
	err := row.Scan(&u.Username, &encrypted, &u.FirstName, &u.LastName, &u.Email, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, ErrUserNotFound
	}
	if err != nil {
		return user.User{}, fmt.Errorf("scan user: %w", err)
	}

	u.Password, err = s.crypter.Decrypt(encrypted)
	if err != nil {
		return user.User{}, fmt.Errorf("decrypt password for %s: %w", u.Username, err)
	}
	u.Role = user.ParseRole(role)
	return u, nil
}

func (s *SQLite) extractTx(tx *sql.Tx, username string) (user.User, error) {
	row := tx.QueryRow(`
		SELECT username, password, first_name, last_name, email, role
		FROM users WHERE username = ?
	`, username)
	return s.scanUser(row)
}

func countAdmins(tx *sql.Tx) (int, error) {
	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM users WHERE role = 'admin'").Scan(&count); err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return count, nil
}

func applyChanges(u user.User, ch Changes) user.User {
	if v, ok := ch[FieldUsername]; ok {
		u.Username = v
	}
	if v, ok := ch[FieldFirstName]; ok {
		u.FirstName = v
	}
	if v, ok := ch[FieldLastName]; ok {
		u.LastName = v
	}
	if v, ok := ch[FieldEmail]; ok {
		u.Email = v
	}
	if v, ok := ch[FieldPassword]; ok {
		u.Password = v
	}
	return u
}
