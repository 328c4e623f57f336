// Package auth manages the single stored credential that guards the
// application: verification, password changes and disabling protection.
//
// Hashes written by this package are bcrypt. Databases created by earlier
// releases store an unsalted SHA-256 hex digest; those keep verifying until
// the password is next changed.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/renshi/internal/fault"
	"github.com/roach88/renshi/internal/logging"
	"github.com/roach88/renshi/internal/retry"
	"github.com/roach88/renshi/internal/store"
)

// Operation log types.
const (
	LogSetPassword = "修改密码"
	LogDisable     = "关闭密码保护"
)

// MinLength is the shortest accepted password, in characters.
const MinLength = 8

// credentialID is the only row of users.
const credentialID = 1

var (
	hasLetter  = regexp.MustCompile(`[A-Za-z]`)
	hasDigit   = regexp.MustCompile(`\d`)
	hasSpecial = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)
)

// Status describes the stored credential.
type Status struct {
	// Enabled is false when password protection is switched off.
	Enabled bool

	// Default is true while the seeded default password is in use.
	Default bool

	// Legacy is true when the hash is an unsalted SHA-256 digest.
	Legacy bool
}

// Service reads and writes the credential row.
type Service struct {
	store  *store.Store
	exec   *retry.Executor
	logger *zap.Logger
	cost   int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger (default: no-op).
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = logging.OrNop(l) }
}

// WithCost sets the bcrypt cost (default: bcrypt.DefaultCost).
func WithCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// NewService creates a Service. A nil executor uses retry.DefaultPolicy.
func NewService(s *store.Store, ex *retry.Executor, opts ...Option) *Service {
	if ex == nil {
		ex = retry.New(retry.DefaultPolicy())
	}
	svc := &Service{store: s, exec: ex, logger: zap.NewNop(), cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// HashLegacy returns the SHA-256 hex digest used by earlier releases.
func HashLegacy(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// ValidateStrength checks the password rules: at least MinLength
// characters with a letter, a digit and a special character.
func ValidateStrength(password string) error {
	const op = "auth.validate"
	switch {
	case utf8.RuneCountInString(password) < MinLength:
		return fault.Validation(op, "密码长度需至少8位")
	case !hasLetter.MatchString(password):
		return fault.Validation(op, "密码需包含字母")
	case !hasDigit.MatchString(password):
		return fault.Validation(op, "密码需包含数字")
	case !hasSpecial.MatchString(password):
		return fault.Validation(op, "密码需包含特殊字符")
	}
	return nil
}

type credential struct {
	hash    sql.NullString
	enabled bool
}

func (s *Service) load(ctx context.Context, q store.Querier) (credential, error) {
	var (
		c       credential
		enabled sql.NullInt64
	)
	err := q.QueryRowContext(ctx,
		"SELECT password_hash, password_enabled FROM users WHERE id = ?", credentialID,
	).Scan(&c.hash, &enabled)
	if errors.Is(err, sql.ErrNoRows) {
		// A missing row behaves as protection on with no password set.
		return credential{enabled: true}, nil
	}
	if err != nil {
		return credential{}, fmt.Errorf("load credential: %w", err)
	}
	c.enabled = !enabled.Valid || enabled.Int64 != 0
	return c, nil
}

func matches(hash sql.NullString, password string) bool {
	if !hash.Valid || hash.String == "" {
		return false
	}
	if isBcrypt(hash.String) {
		return bcrypt.CompareHashAndPassword([]byte(hash.String), []byte(password)) == nil
	}
	want := strings.ToLower(hash.String)
	return subtle.ConstantTimeCompare([]byte(want), []byte(HashLegacy(password))) == 1
}

func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2")
}

// Verify reports whether password unlocks the application. With protection
// disabled every password is accepted.
func (s *Service) Verify(ctx context.Context, password string) (bool, error) {
	const op = "auth.verify"
	c, err := retry.Do(ctx, s.exec, op, func(ctx context.Context) (credential, error) {
		c, err := s.load(ctx, s.store.DB())
		return c, store.Classify(op, err)
	})
	if err != nil {
		return false, fault.Ensure(op, err)
	}
	if !c.enabled {
		return true, nil
	}
	ok := matches(c.hash, password)
	if !ok {
		s.logger.Warn("password rejected")
	}
	return ok, nil
}

// Status returns the state of the credential.
func (s *Service) Status(ctx context.Context) (Status, error) {
	const op = "auth.status"
	c, err := retry.Do(ctx, s.exec, op, func(ctx context.Context) (credential, error) {
		c, err := s.load(ctx, s.store.DB())
		return c, store.Classify(op, err)
	})
	if err != nil {
		return Status{}, fault.Ensure(op, err)
	}
	return Status{
		Enabled: c.enabled,
		Default: c.hash.Valid && strings.EqualFold(c.hash.String, store.DefaultCredentialHash),
		Legacy:  c.hash.Valid && c.hash.String != "" && !isBcrypt(c.hash.String),
	}, nil
}

// SetPassword replaces the password and turns protection on. While
// protection is on, current must match the stored password.
func (s *Service) SetPassword(ctx context.Context, current, next string) error {
	const op = "auth.set_password"
	if err := ValidateStrength(next); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return fault.Wrap(fault.KindInternal, op, "保存密码失败", err)
	}

	err = s.exec.Run(ctx, op, func(ctx context.Context) error {
		return s.store.WithTx(ctx, op, func(tx *sql.Tx) error {
			c, err := s.load(ctx, tx)
			if err != nil {
				return err
			}
			if c.enabled && !matches(c.hash, current) {
				return fault.Validation(op, "当前密码错误！")
			}
			if err := upsert(ctx, tx, sql.NullString{String: string(hash), Valid: true}, 1); err != nil {
				return err
			}
			return s.store.AppendLog(ctx, tx, LogSetPassword, "密码")
		})
	})
	if err != nil {
		return fault.Ensure(op, err)
	}
	s.logger.Info("password updated")
	return nil
}

// Disable switches protection off and clears the stored hash.
func (s *Service) Disable(ctx context.Context) error {
	const op = "auth.disable"
	err := s.exec.Run(ctx, op, func(ctx context.Context) error {
		return s.store.WithTx(ctx, op, func(tx *sql.Tx) error {
			if err := upsert(ctx, tx, sql.NullString{}, 0); err != nil {
				return err
			}
			return s.store.AppendLog(ctx, tx, LogDisable, "密码")
		})
	})
	if err != nil {
		return fault.Ensure(op, err)
	}
	s.logger.Info("password protection disabled")
	return nil
}

// upsert writes the credential row, creating it if migration never ran.
func upsert(ctx context.Context, tx *sql.Tx, hash sql.NullString, enabled int) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE users SET password_hash = ?, password_enabled = ? WHERE id = ?",
		hash, enabled, credentialID,
	)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO users (id, password_hash, password_enabled) VALUES (?, ?, ?)",
		credentialID, hash, enabled,
	); err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}
