package archive

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// User is the archive account record attached to an authenticated session.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a copy so snapshot holders cannot mutate session state.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// LoginResult carries the server verdict for a login attempt. Credential
// rejections are values, not errors: Success is false and Message holds the
// server-provided Persian text for display.
type LoginResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Token   string `json:"token,omitempty"`
	User    *User  `json:"user,omitempty"`
}

// RegisterData is the self-registration payload. The requested Role is
// advisory only; both client and server downgrade it to RoleViewer.
type RegisterData struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
}

// OutcomeResult is the generic verdict shape shared by register and the
// password-reset operations: none of them establish a session.
type OutcomeResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	User    *User  `json:"user,omitempty"`
}

// ProfileUpdate holds the fields UpdateUser may change. Nil means "leave
// unchanged".
type ProfileUpdate struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

// AuthAPI is the collaborator surface of the archive's auth endpoints. The
// SessionManager consumes it; APIClient implements it over HTTP.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Register(ctx context.Context, data RegisterData) (*OutcomeResult, error)
	Verify(ctx context.Context, token string) (*User, error)
	Refresh(ctx context.Context, token string) (string, error)
	Logout(ctx context.Context, token string) error
	Me(ctx context.Context, token string) (*User, error)
	UpdateProfile(ctx context.Context, token string, update ProfileUpdate) (*User, error)
	ForgotPassword(ctx context.Context, email string) (*OutcomeResult, error)
	ResetPassword(ctx context.Context, resetToken, newPassword string) (*OutcomeResult, error)
}

// Config holds client options
type Config interface {
	GetBaseURL() string
	GetRealtimeURL() string
	GetRequestTimeout() time.Duration
	GetTokenPath() string
}

// ClientConfig is the default Config implementation.
type ClientConfig struct {
	BaseURL        string
	RealtimeURL    string
	RequestTimeout time.Duration
	TokenPath      string
}

func (c ClientConfig) GetBaseURL() string     { return c.BaseURL }
func (c ClientConfig) GetRealtimeURL() string { return c.RealtimeURL }
func (c ClientConfig) GetTokenPath() string   { return c.TokenPath }

func (c ClientConfig) GetRequestTimeout() time.Duration {
	if c.RequestTimeout <= 0 {
		return 30 * time.Second
	}
	return c.RequestTimeout
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ARCHIVE "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ARCHIVE "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ARCHIVE "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ARCHIVE "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
