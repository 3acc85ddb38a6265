package archive

import (
	"context"
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/go-resty/resty/v2"
	goerrors "github.com/goliatone/go-errors"
)

// APIClient implements AuthAPI against the archive's HTTP auth endpoints.
type APIClient struct {
	http   *resty.Client
	logger Logger
}

var _ AuthAPI = &APIClient{}

func NewAPIClient(cfg Config) *APIClient {
	client := resty.New().
		SetBaseURL(cfg.GetBaseURL()).
		SetTimeout(cfg.GetRequestTimeout()).
		SetHeader("Accept", "application/json")

	return &APIClient{
		http:   client,
		logger: defLogger{},
	}
}

func (c *APIClient) WithLogger(logger Logger) *APIClient {
	if logger != nil {
		c.logger = logger
	}
	return c
}

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (p loginPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(
			&p.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&p.Password,
			validation.Required,
		),
	)
}

// Validate will run validation rules
func (d RegisterData) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&d.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(&d.Name, validation.Required, validation.Length(2, 200)),
	)
}

// apiFailure is the body the archive API sends with non-2xx statuses.
// FastAPI-style handlers use "detail"; older ones use "message".
type apiFailure struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

func (f apiFailure) text(fallback string) string {
	if f.Detail != "" {
		return f.Detail
	}
	if f.Message != "" {
		return f.Message
	}
	return fallback
}

func isAuthStatus(code int) bool {
	switch code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
		http.StatusUnprocessableEntity, http.StatusLocked:
		return true
	default:
		return false
	}
}

func statusError(op string, code int) error {
	return goerrors.New(fmt.Sprintf("%s failed with status %d", op, code), goerrors.CategoryOperation).
		WithTextCode(textCodeTransportError)
}

func (c *APIClient) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	payload := loginPayload{Email: email, Password: password}
	if err := payload.Validate(); err != nil {
		// Invalid input is an expected auth outcome, same as a server-side
		// credential rejection.
		return &LoginResult{Success: false, Message: err.Error()}, nil
	}

	var out LoginResult
	var failure apiFailure

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&out).
		SetError(&failure).
		Post("/auth/login")
	if err != nil {
		return nil, NewTransportError(err, "login request failed")
	}

	if resp.IsSuccess() {
		return &out, nil
	}

	if isAuthStatus(resp.StatusCode()) {
		c.logger.Debug("login rejected with status %d", resp.StatusCode())
		return &LoginResult{
			Success: false,
			Message: failure.text("ایمیل یا رمز عبور اشتباه است"),
		}, nil
	}

	return nil, statusError("login", resp.StatusCode())
}

func (c *APIClient) Register(ctx context.Context, data RegisterData) (*OutcomeResult, error) {
	if err := data.Validate(); err != nil {
		return &OutcomeResult{Success: false, Message: err.Error()}, nil
	}

	var out OutcomeResult
	var failure apiFailure

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(data).
		SetResult(&out).
		SetError(&failure).
		Post("/auth/register")
	if err != nil {
		return nil, NewTransportError(err, "register request failed")
	}

	if resp.IsSuccess() {
		return &out, nil
	}

	if isAuthStatus(resp.StatusCode()) {
		return &OutcomeResult{
			Success: false,
			Message: failure.text("خطا در ثبت‌نام"),
		}, nil
	}

	return nil, statusError("register", resp.StatusCode())
}

func (c *APIClient) Verify(ctx context.Context, token string) (*User, error) {
	var out struct {
		User *User `json:"user"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&out).
		Get("/auth/verify")
	if err != nil {
		return nil, NewTransportError(err, "verify request failed")
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return nil, ErrUnauthorized
	case !resp.IsSuccess():
		return nil, statusError("verify", resp.StatusCode())
	case out.User == nil:
		return nil, goerrors.New("verify response missing user", goerrors.CategoryOperation).
			WithTextCode(textCodeTransportError)
	}

	return out.User, nil
}

func (c *APIClient) Refresh(ctx context.Context, token string) (string, error) {
	var out struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&out).
		Post("/auth/refresh")
	if err != nil {
		return "", NewTransportError(err, "refresh request failed")
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return "", ErrUnauthorized
	case !resp.IsSuccess():
		return "", statusError("refresh", resp.StatusCode())
	case !out.Success || out.Token == "":
		return "", ErrRefreshFailed
	}

	return out.Token, nil
}

func (c *APIClient) Logout(ctx context.Context, token string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		Post("/auth/logout")
	if err != nil {
		return NewTransportError(err, "logout request failed")
	}

	if !resp.IsSuccess() {
		return statusError("logout", resp.StatusCode())
	}
	return nil
}

func (c *APIClient) Me(ctx context.Context, token string) (*User, error) {
	var out struct {
		User *User `json:"user"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&out).
		Get("/auth/me")
	if err != nil {
		return nil, NewTransportError(err, "me request failed")
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return nil, ErrUnauthorized
	case !resp.IsSuccess():
		return nil, statusError("me", resp.StatusCode())
	case out.User == nil:
		return nil, goerrors.New("me response missing user", goerrors.CategoryOperation).
			WithTextCode(textCodeTransportError)
	}

	return out.User, nil
}

func (c *APIClient) UpdateProfile(ctx context.Context, token string, update ProfileUpdate) (*User, error) {
	var out struct {
		Success bool  `json:"success"`
		User    *User `json:"user"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(update).
		SetResult(&out).
		Put("/auth/profile")
	if err != nil {
		return nil, NewTransportError(err, "profile update request failed")
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return nil, ErrUnauthorized
	case !resp.IsSuccess():
		return nil, statusError("profile update", resp.StatusCode())
	}

	// Some deployments return only {success}; the caller merges locally.
	return out.User, nil
}

func (c *APIClient) ForgotPassword(ctx context.Context, email string) (*OutcomeResult, error) {
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return &OutcomeResult{Success: false, Message: err.Error()}, nil
	}

	var out OutcomeResult
	var failure apiFailure

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": email}).
		SetResult(&out).
		SetError(&failure).
		Post("/auth/forgot-password")
	if err != nil {
		return nil, NewTransportError(err, "forgot password request failed")
	}

	if resp.IsSuccess() {
		return &out, nil
	}

	if isAuthStatus(resp.StatusCode()) {
		return &OutcomeResult{Success: false, Message: failure.text("خطا در بازیابی رمز عبور")}, nil
	}

	return nil, statusError("forgot password", resp.StatusCode())
}

func (c *APIClient) ResetPassword(ctx context.Context, resetToken, newPassword string) (*OutcomeResult, error) {
	if err := validation.Validate(newPassword, validation.Required, validation.Length(8, 100)); err != nil {
		return &OutcomeResult{Success: false, Message: err.Error()}, nil
	}

	var out OutcomeResult
	var failure apiFailure

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"token": resetToken, "new_password": newPassword}).
		SetResult(&out).
		SetError(&failure).
		Post("/auth/reset-password")
	if err != nil {
		return nil, NewTransportError(err, "reset password request failed")
	}

	if resp.IsSuccess() {
		return &out, nil
	}

	if isAuthStatus(resp.StatusCode()) {
		return &OutcomeResult{Success: false, Message: failure.text("خطا در بازیابی رمز عبور")}, nil
	}

	return nil, statusError("reset password", resp.StatusCode())
}
