package archive_test

import (
	"context"
	"errors"

	archive "github.com/legalarchive-ir/go-archive-client"
)

// fakeAPI implements archive.AuthAPI with overridable behavior per method.
// Unset methods fail loudly so tests only exercise what they configure.
type fakeAPI struct {
	loginFn          func(ctx context.Context, email, password string) (*archive.LoginResult, error)
	registerFn       func(ctx context.Context, data archive.RegisterData) (*archive.OutcomeResult, error)
	verifyFn         func(ctx context.Context, token string) (*archive.User, error)
	refreshFn        func(ctx context.Context, token string) (string, error)
	logoutFn         func(ctx context.Context, token string) error
	meFn             func(ctx context.Context, token string) (*archive.User, error)
	updateProfileFn  func(ctx context.Context, token string, update archive.ProfileUpdate) (*archive.User, error)
	forgotPasswordFn func(ctx context.Context, email string) (*archive.OutcomeResult, error)
	resetPasswordFn  func(ctx context.Context, resetToken, newPassword string) (*archive.OutcomeResult, error)
}

var errFakeNotConfigured = errors.New("fakeAPI method not configured")

func (f *fakeAPI) Login(ctx context.Context, email, password string) (*archive.LoginResult, error) {
	if f.loginFn == nil {
		return nil, errFakeNotConfigured
	}
	return f.loginFn(ctx, email, password)
}

func (f *fakeAPI) Register(ctx context.Context, data archive.RegisterData) (*archive.OutcomeResult, error) {
	if f.registerFn == nil {
		return nil, errFakeNotConfigured
	}
	return f.registerFn(ctx, data)
}

func (f *fakeAPI) Verify(ctx context.Context, token string) (*archive.User, error) {
	if f.verifyFn == nil {
		return nil, errFakeNotConfigured
	}
	return f.verifyFn(ctx, token)
}

func (f *fakeAPI) Refresh(ctx context.Context, token string) (string, error) {
	if f.refreshFn == nil {
		return "", errFakeNotConfigured
	}
	return f.refreshFn(ctx, token)
}

func (f *fakeAPI) Logout(ctx context.Context, token string) error {
	if f.logoutFn == nil {
		return nil
	}
	return f.logoutFn(ctx, token)
}

func (f *fakeAPI) Me(ctx context.Context, token string) (*archive.User, error) {
	if f.meFn == nil {
		return nil, errFakeNotConfigured
	}
	return f.meFn(ctx, token)
}

func (f *fakeAPI) UpdateProfile(ctx context.Context, token string, update archive.ProfileUpdate) (*archive.User, error) {
	if f.updateProfileFn == nil {
		return nil, errFakeNotConfigured
	}
	return f.updateProfileFn(ctx, token, update)
}

func (f *fakeAPI) ForgotPassword(ctx context.Context, email string) (*archive.OutcomeResult, error) {
	if f.forgotPasswordFn == nil {
		return nil, errFakeNotConfigured
	}
	return f.forgotPasswordFn(ctx, email)
}

func (f *fakeAPI) ResetPassword(ctx context.Context, resetToken, newPassword string) (*archive.OutcomeResult, error) {
	if f.resetPasswordFn == nil {
		return nil, errFakeNotConfigured
	}
	return f.resetPasswordFn(ctx, resetToken, newPassword)
}

// loginOK wires a fakeAPI login that accepts exactly one credential pair.
func loginOK(email, password, token string, user *archive.User) func(context.Context, string, string) (*archive.LoginResult, error) {
	return func(_ context.Context, gotEmail, gotPassword string) (*archive.LoginResult, error) {
		if gotEmail != email || gotPassword != password {
			return &archive.LoginResult{Success: false, Message: "ایمیل یا رمز عبور اشتباه است"}, nil
		}
		return &archive.LoginResult{
			Success: true,
			Message: "ورود موفقیت‌آمیز",
			Token:   token,
			User:    user,
		}, nil
	}
}
