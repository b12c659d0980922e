package flows

import (
	"context"
	"errors"
	"net/mail"

	"github.com/MrEthical07/deviceauth/session"
)

// RegisterFailureKind classifies registration failures.
type RegisterFailureKind int

const (
	RegisterFailureNone RegisterFailureKind = iota
	RegisterFailureInvalidInput
	RegisterFailureDuplicate
	RegisterFailureHash
	RegisterFailureBackend
	RegisterFailureIssue
)

// NewUser is the input to RegisterDeps.CreateUser.
type NewUser struct {
	ID           string
	Email        string
	PasswordHash string
	Roles        []string
}

// RegisterDeps wires the registration flow.
type RegisterDeps struct {
	NormalizeEmail    func(email string) string
	MinPasswordLength int
	NewUserID         func() string
	HashPassword      func(password string) (string, error)
	CreateUser        func(ctx context.Context, u NewUser) (User, error)
	EmailTaken        error
	Issue             IssueDeps
}

// RegisterResult is the outcome of one registration.
type RegisterResult struct {
	Failure RegisterFailureKind
	Err     error
	User    User
	Issued  IssueResult
}

// RunRegister creates an active user at token version 1 and signs it in.
func RunRegister(ctx context.Context, email, password string, roles []string, device session.Device, deps RegisterDeps) RegisterResult {
	if deps.NormalizeEmail != nil {
		email = deps.NormalizeEmail(email)
	}
	if err := checkCredentialsInput(email, password, deps.MinPasswordLength); err != nil {
		return RegisterResult{Failure: RegisterFailureInvalidInput, Err: err}
	}

	hash, err := deps.HashPassword(password)
	if err != nil {
		return RegisterResult{Failure: RegisterFailureHash, Err: err}
	}

	user, err := deps.CreateUser(ctx, NewUser{
		ID:           deps.NewUserID(),
		Email:        email,
		PasswordHash: hash,
		Roles:        roles,
	})
	if err != nil {
		if deps.EmailTaken != nil && errors.Is(err, deps.EmailTaken) {
			return RegisterResult{Failure: RegisterFailureDuplicate, Err: err}
		}
		return RegisterResult{Failure: RegisterFailureBackend, Err: err}
	}

	issued := RunIssue(ctx, user, device, deps.Issue)
	if issued.Failure != IssueFailureNone {
		return RegisterResult{Failure: RegisterFailureIssue, Err: issued.Err, User: user, Issued: issued}
	}
	return RegisterResult{User: user, Issued: issued}
}

func checkCredentialsInput(email, password string, minLen int) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errors.New("invalid email address")
	}
	return checkPasswordInput(password, minLen)
}

func checkPasswordInput(password string, minLen int) error {
	if len(password) < minLen {
		return errors.New("password too short")
	}
	if len(password) > 1024 {
		return errors.New("password too long")
	}
	return nil
}
