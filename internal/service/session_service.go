package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"kawah-task/internal/apiclient"
	"kawah-task/internal/model"
	"kawah-task/internal/repository"
)

// State is where a session is in its login lifecycle.
type State int

const (
	StateAnonymous State = iota
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const (
	msgLoginFailed    = "Login failed"
	msgRegisterFailed = "Registration failed"
	msgLogoutFailed   = "Logout failed"
)

// AuthAPI is the client surface the session manager needs.
type AuthAPI interface {
	API
	OnUnauthorized(fn func(ctx context.Context))
}

// SessionVault persists the credentials of one session.
type SessionVault interface {
	AccessToken(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) (string, error)
	User(ctx context.Context) (*model.User, error)
	Save(ctx context.Context, tokens model.Tokens, user model.User) error
	DropUser(ctx context.Context) error
	Clear(ctx context.Context) error
}

// SessionService owns the authentication state of one session.
type SessionService struct {
	api   AuthAPI
	vault SessionVault
	log   logrus.FieldLogger

	mu       sync.Mutex
	state    State
	user     *model.User
	inflight int
	errMsg   string
}

// NewSessionService wires the manager to the client's 401 teardown, so an
// expired session drops the in-memory user as well.
func NewSessionService(api AuthAPI, vault SessionVault, log logrus.FieldLogger) *SessionService {
	s := &SessionService{api: api, vault: vault, log: log}
	api.OnUnauthorized(s.HandleUnauthorized)
	return s
}

// Login exchanges credentials for a token pair and persists it together with
// the user profile. On failure nothing is persisted and the previous state is
// restored.
func (s *SessionService) Login(ctx context.Context, email, password string) (*model.User, error) {
	form := model.LoginForm{Email: strings.TrimSpace(email), Password: password}
	if err := model.Validate(form); err != nil {
		s.setErr(err.Error())
		return nil, err
	}

	prior := s.begin()
	var result model.LoginResult
	err := s.api.Post(ctx, "/auth/login", form, &result)
	if err == nil && (result.Tokens.Access.Token == "" || result.Tokens.Refresh.Token == "") {
		err = errors.New("login response is missing tokens")
	}
	if err == nil {
		err = s.vault.Save(ctx, result.Tokens, result.User)
	}
	if err != nil {
		next := prior
		if errors.Is(err, apiclient.ErrUnauthorized) {
			next = StateAnonymous
		}
		s.end(next, messageOr(err, msgLoginFailed))
		return nil, fmt.Errorf("login: %w", err)
	}

	user := result.User
	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()
	s.end(StateAuthenticated, "")

	s.log.WithField("user", user.ID).Info("logged in")
	return &user, nil
}

// Register creates an account. It never establishes a session: the caller
// still has to log in.
func (s *SessionService) Register(ctx context.Context, name, email, password string) error {
	reg := model.Registration{
		Name:     strings.TrimSpace(name),
		Email:    strings.TrimSpace(email),
		Password: password,
	}
	if err := model.Validate(reg); err != nil {
		s.setErr(err.Error())
		return err
	}

	prior := s.begin()
	// Registering another account while logged in keeps the current session.
	next := StateAnonymous
	if prior == StateAuthenticated {
		next = prior
	}
	if err := s.api.Post(ctx, "/auth/register", reg, nil); err != nil {
		if errors.Is(err, apiclient.ErrUnauthorized) {
			next = StateAnonymous
		}
		s.end(next, messageOr(err, msgRegisterFailed))
		return fmt.Errorf("register: %w", err)
	}
	s.end(next, "")

	s.log.WithField("email", reg.Email).Info("account registered")
	return nil
}

// Logout revokes the refresh token on the server when there is one. Local
// credentials and the in-memory user are removed even if that call fails;
// the server error is still returned.
func (s *SessionService) Logout(ctx context.Context) error {
	s.begin()

	var remoteErr error
	refresh, err := s.vault.RefreshToken(ctx)
	if err != nil {
		remoteErr = fmt.Errorf("read refresh token: %w", err)
	} else if refresh != "" {
		body := map[string]string{"refreshToken": refresh}
		if err := s.api.Post(ctx, "/auth/logout", body, nil); err != nil {
			s.log.WithError(err).Warn("logout request failed, clearing session anyway")
			remoteErr = err
		}
	}

	clearErr := s.vault.Clear(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()

	msg := ""
	if remoteErr != nil {
		msg = messageOr(remoteErr, msgLogoutFailed)
	}
	s.end(StateAnonymous, msg)

	if err := errors.Join(remoteErr, clearErr); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	s.log.Info("logged out")
	return nil
}

// Restore rehydrates the session from the vault without asking the server.
// A stored profile that cannot be decoded is removed.
func (s *SessionService) Restore(ctx context.Context) error {
	user, err := s.vault.User(ctx)
	if errors.Is(err, repository.ErrMalformedProfile) {
		s.log.WithError(err).Warn("dropping unreadable stored profile")
		if dropErr := s.vault.DropUser(ctx); dropErr != nil {
			return fmt.Errorf("drop stored profile: %w", dropErr)
		}
		s.set(StateAnonymous, nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if user == nil {
		s.set(StateAnonymous, nil)
		return nil
	}
	s.set(StateAuthenticated, user)
	return nil
}

// HandleUnauthorized is called by the client after a 401 wiped the vault.
func (s *SessionService) HandleUnauthorized(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.state = StateAnonymous
	s.errMsg = msgSessionExpired
}

// ExpiresAt reads the exp claim of the stored access token. The signature is
// not checked; the value is informational. Opaque tokens give the zero time.
func (s *SessionService) ExpiresAt(ctx context.Context) (time.Time, error) {
	token, err := s.vault.AccessToken(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if token == "" {
		return time.Time{}, nil
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, nil
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}

func (s *SessionService) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// User returns a copy of the logged-in user, or nil.
func (s *SessionService) User() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *SessionService) Authenticated() bool {
	return s.State() == StateAuthenticated
}

func (s *SessionService) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight > 0
}

func (s *SessionService) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// begin marks an operation as started and returns the state it started from.
func (s *SessionService) begin() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	prior := s.state
	s.state = StateAuthenticating
	s.inflight++
	s.errMsg = ""
	return prior
}

func (s *SessionService) end(next State, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = next
	s.inflight--
	s.errMsg = errMsg
}

func (s *SessionService) set(state State, user *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.user = user
}

func (s *SessionService) setErr(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = msg
}

// messageOr prefers the server's own explanation of a failure.
func messageOr(err error, fallback string) string {
	if msg := apiclient.ServerMessage(err); msg != "" {
		return msg
	}
	return fallback
}
