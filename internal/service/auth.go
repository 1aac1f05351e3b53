package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/xid"
	"go.uber.org/zap"

	"github.com/sakif/volunteer-hub/internal/apperror"
	"github.com/sakif/volunteer-hub/internal/auth"
	"github.com/sakif/volunteer-hub/internal/metrics"
	"github.com/sakif/volunteer-hub/internal/model"
	"github.com/sakif/volunteer-hub/internal/repository"
	"github.com/sakif/volunteer-hub/internal/sanitize"
)

// AuthService handles accounts: registration, login, GitHub sign-in and the
// caller's own profile.
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt)
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository  → read/write user documents
//   - events     repository.EventRepository → expand profile event references
//   - tokens     *auth.TokenService         → issue JWTs
//   - passwords  *auth.PasswordService      → bcrypt hashing
//   - metrics    *metrics.Metrics           → registration counter (may be nil)
type AuthService struct {
	users     repository.UserRepository
	events    repository.EventRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	metrics   *metrics.Metrics
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	events repository.EventRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	m *metrics.Metrics,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		events:    events,
		tokens:    tokens,
		passwords: passwords,
		metrics:   m,
		validate:  newValidator(),
		logger:    logger,
	}
}

// AuthResult is returned by every sign-in path. It bundles the user record
// and the issued JWT so the handler can respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// RegisterInput is the body of POST /api/auth/register.
type RegisterInput struct {
	Name     string `json:"name" validate:"required,min=2,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginInput is the body of POST /api/auth/login.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UpdateProfileInput is the body of PUT /api/auth/profile.
//
// WHY POINTERS?
// A key the client did not send stays nil and is left alone. A key sent as
// "" or [] is a real update that clears the field.
type UpdateProfileInput struct {
	Name   *string   `json:"name" validate:"omitnil,min=2,max=50"`
	Bio    *string   `json:"bio" validate:"omitnil,max=500"`
	Skills *[]string `json:"skills" validate:"omitnil,max=50"`
	Causes *[]string `json:"causes" validate:"omitnil,max=50"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a password account and signs it in.
//
// Email uniqueness is enforced by the store (a unique index in MongoDB), not
// by a lookup beforehand: two concurrent registrations for the same address
// cannot both pass a check-then-insert, but only one can win the insert.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Name = sanitize.Text(in.Name)
	in.Email = normalizeEmail(in.Email)
	if err := validateInput(s.validate, in, ""); err != nil {
		return nil, err
	}
	if len(in.Password) > auth.MaxPasswordBytes {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at most %d bytes", auth.MaxPasswordBytes))
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &model.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if isAppError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.metrics.RecordRegistration("password")
	s.logger.Info("user registered", zap.String("userID", user.ID.Hex()))

	return s.issue(user)
}

// Login checks an email and password pair.
//
// Unknown email and wrong password produce the same error. For unknown
// emails a throwaway bcrypt comparison still runs, so the response time does
// not tell an attacker which addresses have accounts.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validateInput(s.validate, in, ""); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.passwords.VerifyDummy(in.Password)
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, in.Password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			// A corrupt stored hash is our problem, but the client still
			// only learns that the credentials did not work.
			s.logger.Warn("password verification failed", zap.String("userID", user.ID.Hex()), zap.Error(err))
		}
		return nil, apperror.InvalidCredentials()
	}

	s.logger.Debug("user logged in", zap.String("userID", user.ID.Hex()))
	return s.issue(user)
}

// LoginOrRegisterGitHub handles the GitHub OAuth callback after the handler
// has exchanged the code for a profile.
//
// WHY UPSERT ON githubId?
// GitHub's numeric id is stable, the login and display name are not. The
// first sign-in inserts, later ones only refresh the name.
//
// New accounts get a bcrypt hash of a random xid as their password. Nobody
// knows it, so password login stays impossible until a reset flow exists.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil {
		return nil, fmt.Errorf("GitHub user must not be nil")
	}
	email := normalizeEmail(gh.Email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "GitHub account has no verified email")
	}

	hash, err := s.passwords.Hash(xid.New().String() + xid.New().String())
	if err != nil {
		return nil, fmt.Errorf("hashing placeholder password: %w", err)
	}

	name := sanitize.Text(gh.DisplayName())
	if len(name) < 2 {
		name = "GitHub user " + gh.Login
	}

	user := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		GitHubID:     gh.ID,
	}
	if err := s.users.UpsertGitHub(ctx, user); err != nil {
		if isAppError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("upserting GitHub user %d: %w", gh.ID, err)
	}

	if user.CreatedAt.Equal(user.UpdatedAt) {
		s.metrics.RecordRegistration("github")
	}
	s.logger.Info("user authenticated via GitHub",
		zap.String("userID", user.ID.Hex()),
		zap.String("login", gh.Login),
	)
	return s.issue(user)
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID.Hex())
	if err != nil {
		return nil, fmt.Errorf("generating token for user %s: %w", user.ID.Hex(), err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// GetUserByID returns the stored user for a token subject.
func (s *AuthService) GetUserByID(ctx context.Context, userID string) (*model.User, error) {
	id, err := parseCallerID(userID)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFoundMessage("User not found")
		}
		return nil, fmt.Errorf("fetching user %s: %w", userID, err)
	}
	return user, nil
}

// Profile returns the caller's own profile with event references expanded
// and sorted by date.
func (s *AuthService) Profile(ctx context.Context, userID string) (*model.Profile, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	joined, err := s.events.Summaries(ctx, user.JoinedEvents)
	if err != nil {
		return nil, fmt.Errorf("expanding joined events: %w", err)
	}
	created, err := s.events.Summaries(ctx, user.CreatedEvents)
	if err != nil {
		return nil, fmt.Errorf("expanding created events: %w", err)
	}

	public := user.Public()
	return &model.Profile{
		ID:            user.ID,
		Name:          user.Name,
		Email:         user.Email,
		Bio:           user.Bio,
		Skills:        public.Skills,
		Causes:        public.Causes,
		JoinedEvents:  joined,
		CreatedEvents: created,
		CreatedAt:     user.CreatedAt,
		UpdatedAt:     user.UpdatedAt,
	}, nil
}

// UpdateProfile applies the keys present in the input. An input with no keys
// at all returns the current user unchanged.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*model.User, error) {
	id, err := parseCallerID(userID)
	if err != nil {
		return nil, err
	}

	in.Name = sanitize.TextPtr(in.Name)
	in.Bio = sanitize.TextPtr(in.Bio)
	if in.Skills != nil {
		cleaned := sanitize.TextSlice(*in.Skills)
		if cleaned == nil {
			cleaned = []string{}
		}
		in.Skills = &cleaned
	}
	if in.Causes != nil {
		cleaned := sanitize.TextSlice(*in.Causes)
		if cleaned == nil {
			cleaned = []string{}
		}
		in.Causes = &cleaned
	}
	if err := validateInput(s.validate, in, ""); err != nil {
		return nil, err
	}

	upd := model.ProfileUpdate{Name: in.Name, Bio: in.Bio, Skills: in.Skills, Causes: in.Causes}
	if upd.IsEmpty() {
		return s.GetUserByID(ctx, userID)
	}

	user, err := s.users.UpdateProfile(ctx, id, upd)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFoundMessage("User not found")
		}
		return nil, fmt.Errorf("updating profile %s: %w", userID, err)
	}
	return user, nil
}

// ValidateToken validates a JWT string and returns the userID it encodes.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("validating token: %w", err)
	}
	return userID, nil
}
