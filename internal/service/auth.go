package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"unicode"

	"github.com/rs/xid"

	"github.com/sakif/devspace/internal/apperror"
	"github.com/sakif/devspace/internal/auth"
	"github.com/sakif/devspace/internal/model"
	"github.com/sakif/devspace/internal/repository"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
	MinPasswordLength = 6
	MaxBioLength      = 500
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// errInvalidCredentials is shared by every login failure so responses never
// reveal whether the account exists.
var errInvalidCredentials = apperror.Unauthorized("invalid credentials", "")

// AuthService registers users, checks credentials and issues tokens.
//
//	AuthHandler (HTTP) → AuthService → UserRepository
//	                   ↘ TokenService (JWT), PasswordService (bcrypt)
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user and a freshly issued token so the handler can
// set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

type ProfileInput struct {
	Username  *string
	Email     *string
	Bio       *string
	AvatarURL *string
}

func ValidateUsername(username string) error {
	if len(username) < MinUsernameLength || len(username) > MaxUsernameLength {
		return apperror.ValidationFailed("username",
			fmt.Sprintf("username must be between %d and %d characters", MinUsernameLength, MaxUsernameLength))
	}
	if !usernamePattern.MatchString(username) {
		return apperror.ValidationFailed("username",
			"username may only contain letters, digits, underscores and hyphens")
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return apperror.ValidationFailed("email", "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperror.ValidationFailed("email", "email is not valid")
	}
	return nil
}

// ValidatePassword enforces 6..72 bytes with at least one letter and one digit.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength || len(password) > auth.MaxPasswordBytes {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be between %d and %d characters", MinPasswordLength, auth.MaxPasswordBytes))
	}
	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return apperror.ValidationFailed("password", "password must contain at least one letter and one digit")
	}
	return nil
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))

	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		s.logger.Error("failed to create user", slog.String("username", username), slog.String("error", err.Error()))
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info("user registered", slog.String("id", user.ID), slog.String("username", user.Username))
	return s.issue(user)
}

// Login accepts an email address or a username as identifier.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*AuthResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, apperror.ValidationFailed("email", "email or username and password are required")
	}

	var (
		user *model.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.users.GetByEmail(ctx, identifier)
	} else {
		user, err = s.users.GetByUsername(ctx, identifier)
	}
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Info("login failed", slog.String("user", user.ID))
			return nil, errInvalidCredentials
		}
		return nil, fmt.Errorf("verifying password: %w", err)
	}

	s.logger.Info("user logged in", slog.String("id", user.ID))
	return s.issue(user)
}

func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("authentication required", "")
	}
	return s.users.GetUserByID(ctx, userID)
}

// UpdateProfile changes only the fields that are set in in.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if err := ValidateUsername(username); err != nil {
			return nil, err
		}
		user.Username = username
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		user.Email = email
	}
	if in.Bio != nil {
		if len(*in.Bio) > MaxBioLength {
			return nil, apperror.ValidationFailed("bio",
				fmt.Sprintf("bio must be %d characters or less", MaxBioLength))
		}
		user.Bio = *in.Bio
	}
	if in.AvatarURL != nil {
		user.AvatarURL = strings.TrimSpace(*in.AvatarURL)
	}

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	return user, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.passwords.Verify(user.PasswordHash, current); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return apperror.ValidationFailed("currentPassword", "current password is incorrect")
		}
		return fmt.Errorf("verifying password: %w", err)
	}
	if err := ValidatePassword(next); err != nil {
		return err
	}

	hash, err := s.passwords.Hash(next)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	s.logger.Info("password changed", slog.String("id", userID))
	return nil
}

// LoginOrRegisterGitHub handles the OAuth callback once the code has been
// exchanged for a profile. Lookup order: GitHub id, then verified email (the
// account gets linked), else a new account with the first free username
// derived from the GitHub login.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil || gh.ID == 0 {
		return nil, apperror.ValidationFailed("github", "GitHub profile is missing")
	}

	user, err := s.users.GetByGitHubID(ctx, gh.ID)
	switch {
	case err == nil:
		if gh.AvatarURL != "" && gh.AvatarURL != user.AvatarURL {
			user.AvatarURL = gh.AvatarURL
			if err := s.users.Update(ctx, user); err != nil {
				s.logger.Warn("failed to refresh avatar", slog.String("id", user.ID), slog.String("error", err.Error()))
			}
		}
		s.logger.Info("user authenticated via GitHub", slog.String("id", user.ID))
		return s.issue(user)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("looking up github user %d: %w", gh.ID, err)
	}

	if gh.Email != "" {
		user, err = s.users.GetByEmail(ctx, gh.Email)
		switch {
		case err == nil:
			id := gh.ID
			user.GitHubID = &id
			if user.AvatarURL == "" {
				user.AvatarURL = gh.AvatarURL
			}
			if err := s.users.Update(ctx, user); err != nil {
				return nil, fmt.Errorf("linking github account: %w", err)
			}
			s.logger.Info("linked GitHub account", slog.String("id", user.ID), slog.Int64("githubID", gh.ID))
			return s.issue(user)
		case !errors.Is(err, apperror.ErrNotFound):
			return nil, fmt.Errorf("looking up user by email: %w", err)
		}
	}

	user, err = s.createGitHubUser(ctx, gh)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered via GitHub", slog.String("id", user.ID), slog.String("username", user.Username))
	return s.issue(user)
}

func (s *AuthService) createGitHubUser(ctx context.Context, gh *auth.GitHubUser) (*model.User, error) {
	email := strings.ToLower(gh.Email)
	if email == "" {
		email = fmt.Sprintf("%d+%s@users.noreply.github.com", gh.ID, strings.ToLower(gh.Login))
	}
	id := gh.ID

	base := githubUsername(gh.Login)
	candidates := []string{base}
	for i := 1; i <= 5; i++ {
		candidates = append(candidates, withSuffix(base, fmt.Sprintf("-%d", i)))
	}
	candidates = append(candidates, withSuffix(base, "-"+xid.New().String()[12:]))

	for _, username := range candidates {
		user := &model.User{
			Username:   username,
			Email:      email,
			GitHubID:   &id,
			AvatarURL:  gh.AvatarURL,
			Bio:        gh.Bio,
			IsVerified: gh.Email != "",
		}
		err := s.users.Create(ctx, user)
		if err == nil {
			return user, nil
		}
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && errors.Is(err, apperror.ErrConflict) && appErr.Field == "username" {
			continue
		}
		return nil, fmt.Errorf("creating github user: %w", err)
	}
	return nil, apperror.AlreadyExists("could not find a free username for " + gh.Login)
}

// githubUsername maps a GitHub login onto the local username alphabet.
// GitHub logins are already alphanumeric with hyphens; short ones are padded.
func githubUsername(login string) string {
	var b strings.Builder
	for _, r := range login {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_') {
			b.WriteRune(r)
		}
	}
	name := b.String()
	for len(name) < MinUsernameLength {
		name += "_"
	}
	if len(name) > MaxUsernameLength {
		name = name[:MaxUsernameLength]
	}
	return name
}

func withSuffix(base, suffix string) string {
	if len(base)+len(suffix) > MaxUsernameLength {
		base = base[:MaxUsernameLength-len(suffix)]
	}
	return base + suffix
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// ValidateToken returns the user id encoded in a token.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	return s.tokens.Validate(tokenStr)
}
