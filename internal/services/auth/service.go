package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	apperrors "airswitch/internal/errors"
	"airswitch/internal/models"
	"airswitch/internal/repositories"
	"airswitch/internal/services/referral"
	"airswitch/internal/utils"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// ReferralClaimer completes a referral for a freshly registered user.
type ReferralClaimer interface {
	Claim(ctx context.Context, code string, refereeID uint, refereeEmail string) (*referral.ClaimResult, error)
}

type RegisterRequest struct {
	Email        string
	Password     string
	Name         string
	Phone        string
	ReferralCode string
}

// Session is an authenticated user plus its bearer token.
type Session struct {
	User      *models.User          `json:"user"`
	Token     string                `json:"token"`
	ExpiresAt time.Time             `json:"expires_at"`
	Referral  *referral.ClaimResult `json:"referral,omitempty"`
}

type Service struct {
	store     repositories.Store
	tokens    *utils.JWT
	referrals ReferralClaimer
	log       *zap.Logger
	cost      int
	now       func() time.Time
}

func NewService(store repositories.Store, tokens *utils.JWT, referrals ReferralClaimer, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:     store,
		tokens:    tokens,
		referrals: referrals,
		log:       log.Named("auth"),
		cost:      bcrypt.DefaultCost,
		now:       time.Now,
	}
}

// HashPassword bcrypt-hashes a plaintext password.
func HashPassword(password string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Register creates the user together with an empty wallet and points
// balance, then claims the referral code if one was given. A failed claim
// never fails registration.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperrors.Validation("a valid email is required")
	}
	if len(req.Password) < minPasswordLength {
		return nil, apperrors.Validation("password must be at least 8 characters")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	hashed, err := HashPassword(req.Password, s.cost)
	if err != nil {
		return nil, apperrors.ErrInternal.Wrap(err)
	}

	user := &models.User{
		Email:        email,
		Password:     hashed,
		Name:         name,
		Role:         models.RoleUser,
		Status:       "active",
		TokenVersion: 1,
	}
	if phone := strings.TrimSpace(req.Phone); phone != "" {
		user.Phone = &phone
	}

	code := strings.ToUpper(strings.TrimSpace(req.ReferralCode))
	if code != "" {
		if ref, err := s.store.Referrals().GetByCode(ctx, code); err == nil {
			user.ReferredBy = &ref.ReferrerID
		}
	}

	err = s.store.Atomic(ctx, func(tx repositories.Store) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			return err
		}
		if err := tx.Wallets().Create(ctx, &models.Wallet{UserID: user.ID}); err != nil {
			return err
		}
		_, err := tx.Points().GetOrCreate(ctx, user.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, repositories.ErrEmailTaken) {
			return nil, apperrors.ErrUserExists
		}
		s.log.Error("registration failed", zap.String("email", email), zap.Error(err))
		return nil, apperrors.ErrInternal.Wrap(err)
	}
	log := s.log.With(zap.Uint("user_id", user.ID))
	log.Info("user registered")

	session, err := s.session(user)
	if err != nil {
		return nil, err
	}

	if code != "" && s.referrals != nil {
		res, err := s.referrals.Claim(ctx, code, user.ID, email)
		if err != nil {
			log.Warn("referral claim failed", zap.String("code", code), zap.Error(err))
		} else {
			log.Info("referral claim", zap.String("code", code), zap.String("outcome", string(res.Outcome)))
			session.Referral = res
		}
	}
	return session, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.store.Users().GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			s.log.Info("login failed: unknown email")
			return nil, apperrors.ErrUnauthenticated
		}
		return nil, apperrors.ErrInternal.Wrap(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		s.log.Info("login failed: incorrect password", zap.Uint("user_id", user.ID))
		return nil, apperrors.ErrUnauthenticated
	}
	if user.Status != "" && user.Status != "active" {
		return nil, apperrors.ErrForbidden.WithMessage("account is %s", user.Status)
	}

	if err := s.store.Users().TouchLogin(ctx, user.ID, s.now()); err != nil {
		s.log.Warn("failed to record login time", zap.Uint("user_id", user.ID), zap.Error(err))
	}
	return s.session(user)
}

// Logout revokes every token issued to the user so far.
func (s *Service) Logout(ctx context.Context, userID uint) error {
	if err := s.store.Users().IncrementTokenVersion(ctx, userID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return apperrors.ErrUserNotFound
		}
		return apperrors.ErrInternal.Wrap(err)
	}
	return nil
}

func (s *Service) Me(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.ErrInternal.Wrap(err)
	}
	return user, nil
}

type ProfileUpdate struct {
	Name *string
	// PhotoURL set to "" removes the photo.
	PhotoURL *string
}

func (s *Service) UpdateProfile(ctx context.Context, userID uint, req ProfileUpdate) (*models.User, error) {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperrors.Validation("name cannot be empty")
		}
		req.Name = &name
	}
	if req.PhotoURL != nil {
		photo := strings.TrimSpace(*req.PhotoURL)
		if photo != "" && !validPhotoURL(photo) {
			return nil, apperrors.Validation("photo_url must be an http(s) URL")
		}
		req.PhotoURL = &photo
	}

	user, err := s.store.Users().UpdateProfile(ctx, userID, req.Name, req.PhotoURL)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.ErrInternal.Wrap(err)
	}
	s.log.Info("profile updated", zap.Uint("user_id", userID))
	return user, nil
}

func validPhotoURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Authenticate validates a bearer token against the user's current token
// version and returns claims with the stored role.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.UserClaims, error) {
	claims, err := s.tokens.ParseToken(token)
	if err != nil {
		return nil, apperrors.ErrUnauthenticated.WithMessage("invalid or expired token")
	}
	user, err := s.store.Users().GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, apperrors.ErrUnauthenticated.WithMessage("invalid or expired token")
		}
		return nil, apperrors.ErrInternal.Wrap(err)
	}
	if user.TokenVersion != claims.TokenVersion {
		return nil, apperrors.ErrUnauthenticated.WithMessage("token has been revoked")
	}
	claims.Role = user.Role
	claims.Email = user.Email
	return claims, nil
}

func (s *Service) session(user *models.User) (*Session, error) {
	token, expires, err := s.tokens.GenerateToken(user)
	if err != nil {
		s.log.Error("error generating token", zap.Uint("user_id", user.ID), zap.Error(err))
		return nil, apperrors.ErrInternal.Wrap(err)
	}
	return &Session{User: user, Token: token, ExpiresAt: expires}, nil
}
