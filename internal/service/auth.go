package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/crmnexus/internal/logger"
	"github.com/crmnexus/internal/middleware"
	"github.com/crmnexus/internal/model"
	"github.com/crmnexus/internal/rbac"
	"github.com/crmnexus/internal/repository"
	"github.com/crmnexus/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrUserDisabled       = errors.New("user disabled")
	ErrEmailTaken         = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password too short")
)

const minPasswordLen = 8

// Валидация email: допустимый формат (упрощённый, без полного RFC).
var emailRegexp = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// normalizeEmail приводит email к одному виду для БД и ключа rate limit
// (латиница, нижний регистр). Заменяет кириллические буквы-двойники на
// латинские, чтобы вставка из буфера не ломала ключ.
func normalizeEmail(s string) string {
	const (
		cyrO = '\u043e' // о
		cyrA = '\u0430' // а
		cyrE = '\u0435' // е
		cyrP = '\u0440' // р
		cyrC = '\u0441' // с
		cyrX = '\u0445' // х
		cyrY = '\u0443' // у
	)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.TrimSpace(strings.ToLower(s)) {
		switch r {
		case cyrO:
			b.WriteByte('o')
		case cyrA:
			b.WriteByte('a')
		case cyrE:
			b.WriteByte('e')
		case cyrP:
			b.WriteByte('p')
		case cyrC:
			b.WriteByte('c')
		case cyrX:
			b.WriteByte('x')
		case cyrY:
			b.WriteByte('y')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

type AuthService struct {
	userRepo    *repository.UserRepository
	profileRepo *repository.ProfileRepository
	sessionRepo *repository.SessionRepository
	store       storage.SessionStore
	resolver    *rbac.Resolver
}

func NewAuthService(
	userRepo *repository.UserRepository,
	profileRepo *repository.ProfileRepository,
	sessionRepo *repository.SessionRepository,
	store storage.SessionStore,
	resolver *rbac.Resolver,
) *AuthService {
	return &AuthService{
		userRepo: userRepo, profileRepo: profileRepo, sessionRepo: sessionRepo,
		store: store, resolver: resolver,
	}
}

type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"` // опционально
}

type LoginResponse struct {
	SessionID     string     `json:"session_id"`
	SessionSecret string     `json:"session_secret"`
	UserID        string     `json:"user_id"`
	Role          model.Role `json:"role"`
}

// Login проверяет пароль и создаёт сессию устройства. Секрет сессии
// возвращается один раз, дальше клиент подписывает запросы HMAC-SHA256.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	emailNorm := normalizeEmail(req.Email)
	if emailNorm == "" || req.Password == "" || req.DeviceID == "" {
		return nil, fmt.Errorf("email, password и device_id обязательны")
	}
	if !emailRegexp.MatchString(emailNorm) {
		return nil, ErrInvalidEmail
	}
	allowed, err := s.store.CheckLoginRateLimit(ctx, emailNorm)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrRateLimitExceeded
	}
	user, err := s.userRepo.GetByEmail(ctx, emailNorm)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// bcrypt-сравнение с фиктивным хэшем, чтобы время ответа не выдавало
			// существование email.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		logger.Infof("login: password mismatch email=%s", emailNorm)
		return nil, ErrInvalidCredentials
	}
	if user.DisabledAt != nil {
		return nil, ErrUserDisabled
	}
	sessionID, secretB64, err := s.createSession(ctx, user.ID, req.DeviceID, req.DeviceName)
	if err != nil {
		return nil, err
	}
	role, err := s.resolver.Resolve(ctx, user.ID)
	if err != nil {
		// Роль не критична для входа: без профиля все проверки дадут deny.
		logger.Errorf("login: resolve role user_id=%s: %v", user.ID, err)
		role = ""
	}
	return &LoginResponse{SessionID: sessionID, SessionSecret: secretB64, UserID: user.ID, Role: role}, nil
}

// dummyHash — bcrypt от случайной строки; используется только для выравнивания
// времени ответа при неизвестном email.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

func (s *AuthService) createSession(ctx context.Context, userID, deviceID, deviceName string) (sessionID, secretB64 string, err error) {
	sessionID = uuid.New().String()
	secret := make([]byte, 32)
	if _, err = rand.Read(secret); err != nil {
		return "", "", err
	}
	secretB64 = base64.StdEncoding.EncodeToString(secret)
	h := sha256.Sum256(secret)
	secretHash := hex.EncodeToString(h[:])
	now := time.Now().UTC()
	session := &model.Session{
		ID: sessionID, UserID: userID, DeviceID: deviceID, DeviceName: strings.TrimSpace(deviceName),
		SecretHash: secretHash, LastSeenAt: now, CreatedAt: now,
	}
	if err = s.sessionRepo.UpsertByUserIDAndDeviceID(ctx, session); err != nil {
		logger.Errorf("login: upsert session failed: %v", err)
		return "", "", fmt.Errorf("create session: %w", err)
	}
	if err = s.store.SetSessionSecret(ctx, sessionID, secretB64); err != nil {
		logger.Errorf("login: SetSessionSecret failed: %v", err)
		if _, delErr := s.sessionRepo.RevokeByID(ctx, sessionID); delErr != nil {
			logger.Errorf("login: rollback revoke session: %v", delErr)
		}
		return "", "", fmt.Errorf("save session secret: %w", err)
	}
	return sessionID, secretB64, nil
}

type RegisterRequest struct {
	Email    string     `json:"email"`
	Password string     `json:"password"`
	FullName string     `json:"full_name"`
	Role     model.Role `json:"role"`
}

// Register создаёт пользователя и профиль с ролью. Вызывается только
// администратором (самостоятельной регистрации нет).
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*model.User, error) {
	emailNorm := normalizeEmail(req.Email)
	if !emailRegexp.MatchString(emailNorm) {
		return nil, ErrInvalidEmail
	}
	if len(req.Password) < minPasswordLen {
		return nil, ErrWeakPassword
	}
	if !req.Role.Valid() {
		return nil, fmt.Errorf("unknown role %q", req.Role)
	}
	if _, err := s.userRepo.GetByEmail(ctx, emailNorm); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	u := &model.User{
		ID: uuid.New().String(), Email: emailNorm, PasswordHash: string(hash),
		LastSeenAt: now, IsOnline: false, CreatedAt: now,
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		return nil, err
	}
	p := &model.Profile{
		ID: uuid.New().String(), UserID: u.ID,
		FullName: strings.TrimSpace(req.FullName), Role: req.Role, CreatedAt: now,
	}
	if err := s.profileRepo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	return u, nil
}

// ChangePassword меняет пароль после проверки текущего и отзывает остальные
// сессии пользователя (текущая остаётся).
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentSessionID, oldPassword, newPassword string) error {
	if len(newPassword) < minPasswordLen {
		return ErrWeakPassword
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.userRepo.SetPasswordHash(ctx, userID, string(hash)); err != nil {
		return err
	}
	sessions, err := s.sessionRepo.ListByUserID(ctx, userID)
	if err != nil {
		logger.Errorf("ChangePassword: list sessions user_id=%s: %v", userID, err)
		return nil
	}
	for _, sess := range sessions {
		if sess.ID == currentSessionID {
			continue
		}
		if _, err := s.sessionRepo.RevokeByID(ctx, sess.ID); err != nil {
			logger.Errorf("ChangePassword: revoke session_id=%s: %v", middleware.MaskSessionID(sess.ID), err)
			continue
		}
		if err := s.store.DeleteSessionSecret(ctx, sess.ID); err != nil {
			logger.Errorf("ChangePassword: DeleteSessionSecret session_id=%s: %v", middleware.MaskSessionID(sess.ID), err)
		}
	}
	return nil
}

func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]model.Session, error) {
	return s.sessionRepo.ListByUserID(ctx, userID)
}

// LogoutSession отзывает одну сессию пользователя и удаляет её секрет.
func (s *AuthService) LogoutSession(ctx context.Context, userID, sessionID string) (bool, error) {
	ok, err := s.sessionRepo.DeleteByUserIDAndSessionID(ctx, userID, sessionID)
	if err != nil {
		return false, err
	}
	if ok {
		if err := s.store.DeleteSessionSecret(ctx, sessionID); err != nil {
			logger.Errorf("LogoutSession: DeleteSessionSecret session_id=%s: %v", middleware.MaskSessionID(sessionID), err)
		}
	}
	return ok, nil
}

// LogoutAllSessions отзывает все сессии пользователя (выход со всех устройств,
// отключение пользователя администратором).
func (s *AuthService) LogoutAllSessions(ctx context.Context, userID string) (int64, error) {
	ids, err := s.sessionRepo.RevokeByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := s.store.DeleteSessionSecret(ctx, id); err != nil {
			logger.Errorf("LogoutAllSessions: DeleteSessionSecret session_id=%s: %v", middleware.MaskSessionID(id), err)
		}
	}
	return int64(len(ids)), nil
}
