package user

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/username/ecoenergy-api/internal/apperr"
	"github.com/username/ecoenergy-api/internal/auth"
	"github.com/username/ecoenergy-api/internal/i18n"
)

const resetTokenTTL = time.Hour

var (
	ErrInvalidCredentials = auth.ErrInvalidCredentials

	avatarExtensions   = map[string]struct{}{".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}}
	avatarContentTypes = map[string]struct{}{"image/jpeg": {}, "image/png": {}, "image/gif": {}}
)

// Notifier delivers password reset tokens to users.
type Notifier interface {
	SendPasswordReset(ctx context.Context, u *User, token string) error
}

type logNotifier struct {
	log *zap.Logger
}

// LogNotifier only logs the reset token. Used when no mail transport is configured.
func LogNotifier(log *zap.Logger) Notifier {
	return logNotifier{log: log}
}

func (n logNotifier) SendPasswordReset(_ context.Context, u *User, token string) error {
	n.log.Info("password reset requested",
		zap.Int64("user_id", u.ID),
		zap.String("email", u.Email),
		zap.String("token", token),
	)
	return nil
}

type Service struct {
	DB             *gorm.DB
	Log            *zap.Logger
	Notifier       Notifier
	AvatarDir      string
	MaxAvatarBytes int64
	now            func() time.Time
}

func NewService(db *gorm.DB, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		DB:             db,
		Log:            log,
		Notifier:       LogNotifier(log),
		AvatarDir:      "uploads",
		MaxAvatarBytes: 2 * 1024 * 1024,
		now:            time.Now,
	}
}

// ========= LOGIN =========

// Authenticate checks email and password of an active user.
func (s *Service) Authenticate(ctx context.Context, email, password string) (auth.CurrentUser, error) {
	var u User
	err := s.DB.WithContext(ctx).
		Where("LOWER(email) = ? AND active = ?", strings.ToLower(strings.TrimSpace(email)), true).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return auth.CurrentUser{}, ErrInvalidCredentials
	}
	if err != nil {
		return auth.CurrentUser{}, err
	}
	if !CheckPasswordHash(u.PasswordHash, password) {
		return auth.CurrentUser{}, ErrInvalidCredentials
	}
	return u.CurrentUser(), nil
}

// LoadUser returns the current identity of an active user for the web session.
func (s *Service) LoadUser(ctx context.Context, id int64) (auth.CurrentUser, error) {
	var u User
	err := s.DB.WithContext(ctx).Where("id = ? AND active = ?", id, true).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return auth.CurrentUser{}, auth.ErrUserInactive
	}
	if err != nil {
		return auth.CurrentUser{}, err
	}
	return u.CurrentUser(), nil
}

// ========= MANAGEMENT =========

// CreateInput is the body used by admins to add a user.
type CreateInput struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	FullName        string `json:"full_name"`
	Role            string `json:"role"`
	Phone           string `json:"phone"`
	Position        string `json:"position"`
	OrganizationID  *int64 `json:"organization_id"`
}

type UpdateInput struct {
	FullName *string `json:"full_name,omitempty"`
	Password *string `json:"password,omitempty"`
	Role     *string `json:"role,omitempty"`
	Active   *bool   `json:"active,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Position *string `json:"position,omitempty"`
}

// managed scopes user management: superusers see everyone, org admins their organization.
func (s *Service) managed(ctx context.Context, cu auth.CurrentUser) (*gorm.DB, error) {
	q := s.DB.WithContext(ctx).Model(&User{})
	if cu.IsSuperAdmin() {
		return q, nil
	}
	if cu.OrganizationID == nil {
		return nil, apperr.ErrNoOrganization
	}
	return q.Where("organization_id = ?", *cu.OrganizationID), nil
}

func (s *Service) List(ctx context.Context, cu auth.CurrentUser, limit, offset int) ([]User, int64, error) {
	q, err := s.managed(ctx, cu)
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var users []User
	if err := q.Order("id").Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (s *Service) Get(ctx context.Context, cu auth.CurrentUser, id int64) (*User, error) {
	q, err := s.managed(ctx, cu)
	if err != nil {
		return nil, err
	}
	var u User
	if err := q.Where("id = ?", id).First(&u).Error; err != nil {
		return nil, apperr.FromDB(err)
	}
	return &u, nil
}

func (s *Service) emailTaken(ctx context.Context, email string, excludeID int64) (bool, error) {
	var n int64
	q := s.DB.WithContext(ctx).Model(&User{}).Where("LOWER(email) = ?", email)
	if excludeID > 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// Create adds an organization user. Org admins always create into their own organization.
func (s *Service) Create(ctx context.Context, cu auth.CurrentUser, in CreateInput) (*User, error) {
	var orgID int64
	switch {
	case cu.IsSuperAdmin():
		if in.OrganizationID == nil || *in.OrganizationID <= 0 {
			return nil, apperr.Invalid("organization_id", "OrganizationRequired", nil)
		}
		orgID = *in.OrganizationID
	case cu.OrganizationID != nil:
		orgID = *cu.OrganizationID
	default:
		return nil, apperr.ErrNoOrganization
	}

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)
	f := apperr.FieldErrors{}
	switch {
	case in.Email == "":
		f.Add("email", "Required", nil)
	case !apperr.ValidEmail(in.Email):
		f.Add("email", "EmailInvalid", nil)
	default:
		taken, err := s.emailTaken(ctx, in.Email, 0)
		if err != nil {
			return nil, err
		}
		if taken {
			f.Add("email", "UserEmailTaken", nil)
		}
	}
	role, ok := ParseRole(in.Role)
	if !ok {
		f.Add("role", "RoleInvalid", nil)
	}
	apperr.CheckPhone(f, "phone", in.Phone)
	CheckPassword(f, "password", "password_confirm", in.Password, in.PasswordConfirm, in.Email)
	if err := f.Err(); err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := &User{
		Email:          in.Email,
		PasswordHash:   hash,
		FullName:       in.FullName,
		UserType:       UserTypeOrgUser,
		OrganizationID: &orgID,
		OrgRole:        &role,
		Phone:          strings.TrimSpace(in.Phone),
		Position:       strings.TrimSpace(in.Position),
		Active:         true,
	}
	if err := s.DB.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// ParseRole accepts ADMIN, OPERATOR or VIEWER; empty means VIEWER.
func ParseRole(s string) (OrgRole, bool) {
	if strings.TrimSpace(s) == "" {
		return OrgRoleViewer, true
	}
	return auth.ParseOrgRole(s)
}

func (s *Service) Update(ctx context.Context, cu auth.CurrentUser, id int64, in UpdateInput) (*User, error) {
	u, err := s.Get(ctx, cu, id)
	if err != nil {
		return nil, err
	}

	f := apperr.FieldErrors{}
	if in.FullName != nil {
		u.FullName = strings.TrimSpace(*in.FullName)
	}
	if in.Active != nil {
		u.Active = *in.Active
	}
	if in.Role != nil {
		role, ok := auth.ParseOrgRole(*in.Role)
		if ok {
			u.OrgRole = &role
		} else {
			f.Add("role", "RoleInvalid", nil)
		}
	}
	if in.Phone != nil {
		apperr.CheckPhone(f, "phone", *in.Phone)
		u.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.Position != nil {
		u.Position = strings.TrimSpace(*in.Position)
	}
	if in.Password != nil {
		CheckPassword(f, "password", "password", *in.Password, *in.Password, u.Email)
	}
	if err := f.Err(); err != nil {
		return nil, err
	}
	if in.Password != nil {
		hash, err := HashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = hash
	}

	if err := s.DB.WithContext(ctx).Save(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// Deactivate soft-deletes a user by clearing active.
func (s *Service) Deactivate(ctx context.Context, cu auth.CurrentUser, id int64) error {
	u, err := s.Get(ctx, cu, id)
	if err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Model(u).Update("active", false).Error
}

// ========= PROFILE =========

type ProfileInput struct {
	FullName string `json:"full_name" form:"full_name"`
	Email    string `json:"email" form:"email"`
	Phone    string `json:"phone" form:"phone"`
	Position string `json:"position" form:"position"`
	Address  string `json:"address" form:"address"`
}

func (u *User) ProfileInput() ProfileInput {
	return ProfileInput{FullName: u.FullName, Email: u.Email, Phone: u.Phone, Position: u.Position, Address: u.Address}
}

func (s *Service) Profile(ctx context.Context, userID int64) (*User, error) {
	var u User
	if err := s.DB.WithContext(ctx).First(&u, userID).Error; err != nil {
		return nil, apperr.FromDB(err)
	}
	return &u, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID int64, in ProfileInput) (*User, error) {
	u, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	f := apperr.FieldErrors{}
	switch {
	case in.Email == "":
		f.Add("email", "Required", nil)
	case !apperr.ValidEmail(in.Email):
		f.Add("email", "EmailInvalid", nil)
	default:
		taken, err := s.emailTaken(ctx, in.Email, u.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			f.Add("email", "EmailInUse", nil)
		}
	}
	apperr.CheckPhone(f, "phone", in.Phone)
	if err := f.Err(); err != nil {
		return nil, err
	}

	u.FullName = strings.TrimSpace(in.FullName)
	u.Email = in.Email
	u.Phone = strings.TrimSpace(in.Phone)
	u.Position = strings.TrimSpace(in.Position)
	u.Address = strings.TrimSpace(in.Address)
	if err := s.DB.WithContext(ctx).Save(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// SaveAvatar stores an uploaded image under AvatarDir/avatars and replaces the previous one.
func (s *Service) SaveAvatar(ctx context.Context, userID int64, fh *multipart.FileHeader) (*User, error) {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if _, ok := avatarExtensions[ext]; !ok {
		return nil, apperr.Invalid("avatar", "AvatarExtension", nil)
	}
	if fh.Size > s.MaxAvatarBytes {
		return nil, apperr.Invalid("avatar", "AvatarTooLarge", nil)
	}
	ctype, err := sniffUpload(fh)
	if err != nil {
		return nil, err
	}
	if _, ok := avatarContentTypes[ctype]; !ok {
		return nil, apperr.Invalid("avatar", "AvatarExtension", nil)
	}

	u, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(s.AvatarDir, "avatars")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	rel := filepath.ToSlash(filepath.Join("avatars", uuid.NewString()+ext))
	if err := copyUpload(fh, filepath.Join(s.AvatarDir, rel)); err != nil {
		return nil, err
	}

	old := u.AvatarPath
	if err := s.DB.WithContext(ctx).Model(u).Update("avatar_path", rel).Error; err != nil {
		if rmErr := os.Remove(filepath.Join(s.AvatarDir, filepath.FromSlash(rel))); rmErr != nil {
			s.Log.Warn("remove orphan avatar", zap.String("path", rel), zap.Error(rmErr))
		}
		return nil, err
	}
	u.AvatarPath = rel
	if old != "" {
		if err := os.Remove(filepath.Join(s.AvatarDir, filepath.FromSlash(old))); err != nil && !os.IsNotExist(err) {
			s.Log.Warn("remove old avatar", zap.String("path", old), zap.Error(err))
		}
	}
	return u, nil
}

// sniffUpload reports the content type of the first 512 bytes; the filename is not trusted.
func sniffUpload(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	return http.DetectContentType(head[:n]), nil
}

func copyUpload(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// ========= PASSWORD =========

type PasswordChangeInput struct {
	Current string `json:"current_password" form:"current_password"`
	New     string `json:"new_password" form:"new_password"`
	Confirm string `json:"new_password_confirm" form:"new_password_confirm"`
}

func (s *Service) ChangePassword(ctx context.Context, userID int64, in PasswordChangeInput) error {
	u, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}

	f := apperr.FieldErrors{}
	if !CheckPasswordHash(u.PasswordHash, in.Current) {
		f.Add("current_password", "PasswordIncorrect", nil)
	}
	CheckPassword(f, "new_password", "new_password_confirm", in.New, in.Confirm, u.Email)
	if err := f.Err(); err != nil {
		return err
	}
	return s.setPassword(s.DB.WithContext(ctx), u, in.New)
}

func (s *Service) setPassword(tx *gorm.DB, u *User, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	return tx.Model(u).Update("password_hash", hash).Error
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// RequestPasswordReset issues a reset token for an active user. Unknown emails are
// not reported to the caller.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	var u User
	err := s.DB.WithContext(ctx).
		Where("LOWER(email) = ? AND active = ?", strings.ToLower(strings.TrimSpace(email)), true).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	token := hex.EncodeToString(raw)

	rt := PasswordResetToken{
		UserID:    u.ID,
		TokenHash: hashToken(token),
		ExpiresAt: s.now().Add(resetTokenTTL),
	}
	if err := s.DB.WithContext(ctx).Create(&rt).Error; err != nil {
		return err
	}
	return s.Notifier.SendPasswordReset(ctx, &u, token)
}

// ResetInput confirms a password reset.
type ResetInput struct {
	Token   string `json:"token" form:"token"`
	New     string `json:"new_password" form:"new_password"`
	Confirm string `json:"new_password_confirm" form:"new_password_confirm"`
}

// ConfirmPasswordReset consumes a valid token and sets the new password.
func (s *Service) ConfirmPasswordReset(ctx context.Context, in ResetInput) error {
	now := s.now()
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rt PasswordResetToken
		err := tx.Where("token_hash = ? AND used_at IS NULL AND expires_at > ?", hashToken(in.Token), now).
			First(&rt).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Invalid("token", "PasswordResetInvalid", nil)
		}
		if err != nil {
			return err
		}

		var u User
		if err := tx.First(&u, rt.UserID).Error; err != nil {
			return apperr.FromDB(err)
		}

		f := apperr.FieldErrors{}
		CheckPassword(f, "new_password", "new_password_confirm", in.New, in.Confirm, u.Email)
		if err := f.Err(); err != nil {
			return err
		}
		if err := s.setPassword(tx, &u, in.New); err != nil {
			return err
		}
		return tx.Model(&rt).Update("used_at", now).Error
	})
}

// ResetMessage is shown after a reset request regardless of the outcome.
var ResetMessage = i18n.M("PasswordResetSent", nil)
