package user_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"gorm.io/gorm"

	"github.com/username/ecoenergy-api/internal/apperr"
	"github.com/username/ecoenergy-api/internal/auth"
	"github.com/username/ecoenergy-api/internal/testutil"
	"github.com/username/ecoenergy-api/internal/user"
)

var ctx = context.Background()

type captureNotifier struct {
	tokens []string
}

func (n *captureNotifier) SendPasswordReset(_ context.Context, _ *user.User, token string) error {
	n.tokens = append(n.tokens, token)
	return nil
}

func TestAuthenticate(t *testing.T) {
	db := testutil.NewDB(t)
	svc := user.NewService(db, nil)
	org := testutil.CreateOrganization(t, db, "EcoTech")
	testutil.CreateUser(t, db, "op@ecotech.cl", "EcoTech2025", &org.ID, auth.OrgRoleOperator)

	cu, err := svc.Authenticate(ctx, " OP@ecotech.cl ", "EcoTech2025")
	require.NoError(t, err)
	assert.Equal(t, org.ID, *cu.OrganizationID)
	assert.Equal(t, auth.OrgRoleOperator, *cu.OrgRole)

	_, err = svc.Authenticate(ctx, "op@ecotech.cl", "wrong")
	assert.ErrorIs(t, err, user.ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "nobody@ecotech.cl", "EcoTech2025")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestCreateAndManage(t *testing.T) {
	db := testutil.NewDB(t)
	svc := user.NewService(db, nil)
	a := testutil.CreateOrganization(t, db, "Org A")
	b := testutil.CreateOrganization(t, db, "Org B")
	admin := testutil.OrgUser(a.ID, auth.OrgRoleAdmin)

	u, err := svc.Create(ctx, admin, user.CreateInput{
		Email:           "Nuevo@OrgA.cl",
		Password:        "Seguro2025",
		PasswordConfirm: "Seguro2025",
		FullName:        "Nuevo",
		OrganizationID:  &b.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "nuevo@orga.cl", u.Email)
	assert.Equal(t, a.ID, *u.OrganizationID, "org admins create into their own organization")
	assert.Equal(t, auth.OrgRoleViewer, *u.OrgRole, "empty role defaults to viewer")

	_, err = svc.Create(ctx, admin, user.CreateInput{Email: "nuevo@orga.cl", Password: "Seguro2025", PasswordConfirm: "Seguro2025", Role: "BOSS"})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "UserEmailTaken", ve.Fields["email"].ID)
	assert.Equal(t, "RoleInvalid", ve.Fields["role"].ID)

	_, err = svc.Get(ctx, testutil.OrgUser(b.ID, auth.OrgRoleAdmin), u.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	role := "operator"
	got, err := svc.Update(ctx, admin, u.ID, user.UpdateInput{Role: &role})
	require.NoError(t, err)
	assert.Equal(t, auth.OrgRoleOperator, *got.OrgRole)

	require.NoError(t, svc.Deactivate(ctx, admin, u.ID))
	_, err = svc.Authenticate(ctx, "nuevo@orga.cl", "Seguro2025")
	assert.ErrorIs(t, err, user.ErrInvalidCredentials)
}

func TestPasswordReset(t *testing.T) {
	db := testutil.NewDB(t)
	svc := user.NewService(db, nil)
	n := &captureNotifier{}
	svc.Notifier = n
	u := testutil.CreateUser(t, db, "root@ecoenergy.cl", "EcoTech2025", nil, "")

	require.NoError(t, svc.RequestPasswordReset(ctx, "unknown@ecoenergy.cl"))
	assert.Empty(t, n.tokens, "unknown emails are ignored silently")

	require.NoError(t, svc.RequestPasswordReset(ctx, "ROOT@ecoenergy.cl"))
	require.Len(t, n.tokens, 1)
	token := n.tokens[0]
	assert.Len(t, token, 64)

	err := svc.ConfirmPasswordReset(ctx, user.ResetInput{Token: token, New: "weak", Confirm: "weak"})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)

	require.NoError(t, svc.ConfirmPasswordReset(ctx, user.ResetInput{Token: token, New: "Renovada2026", Confirm: "Renovada2026"}))
	cu, err := svc.Authenticate(ctx, u.Email, "Renovada2026")
	require.NoError(t, err)
	assert.True(t, cu.IsSuperAdmin())

	err = svc.ConfirmPasswordReset(ctx, user.ResetInput{Token: token, New: "Otra2026xx", Confirm: "Otra2026xx"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "PasswordResetInvalid", ve.Fields["token"].ID, "tokens are single use")
}

func TestChangePassword(t *testing.T) {
	db := testutil.NewDB(t)
	svc := user.NewService(db, nil)
	u := testutil.CreateUser(t, db, "root@ecoenergy.cl", "EcoTech2025", nil, "")

	err := svc.ChangePassword(ctx, u.ID, user.PasswordChangeInput{Current: "nope", New: "Cambiada2026", Confirm: "Cambiada2026"})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "PasswordIncorrect", ve.Fields["current_password"].ID)

	require.NoError(t, svc.ChangePassword(ctx, u.ID, user.PasswordChangeInput{Current: "EcoTech2025", New: "Cambiada2026", Confirm: "Cambiada2026"}))
	_, err = svc.Authenticate(ctx, u.Email, "Cambiada2026")
	assert.NoError(t, err)
}

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func avatarRequest(t *testing.T, filename string, content []byte) *http.Request {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("avatar", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/profile/avatar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestProfileHandlers(t *testing.T) {
	db := testutil.NewDB(t)
	svc := user.NewService(db, nil)
	svc.AvatarDir = t.TempDir()
	org := testutil.CreateOrganization(t, db, "EcoTech")
	u := testutil.CreateUser(t, db, "ana@ecotech.cl", "EcoTech2025", &org.ID, auth.OrgRoleViewer)
	other := testutil.CreateUser(t, db, "otro@ecotech.cl", "EcoTech2025", &org.ID, auth.OrgRoleViewer)

	cu := u.CurrentUser()
	r := testutil.Router(cu)
	user.NewHandler(svc).RegisterRoutes(r)

	w := testutil.Do(r, http.MethodPut, "/profile", map[string]string{"full_name": "Ana María", "position": "Jefa de planta"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Ana María", gjson.Get(w.Body.String(), "user.full_name").String())
	assert.Equal(t, "ana@ecotech.cl", gjson.Get(w.Body.String(), "user.email").String())

	w = testutil.Do(r, http.MethodPut, "/profile", map[string]string{"email": other.Email})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, gjson.Get(w.Body.String(), "fields.email").Exists())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, avatarRequest(t, "me.png", pngBytes))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	avatar := gjson.Get(w.Body.String(), "user.avatar").String()
	assert.Regexp(t, `^/media/avatars/.+\.png$`, avatar)
	_, err := os.Stat(filepath.Join(svc.AvatarDir, avatar[len("/media/"):]))
	assert.NoError(t, err)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, avatarRequest(t, "me.exe", []byte("x")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.Do(r, http.MethodGet, "/users", nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "viewers do not manage users")

	w = testutil.Do(r, http.MethodGet, "/roles", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, gjson.Get(w.Body.String(), "data").Array(), 3)
}

func avatarHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	req := avatarRequest(t, filename, content)
	require.NoError(t, req.ParseMultipartForm(1<<20))
	return req.MultipartForm.File["avatar"][0]
}

func TestSaveAvatar_SniffsContent(t *testing.T) {
	db := testutil.NewDB(t)
	svc := user.NewService(db, nil)
	svc.AvatarDir = t.TempDir()
	u := testutil.CreateUser(t, db, "ana@ecotech.cl", "EcoTech2025", nil, "")

	_, err := svc.SaveAvatar(ctx, u.ID, avatarHeader(t, "shell.png", []byte("<?php system($_GET['c']); ?>")))
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "AvatarExtension", verr.Fields["avatar"].ID)
	_, statErr := os.Stat(filepath.Join(svc.AvatarDir, "avatars"))
	assert.True(t, os.IsNotExist(statErr), "rejected uploads are never written")

	got, err := svc.SaveAvatar(ctx, u.ID, avatarHeader(t, "me.jpg", pngBytes))
	require.NoError(t, err, "content decides, the extension only has to be an image one")
	assert.NotEmpty(t, got.AvatarPath)
}

func TestSaveAvatar_RemovesFileWhenUpdateFails(t *testing.T) {
	db := testutil.NewDB(t)
	svc := user.NewService(db, nil)
	svc.AvatarDir = t.TempDir()
	u := testutil.CreateUser(t, db, "ana@ecotech.cl", "EcoTech2025", nil, "")

	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:fail_update", func(tx *gorm.DB) {
		_ = tx.AddError(errors.New("disk full"))
	}))

	_, err := svc.SaveAvatar(ctx, u.ID, avatarHeader(t, "me.png", pngBytes))
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(svc.AvatarDir, "avatars"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestResetHandlers(t *testing.T) {
	db := testutil.NewDB(t)
	svc := user.NewService(db, nil)
	n := &captureNotifier{}
	svc.Notifier = n
	testutil.CreateUser(t, db, "root@ecoenergy.cl", "EcoTech2025", nil, "")

	r := testutil.Router(auth.CurrentUser{})
	user.NewHandler(svc).RegisterPublicRoutes(r)

	for _, email := range []string{"root@ecoenergy.cl", "ghost@ecoenergy.cl"} {
		w := testutil.Do(r, http.MethodPost, "/auth/password/reset", map[string]string{"email": email})
		assert.Equal(t, http.StatusAccepted, w.Code, email)
	}
	require.Len(t, n.tokens, 1)

	w := testutil.Do(r, http.MethodPost, "/auth/password/reset/confirm", map[string]string{
		"token":                n.tokens[0],
		"new_password":         "Nueva2026x",
		"new_password_confirm": "Nueva2026x",
	})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = testutil.Do(r, http.MethodPost, "/auth/password/reset/confirm", map[string]string{"token": fmt.Sprintf("%064d", 0)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
