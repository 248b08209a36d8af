package user_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reportcardpro/backend/core"
	"github.com/reportcardpro/backend/core/user"
	"github.com/reportcardpro/backend/fs"
	"github.com/reportcardpro/backend/services/email"
	"github.com/reportcardpro/backend/storage/database/inmem"
	"github.com/reportcardpro/backend/tests"
)

var resetLinkRegex = regexp.MustCompile(`uid=([^&\s]+)&token=(\S+)`)

type fixture struct {
	svc      *user.Service
	repo     user.Repository
	mailSvc  *emailsvc.ConsoleServiceMock
	validate *validator.Validate
}

func setup(t *testing.T) fixture {
	t.Helper()
	conf := core.NewTestConfig()
	logger := testutil.NewLogger(t)
	core.ParseEmailTemplates(appfs.FS, conf, logger)
	user.LoadCommonPasswords(appfs.FS, appfs.CommonPasswordsFile, logger)

	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)

	repo := inmemdb.NewUserRepository(inmemdb.Open())
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	return fixture{
		svc:      user.NewService(repo, mailSvc, conf),
		repo:     repo,
		mailSvc:  mailSvc,
		validate: validate,
	}
}

func validNewUser() user.NewUser {
	return user.NewUser{
		Name:            " Thandi  Nkosi ",
		Email:           " Thandi@Test.ZA ",
		School:          "Khanya High",
		Province:        "Western Cape",
		Password:        "Gr8-Marks!2026",
		PasswordConfirm: "Gr8-Marks!2026",
	}
}

func fieldTags(t *testing.T, err error) map[string]string {
	t.Helper()
	var vErrs validator.ValidationErrors
	require.ErrorAs(t, err, &vErrs)
	tags := make(map[string]string, len(vErrs))
	for _, fe := range vErrs {
		tags[fe.Field()] = fe.Tag()
	}
	return tags
}

func TestNewUser_Validate(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	t.Run("cleaned and valid", func(t *testing.T) {
		nu := validNewUser()
		require.NoError(t, nu.Validate(ctx, f.validate, f.svc))
		assert.Equal(t, "Thandi Nkosi", nu.Name)
		assert.Equal(t, "thandi@test.za", nu.Email)
	})

	tests := []struct {
		name    string
		mutate  func(nu *user.NewUser)
		wantTag map[string]string
	}{
		{"required", func(nu *user.NewUser) { *nu = user.NewUser{} }, map[string]string{
			"name": "required", "email": "required", "school": "required", "province": "required",
			"password": "required", "passwordConfirm": "required",
		}},
		{"email", func(nu *user.NewUser) { nu.Email = "not-an-email" }, map[string]string{"email": "email"}},
		{"confirmation", func(nu *user.NewUser) { nu.PasswordConfirm = "other" }, map[string]string{"passwordConfirm": "eqfield"}},
		{"too short", func(nu *user.NewUser) { setPwd(nu, "Ab1!") }, map[string]string{"password": "pwdminlen"}},
		{"whitespace", func(nu *user.NewUser) { setPwd(nu, "Abc 1234!x") }, map[string]string{"password": "pwdnospace"}},
		{"numeric", func(nu *user.NewUser) { setPwd(nu, "1234567890") }, map[string]string{"password": "pwdnotallnum"}},
		{"complexity", func(nu *user.NewUser) { setPwd(nu, "abcdefgh1!") }, map[string]string{"password": "pwdcplx"}},
		{"similar to attributes", func(nu *user.NewUser) { setPwd(nu, "Khanya-High1") }, map[string]string{"password": "pwdtoosim"}},
		{"common", func(nu *user.NewUser) { setPwd(nu, "P@ssw0rd") }, map[string]string{"password": "pwdnocommon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nu := validNewUser()
			tt.mutate(&nu)
			assert.Equal(t, tt.wantTag, fieldTags(t, nu.Validate(ctx, f.validate, f.svc)))
		})
	}

	t.Run("email taken", func(t *testing.T) {
		testutil.CreateUser(t, f.repo, "Other", "taken@test.za", "")
		nu := validNewUser()
		nu.Email = "TAKEN@test.za"
		err := nu.Validate(ctx, f.validate, f.svc)
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "email", vErr.Fields[0].Field)
		assert.Equal(t, user.ErrEmailExists, vErr.Err)
	})
}

func setPwd(nu *user.NewUser, pwd string) {
	nu.Password = pwd
	nu.PasswordConfirm = pwd
}

func TestService_CreateAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	nu := validNewUser()
	require.NoError(t, nu.Validate(ctx, f.validate, f.svc))
	usr, err := f.svc.Create(ctx, nu)
	require.NoError(t, err)
	assert.NotEmpty(t, usr.ID)
	assert.Equal(t, "Khanya High", usr.School)
	assert.True(t, usr.LastLogin.IsZero())

	_, err = f.svc.Authenticate(ctx, "thandi@test.za", "wrong")
	assert.Equal(t, user.ErrInvalidCredentials, err)
	_, err = f.svc.Authenticate(ctx, "nobody@test.za", nu.Password)
	assert.Equal(t, user.ErrInvalidCredentials, err)

	logged, err := f.svc.Authenticate(ctx, " THANDI@test.za", nu.Password)
	require.NoError(t, err)
	assert.Equal(t, usr.ID, logged.ID)
	assert.False(t, logged.LastLogin.IsZero())

	users, err := f.svc.QueryAll(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	_, err = f.svc.SetPassword(ctx, usr.Email, "N3w-Passw0rd?")
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, usr.Email, "N3w-Passw0rd?")
	assert.NoError(t, err)
}

func TestService_PasswordReset(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	usr := testutil.CreateUser(t, f.repo, "Thandi", "thandi@test.za", "Old-Passw0rd!")

	assert.Equal(t, user.ErrNotFound, f.svc.RequestPasswordReset(ctx, "nobody@test.za"))
	require.NoError(t, f.svc.RequestPasswordReset(ctx, usr.Email))

	msg, ok := f.mailSvc.Last()
	require.True(t, ok)
	assert.Equal(t, usr.Email, msg.To[0].Address)
	assert.Contains(t, msg.TextContent, "Hello Thandi")
	assert.Contains(t, msg.TextContent, "1 hour")
	assert.NotEmpty(t, msg.HTMLContent)

	m := resetLinkRegex.FindStringSubmatch(msg.TextContent)
	require.Len(t, m, 3)
	uid, token := m[1], m[2]
	assert.Equal(t, user.EncodeUID(usr), uid)

	tokenErr := func(t *testing.T, err error) {
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "token", vErr.Fields[0].Field)
	}
	rp := user.ResetUserPassword{Token: token, UID: uid, Password: "N3w-Passw0rd?", PasswordConfirm: "N3w-Passw0rd?"}
	require.NoError(t, rp.Validate(f.validate))

	bad := rp
	bad.UID = "bm9ib2R5"
	tokenErr(t, f.svc.ResetPassword(ctx, bad))
	bad = rp
	bad.Token = "abc-def"
	tokenErr(t, f.svc.ResetPassword(ctx, bad))

	require.NoError(t, f.svc.ResetPassword(ctx, rp))
	_, err := f.svc.Authenticate(ctx, usr.Email, "N3w-Passw0rd?")
	require.NoError(t, err)

	// a token is single use
	tokenErr(t, f.svc.ResetPassword(ctx, rp))
}

func TestResetUserPassword_Validate(t *testing.T) {
	f := setup(t)
	rp := user.ResetUserPassword{Token: "t", UID: "u", Password: "short", PasswordConfirm: "short"}
	assert.Equal(t, map[string]string{"password": "pwdminlen"}, fieldTags(t, rp.Validate(f.validate)))
}
