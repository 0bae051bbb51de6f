package mfa

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/melody/internal/cache"
	"github.com/dropDatabas3/melody/internal/config"
	"github.com/dropDatabas3/melody/internal/domain/repository"
	"github.com/dropDatabas3/melody/internal/domain/types"
	httperrors "github.com/dropDatabas3/melody/internal/http/errors"
	"github.com/dropDatabas3/melody/internal/http/services/flow"
	"github.com/dropDatabas3/melody/internal/security/lockout"
	"github.com/dropDatabas3/melody/internal/security/totp"
	"github.com/dropDatabas3/melody/internal/store/memory"
)

type fakeMailer struct {
	mu    sync.Mutex
	codes map[string]string
}

func (f *fakeMailer) SendMfaCode(_ context.Context, to, _, _, code string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes[to] = code
	return nil
}

type fakeSMS struct {
	to, body string
}

func (f *fakeSMS) Send(_ context.Context, to, body string) error {
	f.to, f.body = to, body
	return nil
}

type env struct {
	svc    Service
	impl   *mfaService
	store  *memory.Store
	codes  *flow.Codes
	app    *repository.App
	user   *repository.User
	mailer *fakeMailer
	sms    *fakeSMS
	cfg    config.MFAConfig
}

func newEnv(t *testing.T, cfg config.MFAConfig) *env {
	t.Helper()
	if cfg.CodeTTL == 0 {
		cfg.CodeTTL = time.Minute
	}
	if cfg.OtpWindow == 0 {
		cfg.OtpWindow = 1
	}
	kv := cache.NewMemory(time.Minute)
	st := memory.New()
	app := st.PutApp(repository.App{
		ClientID:     "spa",
		Name:         "Demo",
		Type:         repository.AppTypeSPA,
		RedirectURIs: []string{"http://localhost/cb"},
		IsActive:     true,
	})
	u, err := st.CreateUser(context.Background(), &repository.User{Email: "ana@example.com", IsActive: true})
	require.NoError(t, err)

	codes := flow.NewCodes(kv, 5*time.Minute)
	resolver := flow.NewResolver(flow.ResolverDeps{
		Codes:    codes,
		Sessions: flow.NewSessions(kv, time.Minute),
		MFA:      cfg,
	})
	mailer := &fakeMailer{codes: map[string]string{}}
	sender := &fakeSMS{}
	svc := NewService(Deps{
		Users:     st,
		Cache:     kv,
		Codes:     codes,
		Resolver:  resolver,
		Validator: &flow.RequestValidator{Apps: st},
		Accounts:  lockout.New(kv, "failedLogin", 3, time.Hour),
		Mailer:    mailer,
		SMS:       sender,
		Config:    cfg,
	})
	return &env{svc: svc, impl: svc.(*mfaService), store: st, codes: codes, app: app, user: u, mailer: mailer, sms: sender, cfg: cfg}
}

// startFlow emite un code y lo deja esperando page.
func (e *env) startFlow(t *testing.T, page types.NextPage) string {
	t.Helper()
	ctx := context.Background()
	u, err := e.store.GetUserByID(ctx, e.user.ID)
	require.NoError(t, err)
	code, body, err := e.codes.Issue(ctx, e.app, u, types.AuthRequest{ClientID: "spa", Scopes: []string{"openid"}}, false)
	require.NoError(t, err)
	body.NextPage = page
	require.NoError(t, e.codes.Save(ctx, code, body))
	return code
}

func TestEnroll_OnlyEnforcedTypes(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, config.MFAConfig{EnforceOneEnrollment: []string{"otp", "email"}})
	code := e.startFlow(t, types.NextPageMfaEnroll)

	opts, err := e.svc.EnrollOptions(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, []string{"otp", "email"}, opts.Options)

	_, err = e.svc.Enroll(ctx, code, "sms")
	assert.ErrorIs(t, err, httperrors.ErrInvalidMfaType)

	res, err := e.svc.Enroll(ctx, code, "otp")
	require.NoError(t, err)
	assert.Equal(t, types.NextPageOtpSetup, res.NextPage)

	u, err := e.store.GetUserByID(ctx, e.user.ID)
	require.NoError(t, err)
	assert.True(t, u.HasMfa(repository.MfaOtp))
}

func TestOtp_SetupVerifyAndReplay(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, config.MFAConfig{OtpRequired: true, OtpIssuer: "Melody"})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e.impl.now = func() time.Time { return now }

	code := e.startFlow(t, types.NextPageOtpSetup)
	setup, err := e.svc.OtpSetup(ctx, code)
	require.NoError(t, err)
	assert.Contains(t, setup.OtpURI, "otpauth://totp/")

	// el setup es idempotente mientras no se verifique
	again, err := e.svc.OtpSetup(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, setup.OtpSecret, again.OtpSecret)

	secret, err := totp.DecodeSecret(setup.OtpSecret)
	require.NoError(t, err)
	otp := totp.Code(secret, now)

	res, err := e.svc.VerifyOtp(ctx, code, otp)
	require.NoError(t, err)
	assert.Equal(t, types.NextPageNone, res.NextPage)

	u, err := e.store.GetUserByID(ctx, e.user.ID)
	require.NoError(t, err)
	assert.True(t, u.OtpVerified)
	assert.True(t, u.HasMfa(repository.MfaOtp))

	// mismo código en un flujo nuevo: replay
	code2 := e.startFlow(t, types.NextPageOtpMfa)
	_, err = e.svc.VerifyOtp(ctx, code2, otp)
	assert.ErrorIs(t, err, httperrors.ErrInvalidMfaCode)

	// el paso siguiente sí se acepta
	now = now.Add(30 * time.Second)
	_, err = e.svc.VerifyOtp(ctx, code2, totp.Code(secret, now))
	require.NoError(t, err)
}

func TestOtp_Lockout(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, config.MFAConfig{OtpRequired: true, OtpLockout: config.CounterConfig{Threshold: 2, Expiry: time.Hour}})
	code := e.startFlow(t, types.NextPageOtpSetup)
	setup, err := e.svc.OtpSetup(ctx, code)
	require.NoError(t, err)

	_, err = e.svc.VerifyOtp(ctx, code, "000000")
	assert.ErrorIs(t, err, httperrors.ErrInvalidMfaCode)
	_, err = e.svc.VerifyOtp(ctx, code, "000001")
	assert.ErrorIs(t, err, httperrors.ErrOtpMfaLocked)

	secret, _ := totp.DecodeSecret(setup.OtpSecret)
	_, err = e.svc.VerifyOtp(ctx, code, totp.Code(secret, time.Now()))
	assert.ErrorIs(t, err, httperrors.ErrOtpMfaLocked)
}

func TestEmail_CodeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, config.MFAConfig{EmailRequired: true})
	code := e.startFlow(t, types.NextPageEmailMfa)

	sent, err := e.svc.SendEmailCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "a**@example.com", sent.Destination)
	mailed := e.mailer.codes["ana@example.com"]
	require.Len(t, mailed, 6)

	_, err = e.svc.VerifyEmail(ctx, code, "xxxxxx")
	assert.ErrorIs(t, err, httperrors.ErrInvalidMfaCode)

	res, err := e.svc.VerifyEmail(ctx, code, mailed)
	require.NoError(t, err)
	assert.Equal(t, types.NextPageNone, res.NextPage)

	code2 := e.startFlow(t, types.NextPageEmailMfa)
	_, err = e.svc.VerifyEmail(ctx, code2, mailed)
	assert.ErrorIs(t, err, httperrors.ErrInvalidMfaCode)
}

func TestEmail_ConcurrentVerify(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, config.MFAConfig{EmailRequired: true})
	code := e.startFlow(t, types.NextPageEmailMfa)
	_, err := e.svc.SendEmailCode(ctx, code)
	require.NoError(t, err)
	mailed := e.mailer.codes["ana@example.com"]

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok2, _ := e.impl.consumeCode(ctx, repository.MfaEmail, e.user.ID, mailed); ok2 {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
}

func TestEmail_Lockout(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, config.MFAConfig{EmailRequired: true, EmailLockout: config.CounterConfig{Threshold: 2, Expiry: time.Hour}})
	code := e.startFlow(t, types.NextPageEmailMfa)
	_, err := e.svc.SendEmailCode(ctx, code)
	require.NoError(t, err)

	_, err = e.svc.VerifyEmail(ctx, code, "1")
	assert.ErrorIs(t, err, httperrors.ErrInvalidMfaCode)
	_, err = e.svc.VerifyEmail(ctx, code, "2")
	assert.ErrorIs(t, err, httperrors.ErrEmailMfaLocked)
	_, err = e.svc.VerifyEmail(ctx, code, e.mailer.codes["ana@example.com"])
	assert.ErrorIs(t, err, httperrors.ErrEmailMfaLocked)
}

func TestEmail_AsBackup(t *testing.T) {
	ctx := context.Background()

	e := newEnv(t, config.MFAConfig{})
	code := e.startFlow(t, types.NextPageOtpMfa)
	_, err := e.svc.SendEmailCode(ctx, code)
	assert.ErrorIs(t, err, httperrors.ErrInvalidAuthStep)

	e = newEnv(t, config.MFAConfig{AllowEmailAsBackup: true})
	code = e.startFlow(t, types.NextPageOtpMfa)
	_, err = e.svc.SendEmailCode(ctx, code)
	require.NoError(t, err)
	res, err := e.svc.VerifyEmail(ctx, code, e.mailer.codes["ana@example.com"])
	require.NoError(t, err)
	assert.Equal(t, types.NextPageNone, res.NextPage)
}

func TestVerify_ChainsRequiredFactors(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, config.MFAConfig{OtpRequired: true, EmailRequired: true, OtpIssuer: "Melody"})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e.impl.now = func() time.Time { return now }

	code := e.startFlow(t, types.NextPageOtpSetup)
	setup, err := e.svc.OtpSetup(ctx, code)
	require.NoError(t, err)
	secret, err := totp.DecodeSecret(setup.OtpSecret)
	require.NoError(t, err)

	// OTP no alcanza: falta el email
	res, err := e.svc.VerifyOtp(ctx, code, totp.Code(secret, now))
	require.NoError(t, err)
	assert.Equal(t, types.NextPageEmailMfa, res.NextPage)

	_, err = e.svc.SendEmailCode(ctx, code)
	require.NoError(t, err)
	res, err = e.svc.VerifyEmail(ctx, code, e.mailer.codes["ana@example.com"])
	require.NoError(t, err)
	assert.Equal(t, types.NextPageNone, res.NextPage)
}

func TestEmail_AsBackupReplacesOnlyThatFactor(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, config.MFAConfig{OtpRequired: true, SmsRequired: true, AllowEmailAsBackup: true})
	code := e.startFlow(t, types.NextPageOtpMfa)

	_, err := e.svc.SendEmailCode(ctx, code)
	require.NoError(t, err)
	res, err := e.svc.VerifyEmail(ctx, code, e.mailer.codes["ana@example.com"])
	require.NoError(t, err)
	assert.Equal(t, types.NextPageSmsMfa, res.NextPage)
}

func TestSms_SetupAndVerify(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, config.MFAConfig{SmsRequired: true})
	code := e.startFlow(t, types.NextPageSmsMfa)

	_, err := e.svc.SendSmsCode(ctx, code)
	assert.ErrorIs(t, err, httperrors.ErrInvalidPhoneNumber)

	_, err = e.svc.SetupSms(ctx, code, "123")
	assert.ErrorIs(t, err, httperrors.ErrInvalidPhoneNumber)

	sent, err := e.svc.SetupSms(ctx, code, "+54 9 11 5555-1234")
	require.NoError(t, err)
	assert.Equal(t, "**********1234", sent.Destination)
	assert.Equal(t, "+5491155551234", e.sms.to)

	smsCode := e.sms.body[len(e.sms.body)-6:]
	res, err := e.svc.VerifySms(ctx, code, smsCode)
	require.NoError(t, err)
	assert.Equal(t, types.NextPageNone, res.NextPage)

	u, err := e.store.GetUserByID(ctx, e.user.ID)
	require.NoError(t, err)
	assert.True(t, u.SmsPhoneNumberVerified)
	assert.True(t, u.HasMfa(repository.MfaSms))

	// con el teléfono verificado ya no se puede cambiar desde el flujo
	code2 := e.startFlow(t, types.NextPageSmsMfa)
	_, err = e.svc.SetupSms(ctx, code2, "+5491100000000")
	assert.ErrorIs(t, err, httperrors.ErrInvalidAuthStep)
}

func TestVerify_WrongStep(t *testing.T) {
	e := newEnv(t, config.MFAConfig{})
	code := e.startFlow(t, types.NextPageSmsMfa)
	_, err := e.svc.VerifyOtp(context.Background(), code, "123456")
	assert.ErrorIs(t, err, httperrors.ErrInvalidAuthStep)
}

func TestRecoveryCode_EnrollAndSignIn(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, config.MFAConfig{OtpRequired: true, EnableRecoveryCode: true})
	code := e.startFlow(t, types.NextPageOtpSetup)

	rc, err := e.svc.RecoveryCodeEnroll(ctx, code)
	require.NoError(t, err)
	require.Len(t, rc.RecoveryCode, recoveryCodeLength)

	_, err = e.svc.RecoveryCodeEnroll(ctx, code)
	assert.ErrorIs(t, err, httperrors.ErrInvalidRequest)

	params := flow.AuthorizeParams{
		ClientID:            "spa",
		RedirectURI:         "http://localhost/cb",
		ResponseType:        "code",
		Scope:               "openid",
		CodeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		CodeChallengeMethod: "S256",
	}
	out, err := e.svc.SignInWithRecoveryCode(ctx, params, "ANA@example.com", rc.RecoveryCode)
	require.NoError(t, err)
	// sin MFA aunque OTP sea obligatorio
	assert.Equal(t, types.NextPageNone, out.NextPage)
	assert.NotEqual(t, rc.RecoveryCode, out.RecoveryCode)

	// el código usado queda invalidado
	_, err = e.svc.SignInWithRecoveryCode(ctx, params, "ana@example.com", rc.RecoveryCode)
	assert.ErrorIs(t, err, httperrors.ErrInvalidRecoveryCode)

	_, err = e.svc.SignInWithRecoveryCode(ctx, params, "ana@example.com", out.RecoveryCode)
	require.NoError(t, err)
}

func TestRecoveryCode_FailuresLockAccount(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, config.MFAConfig{EnableRecoveryCode: true})
	params := flow.AuthorizeParams{
		ClientID:            "spa",
		RedirectURI:         "http://localhost/cb",
		ResponseType:        "code",
		Scope:               "openid",
		CodeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		CodeChallengeMethod: "S256",
	}
	for i := 0; i < 2; i++ {
		_, err := e.svc.SignInWithRecoveryCode(ctx, params, "ana@example.com", "nope")
		assert.ErrorIs(t, err, httperrors.ErrInvalidRecoveryCode)
	}
	_, err := e.svc.SignInWithRecoveryCode(ctx, params, "ana@example.com", "nope")
	assert.ErrorIs(t, err, httperrors.ErrAccountLocked)
	_, err = e.svc.SignInWithRecoveryCode(ctx, params, "ana@example.com", "nope")
	assert.ErrorIs(t, err, httperrors.ErrAccountLocked)
}
