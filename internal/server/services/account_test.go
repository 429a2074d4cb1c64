package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viaifoundation/ttsgate/internal/common"
	"github.com/viaifoundation/ttsgate/internal/logging"
	"github.com/viaifoundation/ttsgate/internal/server/admission"
	"github.com/viaifoundation/ttsgate/internal/server/auth"
	"github.com/viaifoundation/ttsgate/internal/server/config"
	"github.com/viaifoundation/ttsgate/internal/server/oauth"
	"golang.org/x/crypto/bcrypt"
)

type accountFixture struct {
	svc      *AccountService
	store    *store
	notifier *fakeNotifier
}

func newAccountFixture(t *testing.T, opts ...func(*AccountService)) *accountFixture {
	t.Helper()
	cfg := &config.Config{SecretKey: "k", AccessTokenValidityDuration: time.Hour}
	st := newStore()
	n := &fakeNotifier{}
	svc := NewAccountService(newTxDB(t), fakeRepoManager{st}, cfg,
		fakeChallenge{ok: true}, fakeProvider{err: errors.New("not used")}, n, logging.Nop{})
	svc.bcryptCost = bcrypt.MinCost
	for _, o := range opts {
		o(svc)
	}
	return &accountFixture{svc: svc, store: st, notifier: n}
}

func withChallenge(v fakeChallenge) func(*AccountService) {
	return func(s *AccountService) { s.challenge = v }
}

func withProvider(p fakeProvider) func(*AccountService) {
	return func(s *AccountService) { s.provider = p }
}

func TestCreateIdentity_DuplicateHandle(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateIdentity(ctx, NewIdentity{Email: "bob@example.org", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, admission.Unverified, admission.StateOf(first))
	require.NotNil(t, first.VerificationToken)
	assert.Len(t, *first.VerificationToken, 43)

	_, err = f.svc.CreateIdentity(ctx, NewIdentity{Email: "bob@example.org", Password: "other"})
	assert.ErrorIs(t, err, common.ErrDuplicateHandle)
}

func TestCreateIdentity_ExternalWithoutPassword(t *testing.T) {
	f := newAccountFixture(t)

	id, err := f.svc.CreateIdentity(context.Background(), NewIdentity{Email: "ext@example.org", ExternalID: "sub-1", EmailVerified: true})
	require.NoError(t, err)
	assert.False(t, id.HasPassword())
	assert.Nil(t, id.VerificationToken)
	require.NotNil(t, id.ExternalID)
	assert.Equal(t, "sub-1", *id.ExternalID)

	ok, err := f.svc.VerifyCredential(context.Background(), "ext@example.org", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyCredential(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateIdentity(ctx, NewIdentity{Email: "bob@example.org", Password: "pw"})
	require.NoError(t, err)

	ok, err := f.svc.VerifyCredential(ctx, "bob@example.org", "pw")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.VerifyCredential(ctx, "bob@example.org", "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.VerifyCredential(ctx, "ghost@example.org", "pw")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegister_ChallengeRejected(t *testing.T) {
	f := newAccountFixture(t, withChallenge(fakeChallenge{ok: false}))

	_, err := f.svc.Register(context.Background(), "a@example.org", "pw", "bad")
	assert.ErrorIs(t, err, common.ErrChallengeFailed)
	assert.Nil(t, f.store.identity("a@example.org"))
	assert.Empty(t, f.notifier.sent)
}

func TestRegister_ChallengeServiceDown(t *testing.T) {
	f := newAccountFixture(t, withChallenge(fakeChallenge{err: common.ErrUpstreamUnavailable}))

	_, err := f.svc.Register(context.Background(), "a@example.org", "pw", "x")
	assert.ErrorIs(t, err, common.ErrUpstreamUnavailable)
}

func TestRegister_Duplicate(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "a@example.org", "pw", "ok")
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, "a@example.org", "pw2", "ok")
	assert.ErrorIs(t, err, common.ErrDuplicateHandle)
	assert.Len(t, f.notifier.sent, 1)
	assert.Equal(t, int64(1), f.store.count("a@example.org", common.EndpointRegister))
}

func TestVerify_SingleUse(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "a@example.org", "pw", "ok")
	require.NoError(t, err)
	token := f.notifier.last().token
	require.NotEmpty(t, token)

	id, err := f.svc.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, admission.Verified, admission.StateOf(id))
	assert.Nil(t, f.store.identity("a@example.org").VerificationToken)

	_, err = f.svc.Verify(ctx, token)
	assert.ErrorIs(t, err, common.ErrInvalidOrExpiredToken)

	_, err = f.svc.Verify(ctx, "")
	assert.ErrorIs(t, err, common.ErrInvalidOrExpiredToken)
	assert.Equal(t, int64(1), f.store.count("a@example.org", common.EndpointVerify))
}

func TestLogin_GateOrder(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "a@example.org", "pw", "ok")
	require.NoError(t, err)

	// Unknown and unverified identities are not admitted, whatever the password.
	_, err = f.svc.Login(ctx, "ghost@example.org", "pw", "ok")
	assert.ErrorIs(t, err, common.ErrNotAdmitted)
	_, err = f.svc.Login(ctx, "a@example.org", "pw", "ok")
	assert.ErrorIs(t, err, common.ErrNotAdmitted)

	_, err = f.svc.Verify(ctx, f.notifier.last().token)
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "a@example.org", "pw", "ok")
	assert.ErrorIs(t, err, common.ErrNotAdmitted, "verified but unapproved")

	require.NoError(t, f.svc.Approve(ctx, "a@example.org"))

	_, err = f.svc.Login(ctx, "a@example.org", "wrong", "ok")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
	assert.Zero(t, f.store.count("a@example.org", common.EndpointToken))

	f.svc.challenge = fakeChallenge{ok: false}
	_, err = f.svc.Login(ctx, "a@example.org", "pw", "bad")
	assert.ErrorIs(t, err, common.ErrChallengeFailed)
}

func TestEndToEnd_RegisterVerifyApproveLogin(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	id, err := f.svc.Register(ctx, "alice@example.org", "p@ss", "ok")
	require.NoError(t, err)
	assert.Equal(t, admission.Unverified, admission.StateOf(id))

	sent := f.notifier.last()
	assert.Equal(t, "alice@example.org", sent.email)

	id, err = f.svc.Verify(ctx, sent.token)
	require.NoError(t, err)
	assert.Equal(t, admission.Verified, admission.StateOf(id))

	require.NoError(t, f.svc.Approve(ctx, "alice@example.org"))
	assert.Equal(t, admission.Admitted, admission.StateOf(f.store.identity("alice@example.org")))

	res, err := f.svc.Login(ctx, "alice@example.org", "p@ss", "ok")
	require.NoError(t, err)
	assert.Equal(t, common.TokenTypeBearer, res.TokenType)
	email, err := auth.GetEmailFromToken(res.AccessToken, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "alice@example.org", email)

	_, err = f.svc.Login(ctx, "alice@example.org", "wrong", "ok")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)

	got, err := f.svc.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.org", got.Email)

	assert.Equal(t, int64(1), f.store.count("alice@example.org", common.EndpointRegister))
	assert.Equal(t, int64(1), f.store.count("alice@example.org", common.EndpointVerify))
	assert.Equal(t, int64(1), f.store.count("alice@example.org", common.EndpointApprove))
	assert.Equal(t, int64(1), f.store.count("alice@example.org", common.EndpointToken))
}

func TestApprove_BeforeVerify(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "a@example.org", "pw", "ok")
	require.NoError(t, err)
	require.NoError(t, f.svc.Approve(ctx, "a@example.org"))

	_, err = f.svc.Login(ctx, "a@example.org", "pw", "ok")
	assert.ErrorIs(t, err, common.ErrNotAdmitted)

	_, err = f.svc.Verify(ctx, f.notifier.last().token)
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "a@example.org", "pw", "ok")
	assert.NoError(t, err)
}

func TestApprove_UnknownEmail(t *testing.T) {
	f := newAccountFixture(t)

	err := f.svc.Approve(context.Background(), "ghost@example.org")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestAuthenticate_Errors(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	_, err := f.svc.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	tok, err := auth.GenerateToken("ghost@example.org", []byte("k"), time.Hour)
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, tok)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func googleIdentity(verified bool) *oauth.Identity {
	return &oauth.Identity{Subject: "g-1", Email: "gina@example.org", EmailVerified: verified}
}

func TestExternalLogin_NewIdentityPendingVerification(t *testing.T) {
	f := newAccountFixture(t, withProvider(fakeProvider{identity: googleIdentity(true)}))
	ctx := context.Background()

	res, err := f.svc.ExternalLogin(ctx, "code")
	require.NoError(t, err)
	assert.True(t, res.Pending)
	assert.Empty(t, res.AccessToken)

	id := f.store.identity("gina@example.org")
	require.NotNil(t, id)
	assert.False(t, id.EmailVerified)
	assert.False(t, id.HasPassword())
	assert.Equal(t, "gina@example.org", f.notifier.last().email)
	assert.Equal(t, int64(1), f.store.count("gina@example.org", common.EndpointExternalLogin))

	// Same subject again: known identity, not yet admitted.
	_, err = f.svc.ExternalLogin(ctx, "code")
	assert.ErrorIs(t, err, common.ErrNotAdmitted)
}

func TestExternalLogin_TrustProviderEmail(t *testing.T) {
	f := newAccountFixture(t, withProvider(fakeProvider{identity: googleIdentity(true)}), func(s *AccountService) {
		s.trustProviderEmail = true
	})
	ctx := context.Background()

	res, err := f.svc.ExternalLogin(ctx, "code")
	require.NoError(t, err)
	assert.True(t, res.Pending)
	assert.True(t, f.store.identity("gina@example.org").EmailVerified)
	assert.Empty(t, f.notifier.sent)

	require.NoError(t, f.svc.Approve(ctx, "gina@example.org"))

	res, err = f.svc.ExternalLogin(ctx, "code")
	require.NoError(t, err)
	assert.False(t, res.Pending)
	assert.NotEmpty(t, res.AccessToken)
}

func TestExternalLogin_TrustIgnoredWhenProviderDoesNotVerify(t *testing.T) {
	f := newAccountFixture(t, withProvider(fakeProvider{identity: googleIdentity(false)}), func(s *AccountService) {
		s.trustProviderEmail = true
	})

	_, err := f.svc.ExternalLogin(context.Background(), "code")
	require.NoError(t, err)
	assert.False(t, f.store.identity("gina@example.org").EmailVerified)
	assert.Len(t, f.notifier.sent, 1)
}

func TestExternalLogin_LinksExistingAccount(t *testing.T) {
	f := newAccountFixture(t, withProvider(fakeProvider{identity: googleIdentity(true)}))
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "gina@example.org", "pw", "ok")
	require.NoError(t, err)
	_, err = f.svc.Verify(ctx, f.notifier.last().token)
	require.NoError(t, err)
	require.NoError(t, f.svc.Approve(ctx, "gina@example.org"))

	res, err := f.svc.ExternalLogin(ctx, "code")
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)

	id := f.store.identity("gina@example.org")
	require.NotNil(t, id.ExternalID)
	assert.Equal(t, "g-1", *id.ExternalID)
	assert.True(t, id.HasPassword())
}

func TestExternalLogin_UnverifiedEmailCollision(t *testing.T) {
	f := newAccountFixture(t, withProvider(fakeProvider{identity: googleIdentity(false)}))
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "gina@example.org", "pw", "ok")
	require.NoError(t, err)

	_, err = f.svc.ExternalLogin(ctx, "code")
	assert.ErrorIs(t, err, common.ErrDuplicateHandle)
	assert.Nil(t, f.store.identity("gina@example.org").ExternalID)
}

func TestExternalLogin_ProviderFailure(t *testing.T) {
	f := newAccountFixture(t, withProvider(fakeProvider{err: common.ErrUpstreamUnavailable}))

	_, err := f.svc.ExternalLogin(context.Background(), "code")
	assert.ErrorIs(t, err, common.ErrUpstreamUnavailable)
}

func TestRegister_UsageFailureFailsRegistration(t *testing.T) {
	f := newAccountFixture(t)
	f.store.touchErr = errors.New("db down")

	_, err := f.svc.Register(context.Background(), "a@example.org", "pw", "ok")
	require.Error(t, err)
	assert.Empty(t, f.notifier.sent)
}
