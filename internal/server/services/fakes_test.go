package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/viaifoundation/ttsgate/internal/common"
	"github.com/viaifoundation/ttsgate/internal/dbx"
	"github.com/viaifoundation/ttsgate/internal/server/models"
	"github.com/viaifoundation/ttsgate/internal/server/oauth"
	"github.com/viaifoundation/ttsgate/internal/server/repositories/generations"
	"github.com/viaifoundation/ttsgate/internal/server/repositories/identities"
	"github.com/viaifoundation/ttsgate/internal/server/repositories/usage"
	_ "modernc.org/sqlite"
)

// newTxDB returns an empty in-memory database. Services only need it to open
// and commit transactions; the fakes below ignore the handle they are bound to.
func newTxDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// store is a shared in-memory backend for the fake repositories.
type store struct {
	mu          sync.Mutex
	nextID      int64
	identities  map[string]*models.Identity
	usage       map[[2]string]*models.UsageRecord
	usageOrder  [][2]string
	generations []*models.GenerationRecord

	touchErr error
	genErr   error
}

func newStore() *store {
	return &store{
		identities: map[string]*models.Identity{},
		usage:      map[[2]string]*models.UsageRecord{},
	}
}

func (s *store) identity(email string) *models.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.identities[email]; ok {
		c := *id
		return &c
	}
	return nil
}

func (s *store) count(email, endpoint string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.usage[[2]string{email, endpoint}]; ok {
		return r.Count
	}
	return 0
}

func (s *store) records() []*models.GenerationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.GenerationRecord(nil), s.generations...)
}

type fakeIdentities struct{ s *store }

func (f fakeIdentities) Create(_ context.Context, in *models.Identity) (*models.Identity, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, ok := f.s.identities[in.Email]; ok {
		return nil, common.ErrDuplicateHandle
	}
	if in.ExternalID != nil {
		for _, id := range f.s.identities {
			if id.ExternalID != nil && *id.ExternalID == *in.ExternalID {
				return nil, common.ErrDuplicateHandle
			}
		}
	}
	f.s.nextID++
	c := *in
	c.ID = f.s.nextID
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	f.s.identities[c.Email] = &c
	out := c
	return &out, nil
}

func (f fakeIdentities) find(match func(*models.Identity) bool) (*models.Identity, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, id := range f.s.identities {
		if match(id) {
			c := *id
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f fakeIdentities) GetByEmail(_ context.Context, email string) (*models.Identity, error) {
	return f.find(func(id *models.Identity) bool { return id.Email == email })
}

func (f fakeIdentities) GetByExternalID(_ context.Context, externalID string) (*models.Identity, error) {
	return f.find(func(id *models.Identity) bool { return id.ExternalID != nil && *id.ExternalID == externalID })
}

func (f fakeIdentities) GetByVerificationToken(_ context.Context, token string) (*models.Identity, error) {
	return f.find(func(id *models.Identity) bool {
		return !id.EmailVerified && id.VerificationToken != nil && *id.VerificationToken == token
	})
}

func (f fakeIdentities) update(email string, fn func(*models.Identity) bool) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	id, ok := f.s.identities[email]
	if !ok || !fn(id) {
		return common.ErrorNotFound
	}
	id.UpdatedAt = time.Now()
	return nil
}

func (f fakeIdentities) MarkVerified(_ context.Context, email string) error {
	return f.update(email, func(id *models.Identity) bool {
		if id.EmailVerified {
			return false
		}
		id.EmailVerified = true
		id.VerificationToken = nil
		return true
	})
}

func (f fakeIdentities) MarkApproved(_ context.Context, email string) error {
	return f.update(email, func(id *models.Identity) bool {
		id.AdminApproved = true
		return true
	})
}

func (f fakeIdentities) LinkExternalID(_ context.Context, email string, externalID string) error {
	err := f.update(email, func(id *models.Identity) bool {
		if id.ExternalID != nil {
			return false
		}
		id.ExternalID = &externalID
		return true
	})
	if err != nil {
		return common.ErrDuplicateHandle
	}
	return nil
}

type fakeUsage struct{ s *store }

func (f fakeUsage) Touch(_ context.Context, email, endpoint string) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.touchErr != nil {
		return 0, f.s.touchErr
	}
	k := [2]string{email, endpoint}
	r, ok := f.s.usage[k]
	if !ok {
		r = &models.UsageRecord{Email: email, Endpoint: endpoint}
		f.s.usage[k] = r
		f.s.usageOrder = append(f.s.usageOrder, k)
	}
	r.Count++
	r.Timestamp = time.Now()
	return r.Count, nil
}

func (f fakeUsage) List(context.Context) ([]*models.UsageRecord, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := make([]*models.UsageRecord, 0, len(f.s.usageOrder))
	for _, k := range f.s.usageOrder {
		c := *f.s.usage[k]
		out = append(out, &c)
	}
	return out, nil
}

type fakeGenerations struct{ s *store }

func (f fakeGenerations) Create(_ context.Context, r *models.GenerationRecord) (*models.GenerationRecord, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.genErr != nil {
		return nil, f.s.genErr
	}
	c := *r
	c.ID = int64(len(f.s.generations) + 1)
	c.GeneratedAt = time.Now()
	f.s.generations = append(f.s.generations, &c)
	return &c, nil
}

type fakeRepoManager struct{ s *store }

func (m fakeRepoManager) RunMigrations(context.Context, *sql.DB) error {
	return nil
}

func (m fakeRepoManager) Identities(dbx.DBTX) identities.Repository {
	return fakeIdentities{m.s}
}

func (m fakeRepoManager) Usage(dbx.DBTX) usage.Repository {
	return fakeUsage{m.s}
}

func (m fakeRepoManager) Generations(dbx.DBTX) generations.Repository {
	return fakeGenerations{m.s}
}

type fakeChallenge struct {
	ok  bool
	err error
}

func (f fakeChallenge) Verify(context.Context, string) (bool, error) { return f.ok, f.err }

type fakeProvider struct {
	identity *oauth.Identity
	err      error
}

func (f fakeProvider) Exchange(context.Context, string) (*oauth.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	c := *f.identity
	return &c, nil
}

type notification struct{ email, token string }

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (f *fakeNotifier) SendVerification(_ context.Context, email, token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, notification{email, token})
}

func (f *fakeNotifier) last() notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return notification{}
	}
	return f.sent[len(f.sent)-1]
}
