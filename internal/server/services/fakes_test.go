package services

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/yanglog/yanglog/internal/common"
	"github.com/yanglog/yanglog/internal/dbx"
	"github.com/yanglog/yanglog/internal/logging"
	"github.com/yanglog/yanglog/internal/server/auth"
	"github.com/yanglog/yanglog/internal/server/credentials"
	"github.com/yanglog/yanglog/internal/server/models"
	"github.com/yanglog/yanglog/internal/server/repositories/users"
)

// memUsers is an in-memory user directory with the same error contract as
// the postgres repository. Rows created through a transaction stay pending
// until the transaction commits and are dropped on rollback.
type memUsers struct {
	mu      sync.Mutex
	rows    map[string]models.User
	pending []models.User

	createErr error
	getErr    error
	updateErr error
}

func newMemUsers() *memUsers {
	return &memUsers{rows: map[string]models.User{}}
}

func (m *memUsers) create(u *models.User, staged bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	for _, r := range m.rows {
		if r.Email == u.Email {
			return nil, common.ErrDuplicateEmail
		}
	}
	for _, r := range m.pending {
		if r.Email == u.Email {
			return nil, common.ErrDuplicateEmail
		}
	}
	u.CreatedAt = time.Now()
	if staged {
		m.pending = append(m.pending, *u)
	} else {
		m.rows[u.ID] = *u
	}
	return u, nil
}

func (m *memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	return m.create(u, false)
}

func (m *memUsers) commit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.pending {
		m.rows[u.ID] = u
	}
	m.pending = nil
}

func (m *memUsers) rollback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
}

// txUsers is the repository view bound to an open transaction.
type txUsers struct {
	*memUsers
}

func (t txUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	return t.create(u, true)
}

func (m *memUsers) find(match func(models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, r := range m.rows {
		if match(r) {
			u := r
			return &u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *memUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	return m.find(func(u models.User) bool { return u.Email == email })
}

func (m *memUsers) GetUserByID(_ context.Context, id string) (*models.User, error) {
	return m.find(func(u models.User) bool { return u.ID == id })
}

func (m *memUsers) GetUserByVerifyToken(_ context.Context, token string) (*models.User, error) {
	return m.find(func(u models.User) bool { return u.SignupVerifyToken == token })
}

func (m *memUsers) UpdateRefreshToken(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	u, ok := m.rows[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.RefreshToken = hash
	m.rows[id] = u
	return nil
}

func (m *memUsers) SwapRefreshToken(_ context.Context, id, expectedHash, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	u, ok := m.rows[id]
	if !ok || u.RefreshToken == "" || u.RefreshToken != expectedHash {
		return common.ErrorNotFound
	}
	u.RefreshToken = newHash
	m.rows[id] = u
	return nil
}

func (m *memUsers) List(_ context.Context) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := make([]*models.User, 0, len(m.rows))
	for _, r := range m.rows {
		u := r
		out = append(out, &u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memUsers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memUsers) only(t *testing.T) models.User {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.rows, 1)
	for _, u := range m.rows {
		return u
	}
	return models.User{}
}

type fakeRepoManager struct {
	users *memUsers
}

func (f *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error {
	return nil
}

func (f *fakeRepoManager) Users(db dbx.DBTX) users.Repository {
	if _, ok := db.(*sql.Tx); ok {
		return txUsers{memUsers: f.users}
	}
	return f.users
}

// txHooks wraps the sqlmock driver so the fake directory learns whether a
// transaction really committed.
type txHooks struct {
	inner      driver.Driver
	dsn        string
	onCommit   func()
	onRollback func()
}

func (h *txHooks) Connect(context.Context) (driver.Conn, error) {
	conn, err := h.inner.Open(h.dsn)
	if err != nil {
		return nil, err
	}
	return &hookConn{Conn: conn, hooks: h}, nil
}

func (h *txHooks) Driver() driver.Driver {
	return h.inner
}

type hookConn struct {
	driver.Conn
	hooks *txHooks
}

//nolint:staticcheck // database/sql falls back to Begin for default options.
func (c *hookConn) Begin() (driver.Tx, error) {
	tx, err := c.Conn.Begin()
	if err != nil {
		return nil, err
	}
	return &hookTx{Tx: tx, hooks: c.hooks}, nil
}

type hookTx struct {
	driver.Tx
	hooks *txHooks
}

func (t *hookTx) Commit() error {
	if err := t.Tx.Commit(); err != nil {
		t.hooks.onRollback()
		return err
	}
	t.hooks.onCommit()
	return nil
}

func (t *hookTx) Rollback() error {
	t.hooks.onRollback()
	return t.Tx.Rollback()
}

var mockSeq atomic.Int64

// newHookedDB returns a pool whose transactions follow the sqlmock
// expectations and report their outcome to u.
func newHookedDB(t *testing.T, u *memUsers) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	dsn := fmt.Sprintf("services-%d", mockSeq.Add(1))
	mockDB, mock, err := sqlmock.NewWithDSN(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	db := sql.OpenDB(&txHooks{inner: mockDB.Driver(), dsn: dsn, onCommit: u.commit, onRollback: u.rollback})
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	return db, mock
}

type sentMail struct {
	email string
	token string
}

type fakeMailer struct {
	mu     sync.Mutex
	sent   []sentMail
	err    error
	onSend func()
}

func (f *fakeMailer) SendMemberJoinVerification(_ context.Context, email, token string) error {
	if f.onSend != nil {
		f.onSend()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{email: email, token: token})
	return f.err
}

// countingHasher records how often Verify runs.
type countingHasher struct {
	credentials.Hasher
	mu       sync.Mutex
	verifies int
}

func (h *countingHasher) Verify(secret, hashed string) bool {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	return h.Hasher.Verify(secret, hashed)
}

type fixture struct {
	svc    *UserService
	users  *memUsers
	mailer *fakeMailer
	hasher *countingHasher
	tokens *auth.TokenIssuer
	mock   sqlmock.Sqlmock
	logs   *lockedBuffer
}

// lockedBuffer collects log output from concurrent workflows.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	memU := newMemUsers()
	db, mock := newHookedDB(t, memU)

	tokens, err := auth.NewTokenIssuer("access-secret", "refresh-secret", time.Minute, 7*24*time.Hour)
	require.NoError(t, err)

	logs := &lockedBuffer{}
	logger := logging.NewSlogLogger(slog.New(logging.NewTraceHandler(slog.NewJSONHandler(logs, nil))))

	f := &fixture{
		users:  memU,
		mailer: &fakeMailer{},
		hasher: &countingHasher{Hasher: credentials.NewBcryptHasher(bcrypt.MinCost)},
		tokens: tokens,
		mock:   mock,
		logs:   logs,
	}
	f.svc = NewUserService(db, &fakeRepoManager{users: f.users}, tokens, f.hasher, f.mailer, logger)

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	f.svc.tracer = tp.Tracer("services-test")
	return f
}

// signup runs CreateUser against a committing transaction.
func (f *fixture) signup(t *testing.T, name, email, password string) models.User {
	t.Helper()
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.svc.CreateUser(context.Background(), name, email, password))
	require.NoError(t, f.mock.ExpectationsWereMet())

	u, err := f.users.GetUserByEmail(context.Background(), email)
	require.NoError(t, err)
	return *u
}
