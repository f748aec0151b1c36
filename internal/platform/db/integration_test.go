package db_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/launchpad-portal/launchpad/internal/platform/db"
	"github.com/launchpad-portal/launchpad/internal/platform/db/dbtest"
)

type PoolSuite struct {
	suite.Suite
	dsn  string
	pool *db.Pool
	exec *db.Executor
}

func TestPoolSuite(t *testing.T) {
	s := &PoolSuite{dsn: dbtest.StartPostgres(t)}
	s.pool = dbtest.OpenPool(t, s.dsn, 1, 5)
	s.exec = db.NewExecutor(s.pool)
	suite.Run(t, s)
}

func (s *PoolSuite) SetupTest() {
	dbtest.Reset(s.T(), s.pool)
}

func (s *PoolSuite) insertUser(ctx context.Context, name string) db.Record {
	rec, ok, err := s.exec.Execute(ctx,
		db.Stmt(`INSERT INTO users (username, password_hash) VALUES ($1, 'x') RETURNING id, username`, name),
		true,
	)
	s.Require().NoError(err)
	s.Require().True(ok)
	return rec
}

func (s *PoolSuite) countRows(table string) int64 {
	rec, ok, err := s.exec.QueryOne(context.Background(), fmt.Sprintf("SELECT COUNT(*) AS n FROM %s", table))
	s.Require().NoError(err)
	s.Require().True(ok)
	return rec.Int64("n")
}

func (s *PoolSuite) TestQueryManyEmptyIsNotError() {
	records, err := s.exec.QueryMany(context.Background(), `SELECT id FROM users WHERE username = $1`, "nobody")
	s.Require().NoError(err)
	s.NotNil(records)
	s.Empty(records)
}

func (s *PoolSuite) TestQueryOneAbsent() {
	_, ok, err := s.exec.QueryOne(context.Background(), `SELECT id FROM users WHERE id = $1`, int64(999))
	s.Require().NoError(err)
	s.False(ok)
}

func (s *PoolSuite) TestQueryManyKeepsColumnOrder() {
	ctx := context.Background()
	s.insertUser(ctx, "alpha")
	s.insertUser(ctx, "beta")

	records, err := s.exec.QueryMany(ctx, `SELECT username, id, is_admin FROM users ORDER BY id`)
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal([]string{"username", "id", "is_admin"}, records[0].Columns())
	s.Equal("alpha", records[0].String("username"))
	s.Equal("beta", records[1].String("username"))
	s.False(records[0].Bool("is_admin"))
}

func (s *PoolSuite) TestExecuteReturningResolvesFollowUps() {
	ctx := context.Background()
	rec, ok, err := s.exec.Execute(ctx,
		db.Stmt(`INSERT INTO users (username, password_hash) VALUES ($1, 'x') RETURNING id`, "carol"),
		true,
		db.Stmt(`INSERT INTO audit_logs (actor_id, action, entity, entity_id) VALUES ($1, 'user.create', 'user', $2::bigint::text)`, db.Returned("id"), db.Returned("id")),
	)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Positive(rec.Int64("id"))
	s.EqualValues(1, s.countRows("audit_logs"))
}

func (s *PoolSuite) TestExecuteReturningNoRowSkipsFollowUps() {
	_, ok, err := s.exec.Execute(context.Background(),
		db.Stmt(`UPDATE users SET is_admin = TRUE WHERE id = $1 RETURNING id`, int64(12345)),
		true,
		db.Stmt(`INSERT INTO audit_logs (action, entity) VALUES ('user.update', 'user')`),
	)
	s.Require().NoError(err)
	s.False(ok)
	s.Zero(s.countRows("audit_logs"))
}

func (s *PoolSuite) TestExecuteIsAtomic() {
	ctx := context.Background()
	user := s.insertUser(ctx, "dave")
	beforeUsers, beforeHistory := s.countRows("users"), s.countRows("password_change_history")

	_, _, err := s.exec.Execute(ctx,
		db.Stmt(`UPDATE users SET password_hash = 'new' WHERE id = $1`, user.Int64("id")),
		false,
		db.Stmt(`INSERT INTO password_change_history (user_id, changed_by) VALUES ($1, $1)`, user.Int64("id")),
		db.Stmt(`INSERT INTO password_change_history (user_id, changed_by) VALUES ($1, NULL)`, int64(424242)),
	)
	s.Require().Error(err)

	var dae *db.DataAccessError
	s.Require().ErrorAs(err, &dae)
	s.True(dae.ForeignKey())

	s.Equal(beforeUsers, s.countRows("users"))
	s.Equal(beforeHistory, s.countRows("password_change_history"))
	rec, ok, err := s.exec.QueryOne(ctx, `SELECT password_hash FROM users WHERE id = $1`, user.Int64("id"))
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal("x", rec.String("password_hash"))
}

func (s *PoolSuite) TestExecuteReportsConflict() {
	ctx := context.Background()
	s.insertUser(ctx, "erin")

	_, _, err := s.exec.Execute(ctx,
		db.Stmt(`INSERT INTO users (username, password_hash) VALUES ($1, 'x') RETURNING id`, "erin"),
		true,
	)
	s.Require().Error(err)
	s.True(db.IsConflict(err))
	s.EqualValues(1, s.countRows("users"))
}

func (s *PoolSuite) TestFailedStatementReleasesConnection() {
	ctx := context.Background()
	for range 20 {
		_, err := s.exec.QueryMany(ctx, `SELECT * FROM missing_table`)
		s.Require().Error(err)
	}
	s.Zero(s.pool.Stat().Leased)
	s.Require().NoError(s.pool.Ping(ctx))
}

func (s *PoolSuite) TestReleasedConnectionIsReusable() {
	ctx := context.Background()
	conn, err := s.pool.Acquire(ctx)
	s.Require().NoError(err)
	pid := conn.PID()
	conn.Release()
	conn.Release()

	again, err := s.pool.Acquire(ctx)
	s.Require().NoError(err)
	defer again.Release()
	s.NotZero(again.PID())
	s.NotZero(pid)
	s.LessOrEqual(s.pool.Stat().Leased, int32(1))
}

// Five callers each issue twenty inserts against a pool capped at five
// connections. A connection must never be held by two callers at once.
func (s *PoolSuite) TestConcurrentCallersNeverShareConnection() {
	ctx := context.Background()
	const callers, perCaller = 5, 20

	var (
		inUse    sync.Map
		shared   atomic.Int32
		maxLease atomic.Int32
		wg       sync.WaitGroup
	)
	for c := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perCaller {
				err := s.pool.WithConn(ctx, func(conn *db.Conn) error {
					pid := conn.PID()
					if _, loaded := inUse.LoadOrStore(pid, c); loaded {
						shared.Add(1)
					}
					defer inUse.Delete(pid)

					if leased := s.pool.Stat().Leased; leased > maxLease.Load() {
						maxLease.Store(leased)
					}
					_, err := conn.Exec(ctx,
						`INSERT INTO users (username, password_hash) VALUES ($1, 'x')`,
						fmt.Sprintf("caller-%d-%d", c, i))
					return err
				})
				assert.NoError(s.T(), err)
			}
		}()
	}
	wg.Wait()

	s.Zero(shared.Load())
	s.LessOrEqual(maxLease.Load(), int32(5))
	s.EqualValues(callers*perCaller, s.countRows("users"))
	s.Zero(s.pool.Stat().Leased)
}

func (s *PoolSuite) TestExecutorUnderContention() {
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.exec.Execute(ctx,
				db.Stmt(`INSERT INTO users (username, password_hash) VALUES ($1, 'x') RETURNING id`, fmt.Sprintf("load-%d", i)),
				true,
				db.Stmt(`INSERT INTO audit_logs (actor_id, action, entity) VALUES ($1, 'user.create', 'user')`, db.Returned("id")),
			)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}
	s.EqualValues(100, s.countRows("users"))
	s.EqualValues(100, s.countRows("audit_logs"))
	s.LessOrEqual(s.pool.Stat().Total, int32(5))
}

func TestAcquireTimesOutWhenExhausted(t *testing.T) {
	dsn := dbtest.StartPostgres(t)
	ctx := context.Background()
	pool, err := db.Open(ctx, db.Config{DSN: dsn, MinConns: 1, MaxConns: 1, AcquireTimeout: 200 * time.Millisecond})
	require.NoError(t, err)
	defer pool.Close()

	held, err := pool.Acquire(ctx)
	require.NoError(t, err)

	_, err = pool.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, db.ErrAcquireTimeout)

	held.Release()
	again, err := pool.Acquire(ctx)
	require.NoError(t, err)
	again.Release()
}

func TestManagerLifecycle(t *testing.T) {
	dsn := dbtest.StartPostgres(t)
	ctx := context.Background()
	mgr := db.NewManager(db.Config{DSN: dsn, MinConns: 2, MaxConns: 4})

	first, err := mgr.Initialize(ctx)
	require.NoError(t, err)
	second, err := mgr.Initialize(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.GreaterOrEqual(t, first.Stat().Total, int32(2))
	assert.Zero(t, first.Stat().Leased)

	mgr.Close()
	_, err = first.Acquire(ctx)
	assert.True(t, errors.Is(err, db.ErrPoolClosed))

	reopened, err := mgr.Initialize(ctx)
	require.NoError(t, err)
	t.Cleanup(mgr.Close)
	assert.NotSame(t, first, reopened)
	require.NoError(t, reopened.Ping(ctx))
}

func TestMigrateIsIdempotent(t *testing.T) {
	dsn := dbtest.StartPostgres(t)
	pool := dbtest.OpenPool(t, dsn, 1, 2)
	require.NoError(t, db.Migrate(context.Background(), pool, nil))
}
