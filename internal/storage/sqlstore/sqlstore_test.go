package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/printquota/server/internal/storage"
)

// newTestStore opens a private in-memory SQLite database. The name is
// derived from the test so parallel tests never share state; cache=shared
// keeps all pooled connections on the same database.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	store, err := Open(sqlite.Open(dsn))
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func addUser(t *testing.T, s *Store, name string, balance float64) *storage.User {
	user := storage.NewUser(name)
	user.AccountBalance = storage.Some(balance)
	require.NoError(t, s.AddUser(context.Background(), user))
	return user
}

func addPrinter(t *testing.T, s *Store, name string) *storage.Printer {
	printer := storage.NewPrinter(name)
	require.NoError(t, s.AddPrinter(context.Background(), printer))
	return printer
}

func addQuota(t *testing.T, s *Store, user *storage.User, printer *storage.Printer) *storage.UserQuota {
	quota := storage.NewUserQuota(user, printer)
	require.NoError(t, s.AddUserQuota(context.Background(), quota))
	return quota
}

func TestSqliteBackendIsRegistered(t *testing.T) {
	backend, err := storage.Open("sqlite", "file:registered?mode=memory&cache=shared")
	require.NoError(t, err)
	assert.True(t, backend.Atomic())
	assert.NoError(t, backend.Close())
}

func TestUserRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := storage.NewUser("alice")
	user.LimitBy = storage.LimitBalance
	user.AccountBalance = storage.Some(12.5)
	user.Email = "alice@example.org"
	require.NoError(t, s.AddUser(ctx, user))
	require.NotZero(t, user.Ident)

	fetched, err := s.FetchUser(ctx, "alice")
	require.NoError(t, err)
	require.True(t, fetched.Exists)
	assert.Equal(t, storage.LimitBalance, fetched.LimitBy)
	assert.InDelta(t, 12.5, fetched.AccountBalance.Value(), 1e-9)
	assert.InDelta(t, 1.0, fetched.OverCharge, 1e-9)

	fetched.SetEmail("a@example.org")
	require.NoError(t, s.SaveUser(ctx, fetched))
	again, err := s.FetchUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "a@example.org", again.Email)
}

func TestFetchMissReturnsPlaceholder(t *testing.T) {
	s := newTestStore(t)
	user, err := s.FetchUser(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, user.Exists)
}

func TestQuotaIncrementsAreRelative(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := addUser(t, s, "alice", 0)
	printer := addPrinter(t, s, "laser")
	quota := addQuota(t, s, user, printer)

	require.NoError(t, s.IncrementUserQuotaPages(ctx, quota, 5))
	require.NoError(t, s.IncrementUserQuotaPages(ctx, quota, 3))

	fetched, err := s.FetchUserQuota(ctx, user, printer)
	require.NoError(t, err)
	assert.Equal(t, 8, fetched.PageCounter)
	assert.Equal(t, 8, fetched.LifePageCounter)
}

func TestDecrementBalanceTreatsNullAsZero(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := storage.NewUser("noball")
	require.NoError(t, s.AddUser(ctx, user)) // balance NULL

	require.NoError(t, s.DecrementUserBalance(ctx, user, 1.5))
	fetched, err := s.FetchUser(ctx, "noball")
	require.NoError(t, err)
	assert.InDelta(t, -1.5, fetched.AccountBalance.Value(), 1e-9)
}

func TestGroupDerivedSums(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := addUser(t, s, "alice", 4)
	bob := addUser(t, s, "bob", 6)
	printer := addPrinter(t, s, "laser")

	group := storage.NewGroup("students")
	require.NoError(t, s.AddGroup(ctx, group))
	require.NoError(t, s.AddUserToGroup(ctx, alice, group))
	require.NoError(t, s.AddUserToGroup(ctx, bob, group))

	aliceQuota := addQuota(t, s, alice, printer)
	require.NoError(t, s.IncrementUserQuotaPages(ctx, aliceQuota, 7))
	bobQuota := addQuota(t, s, bob, printer)
	require.NoError(t, s.IncrementUserQuotaPages(ctx, bobQuota, 2))

	fetchedGroup, err := s.FetchGroup(ctx, "students")
	require.NoError(t, err)
	assert.InDelta(t, 10.0, fetchedGroup.AccountBalance.Value(), 1e-9)

	groupQuota := storage.NewGroupQuota(group, printer)
	require.NoError(t, s.AddGroupQuota(ctx, groupQuota))
	fetchedQuota, err := s.FetchGroupQuota(ctx, fetchedGroup, printer)
	require.NoError(t, err)
	assert.Equal(t, 9, fetchedQuota.PageCounter)
}

func TestParentPrintersJoin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	laser := addPrinter(t, s, "laser")
	all := addPrinter(t, s, "all-printers")
	require.NoError(t, s.AddPrinterToGroup(ctx, laser, all))

	parents, err := s.ParentPrinters(ctx, laser)
	require.NoError(t, err)
	require.Len(t, parents, 1)
	assert.Equal(t, "all-printers", parents[0].Name)

	require.NoError(t, s.RemovePrinterFromGroup(ctx, laser, all))
	parents, err = s.ParentPrinters(ctx, laser)
	require.NoError(t, err)
	assert.Empty(t, parents)
}

func TestTransactionRollbackLeavesCountersUnchanged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := addUser(t, s, "alice", 0)
	printer := addPrinter(t, s, "laser")
	quota := addQuota(t, s, user, printer)

	require.NoError(t, s.Begin(ctx))
	require.NoError(t, s.IncrementUserQuotaPages(ctx, quota, 10))
	require.NoError(t, s.Rollback(ctx))

	fetched, err := s.FetchUserQuota(ctx, user, printer)
	require.NoError(t, err)
	assert.Equal(t, 0, fetched.PageCounter)
}

func TestTransactionCommitPersists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := addUser(t, s, "alice", 5)
	printer := addPrinter(t, s, "laser")
	quota := addQuota(t, s, user, printer)

	require.NoError(t, s.Begin(ctx))
	require.NoError(t, s.IncrementUserQuotaPages(ctx, quota, 10))
	require.NoError(t, s.DecrementUserBalance(ctx, user, 0.5))
	require.NoError(t, s.Commit(ctx))

	fetched, err := s.FetchUserQuota(ctx, user, printer)
	require.NoError(t, err)
	assert.Equal(t, 10, fetched.PageCounter)
	fetchedUser, err := s.FetchUser(ctx, "alice")
	require.NoError(t, err)
	assert.InDelta(t, 4.5, fetchedUser.AccountBalance.Value(), 1e-9)
}

func TestDeleteUserCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := addUser(t, s, "alice", 0)
	printer := addPrinter(t, s, "laser")
	addQuota(t, s, user, printer)
	require.NoError(t, s.AppendPayment(ctx, user, 5, "deposit"))

	require.NoError(t, s.DeleteUser(ctx, user))

	fetched, err := s.FetchUser(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, fetched.Exists)
	quota, err := s.FetchUserQuota(ctx, user, printer)
	require.NoError(t, err)
	assert.False(t, quota.Exists)
}

func TestJobHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	printer := addPrinter(t, s, "laser")

	job := &storage.Job{
		UserName:    "alice",
		PrinterName: "laser",
		JobID:       "j1",
		Action:      storage.ActionAllow,
	}
	require.NoError(t, s.AppendJob(ctx, job))
	require.NotZero(t, job.Ident)

	require.NoError(t, s.SetJobSize(ctx, job.Ident, 12, 0.6))
	last, err := s.FetchLastJob(ctx, printer)
	require.NoError(t, err)
	require.True(t, last.Exists)
	assert.Equal(t, 12, last.JobSize.Value())

	require.NoError(t, s.MarkJobRefunded(ctx, job.Ident))
	refetched, err := s.FetchJob(ctx, job.Ident)
	require.NoError(t, err)
	assert.Equal(t, storage.ActionRefund, refetched.Action)
}
