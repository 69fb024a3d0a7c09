package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printquota/server/internal/storage"
)

func seedUser(t *testing.T, s *Store, name string, balance float64) *storage.User {
	user := storage.NewUser(name)
	user.AccountBalance = storage.Some(balance)
	require.NoError(t, s.AddUser(context.Background(), user))
	return user
}

func seedPrinter(t *testing.T, s *Store, name string) *storage.Printer {
	printer := storage.NewPrinter(name)
	require.NoError(t, s.AddPrinter(context.Background(), printer))
	return printer
}

func TestOpenRegistersMemoryBackend(t *testing.T) {
	backend, err := storage.Open("memory", "")
	require.NoError(t, err)
	assert.False(t, backend.Atomic())
	assert.NoError(t, backend.Close())
}

func TestFetchMissReturnsPlaceholder(t *testing.T) {
	s := New()
	user, err := s.FetchUser(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, user.Exists)
	assert.Equal(t, "ghost", user.Name)
}

func TestGroupBalancesAreDerived(t *testing.T) {
	s := New()
	ctx := context.Background()
	alice := seedUser(t, s, "alice", 5)
	bob := seedUser(t, s, "bob", 2.5)

	group := storage.NewGroup("students")
	require.NoError(t, s.AddGroup(ctx, group))
	require.NoError(t, s.AddUserToGroup(ctx, alice, group))
	require.NoError(t, s.AddUserToGroup(ctx, bob, group))

	fetched, err := s.FetchGroup(ctx, "students")
	require.NoError(t, err)
	assert.InDelta(t, 7.5, fetched.AccountBalance.Value(), 1e-9)

	// A member's debit shows up on the next fetch.
	require.NoError(t, s.DecrementUserBalance(ctx, alice, 2))
	fetched, err = s.FetchGroup(ctx, "students")
	require.NoError(t, err)
	assert.InDelta(t, 5.5, fetched.AccountBalance.Value(), 1e-9)
}

func TestGroupQuotaCountersAreDerived(t *testing.T) {
	s := New()
	ctx := context.Background()
	alice := seedUser(t, s, "alice", 0)
	bob := seedUser(t, s, "bob", 0)
	printer := seedPrinter(t, s, "laser")

	group := storage.NewGroup("students")
	require.NoError(t, s.AddGroup(ctx, group))
	require.NoError(t, s.AddUserToGroup(ctx, alice, group))
	require.NoError(t, s.AddUserToGroup(ctx, bob, group))

	for _, user := range []*storage.User{alice, bob} {
		quota := storage.NewUserQuota(user, printer)
		require.NoError(t, s.AddUserQuota(ctx, quota))
		require.NoError(t, s.IncrementUserQuotaPages(ctx, quota, 3))
	}

	groupQuota := storage.NewGroupQuota(group, printer)
	require.NoError(t, s.AddGroupQuota(ctx, groupQuota))

	fetched, err := s.FetchGroupQuota(ctx, group, printer)
	require.NoError(t, err)
	assert.Equal(t, 6, fetched.PageCounter)
	assert.Equal(t, 6, fetched.LifePageCounter)
}

func TestDeletePrinterCascades(t *testing.T) {
	s := New()
	ctx := context.Background()
	alice := seedUser(t, s, "alice", 0)
	printer := seedPrinter(t, s, "laser")

	quota := storage.NewUserQuota(alice, printer)
	require.NoError(t, s.AddUserQuota(ctx, quota))

	require.NoError(t, s.DeletePrinter(ctx, printer))

	fetched, err := s.FetchUserQuota(ctx, alice, printer)
	require.NoError(t, err)
	assert.False(t, fetched.Exists)
}

func TestLastJobAndReconcile(t *testing.T) {
	s := New()
	ctx := context.Background()
	printer := seedPrinter(t, s, "laser")

	job := &storage.Job{UserName: "alice", PrinterName: "laser", JobID: "j1", Action: storage.ActionAllow}
	require.NoError(t, s.AppendJob(ctx, job))

	last, err := s.FetchLastJob(ctx, printer)
	require.NoError(t, err)
	require.True(t, last.Exists)
	assert.Equal(t, "j1", last.JobID)
	assert.False(t, last.JobSize.Valid())

	require.NoError(t, s.SetJobSize(ctx, job.Ident, 12, 0.6))
	last, err = s.FetchLastJob(ctx, printer)
	require.NoError(t, err)
	assert.Equal(t, 12, last.JobSize.Value())
	assert.InDelta(t, 0.6, last.JobPrice.Value(), 1e-9)
}

func TestConsumeBillingCode(t *testing.T) {
	s := New()
	ctx := context.Background()
	code := storage.NewBillingCode("project-x")
	require.NoError(t, s.AddBillingCode(ctx, code))

	require.NoError(t, s.ConsumeBillingCode(ctx, code, 10, 0.5))
	fetched, err := s.FetchBillingCode(ctx, "project-x")
	require.NoError(t, err)
	assert.Equal(t, 10, fetched.PageCounter)
	assert.InDelta(t, -0.5, fetched.Balance, 1e-9)

	// Refund is a consume with negated arguments.
	require.NoError(t, s.ConsumeBillingCode(ctx, code, -10, -0.5))
	fetched, err = s.FetchBillingCode(ctx, "project-x")
	require.NoError(t, err)
	assert.Equal(t, 0, fetched.PageCounter)
	assert.InDelta(t, 0.0, fetched.Balance, 1e-9)
}

func TestUserGroupsReverseLookup(t *testing.T) {
	s := New()
	ctx := context.Background()
	alice := seedUser(t, s, "alice", 0)

	for _, name := range []string{"students", "lab"} {
		group := storage.NewGroup(name)
		require.NoError(t, s.AddGroup(ctx, group))
		require.NoError(t, s.AddUserToGroup(ctx, alice, group))
	}

	groups, err := s.UserGroups(ctx, alice)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "lab", groups[0].Name)
	assert.Equal(t, "students", groups[1].Name)
}
