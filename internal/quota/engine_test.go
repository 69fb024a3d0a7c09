package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printquota/server/internal/shared/errors"
	"github.com/printquota/server/internal/storage"
	"github.com/printquota/server/internal/storage/memstore"
)

type env struct {
	t       *testing.T
	ctx     context.Context
	backend *memstore.Store
	store   *storage.Storage
	engine  *Engine
	cfg     *Settings
	now     time.Time
}

func newEnv(t *testing.T) *env {
	e := &env{
		t:       t,
		ctx:     context.Background(),
		backend: memstore.New(),
		cfg:     DefaultSettings(),
		now:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	e.store = storage.New(e.backend, storage.Options{})
	e.engine = New(e.store, e.cfg, Options{Now: func() time.Time { return e.now }})
	return e
}

func (e *env) addUser(name string, limitBy storage.LimitBy) *storage.User {
	user := storage.NewUser(name)
	user.LimitBy = limitBy
	require.NoError(e.t, e.store.AddUser(e.ctx, user))
	return user
}

func (e *env) addPrinter(name string, perPage, perJob float64) *storage.Printer {
	printer := storage.NewPrinter(name)
	printer.PricePerPage = perPage
	printer.PricePerJob = perJob
	require.NoError(e.t, e.store.AddPrinter(e.ctx, printer))
	return printer
}

func (e *env) addQuota(user *storage.User, printer *storage.Printer, soft, hard storage.Option[int]) *storage.UserQuota {
	quota := storage.NewUserQuota(user, printer)
	quota.SoftLimit = soft
	quota.HardLimit = hard
	require.NoError(e.t, e.store.AddUserQuota(e.ctx, quota))
	return quota
}

func (e *env) addGroup(name string, limitBy storage.LimitBy, members ...*storage.User) *storage.Group {
	group := storage.NewGroup(name)
	group.LimitBy = limitBy
	require.NoError(e.t, e.store.AddGroup(e.ctx, group))
	for _, member := range members {
		require.NoError(e.t, e.store.AddUserToGroup(e.ctx, member, group))
	}
	return group
}

func some(v int) storage.Option[int] { return storage.Some(v) }
func noLimit() storage.Option[int]   { return storage.None[int]() }

func TestCheckUserPassThroughPrinter(t *testing.T) {
	e := newEnv(t)
	user := e.addUser("alice", storage.LimitQuota)
	printer := storage.NewPrinter("lobby")
	printer.PassThrough = true
	require.NoError(t, e.store.AddPrinter(e.ctx, printer))
	quota := e.addQuota(user, printer, some(0), some(0))

	d, err := e.engine.CheckUser(e.ctx, quota, Estimate{Pages: 5})
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, d)
}

func TestCheckUserBypassModes(t *testing.T) {
	tests := []struct {
		limitBy storage.LimitBy
		want    Decision
	}{
		{storage.LimitNoQuota, DecisionAllow},
		{storage.LimitNoChange, DecisionAllow},
		{storage.LimitNoPrint, DecisionDeny},
	}
	for _, tt := range tests {
		t.Run(string(tt.limitBy), func(t *testing.T) {
			e := newEnv(t)
			user := e.addUser("alice", tt.limitBy)
			printer := e.addPrinter("laser", 0.05, 0)
			quota := e.addQuota(user, printer, some(0), some(0)) // exhausted

			d, err := e.engine.CheckUser(e.ctx, quota, Estimate{Pages: 1})
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
		})
	}
}

func TestCheckUserMissingQuotaFollowsPolicy(t *testing.T) {
	tests := []struct {
		policy Policy
		want   Decision
	}{
		{PolicyAllow, DecisionPolicyAllow},
		{PolicyDeny, DecisionPolicyDeny},
		{PolicyExternal, DecisionPolicyDeny},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			e := newEnv(t)
			e.cfg.DefaultPolicy = tt.policy
			user := e.addUser("alice", storage.LimitQuota)
			printer := e.addPrinter("laser", 0.05, 0)
			quota, err := e.store.UserQuota(e.ctx, user, printer)
			require.NoError(t, err)
			require.False(t, quota.Exists)

			d, err := e.engine.CheckUser(e.ctx, quota, Estimate{Pages: 1})
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
		})
	}
}

func TestCheckUserPageLimits(t *testing.T) {
	tests := []struct {
		name    string
		counter int
		soft    storage.Option[int]
		hard    storage.Option[int]
		want    Decision
	}{
		{"under soft", 5, some(10), some(20), DecisionAllow},
		{"at soft starts grace", 10, some(10), some(20), DecisionWarn},
		{"between limits", 15, some(10), some(20), DecisionWarn},
		{"at hard", 20, some(10), some(20), DecisionDeny},
		{"over hard", 25, some(10), some(20), DecisionDeny},
		{"soft without hard", 10, some(10), noLimit(), DecisionDeny},
		{"hard only under", 5, noLimit(), some(20), DecisionAllow},
		{"hard only reached", 20, noLimit(), some(20), DecisionDeny},
		{"no limits", 1000, noLimit(), noLimit(), DecisionAllow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			user := e.addUser("alice", storage.LimitQuota)
			printer := e.addPrinter("laser", 0.05, 0)
			quota := e.addQuota(user, printer, tt.soft, tt.hard)
			quota.SetUsage(tt.counter)
			require.NoError(t, e.store.SaveUserQuota(e.ctx, quota))

			d, err := e.engine.CheckUser(e.ctx, quota, Estimate{Pages: 1})
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
		})
	}
}

func TestCheckUserGracePeriod(t *testing.T) {
	e := newEnv(t)
	e.cfg.Grace = 48 * time.Hour
	user := e.addUser("alice", storage.LimitQuota)
	printer := e.addPrinter("laser", 0.05, 0)
	quota := e.addQuota(user, printer, some(10), some(20))
	quota.SetUsage(12)
	require.NoError(t, e.store.SaveUserQuota(e.ctx, quota))

	// First crossing persists the deadline and warns.
	d, err := e.engine.CheckUser(e.ctx, quota, Estimate{Pages: 1})
	require.NoError(t, err)
	assert.Equal(t, DecisionWarn, d)
	deadline, ok := quota.DateLimit.Get()
	require.True(t, ok)
	assert.Equal(t, e.now.Add(48*time.Hour), deadline)

	// Still inside the grace period a day later.
	e.now = e.now.Add(24 * time.Hour)
	d, err = e.engine.CheckUser(e.ctx, quota, Estimate{Pages: 1})
	require.NoError(t, err)
	assert.Equal(t, DecisionWarn, d)

	// Past the deadline the job is denied.
	e.now = e.now.Add(25 * time.Hour)
	d, err = e.engine.CheckUser(e.ctx, quota, Estimate{Pages: 1})
	require.NoError(t, err)
	assert.Equal(t, DecisionDeny, d)
}

func TestCheckUserStrictCountsEstimate(t *testing.T) {
	e := newEnv(t)
	e.cfg.DefaultEnforcement = EnforcementStrict
	user := e.addUser("alice", storage.LimitQuota)
	printer := e.addPrinter("laser", 0.05, 0)
	quota := e.addQuota(user, printer, some(10), some(20))
	quota.SetUsage(8)
	require.NoError(t, e.store.SaveUserQuota(e.ctx, quota))

	// 8 printed + 1 estimated stays under the soft limit.
	d, err := e.engine.CheckUser(e.ctx, quota, Estimate{Pages: 1})
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, d)

	// 8 printed + 12 estimated reaches the hard limit.
	d, err = e.engine.CheckUser(e.ctx, quota, Estimate{Pages: 12})
	require.NoError(t, err)
	assert.Equal(t, DecisionDeny, d)
}

func TestCheckUserBalance(t *testing.T) {
	tests := []struct {
		name        string
		balance     storage.Option[float64]
		overCharge  float64
		enforcement Enforcement
		estimate    float64
		want        Decision
	}{
		{"healthy balance", storage.Some(10.0), 1.0, EnforcementLaxist, 0, DecisionAllow},
		{"poor balance warns", storage.Some(0.5), 1.0, EnforcementLaxist, 0, DecisionWarn},
		{"at zero denies", storage.Some(0.0), 1.0, EnforcementLaxist, 0, DecisionDeny},
		{"below zero denies", storage.Some(-2.0), 1.0, EnforcementLaxist, 0, DecisionDeny},
		{"unknown balance follows policy", storage.None[float64](), 1.0, EnforcementLaxist, 0, DecisionPolicyAllow},
		{"never charged user", storage.Some(-5.0), 0, EnforcementLaxist, 0, DecisionAllow},
		{"strict estimate spends down to zero", storage.Some(2.0), 1.0, EnforcementStrict, 2.0, DecisionWarn},
		{"strict estimate past zero", storage.Some(2.0), 1.0, EnforcementStrict, 2.5, DecisionDeny},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.cfg.DefaultEnforcement = tt.enforcement
			user := e.addUser("alice", storage.LimitBalance)
			user.AccountBalance = tt.balance
			user.OverCharge = tt.overCharge
			printer := e.addPrinter("laser", 0.05, 0)
			quota := e.addQuota(user, printer, noLimit(), noLimit())

			d, err := e.engine.CheckUser(e.ctx, quota, Estimate{Pages: 1, Price: tt.estimate})
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
		})
	}
}

func TestCheckUserGroupDenyIsFinal(t *testing.T) {
	e := newEnv(t)
	user := e.addUser("alice", storage.LimitQuota)
	printer := e.addPrinter("laser", 0.05, 0)
	quota := e.addQuota(user, printer, some(100), some(200)) // user is fine

	group := e.addGroup("students", storage.LimitQuota, user)
	groupQuota := storage.NewGroupQuota(group, printer)
	groupQuota.SoftLimit = some(0)
	groupQuota.HardLimit = some(0)
	require.NoError(t, e.store.AddGroupQuota(e.ctx, groupQuota))

	d, err := e.engine.CheckUser(e.ctx, quota, Estimate{Pages: 1})
	require.NoError(t, err)
	assert.Equal(t, DecisionDeny, d)
}

func TestCheckUserGroupWarnPropagates(t *testing.T) {
	e := newEnv(t)
	user := e.addUser("alice", storage.LimitQuota)
	printer := e.addPrinter("laser", 0.05, 0)
	quota := e.addQuota(user, printer, some(100), some(200))
	quota.SetUsage(5)
	require.NoError(t, e.store.SaveUserQuota(e.ctx, quota))

	group := e.addGroup("students", storage.LimitQuota, user)
	groupQuota := storage.NewGroupQuota(group, printer)
	groupQuota.SoftLimit = some(3) // derived counter is 5, between limits
	groupQuota.HardLimit = some(50)
	require.NoError(t, e.store.AddGroupQuota(e.ctx, groupQuota))
	e.store.FlushGroupQuotasForPrinter(printer.Name)

	d, err := e.engine.CheckUser(e.ctx, quota, Estimate{Pages: 1})
	require.NoError(t, err)
	assert.Equal(t, DecisionWarn, d)
}

func TestCheckUserGroupWarnReturnedBeforeUserRecord(t *testing.T) {
	e := newEnv(t)
	user := e.addUser("alice", storage.LimitQuota)
	printer := e.addPrinter("laser", 0.05, 0)
	quota := e.addQuota(user, printer, some(0), some(0)) // user alone would be denied
	quota.SetUsage(5)
	require.NoError(t, e.store.SaveUserQuota(e.ctx, quota))

	group := e.addGroup("students", storage.LimitQuota, user)
	groupQuota := storage.NewGroupQuota(group, printer)
	groupQuota.SoftLimit = some(3) // derived counter is 5, between limits
	groupQuota.HardLimit = some(50)
	require.NoError(t, e.store.AddGroupQuota(e.ctx, groupQuota))
	e.store.FlushGroupQuotasForPrinter(printer.Name)

	d, err := e.engine.CheckUser(e.ctx, quota, Estimate{Pages: 1})
	require.NoError(t, err)
	assert.Equal(t, DecisionWarn, d)
}

func TestCheckGroupBalance(t *testing.T) {
	tests := []struct {
		name        string
		balance     storage.Option[float64]
		enforcement Enforcement
		estimate    float64
		want        Decision
	}{
		{"healthy balance", storage.Some(10.0), EnforcementLaxist, 0, DecisionAllow},
		{"poor balance warns", storage.Some(0.5), EnforcementLaxist, 0, DecisionWarn},
		{"at zero denies", storage.Some(0.0), EnforcementLaxist, 0, DecisionDeny},
		{"unknown balance counts as zero", storage.None[float64](), EnforcementLaxist, 0, DecisionDeny},
		{"strict estimate spends down to zero", storage.Some(2.0), EnforcementStrict, 2.0, DecisionWarn},
		{"strict estimate past zero", storage.Some(2.0), EnforcementStrict, 5.0, DecisionDeny},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.cfg.DefaultEnforcement = tt.enforcement
			printer := e.addPrinter("laser", 0.05, 0)
			group := storage.NewGroup("students")
			group.LimitBy = storage.LimitBalance
			group.AccountBalance = tt.balance

			d, err := e.engine.CheckGroup(e.ctx, group, printer, Estimate{Pages: 1, Price: tt.estimate})
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
		})
	}
}

func TestCheckUserGroupBalanceStrictCountsEstimate(t *testing.T) {
	e := newEnv(t)
	e.cfg.DefaultEnforcement = EnforcementStrict
	user := storage.NewUser("alice")
	user.LimitBy = storage.LimitQuota
	user.AccountBalance = storage.Some(2.0)
	require.NoError(t, e.store.AddUser(e.ctx, user))
	printer := e.addPrinter("laser", 0.05, 0)
	quota := e.addQuota(user, printer, noLimit(), noLimit())
	e.addGroup("students", storage.LimitBalance, user)

	// The group's derived balance of 2.0 cannot cover a 5.0 job.
	d, err := e.engine.CheckUser(e.ctx, quota, Estimate{Pages: 1, Price: 5.0})
	require.NoError(t, err)
	assert.Equal(t, DecisionDeny, d)
}

func TestCheckUserGroupNoQuotaSkipped(t *testing.T) {
	e := newEnv(t)
	user := e.addUser("alice", storage.LimitQuota)
	printer := e.addPrinter("laser", 0.05, 0)
	quota := e.addQuota(user, printer, some(100), some(200))

	group := e.addGroup("staff", storage.LimitNoQuota, user)
	groupQuota := storage.NewGroupQuota(group, printer)
	groupQuota.SoftLimit = some(0)
	groupQuota.HardLimit = some(0)
	require.NoError(t, e.store.AddGroupQuota(e.ctx, groupQuota))

	d, err := e.engine.CheckUser(e.ctx, quota, Estimate{Pages: 1})
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, d)
}

func TestCheckUserAncestorQuotaRestricts(t *testing.T) {
	e := newEnv(t)
	user := e.addUser("alice", storage.LimitQuota)
	printer := e.addPrinter("laser", 0.05, 0)
	allLasers := e.addPrinter("all-lasers", 0, 0)
	require.NoError(t, e.store.AddPrinterToGroup(e.ctx, printer, allLasers))

	quota := e.addQuota(user, printer, some(100), some(200))
	parentQuota := e.addQuota(user, allLasers, some(0), some(0)) // exhausted upstream
	_ = parentQuota

	d, err := e.engine.CheckUser(e.ctx, quota, Estimate{Pages: 1})
	require.NoError(t, err)
	assert.Equal(t, DecisionDeny, d)
}

func TestCheckUserMissingRecordAncestorStillDenies(t *testing.T) {
	e := newEnv(t)
	user := e.addUser("alice", storage.LimitQuota)
	printer := e.addPrinter("laser", 0.05, 0)
	allLasers := e.addPrinter("all-lasers", 0, 0)
	require.NoError(t, e.store.AddPrinterToGroup(e.ctx, printer, allLasers))
	e.addQuota(user, allLasers, some(0), some(0)) // exhausted upstream

	quota, err := e.store.UserQuota(e.ctx, user, printer)
	require.NoError(t, err)
	require.False(t, quota.Exists)

	d, err := e.engine.CheckUser(e.ctx, quota, Estimate{Pages: 1})
	require.NoError(t, err)
	assert.Equal(t, DecisionDeny, d)
}

func TestCheckUserMissingRecordHealthyAncestorKeepsPolicy(t *testing.T) {
	e := newEnv(t)
	user := e.addUser("alice", storage.LimitQuota)
	printer := e.addPrinter("laser", 0.05, 0)
	allLasers := e.addPrinter("all-lasers", 0, 0)
	require.NoError(t, e.store.AddPrinterToGroup(e.ctx, printer, allLasers))
	e.addQuota(user, allLasers, some(100), some(200))

	quota, err := e.store.UserQuota(e.ctx, user, printer)
	require.NoError(t, err)
	require.False(t, quota.Exists)

	d, err := e.engine.CheckUser(e.ctx, quota, Estimate{Pages: 1})
	require.NoError(t, err)
	assert.Equal(t, DecisionPolicyAllow, d)
}

func TestExceedsMaxJobSize(t *testing.T) {
	e := newEnv(t)
	e.cfg.JobSizeLimit = 100
	user := e.addUser("alice", storage.LimitQuota)
	printer := e.addPrinter("laser", 0.05, 0)
	printer.MaxJobSize = some(50)
	quota := e.addQuota(user, printer, noLimit(), noLimit())

	// Printer ceiling applies.
	assert.False(t, e.engine.ExceedsMaxJobSize(quota, 50))
	assert.True(t, e.engine.ExceedsMaxJobSize(quota, 51))

	// Quota-level ceiling wins over the printer's.
	quota.MaxJobSize = some(10)
	assert.True(t, e.engine.ExceedsMaxJobSize(quota, 11))
	assert.False(t, e.engine.ExceedsMaxJobSize(quota, 10))

	// Global ceiling applies when neither record has one.
	quota.MaxJobSize = noLimit()
	printer.MaxJobSize = noLimit()
	assert.True(t, e.engine.ExceedsMaxJobSize(quota, 101))
	assert.False(t, e.engine.ExceedsMaxJobSize(quota, 100))
}

func TestApplyJobAccountsEverything(t *testing.T) {
	e := newEnv(t)
	user := e.addUser("alice", storage.LimitQuota)
	user.AccountBalance = storage.Some(10.0)
	require.NoError(t, e.store.SaveUser(e.ctx, user))

	printer := e.addPrinter("laser", 0.05, 1.0)
	allLasers := e.addPrinter("all-lasers", 0, 0)
	require.NoError(t, e.store.AddPrinterToGroup(e.ctx, printer, allLasers))

	quota := e.addQuota(user, printer, some(100), some(200))
	parentQuota := e.addQuota(user, allLasers, noLimit(), noLimit())

	code := storage.NewBillingCode("project-x")
	require.NoError(t, e.store.AddBillingCode(e.ctx, code))

	job, err := e.engine.ApplyJob(e.ctx, quota, JobRequest{
		JobID:       "job-1",
		Action:      DecisionAllow,
		Pages:       10,
		BillingCode: "project-x",
	})
	require.NoError(t, err)

	// Price: 1.0 per job + 10 pages at 0.05.
	price, ok := job.JobPrice.Get()
	require.True(t, ok)
	assert.InDelta(t, 1.5, price, 1e-9)

	assert.Equal(t, 10, quota.PageCounter)
	assert.Equal(t, 10, quota.LifePageCounter)
	assert.Equal(t, 10, parentQuota.PageCounter)
	assert.InDelta(t, 8.5, user.AccountBalance.Value(), 1e-9)
	assert.Equal(t, 10, code.PageCounter)
	assert.InDelta(t, -1.5, code.Balance, 1e-9)

	last, err := e.store.LastJob(e.ctx, printer)
	require.NoError(t, err)
	require.True(t, last.Exists)
	assert.Equal(t, "job-1", last.JobID)
	assert.Equal(t, storage.ActionAllow, last.Action)
}

func TestApplyJobDeniedOnlyRecordsHistory(t *testing.T) {
	e := newEnv(t)
	user := e.addUser("alice", storage.LimitQuota)
	user.AccountBalance = storage.Some(10.0)
	require.NoError(t, e.store.SaveUser(e.ctx, user))
	printer := e.addPrinter("laser", 0.05, 1.0)
	quota := e.addQuota(user, printer, some(0), some(0))

	job, err := e.engine.ApplyJob(e.ctx, quota, JobRequest{
		JobID:  "job-2",
		Action: DecisionDeny,
		Pages:  10,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, quota.PageCounter)
	assert.InDelta(t, 10.0, user.AccountBalance.Value(), 1e-9)
	assert.False(t, job.JobSize.Valid())
	assert.False(t, job.Refundable())

	last, err := e.store.LastJob(e.ctx, printer)
	require.NoError(t, err)
	assert.Equal(t, storage.ActionDeny, last.Action)
}

func TestRefundReversesApplyJob(t *testing.T) {
	e := newEnv(t)
	user := e.addUser("alice", storage.LimitQuota)
	user.AccountBalance = storage.Some(10.0)
	require.NoError(t, e.store.SaveUser(e.ctx, user))

	printer := e.addPrinter("laser", 0.05, 1.0)
	allLasers := e.addPrinter("all-lasers", 0, 0)
	require.NoError(t, e.store.AddPrinterToGroup(e.ctx, printer, allLasers))
	quota := e.addQuota(user, printer, some(100), some(200))
	parentQuota := e.addQuota(user, allLasers, noLimit(), noLimit())

	code := storage.NewBillingCode("project-x")
	require.NoError(t, e.store.AddBillingCode(e.ctx, code))

	job, err := e.engine.ApplyJob(e.ctx, quota, JobRequest{
		JobID:       "job-3",
		Action:      DecisionAllow,
		Pages:       10,
		BillingCode: "project-x",
	})
	require.NoError(t, err)

	require.NoError(t, e.engine.Refund(e.ctx, job, "paper jam"))

	assert.Equal(t, 0, quota.PageCounter)
	assert.Equal(t, 0, parentQuota.PageCounter)
	assert.InDelta(t, 10.0, user.AccountBalance.Value(), 1e-9)
	assert.Equal(t, 0, code.PageCounter)
	assert.InDelta(t, 0.0, code.Balance, 1e-9)
	assert.Equal(t, storage.ActionRefund, job.Action)

	// The ledger shows the credit.
	payments := e.backend.Payments("alice")
	require.Len(t, payments, 1)
	assert.InDelta(t, -1.5, payments[0].Amount, 1e-9)
	assert.Equal(t, "paper jam", payments[0].Reason)
}

func TestRefundIsIdempotent(t *testing.T) {
	e := newEnv(t)
	user := e.addUser("alice", storage.LimitQuota)
	printer := e.addPrinter("laser", 0.05, 0)
	quota := e.addQuota(user, printer, some(100), some(200))

	job, err := e.engine.ApplyJob(e.ctx, quota, JobRequest{
		JobID:  "job-4",
		Action: DecisionAllow,
		Pages:  4,
	})
	require.NoError(t, err)

	require.NoError(t, e.engine.Refund(e.ctx, job, "duplicate"))
	counterAfterFirst := quota.PageCounter

	err = e.engine.Refund(e.ctx, job, "duplicate")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvariant)
	assert.Equal(t, counterAfterFirst, quota.PageCounter)
}

func TestRefundRejectsDeniedJob(t *testing.T) {
	e := newEnv(t)
	user := e.addUser("alice", storage.LimitQuota)
	printer := e.addPrinter("laser", 0.05, 0)
	quota := e.addQuota(user, printer, some(0), some(0))

	job, err := e.engine.ApplyJob(e.ctx, quota, JobRequest{
		JobID:  "job-5",
		Action: DecisionDeny,
		Pages:  4,
	})
	require.NoError(t, err)

	err = e.engine.Refund(e.ctx, job, "never printed")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvariant)
}
