// Package storage is the database abstraction layer of the print quota
// engine: the entity model, the backend adapter contract, a process-local
// cache in front of it, and the printer/group hierarchy resolver.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/printquota/server/internal/shared/metrics"
)

// Options configures a Storage.
type Options struct {
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	DisableCache bool
}

// Storage fronts a Backend with a process-local cache and the hierarchy
// resolver. All entity access goes through it.
type Storage struct {
	backend Backend
	cache   *cache
	log     *zap.Logger
	metrics *metrics.Metrics
}

// New creates a Storage over the given backend.
func New(backend Backend, opts Options) *Storage {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Storage{
		backend: backend,
		cache:   newCache(!opts.DisableCache, log, opts.Metrics),
		log:     log,
		metrics: opts.Metrics,
	}
}

// Backend exposes the underlying adapter.
func (s *Storage) Backend() Backend { return s.backend }

// Close closes the underlying backend.
func (s *Storage) Close() error { return s.backend.Close() }

// Atomic reports whether the backend provides real transactions.
func (s *Storage) Atomic() bool { return s.backend.Atomic() }

// Begin starts a backend transaction.
func (s *Storage) Begin(ctx context.Context) error { return s.backend.Begin(ctx) }

// Commit commits the current backend transaction.
func (s *Storage) Commit(ctx context.Context) error { return s.backend.Commit(ctx) }

// Rollback aborts the current backend transaction.
func (s *Storage) Rollback(ctx context.Context) error { return s.backend.Rollback(ctx) }

// --- Cached fetches ---

// User returns the user with the given name, from cache when possible. A
// missing user is returned with Exists=false and is never cached.
func (s *Storage) User(ctx context.Context, name string) (*User, error) {
	if cached := s.cache.get(kindUsers, name); cached != nil {
		return cached.(*User), nil
	}
	user, err := s.backend.FetchUser(ctx, name)
	if err != nil {
		return nil, err
	}
	s.cache.put(kindUsers, name, user, user.Exists)
	return user, nil
}

// Group returns the group with the given name. Derived balance sums are
// recomputed by the backend on every fetch miss.
func (s *Storage) Group(ctx context.Context, name string) (*Group, error) {
	if cached := s.cache.get(kindGroups, name); cached != nil {
		return cached.(*Group), nil
	}
	group, err := s.backend.FetchGroup(ctx, name)
	if err != nil {
		return nil, err
	}
	s.cache.put(kindGroups, name, group, group.Exists)
	return group, nil
}

// Printer returns the printer with the given name.
func (s *Storage) Printer(ctx context.Context, name string) (*Printer, error) {
	if cached := s.cache.get(kindPrinters, name); cached != nil {
		return cached.(*Printer), nil
	}
	printer, err := s.backend.FetchPrinter(ctx, name)
	if err != nil {
		return nil, err
	}
	s.cache.put(kindPrinters, name, printer, printer.Exists)
	return printer, nil
}

// BillingCode returns the billing code with the given name.
func (s *Storage) BillingCode(ctx context.Context, name string) (*BillingCode, error) {
	if cached := s.cache.get(kindBillingCodes, name); cached != nil {
		return cached.(*BillingCode), nil
	}
	code, err := s.backend.FetchBillingCode(ctx, name)
	if err != nil {
		return nil, err
	}
	s.cache.put(kindBillingCodes, name, code, code.Exists)
	return code, nil
}

// UserQuota returns the quota record for (user, printer), keyed in the cache
// as "user@printer".
func (s *Storage) UserQuota(ctx context.Context, user *User, printer *Printer) (*UserQuota, error) {
	key := quotaKey(user.Name, printer.Name)
	if cached := s.cache.get(kindUserQuotas, key); cached != nil {
		return cached.(*UserQuota), nil
	}
	quota, err := s.backend.FetchUserQuota(ctx, user, printer)
	if err != nil {
		return nil, err
	}
	s.cache.put(kindUserQuotas, key, quota, quota.Exists)
	return quota, nil
}

// GroupQuota returns the quota record for (group, printer). Page counters
// are derived sums recomputed by the backend on every fetch miss.
func (s *Storage) GroupQuota(ctx context.Context, group *Group, printer *Printer) (*GroupQuota, error) {
	key := quotaKey(group.Name, printer.Name)
	if cached := s.cache.get(kindGroupQuotas, key); cached != nil {
		return cached.(*GroupQuota), nil
	}
	quota, err := s.backend.FetchGroupQuota(ctx, group, printer)
	if err != nil {
		return nil, err
	}
	s.cache.put(kindGroupQuotas, key, quota, quota.Exists)
	return quota, nil
}

// LastJob returns the printer's most recent history entry.
func (s *Storage) LastJob(ctx context.Context, printer *Printer) (*LastJob, error) {
	if cached := s.cache.get(kindLastJobs, printer.Name); cached != nil {
		return cached.(*LastJob), nil
	}
	last, err := s.backend.FetchLastJob(ctx, printer)
	if err != nil {
		return nil, err
	}
	s.cache.put(kindLastJobs, printer.Name, last, last.Exists)
	return last, nil
}

// Job returns a history entry by identifier. History entries are immutable
// and not cached.
func (s *Storage) Job(ctx context.Context, ident int64) (*Job, error) {
	return s.backend.FetchJob(ctx, ident)
}

// --- Hierarchy resolver ---

// GroupMembers returns the group's direct member list, cached on the group
// instance after the first fetch. Membership changes require a fresh fetch
// of the group to become visible.
func (s *Storage) GroupMembers(ctx context.Context, group *Group) ([]*User, error) {
	if group.membersFetched {
		return group.members, nil
	}
	members, err := s.backend.GroupMembers(ctx, group)
	if err != nil {
		return nil, err
	}
	for _, member := range members {
		s.cache.put(kindUsers, member.Name, member, member.Exists)
	}
	group.members = members
	group.membersFetched = true
	return members, nil
}

// UserGroups returns every group the user belongs to, cached on the user
// instance after the first fetch.
func (s *Storage) UserGroups(ctx context.Context, user *User) ([]*Group, error) {
	if user.groupsFetched {
		return user.groups, nil
	}
	groups, err := s.backend.UserGroups(ctx, user)
	if err != nil {
		return nil, err
	}
	for _, group := range groups {
		s.cache.put(kindGroups, group.Name, group, group.Exists)
	}
	user.groups = groups
	user.groupsFetched = true
	return groups, nil
}

// ParentPrinters returns every printer group reachable from the printer,
// de-duplicated by name. The walk keeps a visited set so a malformed cyclic
// configuration terminates instead of looping forever.
func (s *Storage) ParentPrinters(ctx context.Context, printer *Printer) ([]*Printer, error) {
	if printer.parentsFetched {
		return printer.parents, nil
	}

	seen := map[string]bool{printer.Name: true}
	var ancestors []*Printer
	frontier := []*Printer{printer}
	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]
		parents, err := s.directParents(ctx, current)
		if err != nil {
			return nil, err
		}
		for _, parent := range parents {
			if seen[parent.Name] {
				continue
			}
			seen[parent.Name] = true
			ancestors = append(ancestors, parent)
			frontier = append(frontier, parent)
		}
	}

	printer.parents = ancestors
	printer.parentsFetched = true
	return ancestors, nil
}

// directParents resolves one level of "member of" links, going through the
// keyed printer cache for each parent.
func (s *Storage) directParents(ctx context.Context, printer *Printer) ([]*Printer, error) {
	parents, err := s.backend.ParentPrinters(ctx, printer)
	if err != nil {
		return nil, err
	}
	resolved := make([]*Printer, 0, len(parents))
	for _, parent := range parents {
		if parent.Ident == printer.Ident { // tolerate self-links in the store
			continue
		}
		cached, err := s.Printer(ctx, parent.Name)
		if err != nil {
			return nil, err
		}
		if cached.Exists {
			resolved = append(resolved, cached)
		}
	}
	return resolved, nil
}

// ParentUserQuotas returns the user's existing quota records on every
// ancestor of the quota's printer, cached on the quota instance.
func (s *Storage) ParentUserQuotas(ctx context.Context, quota *UserQuota) ([]*UserQuota, error) {
	if quota.parentsFetched {
		return quota.parentQuotas, nil
	}
	if !quota.User.Exists || !quota.Printer.Exists {
		quota.parentsFetched = true
		return nil, nil
	}
	ancestors, err := s.ParentPrinters(ctx, quota.Printer)
	if err != nil {
		return nil, err
	}
	var quotas []*UserQuota
	for _, ancestor := range ancestors {
		parentQuota, err := s.UserQuota(ctx, quota.User, ancestor)
		if err != nil {
			return nil, err
		}
		if parentQuota.Exists {
			quotas = append(quotas, parentQuota)
		}
	}
	quota.parentQuotas = quotas
	quota.parentsFetched = true
	return quotas, nil
}

// ParentGroupQuotas returns the group's existing quota records on every
// ancestor of the quota's printer, cached on the quota instance.
func (s *Storage) ParentGroupQuotas(ctx context.Context, quota *GroupQuota) ([]*GroupQuota, error) {
	if quota.parentsFetched {
		return quota.parentQuotas, nil
	}
	if !quota.Group.Exists || !quota.Printer.Exists {
		quota.parentsFetched = true
		return nil, nil
	}
	ancestors, err := s.ParentPrinters(ctx, quota.Printer)
	if err != nil {
		return nil, err
	}
	var quotas []*GroupQuota
	for _, ancestor := range ancestors {
		parentQuota, err := s.GroupQuota(ctx, quota.Group, ancestor)
		if err != nil {
			return nil, err
		}
		if parentQuota.Exists {
			quotas = append(quotas, parentQuota)
		}
	}
	quota.parentQuotas = quotas
	quota.parentsFetched = true
	return quotas, nil
}

// --- Creation ---

// AddUser creates the user in the backend and caches it.
func (s *Storage) AddUser(ctx context.Context, user *User) error {
	if err := s.backend.AddUser(ctx, user); err != nil {
		return err
	}
	s.cache.put(kindUsers, user.Name, user, user.Exists)
	return nil
}

// AddGroup creates the group in the backend and caches it.
func (s *Storage) AddGroup(ctx context.Context, group *Group) error {
	if err := s.backend.AddGroup(ctx, group); err != nil {
		return err
	}
	s.cache.put(kindGroups, group.Name, group, group.Exists)
	return nil
}

// AddPrinter creates the printer in the backend and caches it.
func (s *Storage) AddPrinter(ctx context.Context, printer *Printer) error {
	if err := s.backend.AddPrinter(ctx, printer); err != nil {
		return err
	}
	s.cache.put(kindPrinters, printer.Name, printer, printer.Exists)
	return nil
}

// AddBillingCode creates the billing code in the backend and caches it.
func (s *Storage) AddBillingCode(ctx context.Context, code *BillingCode) error {
	if err := s.backend.AddBillingCode(ctx, code); err != nil {
		return err
	}
	s.cache.put(kindBillingCodes, code.Name, code, code.Exists)
	return nil
}

// AddUserQuota creates the quota record for its (user, printer) pair.
func (s *Storage) AddUserQuota(ctx context.Context, quota *UserQuota) error {
	if err := s.backend.AddUserQuota(ctx, quota); err != nil {
		return err
	}
	s.cache.put(kindUserQuotas, quotaKey(quota.User.Name, quota.Printer.Name), quota, quota.Exists)
	return nil
}

// AddGroupQuota creates the quota record for its (group, printer) pair.
func (s *Storage) AddGroupQuota(ctx context.Context, quota *GroupQuota) error {
	if err := s.backend.AddGroupQuota(ctx, quota); err != nil {
		return err
	}
	s.cache.put(kindGroupQuotas, quotaKey(quota.Group.Name, quota.Printer.Name), quota, quota.Exists)
	return nil
}

// --- Saves ---

// SaveUser flushes the user's payments backlog to the ledger, then persists
// the record if dirty. Saving a clean user with an empty backlog is a no-op.
func (s *Storage) SaveUser(ctx context.Context, user *User) error {
	for _, payment := range user.PaymentsBacklog {
		if err := s.backend.AppendPayment(ctx, user, payment.Amount, payment.Reason); err != nil {
			return err
		}
	}
	user.PaymentsBacklog = nil
	if !user.Dirty() {
		return nil
	}
	if err := s.backend.SaveUser(ctx, user); err != nil {
		return err
	}
	user.MarkClean()
	return nil
}

// SaveGroup persists the group if dirty.
func (s *Storage) SaveGroup(ctx context.Context, group *Group) error {
	if !group.Dirty() {
		return nil
	}
	if err := s.backend.SaveGroup(ctx, group); err != nil {
		return err
	}
	group.MarkClean()
	return nil
}

// SavePrinter persists the printer if dirty.
func (s *Storage) SavePrinter(ctx context.Context, printer *Printer) error {
	if !printer.Dirty() {
		return nil
	}
	if err := s.backend.SavePrinter(ctx, printer); err != nil {
		return err
	}
	printer.MarkClean()
	return nil
}

// SaveBillingCode persists the billing code if dirty.
func (s *Storage) SaveBillingCode(ctx context.Context, code *BillingCode) error {
	if !code.Dirty() {
		return nil
	}
	if err := s.backend.SaveBillingCode(ctx, code); err != nil {
		return err
	}
	code.MarkClean()
	return nil
}

// SaveUserQuota persists the quota record if dirty.
func (s *Storage) SaveUserQuota(ctx context.Context, quota *UserQuota) error {
	if !quota.Dirty() {
		return nil
	}
	if err := s.backend.SaveUserQuota(ctx, quota); err != nil {
		return err
	}
	quota.MarkClean()
	return nil
}

// SaveGroupQuota persists the quota record's limits if dirty. Derived
// counters are never written.
func (s *Storage) SaveGroupQuota(ctx context.Context, quota *GroupQuota) error {
	if !quota.Dirty() {
		return nil
	}
	if err := s.backend.SaveGroupQuota(ctx, quota); err != nil {
		return err
	}
	quota.MarkClean()
	return nil
}

// --- Deletion ---

// DeleteUser removes the user and synchronously flushes its cache entry
// plus every quota-pair entry that references it.
func (s *Storage) DeleteUser(ctx context.Context, user *User) error {
	if err := s.backend.DeleteUser(ctx, user); err != nil {
		return err
	}
	s.cache.flush(kindUsers, user.Name)
	s.cache.flushMatching(kindUserQuotas, func(_ string, value any) bool {
		return value.(*UserQuota).User.Name == user.Name
	})
	user.Exists = false
	user.MarkClean()
	return nil
}

// DeleteGroup removes the group and flushes every cache entry referencing it.
func (s *Storage) DeleteGroup(ctx context.Context, group *Group) error {
	if err := s.backend.DeleteGroup(ctx, group); err != nil {
		return err
	}
	s.cache.flush(kindGroups, group.Name)
	s.cache.flushMatching(kindGroupQuotas, func(_ string, value any) bool {
		return value.(*GroupQuota).Group.Name == group.Name
	})
	group.Exists = false
	group.MarkClean()
	return nil
}

// DeletePrinter removes the printer and flushes every cache entry
// referencing it: its own key, both quota-pair kinds and its last job.
func (s *Storage) DeletePrinter(ctx context.Context, printer *Printer) error {
	if err := s.backend.DeletePrinter(ctx, printer); err != nil {
		return err
	}
	s.cache.flush(kindPrinters, printer.Name)
	s.cache.flush(kindLastJobs, printer.Name)
	s.cache.flushMatching(kindUserQuotas, func(_ string, value any) bool {
		return value.(*UserQuota).Printer.Name == printer.Name
	})
	s.cache.flushMatching(kindGroupQuotas, func(_ string, value any) bool {
		return value.(*GroupQuota).Printer.Name == printer.Name
	})
	printer.Exists = false
	printer.MarkClean()
	return nil
}

// DeleteBillingCode removes the billing code and flushes it.
func (s *Storage) DeleteBillingCode(ctx context.Context, code *BillingCode) error {
	if err := s.backend.DeleteBillingCode(ctx, code); err != nil {
		return err
	}
	s.cache.flush(kindBillingCodes, code.Name)
	code.Exists = false
	code.MarkClean()
	return nil
}

// DeleteUserQuota removes the quota record and flushes its pair key.
func (s *Storage) DeleteUserQuota(ctx context.Context, quota *UserQuota) error {
	if err := s.backend.DeleteUserQuota(ctx, quota); err != nil {
		return err
	}
	s.cache.flush(kindUserQuotas, quotaKey(quota.User.Name, quota.Printer.Name))
	quota.Exists = false
	quota.MarkClean()
	return nil
}

// DeleteGroupQuota removes the quota record and flushes its pair key.
func (s *Storage) DeleteGroupQuota(ctx context.Context, quota *GroupQuota) error {
	if err := s.backend.DeleteGroupQuota(ctx, quota); err != nil {
		return err
	}
	s.cache.flush(kindGroupQuotas, quotaKey(quota.Group.Name, quota.Printer.Name))
	quota.Exists = false
	quota.MarkClean()
	return nil
}

// --- Membership administration ---

// AddUserToGroup links a user into a group and invalidates the lazy
// membership caches on both instances.
func (s *Storage) AddUserToGroup(ctx context.Context, user *User, group *Group) error {
	if err := s.backend.AddUserToGroup(ctx, user, group); err != nil {
		return err
	}
	group.InvalidateMembers()
	user.InvalidateGroups()
	return nil
}

// RemoveUserFromGroup unlinks a user from a group.
func (s *Storage) RemoveUserFromGroup(ctx context.Context, user *User, group *Group) error {
	if err := s.backend.RemoveUserFromGroup(ctx, user, group); err != nil {
		return err
	}
	group.InvalidateMembers()
	user.InvalidateGroups()
	return nil
}

// AddPrinterToGroup makes printer a member of the parent printer group.
// Self-parenting and duplicate links are silently ignored.
func (s *Storage) AddPrinterToGroup(ctx context.Context, printer, parent *Printer) error {
	if printer.Ident == parent.Ident {
		return nil
	}
	existing, err := s.ParentPrinters(ctx, printer)
	if err != nil {
		return err
	}
	for _, p := range existing {
		if p.Name == parent.Name {
			return nil
		}
	}
	if err := s.backend.AddPrinterToGroup(ctx, printer, parent); err != nil {
		return err
	}
	printer.InvalidateParents()
	return nil
}

// RemovePrinterFromGroup unlinks a printer from a printer group.
func (s *Storage) RemovePrinterFromGroup(ctx context.Context, printer, parent *Printer) error {
	if err := s.backend.RemovePrinterFromGroup(ctx, printer, parent); err != nil {
		return err
	}
	printer.InvalidateParents()
	return nil
}

// --- Counter and balance mutators ---

// ConsumeUserBalance decrements the user's balance in the backend and
// mirrors the change on the instance. Negative amounts credit the account.
func (s *Storage) ConsumeUserBalance(ctx context.Context, user *User, amount float64) error {
	if err := s.backend.DecrementUserBalance(ctx, user, amount); err != nil {
		return err
	}
	user.AccountBalance = Some(user.AccountBalance.OrElse(0) - amount)
	return nil
}

// RefundUser credits an amount back to the user and writes the ledger entry.
func (s *Storage) RefundUser(ctx context.Context, user *User, amount float64, reason string) error {
	if err := s.ConsumeUserBalance(ctx, user, -amount); err != nil {
		return err
	}
	return s.backend.AppendPayment(ctx, user, -amount, reason)
}

// IncrementUserQuotaPages bumps both page counters by delta in the backend
// and on the instance.
func (s *Storage) IncrementUserQuotaPages(ctx context.Context, quota *UserQuota, delta int) error {
	if err := s.backend.IncrementUserQuotaPages(ctx, quota, delta); err != nil {
		return err
	}
	quota.PageCounter += delta
	quota.LifePageCounter += delta
	return nil
}

// SetUserQuotaDateLimit persists the grace period deadline immediately,
// without a full record save.
func (s *Storage) SetUserQuotaDateLimit(ctx context.Context, quota *UserQuota, deadline time.Time) error {
	if err := s.backend.WriteUserQuotaDateLimit(ctx, quota, deadline); err != nil {
		return err
	}
	quota.DateLimit = Some(deadline)
	return nil
}

// SetGroupQuotaDateLimit persists the grace period deadline immediately.
func (s *Storage) SetGroupQuotaDateLimit(ctx context.Context, quota *GroupQuota, deadline time.Time) error {
	if err := s.backend.WriteGroupQuotaDateLimit(ctx, quota, deadline); err != nil {
		return err
	}
	quota.DateLimit = Some(deadline)
	return nil
}

// IncrementWarnCount bumps the deny-banner counter.
func (s *Storage) IncrementWarnCount(ctx context.Context, quota *UserQuota) error {
	if err := s.backend.IncrementUserQuotaWarnCount(ctx, quota); err != nil {
		return err
	}
	quota.WarnCount++
	return nil
}

// ResetWarnCount zeroes the deny-banner counter.
func (s *Storage) ResetWarnCount(ctx context.Context, quota *UserQuota) error {
	if err := s.backend.SetUserQuotaWarnCount(ctx, quota, 0); err != nil {
		return err
	}
	quota.WarnCount = 0
	return nil
}

// ConsumeBillingCode debits pages and credits from a billing code. Negative
// arguments refund it.
func (s *Storage) ConsumeBillingCode(ctx context.Context, code *BillingCode, pages int, price float64) error {
	if pages == 0 && price == 0 {
		return nil
	}
	if err := s.backend.ConsumeBillingCode(ctx, code, pages, price); err != nil {
		return err
	}
	code.PageCounter += pages
	code.Balance -= price
	return nil
}

// ResetGroupQuota resets the page counter of every member's quota on the
// quota's printer, then zeroes the derived counter.
func (s *Storage) ResetGroupQuota(ctx context.Context, quota *GroupQuota) error {
	if err := s.eachMemberQuota(ctx, quota, func(q *UserQuota) { q.Reset() }); err != nil {
		return err
	}
	quota.PageCounter = 0
	quota.DateLimit = None[time.Time]()
	quota.MarkDirty()
	return nil
}

// HardResetGroupQuota hard-resets every member's quota on the quota's
// printer, then zeroes both derived counters.
func (s *Storage) HardResetGroupQuota(ctx context.Context, quota *GroupQuota) error {
	if err := s.eachMemberQuota(ctx, quota, func(q *UserQuota) { q.HardReset() }); err != nil {
		return err
	}
	quota.PageCounter = 0
	quota.LifePageCounter = 0
	quota.DateLimit = None[time.Time]()
	quota.MarkDirty()
	return nil
}

func (s *Storage) eachMemberQuota(ctx context.Context, quota *GroupQuota, apply func(*UserQuota)) error {
	members, err := s.GroupMembers(ctx, quota.Group)
	if err != nil {
		return err
	}
	for _, member := range members {
		memberQuota, err := s.UserQuota(ctx, member, quota.Printer)
		if err != nil {
			return err
		}
		if !memberQuota.Exists {
			continue
		}
		apply(memberQuota)
		if err := s.SaveUserQuota(ctx, memberQuota); err != nil {
			return err
		}
	}
	return nil
}

// --- Job history ---

// AddJobToHistory appends a job record and drops the printer's cached last
// job so the next read sees it. Jobs submitted without a spooler identifier
// get a generated one.
func (s *Storage) AddJobToHistory(ctx context.Context, job *Job) error {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.Date.IsZero() {
		job.Date = time.Now()
	}
	if err := s.backend.AppendJob(ctx, job); err != nil {
		return err
	}
	s.cache.flush(kindLastJobs, job.PrinterName)
	return nil
}

// SetLastJobSize reconciles a history entry with the measured job size and
// price once printing has completed.
func (s *Storage) SetLastJobSize(ctx context.Context, last *LastJob, pages int, price float64) error {
	if err := s.backend.SetJobSize(ctx, last.Ident, pages, price); err != nil {
		return err
	}
	last.JobSize = Some(pages)
	last.JobPrice = Some(price)
	return nil
}

// MarkJobRefunded flags a history entry as refunded.
func (s *Storage) MarkJobRefunded(ctx context.Context, job *Job) error {
	if err := s.backend.MarkJobRefunded(ctx, job.Ident); err != nil {
		return err
	}
	job.Action = ActionRefund
	return nil
}

// --- Targeted cache invalidation for the accounting mutator ---

// FlushGroupQuotasForPrinter drops every cached group quota on the printer.
// Their counters are derived from member quotas and go stale when those
// counters move.
func (s *Storage) FlushGroupQuotasForPrinter(printerName string) {
	s.cache.flushMatching(kindGroupQuotas, func(_ string, value any) bool {
		return value.(*GroupQuota).Printer.Name == printerName
	})
}

// FlushGroup drops a cached group; its derived balance goes stale when a
// member's balance moves.
func (s *Storage) FlushGroup(groupName string) {
	s.cache.flush(kindGroups, groupName)
}

// FlushLastJob drops a printer's cached last job.
func (s *Storage) FlushLastJob(printerName string) {
	s.cache.flush(kindLastJobs, printerName)
}
