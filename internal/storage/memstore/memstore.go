// Package memstore is an in-memory storage backend. It keeps its own row
// representation and converts to entities on fetch, like a real store would,
// so the cache and save semantics of the layer above are exercised for real.
// It has no transactions and reports Atomic() == false.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/printquota/server/internal/shared/errors"
	"github.com/printquota/server/internal/storage"
)

func init() {
	storage.RegisterBackend("memory", func(string) (storage.Backend, error) {
		return New(), nil
	})
}

type userRow struct {
	ident        int64
	name         string
	description  string
	limitBy      storage.LimitBy
	balance      *float64
	lifeTimePaid *float64
	email        string
	overCharge   float64
}

type groupRow struct {
	ident       int64
	name        string
	description string
	limitBy     storage.LimitBy
}

type printerRow struct {
	ident        int64
	name         string
	description  string
	pricePerPage float64
	pricePerJob  float64
	maxJobSize   *int
	passThrough  bool
}

type userQuotaRow struct {
	ident           int64
	userName        string
	printerName     string
	pageCounter     int
	lifePageCounter int
	softLimit       *int
	hardLimit       *int
	dateLimit       *time.Time
	warnCount       int
	maxJobSize      *int
}

type groupQuotaRow struct {
	ident       int64
	groupName   string
	printerName string
	softLimit   *int
	hardLimit   *int
	dateLimit   *time.Time
	maxJobSize  *int
}

type billingRow struct {
	ident       int64
	name        string
	description string
	pageCounter int
	balance     float64
}

type jobRow struct {
	ident int64
	job   storage.Job
}

type paymentRow struct {
	userName string
	payment  storage.Payment
}

// Store is the in-memory backend.
type Store struct {
	mu        sync.Mutex
	nextIdent int64

	users        map[string]*userRow
	groups       map[string]*groupRow
	printers     map[string]*printerRow
	userQuotas   map[string]*userQuotaRow  // keyed "user@printer"
	groupQuotas  map[string]*groupQuotaRow // keyed "group@printer"
	billingCodes map[string]*billingRow

	groupMembers   map[string]map[string]bool // group -> member set
	printerParents map[string]map[string]bool // printer -> parent set

	jobs     []*jobRow
	payments []paymentRow
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:          map[string]*userRow{},
		groups:         map[string]*groupRow{},
		printers:       map[string]*printerRow{},
		userQuotas:     map[string]*userQuotaRow{},
		groupQuotas:    map[string]*groupQuotaRow{},
		billingCodes:   map[string]*billingRow{},
		groupMembers:   map[string]map[string]bool{},
		printerParents: map[string]map[string]bool{},
	}
}

func (s *Store) Close() error { return nil }

// Atomic reports false: mutations are individually consistent but job
// accounting sequences are not grouped.
func (s *Store) Atomic() bool { return false }

func (s *Store) Begin(context.Context) error    { return nil }
func (s *Store) Commit(context.Context) error   { return nil }
func (s *Store) Rollback(context.Context) error { return nil }

func (s *Store) ident() int64 {
	s.nextIdent++
	return s.nextIdent
}

func pairKey(subject, printer string) string { return subject + "@" + printer }

func fromPtr[T any](p *T) storage.Option[T] {
	if p == nil {
		return storage.None[T]()
	}
	return storage.Some(*p)
}

func toPtr[T any](o storage.Option[T]) *T {
	if v, ok := o.Get(); ok {
		return &v
	}
	return nil
}

// --- Fetches ---

func (s *Store) FetchUser(_ context.Context, name string) (*storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.users[name]
	if !ok {
		return storage.NewUser(name), nil
	}
	return s.userFromRow(row), nil
}

func (s *Store) userFromRow(row *userRow) *storage.User {
	user := storage.NewUser(row.name)
	user.Ident = row.ident
	user.Description = row.description
	user.Exists = true
	user.LimitBy = row.limitBy
	user.AccountBalance = fromPtr(row.balance)
	user.LifeTimePaid = fromPtr(row.lifeTimePaid)
	user.Email = row.email
	user.OverCharge = row.overCharge
	return user
}

func (s *Store) FetchGroup(_ context.Context, name string) (*storage.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.groups[name]
	if !ok {
		return storage.NewGroup(name), nil
	}
	return s.groupFromRow(row), nil
}

// groupFromRow derives the group's balances as sums over its members.
func (s *Store) groupFromRow(row *groupRow) *storage.Group {
	group := storage.NewGroup(row.name)
	group.Ident = row.ident
	group.Description = row.description
	group.Exists = true
	group.LimitBy = row.limitBy
	var balance, paid float64
	var known bool
	for member := range s.groupMembers[row.name] {
		if u, ok := s.users[member]; ok {
			if u.balance != nil {
				balance += *u.balance
				known = true
			}
			if u.lifeTimePaid != nil {
				paid += *u.lifeTimePaid
				known = true
			}
		}
	}
	if known {
		group.AccountBalance = storage.Some(balance)
		group.LifeTimePaid = storage.Some(paid)
	}
	return group
}

func (s *Store) FetchPrinter(_ context.Context, name string) (*storage.Printer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.printers[name]
	if !ok {
		return storage.NewPrinter(name), nil
	}
	printer := storage.NewPrinter(row.name)
	printer.Ident = row.ident
	printer.Description = row.description
	printer.Exists = true
	printer.PricePerPage = row.pricePerPage
	printer.PricePerJob = row.pricePerJob
	printer.MaxJobSize = fromPtr(row.maxJobSize)
	printer.PassThrough = row.passThrough
	return printer, nil
}

func (s *Store) FetchBillingCode(_ context.Context, name string) (*storage.BillingCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.billingCodes[name]
	if !ok {
		return storage.NewBillingCode(name), nil
	}
	code := storage.NewBillingCode(row.name)
	code.Ident = row.ident
	code.Description = row.description
	code.Exists = true
	code.PageCounter = row.pageCounter
	code.Balance = row.balance
	return code, nil
}

func (s *Store) FetchUserQuota(_ context.Context, user *storage.User, printer *storage.Printer) (*storage.UserQuota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.userQuotas[pairKey(user.Name, printer.Name)]
	if !ok {
		return storage.NewUserQuota(user, printer), nil
	}
	quota := storage.NewUserQuota(user, printer)
	quota.Ident = row.ident
	quota.Exists = true
	quota.PageCounter = row.pageCounter
	quota.LifePageCounter = row.lifePageCounter
	quota.SoftLimit = fromPtr(row.softLimit)
	quota.HardLimit = fromPtr(row.hardLimit)
	quota.DateLimit = fromPtr(row.dateLimit)
	quota.WarnCount = row.warnCount
	quota.MaxJobSize = fromPtr(row.maxJobSize)
	return quota, nil
}

// FetchGroupQuota derives the page counters as sums over the members'
// quota rows on the same printer.
func (s *Store) FetchGroupQuota(_ context.Context, group *storage.Group, printer *storage.Printer) (*storage.GroupQuota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.groupQuotas[pairKey(group.Name, printer.Name)]
	if !ok {
		return storage.NewGroupQuota(group, printer), nil
	}
	quota := storage.NewGroupQuota(group, printer)
	quota.Ident = row.ident
	quota.Exists = true
	quota.SoftLimit = fromPtr(row.softLimit)
	quota.HardLimit = fromPtr(row.hardLimit)
	quota.DateLimit = fromPtr(row.dateLimit)
	quota.MaxJobSize = fromPtr(row.maxJobSize)
	for member := range s.groupMembers[group.Name] {
		if uq, ok := s.userQuotas[pairKey(member, printer.Name)]; ok {
			quota.PageCounter += uq.pageCounter
			quota.LifePageCounter += uq.lifePageCounter
		}
	}
	return quota, nil
}

func (s *Store) FetchLastJob(_ context.Context, printer *storage.Printer) (*storage.LastJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.jobs) - 1; i >= 0; i-- {
		if s.jobs[i].job.PrinterName == printer.Name {
			last := storage.NewLastJob(printer)
			last.Job = s.jobs[i].job
			return last, nil
		}
	}
	return storage.NewLastJob(printer), nil
}

func (s *Store) FetchJob(_ context.Context, ident int64) (*storage.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.jobs {
		if row.ident == ident {
			job := row.job
			return &job, nil
		}
	}
	return &storage.Job{}, nil
}

// --- Relationships ---

func (s *Store) GroupMembers(_ context.Context, group *storage.Group) ([]*storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.groupMembers[group.Name]))
	for name := range s.groupMembers[group.Name] {
		names = append(names, name)
	}
	sort.Strings(names)
	members := make([]*storage.User, 0, len(names))
	for _, name := range names {
		if row, ok := s.users[name]; ok {
			members = append(members, s.userFromRow(row))
		}
	}
	return members, nil
}

func (s *Store) UserGroups(_ context.Context, user *storage.User) ([]*storage.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for groupName, members := range s.groupMembers {
		if members[user.Name] {
			names = append(names, groupName)
		}
	}
	sort.Strings(names)
	groups := make([]*storage.Group, 0, len(names))
	for _, name := range names {
		if row, ok := s.groups[name]; ok {
			groups = append(groups, s.groupFromRow(row))
		}
	}
	return groups, nil
}

func (s *Store) ParentPrinters(ctx context.Context, printer *storage.Printer) ([]*storage.Printer, error) {
	s.mu.Lock()
	names := make([]string, 0, len(s.printerParents[printer.Name]))
	for name := range s.printerParents[printer.Name] {
		names = append(names, name)
	}
	sort.Strings(names)
	s.mu.Unlock()

	parents := make([]*storage.Printer, 0, len(names))
	for _, name := range names {
		parent, err := s.FetchPrinter(ctx, name)
		if err != nil {
			return nil, err
		}
		if parent.Exists {
			parents = append(parents, parent)
		}
	}
	return parents, nil
}

// --- Creation ---

func (s *Store) AddUser(_ context.Context, user *storage.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.users[user.Name]; dup {
		return errors.Storage("memstore: add user", fmt.Errorf("user %q already exists", user.Name))
	}
	row := &userRow{
		ident:        s.ident(),
		name:         user.Name,
		description:  user.Description,
		limitBy:      user.LimitBy,
		balance:      toPtr(user.AccountBalance),
		lifeTimePaid: toPtr(user.LifeTimePaid),
		email:        user.Email,
		overCharge:   user.OverCharge,
	}
	s.users[user.Name] = row
	user.Ident = row.ident
	user.Exists = true
	return nil
}

func (s *Store) AddGroup(_ context.Context, group *storage.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.groups[group.Name]; dup {
		return errors.Storage("memstore: add group", fmt.Errorf("group %q already exists", group.Name))
	}
	row := &groupRow{ident: s.ident(), name: group.Name, description: group.Description, limitBy: group.LimitBy}
	s.groups[group.Name] = row
	group.Ident = row.ident
	group.Exists = true
	return nil
}

func (s *Store) AddPrinter(_ context.Context, printer *storage.Printer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.printers[printer.Name]; dup {
		return errors.Storage("memstore: add printer", fmt.Errorf("printer %q already exists", printer.Name))
	}
	row := &printerRow{
		ident:        s.ident(),
		name:         printer.Name,
		description:  printer.Description,
		pricePerPage: printer.PricePerPage,
		pricePerJob:  printer.PricePerJob,
		maxJobSize:   toPtr(printer.MaxJobSize),
		passThrough:  printer.PassThrough,
	}
	s.printers[printer.Name] = row
	printer.Ident = row.ident
	printer.Exists = true
	return nil
}

func (s *Store) AddBillingCode(_ context.Context, code *storage.BillingCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.billingCodes[code.Name]; dup {
		return errors.Storage("memstore: add billing code", fmt.Errorf("billing code %q already exists", code.Name))
	}
	row := &billingRow{ident: s.ident(), name: code.Name, description: code.Description, pageCounter: code.PageCounter, balance: code.Balance}
	s.billingCodes[code.Name] = row
	code.Ident = row.ident
	code.Exists = true
	return nil
}

func (s *Store) AddUserQuota(_ context.Context, quota *storage.UserQuota) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(quota.User.Name, quota.Printer.Name)
	if _, dup := s.userQuotas[key]; dup {
		return errors.Storage("memstore: add user quota", fmt.Errorf("quota %q already exists", key))
	}
	row := &userQuotaRow{
		ident:           s.ident(),
		userName:        quota.User.Name,
		printerName:     quota.Printer.Name,
		pageCounter:     quota.PageCounter,
		lifePageCounter: quota.LifePageCounter,
		softLimit:       toPtr(quota.SoftLimit),
		hardLimit:       toPtr(quota.HardLimit),
		dateLimit:       toPtr(quota.DateLimit),
		warnCount:       quota.WarnCount,
		maxJobSize:      toPtr(quota.MaxJobSize),
	}
	s.userQuotas[key] = row
	quota.Ident = row.ident
	quota.Exists = true
	return nil
}

func (s *Store) AddGroupQuota(_ context.Context, quota *storage.GroupQuota) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(quota.Group.Name, quota.Printer.Name)
	if _, dup := s.groupQuotas[key]; dup {
		return errors.Storage("memstore: add group quota", fmt.Errorf("quota %q already exists", key))
	}
	row := &groupQuotaRow{
		ident:       s.ident(),
		groupName:   quota.Group.Name,
		printerName: quota.Printer.Name,
		softLimit:   toPtr(quota.SoftLimit),
		hardLimit:   toPtr(quota.HardLimit),
		dateLimit:   toPtr(quota.DateLimit),
		maxJobSize:  toPtr(quota.MaxJobSize),
	}
	s.groupQuotas[key] = row
	quota.Ident = row.ident
	quota.Exists = true
	return nil
}

// --- Saves ---

func (s *Store) SaveUser(_ context.Context, user *storage.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.users[user.Name]
	if !ok {
		return errors.Storage("memstore: save user", fmt.Errorf("unknown user %q", user.Name))
	}
	row.description = user.Description
	row.limitBy = user.LimitBy
	row.balance = toPtr(user.AccountBalance)
	row.lifeTimePaid = toPtr(user.LifeTimePaid)
	row.email = user.Email
	row.overCharge = user.OverCharge
	return nil
}

func (s *Store) SaveGroup(_ context.Context, group *storage.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.groups[group.Name]
	if !ok {
		return errors.Storage("memstore: save group", fmt.Errorf("unknown group %q", group.Name))
	}
	row.description = group.Description
	row.limitBy = group.LimitBy
	return nil
}

func (s *Store) SavePrinter(_ context.Context, printer *storage.Printer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.printers[printer.Name]
	if !ok {
		return errors.Storage("memstore: save printer", fmt.Errorf("unknown printer %q", printer.Name))
	}
	row.description = printer.Description
	row.pricePerPage = printer.PricePerPage
	row.pricePerJob = printer.PricePerJob
	row.maxJobSize = toPtr(printer.MaxJobSize)
	row.passThrough = printer.PassThrough
	return nil
}

func (s *Store) SaveBillingCode(_ context.Context, code *storage.BillingCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.billingCodes[code.Name]
	if !ok {
		return errors.Storage("memstore: save billing code", fmt.Errorf("unknown billing code %q", code.Name))
	}
	row.description = code.Description
	row.pageCounter = code.PageCounter
	row.balance = code.Balance
	return nil
}

func (s *Store) SaveUserQuota(_ context.Context, quota *storage.UserQuota) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(quota.User.Name, quota.Printer.Name)
	row, ok := s.userQuotas[key]
	if !ok {
		return errors.Storage("memstore: save user quota", fmt.Errorf("unknown quota %q", key))
	}
	row.pageCounter = quota.PageCounter
	row.lifePageCounter = quota.LifePageCounter
	row.softLimit = toPtr(quota.SoftLimit)
	row.hardLimit = toPtr(quota.HardLimit)
	row.dateLimit = toPtr(quota.DateLimit)
	row.warnCount = quota.WarnCount
	row.maxJobSize = toPtr(quota.MaxJobSize)
	return nil
}

// SaveGroupQuota writes the limits only; the counters are derived.
func (s *Store) SaveGroupQuota(_ context.Context, quota *storage.GroupQuota) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(quota.Group.Name, quota.Printer.Name)
	row, ok := s.groupQuotas[key]
	if !ok {
		return errors.Storage("memstore: save group quota", fmt.Errorf("unknown quota %q", key))
	}
	row.softLimit = toPtr(quota.SoftLimit)
	row.hardLimit = toPtr(quota.HardLimit)
	row.dateLimit = toPtr(quota.DateLimit)
	row.maxJobSize = toPtr(quota.MaxJobSize)
	return nil
}

// --- Deletion ---

func (s *Store) DeleteUser(_ context.Context, user *storage.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, user.Name)
	for key, row := range s.userQuotas {
		if row.userName == user.Name {
			delete(s.userQuotas, key)
		}
	}
	for _, members := range s.groupMembers {
		delete(members, user.Name)
	}
	kept := s.payments[:0]
	for _, p := range s.payments {
		if p.userName != user.Name {
			kept = append(kept, p)
		}
	}
	s.payments = kept
	return nil
}

func (s *Store) DeleteGroup(_ context.Context, group *storage.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, group.Name)
	delete(s.groupMembers, group.Name)
	for key, row := range s.groupQuotas {
		if row.groupName == group.Name {
			delete(s.groupQuotas, key)
		}
	}
	return nil
}

func (s *Store) DeletePrinter(_ context.Context, printer *storage.Printer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.printers, printer.Name)
	delete(s.printerParents, printer.Name)
	for _, parents := range s.printerParents {
		delete(parents, printer.Name)
	}
	for key, row := range s.userQuotas {
		if row.printerName == printer.Name {
			delete(s.userQuotas, key)
		}
	}
	for key, row := range s.groupQuotas {
		if row.printerName == printer.Name {
			delete(s.groupQuotas, key)
		}
	}
	return nil
}

func (s *Store) DeleteBillingCode(_ context.Context, code *storage.BillingCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.billingCodes, code.Name)
	return nil
}

func (s *Store) DeleteUserQuota(_ context.Context, quota *storage.UserQuota) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.userQuotas, pairKey(quota.User.Name, quota.Printer.Name))
	return nil
}

func (s *Store) DeleteGroupQuota(_ context.Context, quota *storage.GroupQuota) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groupQuotas, pairKey(quota.Group.Name, quota.Printer.Name))
	return nil
}

// --- Membership ---

func (s *Store) AddUserToGroup(_ context.Context, user *storage.User, group *storage.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.groupMembers[group.Name] == nil {
		s.groupMembers[group.Name] = map[string]bool{}
	}
	s.groupMembers[group.Name][user.Name] = true
	return nil
}

func (s *Store) RemoveUserFromGroup(_ context.Context, user *storage.User, group *storage.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groupMembers[group.Name], user.Name)
	return nil
}

func (s *Store) AddPrinterToGroup(_ context.Context, printer, parent *storage.Printer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.printerParents[printer.Name] == nil {
		s.printerParents[printer.Name] = map[string]bool{}
	}
	s.printerParents[printer.Name][parent.Name] = true
	return nil
}

func (s *Store) RemovePrinterFromGroup(_ context.Context, printer, parent *storage.Printer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.printerParents[printer.Name], parent.Name)
	return nil
}

// --- Counter primitives ---

func (s *Store) IncrementUserQuotaPages(_ context.Context, quota *storage.UserQuota, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(quota.User.Name, quota.Printer.Name)
	row, ok := s.userQuotas[key]
	if !ok {
		return errors.Storage("memstore: increment pages", fmt.Errorf("unknown quota %q", key))
	}
	row.pageCounter += delta
	row.lifePageCounter += delta
	return nil
}

func (s *Store) WriteUserQuotaDateLimit(_ context.Context, quota *storage.UserQuota, deadline time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(quota.User.Name, quota.Printer.Name)
	row, ok := s.userQuotas[key]
	if !ok {
		return errors.Storage("memstore: write date limit", fmt.Errorf("unknown quota %q", key))
	}
	row.dateLimit = &deadline
	return nil
}

func (s *Store) WriteGroupQuotaDateLimit(_ context.Context, quota *storage.GroupQuota, deadline time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(quota.Group.Name, quota.Printer.Name)
	row, ok := s.groupQuotas[key]
	if !ok {
		return errors.Storage("memstore: write date limit", fmt.Errorf("unknown quota %q", key))
	}
	row.dateLimit = &deadline
	return nil
}

func (s *Store) SetUserQuotaWarnCount(_ context.Context, quota *storage.UserQuota, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(quota.User.Name, quota.Printer.Name)
	row, ok := s.userQuotas[key]
	if !ok {
		return errors.Storage("memstore: set warn count", fmt.Errorf("unknown quota %q", key))
	}
	row.warnCount = count
	return nil
}

func (s *Store) IncrementUserQuotaWarnCount(_ context.Context, quota *storage.UserQuota) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(quota.User.Name, quota.Printer.Name)
	row, ok := s.userQuotas[key]
	if !ok {
		return errors.Storage("memstore: increment warn count", fmt.Errorf("unknown quota %q", key))
	}
	row.warnCount++
	return nil
}

// DecrementUserBalance treats an unknown balance as zero so the debit is
// never silently lost.
func (s *Store) DecrementUserBalance(_ context.Context, user *storage.User, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.users[user.Name]
	if !ok {
		return errors.Storage("memstore: decrement balance", fmt.Errorf("unknown user %q", user.Name))
	}
	current := 0.0
	if row.balance != nil {
		current = *row.balance
	}
	updated := current - amount
	row.balance = &updated
	return nil
}

func (s *Store) AppendPayment(_ context.Context, user *storage.User, amount float64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments = append(s.payments, paymentRow{
		userName: user.Name,
		payment:  storage.Payment{Date: time.Now(), Amount: amount, Reason: reason},
	})
	return nil
}

func (s *Store) ConsumeBillingCode(_ context.Context, code *storage.BillingCode, pages int, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.billingCodes[code.Name]
	if !ok {
		return errors.Storage("memstore: consume billing code", fmt.Errorf("unknown billing code %q", code.Name))
	}
	row.pageCounter += pages
	row.balance -= price
	return nil
}

// --- Job history ---

func (s *Store) AppendJob(_ context.Context, job *storage.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Ident = s.ident()
	job.Exists = true
	s.jobs = append(s.jobs, &jobRow{ident: job.Ident, job: *job})
	return nil
}

func (s *Store) SetJobSize(_ context.Context, jobIdent int64, pages int, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.jobs {
		if row.ident == jobIdent {
			row.job.JobSize = storage.Some(pages)
			row.job.JobPrice = storage.Some(price)
			return nil
		}
	}
	return errors.Storage("memstore: set job size", fmt.Errorf("unknown job %d", jobIdent))
}

func (s *Store) MarkJobRefunded(_ context.Context, jobIdent int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.jobs {
		if row.ident == jobIdent {
			row.job.Action = storage.ActionRefund
			return nil
		}
	}
	return errors.Storage("memstore: mark refunded", fmt.Errorf("unknown job %d", jobIdent))
}

// Payments returns a copy of a user's ledger, oldest first. Used by the
// reporting tools and tests.
func (s *Store) Payments(userName string) []storage.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Payment
	for _, p := range s.payments {
		if p.userName == userName {
			out = append(out, p.payment)
		}
	}
	return out
}

// JobCount returns the number of history entries. Used by tests.
func (s *Store) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
