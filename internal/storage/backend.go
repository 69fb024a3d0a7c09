package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/printquota/server/internal/shared/errors"
)

// Backend is the contract every concrete store realizes. Fetches never
// return an error for a missing entity: they return a placeholder with
// Exists=false. Every failure is reported as a StorageError; adapters never
// panic on expected conditions.
//
// Transactions wrap the accounting mutator's read-modify-write sequences.
// Directory-style backends may implement them as no-ops and must report
// Atomic() == false so the degraded atomicity is visible to operators.
type Backend interface {
	Close() error

	// Atomic reports whether Begin/Commit/Rollback provide real atomicity.
	Atomic() bool
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// Fetches by key.
	FetchUser(ctx context.Context, name string) (*User, error)
	FetchGroup(ctx context.Context, name string) (*Group, error)
	FetchPrinter(ctx context.Context, name string) (*Printer, error)
	FetchBillingCode(ctx context.Context, name string) (*BillingCode, error)
	FetchUserQuota(ctx context.Context, user *User, printer *Printer) (*UserQuota, error)
	FetchGroupQuota(ctx context.Context, group *Group, printer *Printer) (*GroupQuota, error)
	FetchLastJob(ctx context.Context, printer *Printer) (*LastJob, error)
	FetchJob(ctx context.Context, ident int64) (*Job, error)

	// Relationship queries. ParentPrinters resolves one level only; the
	// recursive walk lives in the hierarchy resolver.
	GroupMembers(ctx context.Context, group *Group) ([]*User, error)
	UserGroups(ctx context.Context, user *User) ([]*Group, error)
	ParentPrinters(ctx context.Context, printer *Printer) ([]*Printer, error)

	// Creation. Adapters assign Ident and set Exists on success.
	AddUser(ctx context.Context, user *User) error
	AddGroup(ctx context.Context, group *Group) error
	AddPrinter(ctx context.Context, printer *Printer) error
	AddBillingCode(ctx context.Context, code *BillingCode) error
	AddUserQuota(ctx context.Context, quota *UserQuota) error
	AddGroupQuota(ctx context.Context, quota *GroupQuota) error

	// Full-record saves.
	SaveUser(ctx context.Context, user *User) error
	SaveGroup(ctx context.Context, group *Group) error
	SavePrinter(ctx context.Context, printer *Printer) error
	SaveBillingCode(ctx context.Context, code *BillingCode) error
	SaveUserQuota(ctx context.Context, quota *UserQuota) error
	SaveGroupQuota(ctx context.Context, quota *GroupQuota) error

	// Deletion. Deleting a user, group or printer also deletes the quota
	// records and membership links referencing it.
	DeleteUser(ctx context.Context, user *User) error
	DeleteGroup(ctx context.Context, group *Group) error
	DeletePrinter(ctx context.Context, printer *Printer) error
	DeleteBillingCode(ctx context.Context, code *BillingCode) error
	DeleteUserQuota(ctx context.Context, quota *UserQuota) error
	DeleteGroupQuota(ctx context.Context, quota *GroupQuota) error

	// Membership administration.
	AddUserToGroup(ctx context.Context, user *User, group *Group) error
	RemoveUserFromGroup(ctx context.Context, user *User, group *Group) error
	AddPrinterToGroup(ctx context.Context, printer, parent *Printer) error
	RemovePrinterFromGroup(ctx context.Context, printer, parent *Printer) error

	// Counter primitives, expressed as backend-native atomic increments
	// where the store supports them.
	IncrementUserQuotaPages(ctx context.Context, quota *UserQuota, delta int) error
	WriteUserQuotaDateLimit(ctx context.Context, quota *UserQuota, deadline time.Time) error
	WriteGroupQuotaDateLimit(ctx context.Context, quota *GroupQuota, deadline time.Time) error
	SetUserQuotaWarnCount(ctx context.Context, quota *UserQuota, count int) error
	IncrementUserQuotaWarnCount(ctx context.Context, quota *UserQuota) error
	DecrementUserBalance(ctx context.Context, user *User, amount float64) error
	AppendPayment(ctx context.Context, user *User, amount float64, reason string) error
	ConsumeBillingCode(ctx context.Context, code *BillingCode, pages int, price float64) error

	// Job history.
	AppendJob(ctx context.Context, job *Job) error
	SetJobSize(ctx context.Context, jobIdent int64, pages int, price float64) error
	MarkJobRefunded(ctx context.Context, jobIdent int64) error
}

// Constructor builds a Backend from a DSN. Registered once per store kind.
type Constructor func(dsn string) (Backend, error)

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]Constructor)
)

// RegisterBackend registers a backend constructor under a store identifier.
// Called from adapter package init functions.
func RegisterBackend(name string, fn Constructor) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if _, dup := backends[name]; dup {
		panic(fmt.Sprintf("storage: backend %q registered twice", name))
	}
	backends[name] = fn
}

// Open resolves a registered backend by name and opens it. Resolution
// happens once at startup, never per call.
func Open(name, dsn string) (Backend, error) {
	backendsMu.RLock()
	fn, ok := backends[name]
	backendsMu.RUnlock()
	if !ok {
		return nil, errors.Config("storage.backend", "unsupported backend %q (registered: %v)", name, registeredBackends())
	}
	return fn(dsn)
}

func registeredBackends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
