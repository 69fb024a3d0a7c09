package storage

import "time"

// LimitBy is the enforcement mode applied to a user or group.
type LimitBy string

const (
	// LimitQuota limits by page counters against soft/hard limits.
	LimitQuota LimitBy = "quota"
	// LimitBalance limits by account balance.
	LimitBalance LimitBy = "balance"
	// LimitNoQuota disables limits; accounting still happens.
	LimitNoQuota LimitBy = "noquota"
	// LimitNoPrint forbids printing entirely. Users only.
	LimitNoPrint LimitBy = "noprint"
	// LimitNoChange allows printing without any balance change. Users only.
	LimitNoChange LimitBy = "nochange"
)

func validUserLimitBy(lb LimitBy) bool {
	switch lb {
	case LimitQuota, LimitBalance, LimitNoQuota, LimitNoPrint, LimitNoChange:
		return true
	}
	return false
}

func validGroupLimitBy(lb LimitBy) bool {
	switch lb {
	case LimitQuota, LimitBalance, LimitNoQuota:
		return true
	}
	return false
}

// Object carries the state common to every stored entity. Ident is the
// backend-assigned identifier; Exists distinguishes a fetched record from an
// empty placeholder returned on a fetch miss.
type Object struct {
	Ident       int64
	Description string
	Exists      bool

	dirty bool
}

// Dirty reports whether the entity has unsaved modifications.
func (o *Object) Dirty() bool { return o.dirty }

// MarkDirty flags the entity as needing a save.
func (o *Object) MarkDirty() { o.dirty = true }

// MarkClean clears the dirty flag after a successful save.
func (o *Object) MarkClean() { o.dirty = false }

// SetDescription updates the entity's description.
func (o *Object) SetDescription(description string) {
	o.Description = description
	o.dirty = true
}

// Payment is one ledger entry in a user's payment history.
type Payment struct {
	Date   time.Time
	Amount float64
	Reason string
}

// User is a printing user.
type User struct {
	Object
	Name           string
	LimitBy        LimitBy
	AccountBalance Option[float64] // empty = unknown
	LifeTimePaid   Option[float64]
	Email          string
	OverCharge     float64 // multiplicative price factor; 0 means never charged

	// PaymentsBacklog holds ledger entries recorded in memory but not yet
	// written to the backend. Save flushes it.
	PaymentsBacklog []Payment

	groups        []*Group
	groupsFetched bool
}

// NewUser returns an empty, non-existing user placeholder.
func NewUser(name string) *User {
	return &User{Name: name, OverCharge: 1.0}
}

// SetLimitBy sets the user's limiting mode. Unknown values are ignored,
// matching the lenient behavior of the administration tools.
func (u *User) SetLimitBy(lb LimitBy) bool {
	if !validUserLimitBy(lb) {
		return false
	}
	u.LimitBy = lb
	u.dirty = true
	return true
}

// SetOverCharge sets the user's overcharging factor.
func (u *User) SetOverCharge(factor float64) {
	u.OverCharge = factor
	u.dirty = true
}

// SetEmail sets the user's email address.
func (u *User) SetEmail(email string) {
	u.Email = email
	u.dirty = true
}

// SetAccountBalance records a payment: the new balance and lifetime-paid
// total. The paid difference is queued on the payments backlog and written
// to the ledger on the next save.
func (u *User) SetAccountBalance(balance, lifeTimePaid float64, comment string) {
	diff := lifeTimePaid - u.LifeTimePaid.OrElse(0)
	u.AccountBalance = Some(balance)
	u.LifeTimePaid = Some(lifeTimePaid)
	if diff != 0 {
		u.PaymentsBacklog = append(u.PaymentsBacklog, Payment{Amount: diff, Reason: comment})
	}
	u.dirty = true
}

// InvalidateGroups drops the lazily cached group membership so the next
// lookup re-queries the backend.
func (u *User) InvalidateGroups() {
	u.groups = nil
	u.groupsFetched = false
}

// Group is a set of users sharing quota limits. AccountBalance and
// LifeTimePaid are derived sums over existing members, recomputed on every
// fetch and never persisted.
type Group struct {
	Object
	Name           string
	LimitBy        LimitBy
	AccountBalance Option[float64]
	LifeTimePaid   Option[float64]

	members        []*User
	membersFetched bool
}

// NewGroup returns an empty, non-existing group placeholder.
func NewGroup(name string) *Group {
	return &Group{Name: name}
}

// SetLimitBy sets the group's limiting mode.
func (g *Group) SetLimitBy(lb LimitBy) bool {
	if !validGroupLimitBy(lb) {
		return false
	}
	g.LimitBy = lb
	g.dirty = true
	return true
}

// InvalidateMembers drops the lazily cached member list.
func (g *Group) InvalidateMembers() {
	g.members = nil
	g.membersFetched = false
}

// Printer is a printer or printer group.
type Printer struct {
	Object
	Name         string
	PricePerPage float64
	PricePerJob  float64
	MaxJobSize   Option[int]
	PassThrough  bool // bypass accounting entirely

	// Coefficients maps ink channel names to cost multipliers. Fetched
	// lazily from configuration on first use.
	coefficients        map[string]float64
	coefficientsFetched bool

	parents        []*Printer
	parentsFetched bool
}

// NewPrinter returns an empty, non-existing printer placeholder.
func NewPrinter(name string) *Printer {
	return &Printer{Name: name}
}

// SetPrices sets the per-page and per-job prices.
func (p *Printer) SetPrices(perPage, perJob float64) {
	p.PricePerPage = perPage
	p.PricePerJob = perJob
	p.dirty = true
}

// SetPassThrough sets the printer's pass-through mode.
func (p *Printer) SetPassThrough(passThrough bool) {
	p.PassThrough = passThrough
	p.dirty = true
}

// SetMaxJobSize sets the printer's maximal job size in pages.
func (p *Printer) SetMaxJobSize(pages Option[int]) {
	p.MaxJobSize = pages
	p.dirty = true
}

// Coefficients returns the cached ink coefficient table and whether it has
// been resolved yet.
func (p *Printer) Coefficients() (map[string]float64, bool) {
	return p.coefficients, p.coefficientsFetched
}

// SetCoefficients caches the resolved ink coefficient table.
func (p *Printer) SetCoefficients(c map[string]float64) {
	p.coefficients = c
	p.coefficientsFetched = true
}

// InvalidateParents drops the lazily cached parent printer list.
func (p *Printer) InvalidateParents() {
	p.parents = nil
	p.parentsFetched = false
}

// UserQuota is the per-(user, printer) quota record.
type UserQuota struct {
	Object
	User    *User
	Printer *Printer

	PageCounter     int // resettable counter
	LifePageCounter int // survives soft resets
	SoftLimit       Option[int]
	HardLimit       Option[int]
	DateLimit       Option[time.Time] // grace period deadline
	WarnCount       int               // deny banners already issued
	MaxJobSize      Option[int]

	parentQuotas   []*UserQuota
	parentsFetched bool
}

// NewUserQuota returns an empty, non-existing quota placeholder for the pair.
func NewUserQuota(user *User, printer *Printer) *UserQuota {
	return &UserQuota{User: user, Printer: printer}
}

// SetLimits sets the soft and hard page limits and restarts any grace period.
func (q *UserQuota) SetLimits(soft, hard Option[int]) {
	q.SoftLimit = soft
	q.HardLimit = hard
	q.DateLimit = None[time.Time]()
	q.WarnCount = 0
	q.dirty = true
}

// SetUsage sets both counters to the given value and clears the grace period.
func (q *UserQuota) SetUsage(pages int) {
	q.PageCounter = pages
	q.LifePageCounter = pages
	q.DateLimit = None[time.Time]()
	q.WarnCount = 0
	q.dirty = true
}

// AdjustUsage shifts both counters by delta and clears the grace period.
func (q *UserQuota) AdjustUsage(delta int) {
	q.PageCounter += delta
	q.LifePageCounter += delta
	q.DateLimit = None[time.Time]()
	q.WarnCount = 0
	q.dirty = true
}

// Reset zeroes the page counter, leaving the lifetime counter untouched.
func (q *UserQuota) Reset() {
	q.PageCounter = 0
	q.DateLimit = None[time.Time]()
	q.dirty = true
}

// HardReset zeroes both counters.
func (q *UserQuota) HardReset() {
	q.PageCounter = 0
	q.LifePageCounter = 0
	q.DateLimit = None[time.Time]()
	q.dirty = true
}

// InvalidateParentQuotas drops the lazily cached ancestor quota list.
func (q *UserQuota) InvalidateParentQuotas() {
	q.parentQuotas = nil
	q.parentsFetched = false
}

// GroupQuota is the per-(group, printer) quota record. PageCounter and
// LifePageCounter are derived sums over the member users' quotas on the same
// printer, recomputed on every fetch.
type GroupQuota struct {
	Object
	Group   *Group
	Printer *Printer

	PageCounter     int
	LifePageCounter int
	SoftLimit       Option[int]
	HardLimit       Option[int]
	DateLimit       Option[time.Time]
	MaxJobSize      Option[int]

	parentQuotas   []*GroupQuota
	parentsFetched bool
}

// NewGroupQuota returns an empty, non-existing quota placeholder for the pair.
func NewGroupQuota(group *Group, printer *Printer) *GroupQuota {
	return &GroupQuota{Group: group, Printer: printer}
}

// SetLimits sets the soft and hard page limits and restarts any grace period.
func (q *GroupQuota) SetLimits(soft, hard Option[int]) {
	q.SoftLimit = soft
	q.HardLimit = hard
	q.DateLimit = None[time.Time]()
	q.dirty = true
}

// InvalidateParentQuotas drops the lazily cached ancestor quota list.
func (q *GroupQuota) InvalidateParentQuotas() {
	q.parentQuotas = nil
	q.parentsFetched = false
}

// BillingCode is an independent cost center debited alongside or instead of
// a user's balance.
type BillingCode struct {
	Object
	Name        string
	PageCounter int
	Balance     float64
}

// NewBillingCode returns an empty, non-existing billing code placeholder.
func NewBillingCode(name string) *BillingCode {
	return &BillingCode{Name: name}
}

// ResetCounters sets the balance and page counter to the given values.
func (b *BillingCode) ResetCounters(balance float64, pages int) {
	b.Balance = balance
	b.PageCounter = pages
	b.dirty = true
}
