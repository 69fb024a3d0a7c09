// Package sqlstore is the SQL storage backend, built on GORM. It speaks
// PostgreSQL in production and SQLite for tests and single-host setups.
// Every backend call goes through a circuit breaker with a short bounded
// retry; statements inside an open transaction are never retried.
package sqlstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"gorm.io/gorm"

	"github.com/printquota/server/internal/shared/errors"
	"github.com/printquota/server/internal/shared/metrics"
	"github.com/printquota/server/internal/storage"
)

const (
	maxAttempts  = 3
	retryBackoff = 50 * time.Millisecond
)

// Store is the SQL backend.
type Store struct {
	db      *gorm.DB
	breaker *gobreaker.CircuitBreaker[any]
	metrics *metrics.Metrics

	mu sync.Mutex
	tx *gorm.DB
}

// SetMetrics attaches a metrics registry. Safe to leave unset.
func (s *Store) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Storage("sqlstore: close", err)
	}
	return errors.Storage("sqlstore: close", sqlDB.Close())
}

// Atomic reports true: Begin/Commit/Rollback map onto real transactions.
func (s *Store) Atomic() bool { return true }

// Begin opens a transaction. Subsequent calls run on it until Commit or
// Rollback.
func (s *Store) Begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return errors.Storage("sqlstore: begin", fmt.Errorf("transaction already open"))
	}
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return errors.Storage("sqlstore: begin", tx.Error)
	}
	s.tx = tx
	return nil
}

// Commit commits the open transaction.
func (s *Store) Commit(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return errors.Storage("sqlstore: commit", fmt.Errorf("no open transaction"))
	}
	err := s.tx.Commit().Error
	s.tx = nil
	return errors.Storage("sqlstore: commit", err)
}

// Rollback aborts the open transaction.
func (s *Store) Rollback(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return errors.Storage("sqlstore: rollback", fmt.Errorf("no open transaction"))
	}
	err := s.tx.Rollback().Error
	s.tx = nil
	return errors.Storage("sqlstore: rollback", err)
}

func (s *Store) session(ctx context.Context) (*gorm.DB, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return s.tx, true
	}
	return s.db.WithContext(ctx), false
}

// run executes fn through the circuit breaker with a bounded retry. Inside
// a transaction it executes exactly once: a mid-transaction retry would
// replay statements the database has already seen.
func (s *Store) run(ctx context.Context, op string, fn func(db *gorm.DB) error) error {
	db, inTx := s.session(ctx)
	if inTx {
		return errors.Storage(op, fn(db))
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		_, err := s.breaker.Execute(func() (any, error) {
			return nil, fn(db)
		})
		if err == nil {
			return nil
		}
		lastErr = err
		s.metrics.RecordBackendError(op)
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			break
		}
		if attempt == maxAttempts {
			break
		}
		s.metrics.RecordBackendRetry()
		select {
		case <-ctx.Done():
			return errors.Storage(op, ctx.Err())
		case <-time.After(retryBackoff * time.Duration(attempt)):
		}
	}
	return errors.Storage(op, lastErr)
}

// cascade runs fn in a dedicated transaction unless one is already open.
func (s *Store) cascade(ctx context.Context, op string, fn func(db *gorm.DB) error) error {
	if _, inTx := s.session(ctx); inTx {
		return s.run(ctx, op, fn)
	}
	return s.run(ctx, op, func(db *gorm.DB) error {
		return db.Transaction(fn)
	})
}

// --- Fetches ---

func (s *Store) FetchUser(ctx context.Context, name string) (*storage.User, error) {
	user := storage.NewUser(name)
	err := s.run(ctx, "sqlstore: fetch user", func(db *gorm.DB) error {
		var row userRow
		res := db.Where("username = ?", name).Limit(1).Find(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		fillUser(user, &row)
		return nil
	})
	return user, err
}

func fillUser(user *storage.User, row *userRow) {
	user.Ident = row.ID
	user.Description = row.Description
	user.Exists = true
	user.LimitBy = storage.LimitBy(row.LimitBy)
	user.AccountBalance = storage.FromPtr(row.Balance)
	user.LifeTimePaid = storage.FromPtr(row.LifeTimePaid)
	user.Email = row.Email
	user.OverCharge = row.OverCharge
}

func (s *Store) FetchGroup(ctx context.Context, name string) (*storage.Group, error) {
	group := storage.NewGroup(name)
	err := s.run(ctx, "sqlstore: fetch group", func(db *gorm.DB) error {
		var row groupRow
		res := db.Where("groupname = ?", name).Limit(1).Find(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		group.Ident = row.ID
		group.Description = row.Description
		group.Exists = true
		group.LimitBy = storage.LimitBy(row.LimitBy)

		// Balances are sums over the members, recomputed on every fetch.
		var agg struct {
			Balance *float64
			Paid    *float64
		}
		err := db.Model(&userRow{}).
			Select("SUM(users.balance) AS balance, SUM(users.lifetimepaid) AS paid").
			Joins("JOIN groupsmembers ON groupsmembers.userid = users.id").
			Where("groupsmembers.groupid = ?", row.ID).
			Scan(&agg).Error
		if err != nil {
			return err
		}
		group.AccountBalance = storage.FromPtr(agg.Balance)
		group.LifeTimePaid = storage.FromPtr(agg.Paid)
		return nil
	})
	return group, err
}

func (s *Store) FetchPrinter(ctx context.Context, name string) (*storage.Printer, error) {
	printer := storage.NewPrinter(name)
	err := s.run(ctx, "sqlstore: fetch printer", func(db *gorm.DB) error {
		var row printerRow
		res := db.Where("printername = ?", name).Limit(1).Find(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		printer.Ident = row.ID
		printer.Description = row.Description
		printer.Exists = true
		printer.PricePerPage = row.PricePerPage
		printer.PricePerJob = row.PricePerJob
		printer.MaxJobSize = storage.FromPtr(row.MaxJobSize)
		printer.PassThrough = row.PassThrough
		return nil
	})
	return printer, err
}

func (s *Store) FetchBillingCode(ctx context.Context, name string) (*storage.BillingCode, error) {
	code := storage.NewBillingCode(name)
	err := s.run(ctx, "sqlstore: fetch billing code", func(db *gorm.DB) error {
		var row billingCodeRow
		res := db.Where("billingcode = ?", name).Limit(1).Find(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		code.Ident = row.ID
		code.Description = row.Description
		code.Exists = true
		code.PageCounter = row.PageCounter
		code.Balance = row.Balance
		return nil
	})
	return code, err
}

func (s *Store) FetchUserQuota(ctx context.Context, user *storage.User, printer *storage.Printer) (*storage.UserQuota, error) {
	quota := storage.NewUserQuota(user, printer)
	if !user.Exists || !printer.Exists {
		return quota, nil
	}
	err := s.run(ctx, "sqlstore: fetch user quota", func(db *gorm.DB) error {
		var row userQuotaRow
		res := db.Where("userid = ? AND printerid = ?", user.Ident, printer.Ident).Limit(1).Find(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		quota.Ident = row.ID
		quota.Exists = true
		quota.PageCounter = row.PageCounter
		quota.LifePageCounter = row.LifePageCounter
		quota.SoftLimit = storage.FromPtr(row.SoftLimit)
		quota.HardLimit = storage.FromPtr(row.HardLimit)
		quota.DateLimit = storage.FromPtr(row.DateLimit)
		quota.WarnCount = row.WarnCount
		quota.MaxJobSize = storage.FromPtr(row.MaxJobSize)
		return nil
	})
	return quota, err
}

func (s *Store) FetchGroupQuota(ctx context.Context, group *storage.Group, printer *storage.Printer) (*storage.GroupQuota, error) {
	quota := storage.NewGroupQuota(group, printer)
	if !group.Exists || !printer.Exists {
		return quota, nil
	}
	err := s.run(ctx, "sqlstore: fetch group quota", func(db *gorm.DB) error {
		var row groupQuotaRow
		res := db.Where("groupid = ? AND printerid = ?", group.Ident, printer.Ident).Limit(1).Find(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		quota.Ident = row.ID
		quota.Exists = true
		quota.SoftLimit = storage.FromPtr(row.SoftLimit)
		quota.HardLimit = storage.FromPtr(row.HardLimit)
		quota.DateLimit = storage.FromPtr(row.DateLimit)
		quota.MaxJobSize = storage.FromPtr(row.MaxJobSize)

		// Counters are sums over the members' quotas on the same printer.
		var agg struct {
			Pages *int
			Life  *int
		}
		err := db.Model(&userQuotaRow{}).
			Select("SUM(userpquota.pagecounter) AS pages, SUM(userpquota.lifepagecounter) AS life").
			Joins("JOIN groupsmembers ON groupsmembers.userid = userpquota.userid").
			Where("groupsmembers.groupid = ? AND userpquota.printerid = ?", group.Ident, printer.Ident).
			Scan(&agg).Error
		if err != nil {
			return err
		}
		quota.PageCounter = storage.FromPtr(agg.Pages).OrElse(0)
		quota.LifePageCounter = storage.FromPtr(agg.Life).OrElse(0)
		return nil
	})
	return quota, err
}

func (s *Store) FetchLastJob(ctx context.Context, printer *storage.Printer) (*storage.LastJob, error) {
	last := storage.NewLastJob(printer)
	err := s.run(ctx, "sqlstore: fetch last job", func(db *gorm.DB) error {
		var row jobRow
		res := db.Where("printername = ?", printer.Name).Order("id DESC").Limit(1).Find(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		last.Job = jobFromRow(&row)
		return nil
	})
	return last, err
}

func (s *Store) FetchJob(ctx context.Context, ident int64) (*storage.Job, error) {
	job := &storage.Job{}
	err := s.run(ctx, "sqlstore: fetch job", func(db *gorm.DB) error {
		var row jobRow
		res := db.Where("id = ?", ident).Limit(1).Find(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		*job = jobFromRow(&row)
		return nil
	})
	return job, err
}

func jobFromRow(row *jobRow) storage.Job {
	job := storage.Job{
		UserName:           row.UserName,
		PrinterName:        row.PrinterName,
		JobID:              row.JobID,
		PrinterPageCounter: row.PrinterPageCounter,
		Action:             row.Action,
		Date:               row.JobDate,
		JobSize:            storage.FromPtr(row.JobSize),
		JobPrice:           storage.FromPtr(row.JobPrice),
		FileName:           row.FileName,
		Title:              row.Title,
		Copies:             row.Copies,
		Options:            row.Options,
		HostName:           row.HostName,
		SizeBytes:          row.JobSizeBytes,
		MD5Sum:             row.MD5Sum,
		BillingCode:        row.BillingCode,
		PrecomputedSize:    storage.FromPtr(row.PrecomputedSize),
		PrecomputedPrice:   storage.FromPtr(row.PrecomputedPrice),
	}
	job.Ident = row.ID
	job.Exists = true
	return job
}

// --- Relationships ---

func (s *Store) GroupMembers(ctx context.Context, group *storage.Group) ([]*storage.User, error) {
	var members []*storage.User
	err := s.run(ctx, "sqlstore: group members", func(db *gorm.DB) error {
		var rows []userRow
		err := db.Model(&userRow{}).
			Joins("JOIN groupsmembers ON groupsmembers.userid = users.id").
			Where("groupsmembers.groupid = ?", group.Ident).
			Order("users.username").
			Find(&rows).Error
		if err != nil {
			return err
		}
		members = make([]*storage.User, 0, len(rows))
		for i := range rows {
			user := storage.NewUser(rows[i].UserName)
			fillUser(user, &rows[i])
			members = append(members, user)
		}
		return nil
	})
	return members, err
}

func (s *Store) UserGroups(ctx context.Context, user *storage.User) ([]*storage.Group, error) {
	var groups []*storage.Group
	err := s.run(ctx, "sqlstore: user groups", func(db *gorm.DB) error {
		var rows []groupRow
		err := db.Model(&groupRow{}).
			Joins("JOIN groupsmembers ON groupsmembers.groupid = groups.id").
			Where("groupsmembers.userid = ?", user.Ident).
			Order("groups.groupname").
			Find(&rows).Error
		if err != nil {
			return err
		}
		groups = make([]*storage.Group, 0, len(rows))
		for i := range rows {
			group := storage.NewGroup(rows[i].GroupName)
			group.Ident = rows[i].ID
			group.Description = rows[i].Description
			group.Exists = true
			group.LimitBy = storage.LimitBy(rows[i].LimitBy)
			groups = append(groups, group)
		}
		return nil
	})
	return groups, err
}

func (s *Store) ParentPrinters(ctx context.Context, printer *storage.Printer) ([]*storage.Printer, error) {
	var parents []*storage.Printer
	err := s.run(ctx, "sqlstore: parent printers", func(db *gorm.DB) error {
		var rows []printerRow
		err := db.Model(&printerRow{}).
			Joins("JOIN printergroupsmembers ON printergroupsmembers.groupid = printers.id").
			Where("printergroupsmembers.printerid = ?", printer.Ident).
			Order("printers.printername").
			Find(&rows).Error
		if err != nil {
			return err
		}
		parents = make([]*storage.Printer, 0, len(rows))
		for i := range rows {
			parent := storage.NewPrinter(rows[i].PrinterName)
			parent.Ident = rows[i].ID
			parent.Exists = true
			parents = append(parents, parent)
		}
		return nil
	})
	return parents, err
}

// --- Creation ---

func (s *Store) AddUser(ctx context.Context, user *storage.User) error {
	return s.run(ctx, "sqlstore: add user", func(db *gorm.DB) error {
		row := userRow{
			UserName:     user.Name,
			Description:  user.Description,
			LimitBy:      string(user.LimitBy),
			Balance:      storage.ToPtr(user.AccountBalance),
			LifeTimePaid: storage.ToPtr(user.LifeTimePaid),
			Email:        user.Email,
			OverCharge:   user.OverCharge,
		}
		if err := db.Create(&row).Error; err != nil {
			return err
		}
		user.Ident = row.ID
		user.Exists = true
		return nil
	})
}

func (s *Store) AddGroup(ctx context.Context, group *storage.Group) error {
	return s.run(ctx, "sqlstore: add group", func(db *gorm.DB) error {
		row := groupRow{GroupName: group.Name, Description: group.Description, LimitBy: string(group.LimitBy)}
		if err := db.Create(&row).Error; err != nil {
			return err
		}
		group.Ident = row.ID
		group.Exists = true
		return nil
	})
}

func (s *Store) AddPrinter(ctx context.Context, printer *storage.Printer) error {
	return s.run(ctx, "sqlstore: add printer", func(db *gorm.DB) error {
		row := printerRow{
			PrinterName:  printer.Name,
			Description:  printer.Description,
			PricePerPage: printer.PricePerPage,
			PricePerJob:  printer.PricePerJob,
			MaxJobSize:   storage.ToPtr(printer.MaxJobSize),
			PassThrough:  printer.PassThrough,
		}
		if err := db.Create(&row).Error; err != nil {
			return err
		}
		printer.Ident = row.ID
		printer.Exists = true
		return nil
	})
}

func (s *Store) AddBillingCode(ctx context.Context, code *storage.BillingCode) error {
	return s.run(ctx, "sqlstore: add billing code", func(db *gorm.DB) error {
		row := billingCodeRow{
			BillingCode: code.Name,
			Description: code.Description,
			PageCounter: code.PageCounter,
			Balance:     code.Balance,
		}
		if err := db.Create(&row).Error; err != nil {
			return err
		}
		code.Ident = row.ID
		code.Exists = true
		return nil
	})
}

func (s *Store) AddUserQuota(ctx context.Context, quota *storage.UserQuota) error {
	return s.run(ctx, "sqlstore: add user quota", func(db *gorm.DB) error {
		row := userQuotaRow{
			UserID:          quota.User.Ident,
			PrinterID:       quota.Printer.Ident,
			PageCounter:     quota.PageCounter,
			LifePageCounter: quota.LifePageCounter,
			SoftLimit:       storage.ToPtr(quota.SoftLimit),
			HardLimit:       storage.ToPtr(quota.HardLimit),
			DateLimit:       storage.ToPtr(quota.DateLimit),
			WarnCount:       quota.WarnCount,
			MaxJobSize:      storage.ToPtr(quota.MaxJobSize),
		}
		if err := db.Create(&row).Error; err != nil {
			return err
		}
		quota.Ident = row.ID
		quota.Exists = true
		return nil
	})
}

func (s *Store) AddGroupQuota(ctx context.Context, quota *storage.GroupQuota) error {
	return s.run(ctx, "sqlstore: add group quota", func(db *gorm.DB) error {
		row := groupQuotaRow{
			GroupID:    quota.Group.Ident,
			PrinterID:  quota.Printer.Ident,
			SoftLimit:  storage.ToPtr(quota.SoftLimit),
			HardLimit:  storage.ToPtr(quota.HardLimit),
			DateLimit:  storage.ToPtr(quota.DateLimit),
			MaxJobSize: storage.ToPtr(quota.MaxJobSize),
		}
		if err := db.Create(&row).Error; err != nil {
			return err
		}
		quota.Ident = row.ID
		quota.Exists = true
		return nil
	})
}

// --- Saves ---

func (s *Store) SaveUser(ctx context.Context, user *storage.User) error {
	return s.run(ctx, "sqlstore: save user", func(db *gorm.DB) error {
		return db.Model(&userRow{}).Where("id = ?", user.Ident).Updates(map[string]any{
			"description":  user.Description,
			"limitby":      string(user.LimitBy),
			"balance":      storage.ToPtr(user.AccountBalance),
			"lifetimepaid": storage.ToPtr(user.LifeTimePaid),
			"email":        user.Email,
			"overcharge":   user.OverCharge,
		}).Error
	})
}

func (s *Store) SaveGroup(ctx context.Context, group *storage.Group) error {
	return s.run(ctx, "sqlstore: save group", func(db *gorm.DB) error {
		return db.Model(&groupRow{}).Where("id = ?", group.Ident).Updates(map[string]any{
			"description": group.Description,
			"limitby":     string(group.LimitBy),
		}).Error
	})
}

func (s *Store) SavePrinter(ctx context.Context, printer *storage.Printer) error {
	return s.run(ctx, "sqlstore: save printer", func(db *gorm.DB) error {
		return db.Model(&printerRow{}).Where("id = ?", printer.Ident).Updates(map[string]any{
			"description":  printer.Description,
			"priceperpage": printer.PricePerPage,
			"priceperjob":  printer.PricePerJob,
			"maxjobsize":   storage.ToPtr(printer.MaxJobSize),
			"passthrough":  printer.PassThrough,
		}).Error
	})
}

func (s *Store) SaveBillingCode(ctx context.Context, code *storage.BillingCode) error {
	return s.run(ctx, "sqlstore: save billing code", func(db *gorm.DB) error {
		return db.Model(&billingCodeRow{}).Where("id = ?", code.Ident).Updates(map[string]any{
			"description": code.Description,
			"pagecounter": code.PageCounter,
			"balance":     code.Balance,
		}).Error
	})
}

func (s *Store) SaveUserQuota(ctx context.Context, quota *storage.UserQuota) error {
	return s.run(ctx, "sqlstore: save user quota", func(db *gorm.DB) error {
		return db.Model(&userQuotaRow{}).Where("id = ?", quota.Ident).Updates(map[string]any{
			"pagecounter":     quota.PageCounter,
			"lifepagecounter": quota.LifePageCounter,
			"softlimit":       storage.ToPtr(quota.SoftLimit),
			"hardlimit":       storage.ToPtr(quota.HardLimit),
			"datelimit":       storage.ToPtr(quota.DateLimit),
			"warncount":       quota.WarnCount,
			"maxjobsize":      storage.ToPtr(quota.MaxJobSize),
		}).Error
	})
}

// SaveGroupQuota writes the limits only; the counters are derived sums.
func (s *Store) SaveGroupQuota(ctx context.Context, quota *storage.GroupQuota) error {
	return s.run(ctx, "sqlstore: save group quota", func(db *gorm.DB) error {
		return db.Model(&groupQuotaRow{}).Where("id = ?", quota.Ident).Updates(map[string]any{
			"softlimit":  storage.ToPtr(quota.SoftLimit),
			"hardlimit":  storage.ToPtr(quota.HardLimit),
			"datelimit":  storage.ToPtr(quota.DateLimit),
			"maxjobsize": storage.ToPtr(quota.MaxJobSize),
		}).Error
	})
}

// --- Deletion ---

func (s *Store) DeleteUser(ctx context.Context, user *storage.User) error {
	return s.cascade(ctx, "sqlstore: delete user", func(db *gorm.DB) error {
		if err := db.Where("userid = ?", user.Ident).Delete(&userQuotaRow{}).Error; err != nil {
			return err
		}
		if err := db.Where("userid = ?", user.Ident).Delete(&groupMemberRow{}).Error; err != nil {
			return err
		}
		if err := db.Where("userid = ?", user.Ident).Delete(&paymentRow{}).Error; err != nil {
			return err
		}
		return db.Where("id = ?", user.Ident).Delete(&userRow{}).Error
	})
}

func (s *Store) DeleteGroup(ctx context.Context, group *storage.Group) error {
	return s.cascade(ctx, "sqlstore: delete group", func(db *gorm.DB) error {
		if err := db.Where("groupid = ?", group.Ident).Delete(&groupQuotaRow{}).Error; err != nil {
			return err
		}
		if err := db.Where("groupid = ?", group.Ident).Delete(&groupMemberRow{}).Error; err != nil {
			return err
		}
		return db.Where("id = ?", group.Ident).Delete(&groupRow{}).Error
	})
}

func (s *Store) DeletePrinter(ctx context.Context, printer *storage.Printer) error {
	return s.cascade(ctx, "sqlstore: delete printer", func(db *gorm.DB) error {
		if err := db.Where("printerid = ?", printer.Ident).Delete(&userQuotaRow{}).Error; err != nil {
			return err
		}
		if err := db.Where("printerid = ?", printer.Ident).Delete(&groupQuotaRow{}).Error; err != nil {
			return err
		}
		if err := db.Where("printerid = ? OR groupid = ?", printer.Ident, printer.Ident).Delete(&printerGroupMemberRow{}).Error; err != nil {
			return err
		}
		return db.Where("id = ?", printer.Ident).Delete(&printerRow{}).Error
	})
}

func (s *Store) DeleteBillingCode(ctx context.Context, code *storage.BillingCode) error {
	return s.run(ctx, "sqlstore: delete billing code", func(db *gorm.DB) error {
		return db.Where("id = ?", code.Ident).Delete(&billingCodeRow{}).Error
	})
}

func (s *Store) DeleteUserQuota(ctx context.Context, quota *storage.UserQuota) error {
	return s.run(ctx, "sqlstore: delete user quota", func(db *gorm.DB) error {
		return db.Where("id = ?", quota.Ident).Delete(&userQuotaRow{}).Error
	})
}

func (s *Store) DeleteGroupQuota(ctx context.Context, quota *storage.GroupQuota) error {
	return s.run(ctx, "sqlstore: delete group quota", func(db *gorm.DB) error {
		return db.Where("id = ?", quota.Ident).Delete(&groupQuotaRow{}).Error
	})
}

// --- Membership ---

func (s *Store) AddUserToGroup(ctx context.Context, user *storage.User, group *storage.Group) error {
	return s.run(ctx, "sqlstore: add user to group", func(db *gorm.DB) error {
		return db.Create(&groupMemberRow{GroupID: group.Ident, UserID: user.Ident}).Error
	})
}

func (s *Store) RemoveUserFromGroup(ctx context.Context, user *storage.User, group *storage.Group) error {
	return s.run(ctx, "sqlstore: remove user from group", func(db *gorm.DB) error {
		return db.Where("groupid = ? AND userid = ?", group.Ident, user.Ident).Delete(&groupMemberRow{}).Error
	})
}

func (s *Store) AddPrinterToGroup(ctx context.Context, printer, parent *storage.Printer) error {
	return s.run(ctx, "sqlstore: add printer to group", func(db *gorm.DB) error {
		return db.Create(&printerGroupMemberRow{GroupID: parent.Ident, PrinterID: printer.Ident}).Error
	})
}

func (s *Store) RemovePrinterFromGroup(ctx context.Context, printer, parent *storage.Printer) error {
	return s.run(ctx, "sqlstore: remove printer from group", func(db *gorm.DB) error {
		return db.Where("groupid = ? AND printerid = ?", parent.Ident, printer.Ident).Delete(&printerGroupMemberRow{}).Error
	})
}

// --- Counter primitives ---
//
// Counters move with relative SQL updates so concurrent accountings on the
// same record never lose increments.

func (s *Store) IncrementUserQuotaPages(ctx context.Context, quota *storage.UserQuota, delta int) error {
	return s.run(ctx, "sqlstore: increment pages", func(db *gorm.DB) error {
		return db.Model(&userQuotaRow{}).Where("id = ?", quota.Ident).Updates(map[string]any{
			"pagecounter":     gorm.Expr("pagecounter + ?", delta),
			"lifepagecounter": gorm.Expr("lifepagecounter + ?", delta),
		}).Error
	})
}

func (s *Store) WriteUserQuotaDateLimit(ctx context.Context, quota *storage.UserQuota, deadline time.Time) error {
	return s.run(ctx, "sqlstore: write date limit", func(db *gorm.DB) error {
		return db.Model(&userQuotaRow{}).Where("id = ?", quota.Ident).Update("datelimit", deadline).Error
	})
}

func (s *Store) WriteGroupQuotaDateLimit(ctx context.Context, quota *storage.GroupQuota, deadline time.Time) error {
	return s.run(ctx, "sqlstore: write date limit", func(db *gorm.DB) error {
		return db.Model(&groupQuotaRow{}).Where("id = ?", quota.Ident).Update("datelimit", deadline).Error
	})
}

func (s *Store) SetUserQuotaWarnCount(ctx context.Context, quota *storage.UserQuota, count int) error {
	return s.run(ctx, "sqlstore: set warn count", func(db *gorm.DB) error {
		return db.Model(&userQuotaRow{}).Where("id = ?", quota.Ident).Update("warncount", count).Error
	})
}

func (s *Store) IncrementUserQuotaWarnCount(ctx context.Context, quota *storage.UserQuota) error {
	return s.run(ctx, "sqlstore: increment warn count", func(db *gorm.DB) error {
		return db.Model(&userQuotaRow{}).Where("id = ?", quota.Ident).
			Update("warncount", gorm.Expr("warncount + 1")).Error
	})
}

func (s *Store) DecrementUserBalance(ctx context.Context, user *storage.User, amount float64) error {
	return s.run(ctx, "sqlstore: decrement balance", func(db *gorm.DB) error {
		return db.Model(&userRow{}).Where("id = ?", user.Ident).
			Update("balance", gorm.Expr("COALESCE(balance, 0) - ?", amount)).Error
	})
}

func (s *Store) AppendPayment(ctx context.Context, user *storage.User, amount float64, reason string) error {
	return s.run(ctx, "sqlstore: append payment", func(db *gorm.DB) error {
		return db.Create(&paymentRow{
			UserID:      user.Ident,
			Date:        time.Now(),
			Amount:      amount,
			Description: reason,
		}).Error
	})
}

func (s *Store) ConsumeBillingCode(ctx context.Context, code *storage.BillingCode, pages int, price float64) error {
	return s.run(ctx, "sqlstore: consume billing code", func(db *gorm.DB) error {
		return db.Model(&billingCodeRow{}).Where("id = ?", code.Ident).Updates(map[string]any{
			"pagecounter": gorm.Expr("pagecounter + ?", pages),
			"balance":     gorm.Expr("balance - ?", price),
		}).Error
	})
}

// --- Job history ---

func (s *Store) AppendJob(ctx context.Context, job *storage.Job) error {
	return s.run(ctx, "sqlstore: append job", func(db *gorm.DB) error {
		row := jobRow{
			UserName:           job.UserName,
			PrinterName:        job.PrinterName,
			JobID:              job.JobID,
			PrinterPageCounter: job.PrinterPageCounter,
			Action:             job.Action,
			JobDate:            job.Date,
			JobSize:            storage.ToPtr(job.JobSize),
			JobPrice:           storage.ToPtr(job.JobPrice),
			FileName:           job.FileName,
			Title:              job.Title,
			Copies:             job.Copies,
			Options:            job.Options,
			HostName:           job.HostName,
			JobSizeBytes:       job.SizeBytes,
			MD5Sum:             job.MD5Sum,
			BillingCode:        job.BillingCode,
			PrecomputedSize:    storage.ToPtr(job.PrecomputedSize),
			PrecomputedPrice:   storage.ToPtr(job.PrecomputedPrice),
		}
		if err := db.Create(&row).Error; err != nil {
			return err
		}
		job.Ident = row.ID
		job.Exists = true
		return nil
	})
}

func (s *Store) SetJobSize(ctx context.Context, jobIdent int64, pages int, price float64) error {
	return s.run(ctx, "sqlstore: set job size", func(db *gorm.DB) error {
		return db.Model(&jobRow{}).Where("id = ?", jobIdent).Updates(map[string]any{
			"jobsize":  pages,
			"jobprice": price,
		}).Error
	})
}

func (s *Store) MarkJobRefunded(ctx context.Context, jobIdent int64) error {
	return s.run(ctx, "sqlstore: mark refunded", func(db *gorm.DB) error {
		return db.Model(&jobRow{}).Where("id = ?", jobIdent).Update("action", storage.ActionRefund).Error
	})
}
