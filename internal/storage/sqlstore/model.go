package sqlstore

import "time"

// Row types map one to one onto the quota database schema. Nullable columns
// are pointers and are converted to Options at the adapter boundary.

type userRow struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	UserName     string `gorm:"column:username;uniqueIndex;not null"`
	Description  string
	LimitBy      string `gorm:"column:limitby"`
	Balance      *float64
	LifeTimePaid *float64 `gorm:"column:lifetimepaid"`
	Email        string
	OverCharge   float64 `gorm:"column:overcharge;default:1"`
}

func (userRow) TableName() string { return "users" }

type groupRow struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	GroupName   string `gorm:"column:groupname;uniqueIndex;not null"`
	Description string
	LimitBy     string `gorm:"column:limitby"`
}

func (groupRow) TableName() string { return "groups" }

type groupMemberRow struct {
	GroupID int64 `gorm:"column:groupid;primaryKey"`
	UserID  int64 `gorm:"column:userid;primaryKey"`
}

func (groupMemberRow) TableName() string { return "groupsmembers" }

type printerRow struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	PrinterName  string `gorm:"column:printername;uniqueIndex;not null"`
	Description  string
	PricePerPage float64 `gorm:"column:priceperpage"`
	PricePerJob  float64 `gorm:"column:priceperjob"`
	MaxJobSize   *int    `gorm:"column:maxjobsize"`
	PassThrough  bool    `gorm:"column:passthrough"`
}

func (printerRow) TableName() string { return "printers" }

// printerGroupMemberRow links a printer into a printer group. GroupID is the
// parent printer's id.
type printerGroupMemberRow struct {
	GroupID   int64 `gorm:"column:groupid;primaryKey"`
	PrinterID int64 `gorm:"column:printerid;primaryKey"`
}

func (printerGroupMemberRow) TableName() string { return "printergroupsmembers" }

type userQuotaRow struct {
	ID              int64      `gorm:"primaryKey;autoIncrement"`
	UserID          int64      `gorm:"column:userid;index:idx_userpquota_pair,unique"`
	PrinterID       int64      `gorm:"column:printerid;index:idx_userpquota_pair,unique"`
	PageCounter     int        `gorm:"column:pagecounter"`
	LifePageCounter int        `gorm:"column:lifepagecounter"`
	SoftLimit       *int       `gorm:"column:softlimit"`
	HardLimit       *int       `gorm:"column:hardlimit"`
	DateLimit       *time.Time `gorm:"column:datelimit"`
	WarnCount       int        `gorm:"column:warncount"`
	MaxJobSize      *int       `gorm:"column:maxjobsize"`
}

func (userQuotaRow) TableName() string { return "userpquota" }

// groupQuotaRow holds limits only; the page counters are computed as sums
// over the members' quota rows.
type groupQuotaRow struct {
	ID         int64      `gorm:"primaryKey;autoIncrement"`
	GroupID    int64      `gorm:"column:groupid;index:idx_grouppquota_pair,unique"`
	PrinterID  int64      `gorm:"column:printerid;index:idx_grouppquota_pair,unique"`
	SoftLimit  *int       `gorm:"column:softlimit"`
	HardLimit  *int       `gorm:"column:hardlimit"`
	DateLimit  *time.Time `gorm:"column:datelimit"`
	MaxJobSize *int       `gorm:"column:maxjobsize"`
}

func (groupQuotaRow) TableName() string { return "grouppquota" }

type jobRow struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement"`
	UserName           string    `gorm:"column:username;index"`
	PrinterName        string    `gorm:"column:printername;index"`
	JobID              string    `gorm:"column:jobid"`
	PrinterPageCounter int       `gorm:"column:printerpagecounter"`
	Action             string
	JobDate            time.Time `gorm:"column:jobdate"`
	JobSize            *int      `gorm:"column:jobsize"`
	JobPrice           *float64  `gorm:"column:jobprice"`
	FileName           string    `gorm:"column:filename"`
	Title              string
	Copies             int
	Options            string
	HostName           string    `gorm:"column:hostname"`
	JobSizeBytes       int64     `gorm:"column:jobsizebytes"`
	MD5Sum             string    `gorm:"column:md5sum"`
	BillingCode        string    `gorm:"column:billingcode;index"`
	PrecomputedSize    *int      `gorm:"column:precomputedjobsize"`
	PrecomputedPrice   *float64  `gorm:"column:precomputedjobprice"`
}

func (jobRow) TableName() string { return "jobhistory" }

type paymentRow struct {
	ID          int64 `gorm:"primaryKey;autoIncrement"`
	UserID      int64 `gorm:"column:userid;index"`
	Date        time.Time
	Amount      float64
	Description string
}

func (paymentRow) TableName() string { return "payments" }

type billingCodeRow struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	BillingCode string `gorm:"column:billingcode;uniqueIndex;not null"`
	Description string
	PageCounter int     `gorm:"column:pagecounter"`
	Balance     float64 `gorm:"column:balance"`
}

func (billingCodeRow) TableName() string { return "billingcodes" }

func allRows() []any {
	return []any{
		&userRow{},
		&groupRow{},
		&groupMemberRow{},
		&printerRow{},
		&printerGroupMemberRow{},
		&userQuotaRow{},
		&groupQuotaRow{},
		&jobRow{},
		&paymentRow{},
		&billingCodeRow{},
	}
}
