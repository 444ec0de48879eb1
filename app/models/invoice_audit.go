package models

// InvoiceAudit is a best-effort audit row written when a gateway preference is
// created, before any payment exists. It links the correlation token to the
// player so a webhook that never arrives can still be traced.
type InvoiceAudit struct {
	ID           uint   `gorm:"primaryKey;column:id" json:"id"`
	Date         string `gorm:"column:fecha;type:varchar(20);not null" json:"date"`
	Tag          string `gorm:"column:tag;type:varchar(64);not null" json:"tag"`
	Server       string `gorm:"column:server;type:varchar(64);not null;default:''" json:"server"`
	RandomID     string `gorm:"column:random_id;type:varchar(16);not null;index" json:"random_id"`
	DateInserted string `gorm:"column:date_inserted;type:varchar(20);not null" json:"date_inserted"`
}

func (InvoiceAudit) TableName() string {
	return "boletas"
}
