package models

// Payment is one immutable billing record on a tenant payment store. Rows are
// appended once per applied purchase or administrative credit and never
// mutated or deleted. PaymentID is unique per store; it is the idempotency
// boundary for gateway notifications.
type Payment struct {
	ID          uint    `gorm:"primaryKey;column:id" json:"id"`
	Date        string  `gorm:"column:Fecha;type:varchar(20);not null" json:"date"`
	PaymentID   string  `gorm:"column:Payment_ID;type:varchar(32);not null;uniqueIndex" json:"payment_id"`
	Email       string  `gorm:"column:Email;type:varchar(128);not null;default:''" json:"email"`
	Tag         string  `gorm:"column:Tag;type:varchar(64);not null;index" json:"tag"`
	Server      string  `gorm:"column:Server;type:varchar(128);not null;default:''" json:"server"`
	DueDate     string  `gorm:"column:Due_Date;type:varchar(10);not null;default:''" json:"due_date"`
	OldDueDate  string  `gorm:"column:Old_Due_Date;type:varchar(10);not null;default:''" json:"old_due_date"`
	OldVip      int     `gorm:"column:Old_Vip;not null;default:0" json:"old_vip"`
	TotalAmount float64 `gorm:"column:Total_Amount;not null;default:0" json:"total_amount"`
	NetAmount   float64 `gorm:"column:Net_Amount;not null;default:0" json:"net_amount"`
	Month       int     `gorm:"column:MonthN;not null;index" json:"month"`
	Year        int     `gorm:"column:Year;not null" json:"year"`
}

func (Payment) TableName() string {
	return "pagos"
}
