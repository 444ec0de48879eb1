package models

// VipRow is one entitlement row of a player on a tenant entitlement store.
//
// Exactly one representation of remaining time is live at any point: a row
// with a non-empty Date is the single active entitlement and counts down by
// wall clock; a row with an empty Date is queued and banks whole days in
// Days until promotion. Table and column names follow the legacy game-server
// schema, which the running game servers read directly.
type VipRow struct {
	ID        uint   `gorm:"primaryKey;column:id" json:"id"`
	Tag       string `gorm:"column:Tag;type:varchar(64);not null;index" json:"tag"`
	VIP       int    `gorm:"column:VIP;not null" json:"vip"`
	Date      string `gorm:"column:Date;type:varchar(10);not null;default:''" json:"date"`
	Days      int    `gorm:"column:Days;not null;default:0" json:"days"`
	Info      string `gorm:"column:Info;type:varchar(32);not null;default:''" json:"info"`
	PaymentID string `gorm:"column:Payment_ID;type:varchar(32);not null;default:''" json:"payment_id"`
}

func (VipRow) TableName() string {
	return "vips"
}

// Active reports whether this row holds the dated (active) slot.
func (r VipRow) Active() bool {
	return r.Date != ""
}
