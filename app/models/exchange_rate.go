package models

// ExchangeRate mirrors the current exchange-rate value into each tenant store
// for external consumers (the game servers display local-currency prices).
// The table holds a single row that is overwritten on every refresh.
type ExchangeRate struct {
	ID    uint    `gorm:"primaryKey;column:id" json:"id"`
	Value float64 `gorm:"column:value;not null" json:"value"`
}

func (ExchangeRate) TableName() string {
	return "dolarblue"
}
