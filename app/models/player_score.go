package models

// PlayerScore is the per-player level/score row maintained by the game
// servers themselves. The ledger only reads it: for IP-based player lookup
// during checkout and for the monthly top rewards snapshot.
type PlayerScore struct {
	ID          uint   `gorm:"primaryKey;column:id" json:"id"`
	Tag         string `gorm:"column:Tag;type:varchar(64);not null" json:"tag"`
	Team        string `gorm:"column:Team;type:varchar(32);not null;default:''" json:"team"`
	IP          string `gorm:"column:IP;type:varchar(45);not null;index" json:"ip"`
	Level       int    `gorm:"column:Nivel;not null;default:0" json:"level"`
	KnifePoints int    `gorm:"column:KnifePoints;not null;default:0" json:"knife_points"`
}

func (PlayerScore) TableName() string {
	return "publvl"
}

// TopHistory archives one month's top-50 snapshot per store, written once by
// the monthly rewards distribution. The Month column is the dedupe guard.
type TopHistory struct {
	ID          uint   `gorm:"primaryKey;column:id" json:"id"`
	Tag         string `gorm:"column:Tag;type:varchar(64);not null" json:"tag"`
	Team        string `gorm:"column:Team;type:varchar(32);not null;default:''" json:"team"`
	KnifePoints int    `gorm:"column:KnifePoints;not null;default:0" json:"knife_points"`
	TopID       int    `gorm:"column:Topid;not null;default:0" json:"top_id"`
	Month       int    `gorm:"column:Month;not null;index" json:"month"`
}

func (TopHistory) TableName() string {
	return "top_history"
}
