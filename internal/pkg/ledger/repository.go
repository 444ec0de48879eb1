package ledger

import (
	"errors"

	"gorm.io/gorm"

	"github.com/ManuelReschke/VipLedger/app/models"
)

// Repository provides the per-store DB operations used by the ledger. One
// Repository instance wraps one short-lived store connection; callers release
// the connection through the func returned by the opener, never through the
// Repository itself.
type Repository interface {
	RowsForPlayer(tag string) ([]models.VipRow, error)
	RowsForPlayerTier(tag string, tier int) ([]models.VipRow, error)
	HigherTierRows(tag string, tier int) ([]models.VipRow, error)
	ActiveRow(tag string) (*models.VipRow, error)
	HighestQueuedRow(tag string) (*models.VipRow, error)
	InsertRow(row *models.VipRow) error
	DemoteRow(id uint, days int) error
	PromoteRow(id uint, date string) error
	DeleteRow(id uint) error

	HasPayment(paymentID string) (bool, error)
	InsertPayment(p *models.Payment) error
	MonthlyTotals(month int) (net float64, gross float64, err error)
	PaymentsByMonth(month int, adminOnly bool) ([]models.Payment, error)
	RecentPayments(limit int, adminOnly bool) ([]models.Payment, error)

	InsertAudit(a *models.InvoiceAudit) error
	PlayersByIP(ip string) ([]string, error)
	SetExchangeRate(value float64) error

	MonthlyTopCount(month int) (int64, error)
	TopScores(limit int) ([]models.PlayerScore, error)
	InsertTopHistory(h *models.TopHistory) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a ledger repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) RowsForPlayer(tag string) ([]models.VipRow, error) {
	var rows []models.VipRow
	err := r.db.Where("Tag = ?", tag).Order("id").Find(&rows).Error
	return rows, err
}

func (r *gormRepository) RowsForPlayerTier(tag string, tier int) ([]models.VipRow, error) {
	var rows []models.VipRow
	err := r.db.Where("Tag = ? AND VIP = ?", tag, tier).Find(&rows).Error
	return rows, err
}

func (r *gormRepository) HigherTierRows(tag string, tier int) ([]models.VipRow, error) {
	var rows []models.VipRow
	err := r.db.Where("Tag = ? AND VIP > ?", tag, tier).Find(&rows).Error
	return rows, err
}

func (r *gormRepository) ActiveRow(tag string) (*models.VipRow, error) {
	var row models.VipRow
	err := r.db.Where("Tag = ? AND Date != ''", tag).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *gormRepository) HighestQueuedRow(tag string) (*models.VipRow, error) {
	var row models.VipRow
	err := r.db.Where("Tag = ? AND Date = ''", tag).
		Order("VIP DESC, Days DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *gormRepository) InsertRow(row *models.VipRow) error {
	return r.db.Create(row).Error
}

func (r *gormRepository) DemoteRow(id uint, days int) error {
	return r.db.Model(&models.VipRow{}).Where("id = ?", id).
		Updates(map[string]interface{}{"Date": "", "Days": days}).Error
}

func (r *gormRepository) PromoteRow(id uint, date string) error {
	return r.db.Model(&models.VipRow{}).Where("id = ?", id).
		Updates(map[string]interface{}{"Date": date, "Days": 0}).Error
}

func (r *gormRepository) DeleteRow(id uint) error {
	return r.db.Delete(&models.VipRow{}, id).Error
}

func (r *gormRepository) HasPayment(paymentID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Payment{}).Where("Payment_ID = ?", paymentID).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *gormRepository) InsertPayment(p *models.Payment) error {
	return r.db.Create(p).Error
}

func (r *gormRepository) MonthlyTotals(month int) (float64, float64, error) {
	var out struct {
		Net   float64
		Gross float64
	}
	err := r.db.Model(&models.Payment{}).
		Select("ROUND(COALESCE(SUM(Net_Amount), 0)) AS net, ROUND(COALESCE(SUM(Total_Amount), 0)) AS gross").
		Where("MonthN = ?", month).
		Scan(&out).Error
	if err != nil {
		return 0, 0, err
	}
	return out.Net, out.Gross, nil
}

func (r *gormRepository) PaymentsByMonth(month int, adminOnly bool) ([]models.Payment, error) {
	var payments []models.Payment
	q := r.db.Where("MonthN = ?", month)
	if adminOnly {
		q = q.Where("Server LIKE ?", "%Administrador%")
	}
	err := q.Order("id DESC").Find(&payments).Error
	return payments, err
}

func (r *gormRepository) RecentPayments(limit int, adminOnly bool) ([]models.Payment, error) {
	var payments []models.Payment
	q := r.db.Order("id DESC").Limit(limit)
	if adminOnly {
		q = q.Where("Server LIKE ?", "%Administrador%")
	}
	err := q.Find(&payments).Error
	return payments, err
}

func (r *gormRepository) InsertAudit(a *models.InvoiceAudit) error {
	return r.db.Create(a).Error
}

func (r *gormRepository) PlayersByIP(ip string) ([]string, error) {
	var tags []string
	err := r.db.Model(&models.PlayerScore{}).
		Where("IP = ?", ip).
		Order("Nivel DESC").
		Pluck("Tag", &tags).Error
	return tags, err
}

func (r *gormRepository) SetExchangeRate(value float64) error {
	return r.db.Model(&models.ExchangeRate{}).Where("1 = 1").Update("value", value).Error
}

func (r *gormRepository) MonthlyTopCount(month int) (int64, error) {
	var count int64
	err := r.db.Model(&models.TopHistory{}).Where("Month = ?", month).Count(&count).Error
	return count, err
}

func (r *gormRepository) TopScores(limit int) ([]models.PlayerScore, error) {
	var scores []models.PlayerScore
	err := r.db.Order("KnifePoints DESC").Limit(limit).Find(&scores).Error
	return scores, err
}

func (r *gormRepository) InsertTopHistory(h *models.TopHistory) error {
	return r.db.Create(h).Error
}
