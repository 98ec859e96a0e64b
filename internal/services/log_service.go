package services

import (
	"time"

	"gorm.io/gorm"

	"github.com/nodewarden/warden/internal/models"
)

const (
	defaultLogPageSize = 50
	maxLogPageSize     = 500
)

// LogFilter narrows execution history queries. Zero values mean no filtering.
type LogFilter struct {
	RuleID string
	Result string
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

type LogService struct {
	db *gorm.DB
}

func NewLogService(db *gorm.DB) *LogService {
	return &LogService{db: db}
}

// Record appends entries to the execution history.
func (s *LogService) Record(entries ...models.RuleExecutionLog) error {
	if len(entries) == 0 {
		return nil
	}
	return s.db.Create(&entries).Error
}

// List returns entries newest first plus the total match count for
// pagination.
func (s *LogService) List(filter LogFilter) ([]models.RuleExecutionLog, int64, error) {
	var total int64
	if err := s.filtered(filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLogPageSize
	}
	if limit > maxLogPageSize {
		limit = maxLogPageSize
	}

	q := s.filtered(filter).Order("triggered_at desc, created_at desc").Limit(limit)
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var entries []models.RuleExecutionLog
	if err := q.Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (s *LogService) filtered(filter LogFilter) *gorm.DB {
	q := s.db.Model(&models.RuleExecutionLog{})
	if filter.RuleID != "" {
		q = q.Where("rule_id = ?", filter.RuleID)
	}
	if filter.Result != "" {
		q = q.Where("result = ?", filter.Result)
	}
	if filter.From != nil {
		q = q.Where("triggered_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("triggered_at <= ?", *filter.To)
	}
	return q
}

// PruneBefore deletes entries triggered before the cutoff and reports how
// many rows went away.
func (s *LogService) PruneBefore(cutoff time.Time) (int64, error) {
	result := s.db.Where("triggered_at < ?", cutoff).Delete(&models.RuleExecutionLog{})
	return result.RowsAffected, result.Error
}
