// Package gormstore implements store.Store on PostgreSQL through gorm.
package gormstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/autolog/autoanalysis/internal/apperr"
	"github.com/autolog/autoanalysis/internal/models"
	"github.com/autolog/autoanalysis/internal/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

const insertBatchSize = 500

func wrap(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(op, "")
	}
	return apperr.Persistence(op, err)
}

func (s *Store) GetLaunch(ctx context.Context, launchID int64) (*models.Launch, error) {
	var launch models.Launch
	if err := s.db.WithContext(ctx).First(&launch, launchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("launch", launchID)
		}
		return nil, wrap("get launch", err)
	}
	return &launch, nil
}

func (s *Store) FindLaunchIDs(ctx context.Context, projectID int64, excludeMode models.LaunchMode, excludeStatus models.Status, afterID int64, limit int) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&models.Launch{}).
		Where("project_id = ? AND id > ? AND mode <> ? AND status <> ?", projectID, afterID, excludeMode, excludeStatus).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, wrap("find launch ids", err)
	}
	return ids, nil
}

func (s *Store) FindItemIDsByLaunch(ctx context.Context, launchID int64) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&models.TestItem{}).
		Where("launch_id = ?", launchID).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, wrap("find item ids", err)
	}
	return ids, nil
}

var modeConditions = map[models.AnalyzeItemsMode]string{
	models.AnalyzeModeToInvestigate:    "issues.issue_type_locator LIKE 'ti%'",
	models.AnalyzeModeAutoAnalyzed:     "(issues.issue_type_locator NOT LIKE 'ti%' AND issues.auto_analyzed)",
	models.AnalyzeModeManuallyAnalyzed: "(issues.issue_type_locator NOT LIKE 'ti%' AND NOT issues.auto_analyzed)",
}

func (s *Store) FindItemIDsByModes(ctx context.Context, launchID int64, modes []models.AnalyzeItemsMode, offset, limit int) ([]int64, error) {
	var conds []string
	for _, m := range modes {
		if c, ok := modeConditions[m]; ok {
			conds = append(conds, c)
		}
	}
	if len(conds) == 0 {
		return nil, nil
	}

	q := s.db.WithContext(ctx).Model(&models.TestItem{}).
		Joins("JOIN issues ON issues.item_id = test_items.id").
		Where("test_items.launch_id = ? AND test_items.has_stats AND NOT issues.ignore_analyzer", launchID).
		Where("(" + strings.Join(conds, " OR ") + ")").
		Order("test_items.id ASC").
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}

	var ids []int64
	if err := q.Pluck("test_items.id", &ids).Error; err != nil {
		return nil, wrap("find item ids by mode", err)
	}
	return ids, nil
}

func (s *Store) FindDescendantIDs(ctx context.Context, path string) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&models.TestItem{}).
		Where("path LIKE ?", path+".%").
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, wrap("find descendant ids", err)
	}
	return ids, nil
}

func (s *Store) FindItemsByIDs(ctx context.Context, itemIDs []int64) ([]models.TestItem, error) {
	var items []models.TestItem
	if len(itemIDs) == 0 {
		return items, nil
	}
	err := s.db.WithContext(ctx).Preload("Issue").
		Where("id = ANY(?)", pq.Array(itemIDs)).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, wrap("find items", err)
	}
	return items, nil
}

func (s *Store) FindItemsByLaunch(ctx context.Context, launchID int64) ([]models.TestItem, error) {
	var items []models.TestItem
	err := s.db.WithContext(ctx).Preload("Issue").
		Where("launch_id = ?", launchID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, wrap("find launch items", err)
	}
	return items, nil
}

func (s *Store) FindItemName(ctx context.Context, itemID int64) (string, error) {
	var names []string
	err := s.db.WithContext(ctx).Model(&models.TestItem{}).
		Where("id = ?", itemID).
		Limit(1).
		Pluck("name", &names).Error
	if err != nil {
		return "", wrap("find item name", err)
	}
	if len(names) == 0 {
		return "", apperr.NotFound("test item", itemID)
	}
	return names[0], nil
}

func (s *Store) UpdateIssue(ctx context.Context, issue models.Issue) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"issue_type_locator", "description", "auto_analyzed", "ignore_analyzer"}),
	}).Create(&issue).Error
	return wrap("update issue", err)
}

func (s *Store) FilterLaunchesWithLogs(ctx context.Context, launchIDs []int64, floor models.LogLevel) ([]int64, error) {
	var ids []int64
	if len(launchIDs) == 0 {
		return ids, nil
	}
	err := s.db.WithContext(ctx).Model(&models.Log{}).
		Distinct("launch_id").
		Where("launch_id = ANY(?) AND level >= ?", pq.Array(launchIDs), floor).
		Order("launch_id ASC").
		Pluck("launch_id", &ids).Error
	if err != nil {
		return nil, wrap("filter launches with logs", err)
	}
	return ids, nil
}

func (s *Store) FindLogsByItemIDs(ctx context.Context, itemIDs []int64, floor models.LogLevel) ([]models.Log, error) {
	var logs []models.Log
	if len(itemIDs) == 0 {
		return logs, nil
	}
	err := s.db.WithContext(ctx).
		Where("item_id = ANY(?) AND level >= ?", pq.Array(itemIDs), floor).
		Order("id ASC").
		Find(&logs).Error
	if err != nil {
		return nil, wrap("find logs", err)
	}
	return logs, nil
}

func (s *Store) FindLogsByIDs(ctx context.Context, logIDs []int64) ([]models.Log, error) {
	var logs []models.Log
	if len(logIDs) == 0 {
		return logs, nil
	}
	err := s.db.WithContext(ctx).
		Where("id = ANY(?)", pq.Array(logIDs)).
		Order("id ASC").
		Find(&logs).Error
	if err != nil {
		return nil, wrap("find logs by id", err)
	}
	return logs, nil
}

func (s *Store) selectItemIDs(ctx context.Context, op string, itemIDs []int64, floor models.LogLevel, cond string, arg interface{}) ([]int64, error) {
	var ids []int64
	if len(itemIDs) == 0 {
		return ids, nil
	}
	err := s.db.WithContext(ctx).Model(&models.Log{}).
		Distinct("item_id").
		Where("item_id = ANY(?) AND level >= ?", pq.Array(itemIDs), floor).
		Where(cond, arg).
		Order("item_id ASC").
		Pluck("item_id", &ids).Error
	if err != nil {
		return nil, wrap(op, err)
	}
	return ids, nil
}

func (s *Store) SelectItemIDsByString(ctx context.Context, itemIDs []int64, floor models.LogLevel, substr string) ([]int64, error) {
	return s.selectItemIDs(ctx, "select items by string", itemIDs, floor, "strpos(message, ?) > 0", substr)
}

func (s *Store) SelectItemIDsByRegex(ctx context.Context, itemIDs []int64, floor models.LogLevel, pattern string) ([]int64, error) {
	return s.selectItemIDs(ctx, "select items by regex", itemIDs, floor, "message ~ ?", pattern)
}

func (s *Store) AssignCluster(ctx context.Context, logIDs []int64, clusterID int64) error {
	if len(logIDs) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Model(&models.Log{}).
		Where("id = ANY(?)", pq.Array(logIDs)).
		Update("cluster_id", clusterID).Error
	return wrap("assign cluster", err)
}

func (s *Store) FindEnabledTemplates(ctx context.Context, projectID int64) ([]models.PatternTemplate, error) {
	var templates []models.PatternTemplate
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND enabled", projectID).
		Order("id ASC").
		Find(&templates).Error
	if err != nil {
		return nil, wrap("find pattern templates", err)
	}
	return templates, nil
}

func (s *Store) FindAlreadyMatched(ctx context.Context, patternID int64, itemIDs []int64) ([]int64, error) {
	var ids []int64
	if len(itemIDs) == 0 {
		return ids, nil
	}
	err := s.db.WithContext(ctx).Model(&models.PatternMatch{}).
		Where("pattern_template_id = ? AND test_item_id = ANY(?)", patternID, pq.Array(itemIDs)).
		Order("test_item_id ASC").
		Pluck("test_item_id", &ids).Error
	if err != nil {
		return nil, wrap("find matched items", err)
	}
	return ids, nil
}

func (s *Store) SaveMatches(ctx context.Context, matches []models.PatternMatch) error {
	if len(matches) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(matches, insertBatchSize).Error
	return wrap("save pattern matches", err)
}

func (s *Store) DeleteClustersByLaunch(ctx context.Context, launchID int64) (int64, error) {
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Log{}).
			Where("launch_id = ? AND cluster_id IS NOT NULL", launchID).
			Update("cluster_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("cluster_id IN (?)", tx.Model(&models.Cluster{}).Select("id").Where("launch_id = ?", launchID)).
			Delete(&models.ClusterTestItem{}).Error; err != nil {
			return err
		}
		res := tx.Where("launch_id = ?", launchID).Delete(&models.Cluster{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, wrap("delete clusters", err)
	}
	return deleted, nil
}

func (s *Store) SaveCluster(ctx context.Context, cluster *models.Cluster, itemIDs []int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(cluster).Error; err != nil {
			return err
		}
		if len(itemIDs) == 0 {
			return nil
		}
		links := make([]models.ClusterTestItem, 0, len(itemIDs))
		for _, id := range itemIDs {
			links = append(links, models.ClusterTestItem{ClusterID: cluster.ID, ItemID: id})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(links, insertBatchSize).Error
	})
	return wrap("save cluster", err)
}

func (s *Store) FindClustersByLaunch(ctx context.Context, launchID int64) ([]models.Cluster, error) {
	var clusters []models.Cluster
	err := s.db.WithContext(ctx).
		Where("launch_id = ?", launchID).
		Order("index_id ASC").
		Find(&clusters).Error
	if err != nil {
		return nil, wrap("find clusters", err)
	}
	return clusters, nil
}

func (s *Store) SetLaunchAttribute(ctx context.Context, launchID int64, key, value string, system bool) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var attr models.ItemAttribute
		err := tx.Where("launch_id = ? AND key = ?", launchID, key).First(&attr).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&models.ItemAttribute{
				LaunchID:  &launchID,
				Key:       key,
				Value:     value,
				System:    system,
				UpdatedAt: time.Now(),
			}).Error
		case err != nil:
			return err
		}
		return tx.Model(&attr).Updates(map[string]interface{}{
			"value":      value,
			"system":     system,
			"updated_at": time.Now(),
		}).Error
	})
	return wrap("set launch attribute", err)
}

func (s *Store) FindLaunchAttribute(ctx context.Context, launchID int64, key string) (*models.ItemAttribute, error) {
	var attr models.ItemAttribute
	err := s.db.WithContext(ctx).Where("launch_id = ? AND key = ?", launchID, key).First(&attr).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("launch attribute", key)
		}
		return nil, wrap("find launch attribute", err)
	}
	return &attr, nil
}

func (s *Store) ProjectAttributes(ctx context.Context, projectID int64) (map[string]string, error) {
	var attrs []models.ProjectAttribute
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Find(&attrs).Error; err != nil {
		return nil, wrap("find project attributes", err)
	}
	out := make(map[string]string, len(attrs))
	for _, a := range attrs {
		out[a.Key] = a.Value
	}
	return out, nil
}

func (s *Store) SetProjectAttribute(ctx context.Context, projectID int64, key, value string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&models.ProjectAttribute{ProjectID: projectID, Key: key, Value: value}).Error
	return wrap("set project attribute", err)
}

func (s *Store) CreateJob(ctx context.Context, job *models.Job) error {
	return wrap("create job", s.db.WithContext(ctx).Create(job).Error)
}

func (s *Store) UpdateJob(ctx context.Context, job *models.Job) error {
	return wrap("update job", s.db.WithContext(ctx).Save(job).Error)
}

func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("job", id)
		}
		return nil, wrap("get job", err)
	}
	return &job, nil
}
