package results

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/qagate/qagate/pkg/errdefs"
)

// Store persists the result hierarchy and answers release-scoped queries
// without walking it level by level.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the result tables.
func (s *Store) AutoMigrate() error {
	for _, m := range []any{&RunGroup{}, &TestRun{}, &RunItem{}, &TestResult{}, &BugLink{}} {
		if err := s.db.AutoMigrate(m); err != nil {
			return fmt.Errorf("auto-migrate %T: %w", m, err)
		}
	}
	return nil
}

// CreateRunGroup inserts a run group.
func (s *Store) CreateRunGroup(ctx context.Context, g *RunGroup) error {
	if err := s.db.WithContext(ctx).Create(g).Error; err != nil {
		return fmt.Errorf("create run group: %w", err)
	}
	return nil
}

// CreateTestRun inserts a test run.
func (s *Store) CreateTestRun(ctx context.Context, r *TestRun) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("create test run: %w", err)
	}
	return nil
}

// CreateRunItem inserts a run item.
func (s *Store) CreateRunItem(ctx context.Context, item *RunItem) error {
	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("create run item: %w", err)
	}
	return nil
}

// CreateResult inserts a test result.
func (s *Store) CreateResult(ctx context.Context, r *TestResult) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("create test result: %w", err)
	}
	return nil
}

// CreateBugLink inserts a bug link.
func (s *Store) CreateBugLink(ctx context.Context, b *BugLink) error {
	if err := s.db.WithContext(ctx).Create(b).Error; err != nil {
		return fmt.Errorf("create bug link: %w", err)
	}
	return nil
}

// GetRunGroup returns a run group by id.
func (s *Store) GetRunGroup(ctx context.Context, id string) (*RunGroup, error) {
	var g RunGroup
	if err := first(s.db.WithContext(ctx), &g, "run group", id); err != nil {
		return nil, err
	}
	return &g, nil
}

// GetTestRun returns a test run by id.
func (s *Store) GetTestRun(ctx context.Context, id string) (*TestRun, error) {
	var r TestRun
	if err := first(s.db.WithContext(ctx), &r, "test run", id); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRunItem returns a run item by id.
func (s *Store) GetRunItem(ctx context.Context, id string) (*RunItem, error) {
	var item RunItem
	if err := first(s.db.WithContext(ctx), &item, "run item", id); err != nil {
		return nil, err
	}
	return &item, nil
}

// GetResult returns a test result by id.
func (s *Store) GetResult(ctx context.Context, id string) (*TestResult, error) {
	var r TestResult
	if err := first(s.db.WithContext(ctx), &r, "test result", id); err != nil {
		return nil, err
	}
	return &r, nil
}

func first(db *gorm.DB, dest any, kind, id string) error {
	if err := db.Where("id = ?", id).First(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errdefs.NotFound(kind, id)
		}
		return fmt.Errorf("get %s: %w", kind, err)
	}
	return nil
}

// RunItemsForRelease returns every run item under the release in execution
// order: run group, then test run, then item position.
func (s *Store) RunItemsForRelease(ctx context.Context, releaseID string) ([]RunItem, error) {
	var items []RunItem
	err := s.db.WithContext(ctx).Model(&RunItem{}).
		Select("run_items.*").
		Joins("JOIN test_runs ON test_runs.id = run_items.test_run_id").
		Joins("JOIN run_groups ON run_groups.id = test_runs.run_group_id").
		Where("run_groups.release_id = ?", releaseID).
		Order("run_groups.created_at ASC").
		Order("run_groups.id ASC").
		Order("test_runs.created_at ASC").
		Order("test_runs.id ASC").
		Order("run_items.position ASC").
		Order("run_items.id ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list run items for release: %w", err)
	}
	return items, nil
}

// LatestResults returns the most recent result of each run item under the
// release, keyed by run item id. Items with no results are absent. Ties on
// recorded_at are broken by id.
func (s *Store) LatestResults(ctx context.Context, releaseID string) (map[string]TestResult, error) {
	var rows []TestResult
	err := s.db.WithContext(ctx).Model(&TestResult{}).
		Select("test_results.*").
		Joins("JOIN run_items ON run_items.id = test_results.run_item_id").
		Joins("JOIN test_runs ON test_runs.id = run_items.test_run_id").
		Joins("JOIN run_groups ON run_groups.id = test_runs.run_group_id").
		Where("run_groups.release_id = ?", releaseID).
		Order("test_results.run_item_id ASC").
		Order("test_results.recorded_at DESC").
		Order("test_results.id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list latest results for release: %w", err)
	}

	latest := make(map[string]TestResult, len(rows))
	for _, r := range rows {
		if _, seen := latest[r.RunItemID]; !seen {
			latest[r.RunItemID] = r
		}
	}
	return latest, nil
}

// BlockingBugs returns critical and high severity bug links on any result
// under the release.
func (s *Store) BlockingBugs(ctx context.Context, releaseID string) ([]BugLink, error) {
	var bugs []BugLink
	err := s.db.WithContext(ctx).Model(&BugLink{}).
		Select("bug_links.*").
		Joins("JOIN test_results ON test_results.id = bug_links.result_id").
		Joins("JOIN run_items ON run_items.id = test_results.run_item_id").
		Joins("JOIN test_runs ON test_runs.id = run_items.test_run_id").
		Joins("JOIN run_groups ON run_groups.id = test_runs.run_group_id").
		Where("run_groups.release_id = ?", releaseID).
		Where("bug_links.severity IN ?", BlockingSeverities).
		Order("bug_links.created_at ASC").
		Order("bug_links.id ASC").
		Find(&bugs).Error
	if err != nil {
		return nil, fmt.Errorf("list blocking bugs for release: %w", err)
	}
	return bugs, nil
}
