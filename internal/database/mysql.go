package database

import (
	"fmt"
	"time"

	"rightmove-crawler/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type GormDB struct {
	db *gorm.DB
}

func NewGormDB(host, port, user, password, dbname string) (*GormDB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, dbname)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	})
	if err != nil {
		return nil, err
	}

	// Test connection
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}

	return &GormDB{db: db}, nil
}

// NewGormDBFromDB creates a GormDB wrapper from an existing gorm.DB instance
func NewGormDBFromDB(db *gorm.DB) *GormDB {
	return &GormDB{db: db}
}

// DB returns the underlying gorm.DB instance
func (gdb *GormDB) DB() *gorm.DB {
	return gdb.db
}

func (gdb *GormDB) Close() error {
	sqlDB, err := gdb.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InitSchema creates tables using GORM AutoMigrate
func (gdb *GormDB) InitSchema() error {
	// AutoMigrate will create tables if they don't exist
	return gdb.db.AutoMigrate(
		&models.Listing{},
		&models.CrawlRun{},
		&models.CrawlState{},
		&models.ListingScrapeQueue{},
	)
}

// SaveListing saves or updates a listing (upsert by url)
func (gdb *GormDB) SaveListing(l *models.Listing) error {
	l.EnsureID()

	if l.FetchedAt.IsZero() {
		l.FetchedAt = time.Now()
	}
	if l.Status == "" {
		l.Status = models.ListingStatusActive
	}

	// Upsert: find existing by url first
	var existing models.Listing
	result := gdb.db.Where("url = ?", l.URL).First(&existing)

	if result.Error == gorm.ErrRecordNotFound {
		return gdb.db.Create(l).Error
	} else if result.Error != nil {
		return result.Error
	}

	// Update existing (keep original CreatedAt, Status, and RemovedAt)
	l.CreatedAt = existing.CreatedAt
	l.ID = existing.ID
	l.Status = existing.Status
	l.RemovedAt = existing.RemovedAt
	return gdb.db.Save(l).Error
}

// GetAllListings retrieves all listings ordered by newest first
func (gdb *GormDB) GetAllListings() ([]models.Listing, error) {
	var listings []models.Listing
	err := gdb.db.Order("created_at DESC").Find(&listings).Error
	return listings, err
}

// GetListingsWithSort retrieves all listings with custom sorting
func (gdb *GormDB) GetListingsWithSort(sortBy string) ([]models.Listing, error) {
	var listings []models.Listing

	// Map sort parameter to SQL ORDER BY clause (MySQL syntax)
	// Use CASE to put NULLs last
	var orderClause string
	switch sortBy {
	case "fetched_at", "fetched_at_desc":
		orderClause = "fetched_at DESC"
	case "fetched_at_asc":
		orderClause = "fetched_at ASC"
	case "price_asc":
		orderClause = "CASE WHEN price_amount IS NULL THEN 1 ELSE 0 END, price_amount ASC"
	case "price_desc":
		orderClause = "CASE WHEN price_amount IS NULL THEN 1 ELSE 0 END, price_amount DESC"
	case "area_desc":
		orderClause = "CASE WHEN area_sqft IS NULL THEN 1 ELSE 0 END, area_sqft DESC"
	case "beds_desc":
		orderClause = "CASE WHEN beds IS NULL THEN 1 ELSE 0 END, beds DESC"
	case "beds_asc":
		orderClause = "CASE WHEN beds IS NULL THEN 1 ELSE 0 END, beds ASC"
	default:
		// Default to newest first (by fetched_at)
		orderClause = "fetched_at DESC"
	}

	err := gdb.db.Order(orderClause).Find(&listings).Error
	return listings, err
}

// GetListingByID retrieves a listing by ID
func (gdb *GormDB) GetListingByID(id string) (*models.Listing, error) {
	var listing models.Listing
	err := gdb.db.Where("id = ?", id).First(&listing).Error
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

// GetActiveListings retrieves all active listings
func (gdb *GormDB) GetActiveListings() ([]models.Listing, error) {
	var listings []models.Listing
	err := gdb.db.Where("status = ?", models.ListingStatusActive).Order("created_at DESC").Find(&listings).Error
	return listings, err
}

// MarkListingAsRemoved marks a listing as removed (logical deletion)
func (gdb *GormDB) MarkListingAsRemoved(id string) error {
	now := time.Now()
	return gdb.db.Model(&models.Listing{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     models.ListingStatusRemoved,
			"removed_at": &now,
		}).Error
}

// MarkListingsAsRemoved marks multiple listings as removed
func (gdb *GormDB) MarkListingsAsRemoved(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now()
	return gdb.db.Model(&models.Listing{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"status":     models.ListingStatusRemoved,
			"removed_at": &now,
		}).Error
}

// SaveCrawlRun creates or updates a crawl run record
func (gdb *GormDB) SaveCrawlRun(run *models.CrawlRun) error {
	return gdb.db.Save(run).Error
}

// GetRecentCrawlRuns retrieves the most recent crawl runs
func (gdb *GormDB) GetRecentCrawlRuns(limit int) ([]models.CrawlRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []models.CrawlRun
	err := gdb.db.Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// EnqueueRetry adds a failed listing URL to the retry queue, unless an
// unfinished entry for the same URL already exists.
func (gdb *GormDB) EnqueueRetry(item *models.ListingScrapeQueue) error {
	var count int64
	err := gdb.db.Model(&models.ListingScrapeQueue{}).
		Where("listing_url = ? AND status IN ?", item.ListingURL,
			[]string{models.QueueStatusPending, models.QueueStatusProcessing, models.QueueStatusFailed}).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return gdb.db.Create(item).Error
}

// DetectDifferences compares current active listings with a freshly crawled
// set. Returns: new IDs, removed IDs, updated listings.
func (gdb *GormDB) DetectDifferences(crawled []models.Listing) (newIDs []string, removedIDs []string, updated []models.Listing, err error) {
	active, err := gdb.GetActiveListings()
	if err != nil {
		return nil, nil, nil, err
	}

	activeMap := make(map[string]*models.Listing)
	for i := range active {
		activeMap[active[i].ID] = &active[i]
	}

	crawledMap := make(map[string]*models.Listing)
	for i := range crawled {
		crawled[i].EnsureID()
		crawledMap[crawled[i].ID] = &crawled[i]
	}

	for id := range crawledMap {
		if _, exists := activeMap[id]; !exists {
			newIDs = append(newIDs, id)
		}
	}

	for id := range activeMap {
		if _, exists := crawledMap[id]; !exists {
			removedIDs = append(removedIDs, id)
		}
	}

	for id, crawledListing := range crawledMap {
		if activeListing, exists := activeMap[id]; exists {
			if hasListingChanged(activeListing, crawledListing) {
				updated = append(updated, *crawledListing)
			}
		}
	}

	return newIDs, removedIDs, updated, nil
}

// hasListingChanged checks if listing data has changed
func hasListingChanged(old, new *models.Listing) bool {
	if old.Price != new.Price {
		return true
	}
	if old.Location != new.Location {
		return true
	}
	if old.PropertyType != new.PropertyType {
		return true
	}
	if old.Description != new.Description {
		return true
	}
	return false
}
