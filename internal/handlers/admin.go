package handlers

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"rightmove-crawler/internal/cleanup"
	"rightmove-crawler/internal/models"
	"rightmove-crawler/internal/scheduler"
	"rightmove-crawler/internal/search"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AdminHandler handles admin-related requests
type AdminHandler struct {
	db             *gorm.DB
	scheduler      *scheduler.Scheduler
	cleanupService *cleanup.Service
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(db *gorm.DB, sched *scheduler.Scheduler, searchClient *search.SearchClient) *AdminHandler {
	return &AdminHandler{
		db:             db,
		scheduler:      sched,
		cleanupService: cleanup.NewService(db, searchClient),
	}
}

// GetStats returns system statistics
func (h *AdminHandler) GetStats(c *gin.Context) {
	stats := make(map[string]interface{})

	// Listing counts by status
	var activeCount, removedCount int64
	h.db.Model(&models.Listing{}).Where("status = ?", models.ListingStatusActive).Count(&activeCount)
	h.db.Model(&models.Listing{}).Where("status = ?", models.ListingStatusRemoved).Count(&removedCount)

	stats["listings"] = map[string]interface{}{
		"active":  activeCount,
		"removed": removedCount,
		"total":   activeCount + removedCount,
	}

	// Recent crawl activity (last 24 hours)
	last24h := time.Now().AddDate(0, 0, -1)
	var recentlyFetched int64
	h.db.Model(&models.Listing{}).Where("fetched_at >= ?", last24h).Count(&recentlyFetched)
	stats["recent_activity"] = map[string]interface{}{
		"fetched_last_24h": recentlyFetched,
	}

	// Crawl run statistics (last 7 days)
	last7days := time.Now().AddDate(0, 0, -7)
	var recentRuns, failedRuns int64
	h.db.Model(&models.CrawlRun{}).Where("started_at >= ?", last7days).Count(&recentRuns)
	h.db.Model(&models.CrawlRun{}).Where("started_at >= ? AND status IN ?", last7days,
		[]string{models.CrawlRunStatusFailed, models.CrawlRunStatusAborted}).Count(&failedRuns)
	stats["crawl_runs"] = map[string]interface{}{
		"last_7_days":        recentRuns,
		"failed_last_7_days": failedRuns,
	}

	// Cleanup statistics
	cleanupStats, err := h.cleanupService.GetStats()
	if err != nil {
		log.Printf("[Admin] Failed to get cleanup stats: %v", err)
	} else {
		stats["cleanup"] = cleanupStats
	}

	c.JSON(http.StatusOK, stats)
}

// GetRecentActivity returns recently fetched listings
func (h *AdminHandler) GetRecentActivity(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "50")
	limit, _ := strconv.Atoi(limitStr)

	var listings []models.Listing
	err := h.db.Order("fetched_at DESC").Limit(limit).Find(&listings).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"listings": listings,
		"count":    len(listings),
	})
}

// GetCrawlRuns returns recent crawl run records
func (h *AdminHandler) GetCrawlRuns(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "20")
	limit, _ := strconv.Atoi(limitStr)

	var runs []models.CrawlRun
	err := h.db.Order("started_at DESC").Limit(limit).Find(&runs).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

// TriggerCrawl manually triggers a crawl
func (h *AdminHandler) TriggerCrawl(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Scheduler not available (MySQL/GORM required)",
		})
		return
	}

	log.Println("[Admin] Manual crawl trigger requested")

	// Run in goroutine to avoid blocking
	go func() {
		if err := h.scheduler.RunNow(); err != nil {
			log.Printf("[Admin] Manual crawl failed: %v", err)
		} else {
			log.Println("[Admin] Manual crawl completed successfully")
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Crawl started",
		"status":  "running",
	})
}

// GetCrawlStatus returns the most recent crawl run state
func (h *AdminHandler) GetCrawlStatus(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Scheduler not available (MySQL/GORM required)",
		})
		return
	}

	run := h.scheduler.LastRun()
	if run == nil {
		var latest models.CrawlRun
		if err := h.db.Order("started_at DESC").First(&latest).Error; err == nil {
			run = &latest
		}
	}
	if run == nil {
		c.JSON(http.StatusOK, gin.H{"status": "idle"})
		return
	}

	c.JSON(http.StatusOK, run)
}

// RunCleanup executes physical deletion of old removed listings
func (h *AdminHandler) RunCleanup(c *gin.Context) {
	var req struct {
		RetentionDays    int  `json:"retention_days"`     // Days to keep (default: 90)
		MaxDeletionCount int  `json:"max_deletion_count"` // Safety limit (default: 10000)
		DryRun           bool `json:"dry_run"`            // Dry run mode
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Set defaults
	config := cleanup.DefaultConfig()
	if req.RetentionDays > 0 {
		config.RetentionDays = req.RetentionDays
	}
	if req.MaxDeletionCount > 0 {
		config.MaxDeletionCount = req.MaxDeletionCount
	}
	config.DryRun = req.DryRun

	log.Printf("[Admin] Running cleanup (retention: %d days, max: %d, dry-run: %v)",
		config.RetentionDays, config.MaxDeletionCount, config.DryRun)

	result, err := h.cleanupService.Run(config)
	if err != nil {
		log.Printf("[Admin] Cleanup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	log.Printf("[Admin] Cleanup completed: %d/%d deleted (dry-run: %v)",
		result.DeletedCount, result.TargetCount, result.DryRun)

	c.JSON(http.StatusOK, result)
}

// GetLocationStats returns listing counts by location
func (h *AdminHandler) GetLocationStats(c *gin.Context) {
	type LocationStat struct {
		Location string `json:"location"`
		Count    int64  `json:"count"`
	}

	var stats []LocationStat
	err := h.db.Model(&models.Listing{}).
		Select("location, count(*) as count").
		Where("status = ? AND location != ''", models.ListingStatusActive).
		Group("location").
		Order("count DESC").
		Limit(20).
		Scan(&stats).Error

	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"location_stats": stats,
		"count":          len(stats),
	})
}

// GetPriceDistribution returns asking price distribution
func (h *AdminHandler) GetPriceDistribution(c *gin.Context) {
	type PriceRange struct {
		RangeLabel string `json:"range_label"`
		MinPrice   int    `json:"min_price"`
		MaxPrice   int    `json:"max_price"`
		Count      int64  `json:"count"`
	}

	// Asking price bands in pounds
	ranges := []PriceRange{
		{RangeLabel: "Under £250k", MinPrice: 0, MaxPrice: 250000},
		{RangeLabel: "£250k-£400k", MinPrice: 250000, MaxPrice: 400000},
		{RangeLabel: "£400k-£600k", MinPrice: 400000, MaxPrice: 600000},
		{RangeLabel: "£600k-£1m", MinPrice: 600000, MaxPrice: 1000000},
		{RangeLabel: "£1m-£2m", MinPrice: 1000000, MaxPrice: 2000000},
		{RangeLabel: "Over £2m", MinPrice: 2000000, MaxPrice: 1000000000},
	}

	for i := range ranges {
		var count int64
		h.db.Model(&models.Listing{}).
			Where("status = ? AND price_amount >= ? AND price_amount < ?",
				models.ListingStatusActive, ranges[i].MinPrice, ranges[i].MaxPrice).
			Count(&count)
		ranges[i].Count = count
	}

	c.JSON(http.StatusOK, gin.H{
		"price_distribution": ranges,
	})
}
