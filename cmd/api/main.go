package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"rightmove-crawler/internal/config"
	"rightmove-crawler/internal/database"
	"rightmove-crawler/internal/feed"
	"rightmove-crawler/internal/handlers"
	"rightmove-crawler/internal/models"
	"rightmove-crawler/internal/ratelimit"
	"rightmove-crawler/internal/scheduler"
	"rightmove-crawler/internal/scraper"
	"rightmove-crawler/internal/search"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

var (
	db           *database.DB
	gormDB       *database.GormDB
	searchClient *search.SearchClient
	appConfig    *config.Config
	rateLimiter  *ratelimit.RateLimiter
	appScheduler *scheduler.Scheduler
	queueWorker  *scheduler.QueueWorker
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	configPath := getEnv("CONFIG_PATH", "config/crawler_config.yaml")
	var err error
	appConfig, err = config.LoadConfig(configPath)
	if err != nil {
		log.Printf("Warning: Failed to load config from %s: %v. Using defaults.", configPath, err)
		appConfig = config.DefaultConfig()
	} else {
		log.Printf("Loaded configuration from %s", configPath)
	}

	// Initialize database based on configuration
	dbType := appConfig.Database.Type
	if dbType == "" {
		dbType = getEnv("DB_TYPE", "mysql")
	}

	if dbType == "mysql" {
		log.Println("Using MySQL with GORM")
		mysqlCfg := appConfig.Database.MySQL

		portStr := ""
		if mysqlCfg.Port > 0 {
			portStr = fmt.Sprintf("%d", mysqlCfg.Port)
		}

		gormDB, err = database.NewGormDB(
			getEnvOrConfig(mysqlCfg.Host, "DB_HOST", "mysql"),
			getEnvOrConfig(portStr, "DB_PORT", "3306"),
			getEnvOrConfig(mysqlCfg.User, "DB_USER", "crawler_user"),
			getEnvOrConfig(mysqlCfg.Password, "DB_PASSWORD", "crawler_pass"),
			getEnvOrConfig(mysqlCfg.Database, "DB_NAME", "crawler_db"),
		)
		if err != nil {
			log.Fatalf("Failed to connect to MySQL: %v", err)
		}
		defer gormDB.Close()

		// Initialize schema with GORM AutoMigrate
		if err := gormDB.InitSchema(); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}
	} else {
		log.Println("Using PostgreSQL")
		pgCfg := appConfig.Database.Postgres

		portStr := ""
		if pgCfg.Port > 0 {
			portStr = fmt.Sprintf("%d", pgCfg.Port)
		}

		db, err = database.NewDB(
			getEnvOrConfig(pgCfg.Host, "DB_HOST", "db"),
			getEnvOrConfig(portStr, "DB_PORT", "5432"),
			getEnvOrConfig(pgCfg.User, "DB_USER", "crawler_user"),
			getEnvOrConfig(pgCfg.Password, "DB_PASSWORD", "crawler_pass"),
			getEnvOrConfig(pgCfg.Database, "DB_NAME", "crawler_db"),
		)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		// Initialize schema
		if err := db.InitSchema(); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}
	}

	// Initialize Meilisearch using config
	meilisearchHost := appConfig.Search.Meilisearch.Host
	if meilisearchHost == "" {
		meilisearchHost = getEnv("MEILISEARCH_HOST", "http://meilisearch:7700")
	}
	meilisearchKey := appConfig.Search.Meilisearch.APIKey
	if meilisearchKey == "" {
		meilisearchKey = getEnv("MEILISEARCH_KEY", "masterKey123")
	}

	searchClient = search.NewSearchClient(meilisearchHost, meilisearchKey)

	// Wait for Meilisearch to be ready
	time.Sleep(2 * time.Second)

	if err := searchClient.InitIndex(); err != nil {
		log.Printf("Warning: Failed to initialize search index: %v", err)
	}

	// Initialize rate limiter
	rateLimiter = ratelimit.NewRateLimiter(
		appConfig.RateLimit.RequestsPerMinute,
		appConfig.RateLimit.RequestsPerHour,
		appConfig.RateLimit.RequestsPerDay,
		appConfig.RateLimit.Enabled,
	)
	log.Printf("Rate limiter initialized: %d req/min, %d req/hour, %d req/day (enabled: %v)",
		appConfig.RateLimit.RequestsPerMinute,
		appConfig.RateLimit.RequestsPerHour,
		appConfig.RateLimit.RequestsPerDay,
		appConfig.RateLimit.Enabled,
	)

	// Initialize and start scheduler and queue worker (MySQL only)
	if gormDB != nil {
		appScheduler = scheduler.NewScheduler(gormDB, searchClient, appConfig)
		if err := appScheduler.Start(); err != nil {
			log.Printf("Warning: Failed to start scheduler: %v", err)
		}
		defer appScheduler.Stop()

		queueWorker = scheduler.NewQueueWorker(gormDB, createScraper(), searchClient,
			appConfig.Output.FeedPath, appConfig.UserAgent)
		queueWorker.Start()
		defer queueWorker.Stop()
		log.Println("Queue worker started")
	}

	// Setup Gin router
	r := gin.Default()

	// CORS configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{getEnv("CORS_ORIGIN", "http://localhost:5173")},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		AllowCredentials: true,
	}))

	// Routes
	r.GET("/health", healthCheck)
	r.GET("/api/listings", getListings)
	r.GET("/api/listings/:id", getListing)

	// Crawl routes with rate limiting
	r.POST("/api/crawl", rateLimitMiddleware(), triggerCrawl)
	r.POST("/api/crawl/listing", rateLimitMiddleware(), crawlSingleListing)
	r.GET("/api/crawl/status", getCrawlStatus)

	// Rate limiter stats endpoint
	r.GET("/api/ratelimit/stats", getRateLimitStats)

	// Queue worker stats endpoint
	r.GET("/api/queue/stats", getQueueStats)

	r.GET("/api/search", searchListings)
	r.POST("/api/search/advanced", advancedSearchListings)
	r.GET("/api/search/facets", getSearchFacets)
	r.POST("/api/search/reindex", reindexAllListings)
	r.GET("/api/filter", filterListings)

	// Feed export
	r.POST("/api/export", exportFeed)

	// Admin API routes (requires authentication in production)
	if gormDB != nil {
		adminHandler := handlers.NewAdminHandler(gormDB.DB(), appScheduler, searchClient)

		admin := r.Group("/api/admin")
		{
			// Statistics
			admin.GET("/stats", adminHandler.GetStats)
			admin.GET("/activity", adminHandler.GetRecentActivity)
			admin.GET("/runs", adminHandler.GetCrawlRuns)
			admin.GET("/location-stats", adminHandler.GetLocationStats)
			admin.GET("/price-distribution", adminHandler.GetPriceDistribution)

			// Crawl control
			admin.POST("/crawl/trigger", adminHandler.TriggerCrawl)
			admin.GET("/crawl/status", adminHandler.GetCrawlStatus)

			// Cleanup operations
			admin.POST("/cleanup/run", adminHandler.RunCleanup)
		}

		log.Println("Admin API routes registered at /api/admin/*")
	}

	port := getEnv("PORT", "8084")
	log.Printf("Server starting on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now(),
	})
}

func getListings(c *gin.Context) {
	sortBy := c.DefaultQuery("sort", "fetched_at")

	var listings []models.Listing
	var err error

	if gormDB != nil {
		listings, err = gormDB.GetListingsWithSort(sortBy)
	} else {
		listings, err = db.GetAllListings()
	}

	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"listings": listings,
		"count":    len(listings),
	})
}

func getListing(c *gin.Context) {
	id := c.Param("id")
	var listing *models.Listing
	var err error

	if gormDB != nil {
		listing, err = gormDB.GetListingByID(id)
	} else {
		listing, err = db.GetListingByID(id)
	}

	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
		return
	}

	c.JSON(http.StatusOK, listing)
}

// createScraper creates a new scraper instance with configuration
func createScraper() *scraper.Scraper {
	if appConfig == nil {
		return scraper.New()
	}

	return scraper.NewWithConfig(scraper.Config{
		Timeout:          appConfig.Crawler.GetTimeout(),
		MaxRetries:       appConfig.Crawler.MaxRetries,
		RetryDelay:       appConfig.Crawler.GetRetryDelay(),
		RequestDelay:     appConfig.Crawler.GetRequestDelay(),
		RandomizeDelay:   appConfig.Crawler.RandomizeDelay,
		UserAgent:        appConfig.UserAgent,
		HeadlessFallback: appConfig.Crawler.HeadlessFallback,
		ChromePath:       appConfig.Crawler.ChromePath,
	})
}

// triggerCrawl starts a full crawl in the background
func triggerCrawl(c *gin.Context) {
	if appScheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Scheduler is not available (requires MySQL/GORM)",
		})
		return
	}

	go func() {
		if err := appScheduler.RunNow(); err != nil {
			log.Printf("Manual crawl failed: %v", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Crawl started in background",
		"status":  "running",
	})
}

// crawlSingleListing scrapes one listing URL and stores the record
func crawlSingleListing(c *gin.Context) {
	var req struct {
		URL string `json:"url" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s := createScraper()
	listing, err := s.ScrapeListing(req.URL, "")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if gormDB != nil {
		err = gormDB.SaveListing(listing)
	} else {
		err = db.SaveListing(listing)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Index in Meilisearch
	if err := searchClient.IndexListing(listing); err != nil {
		log.Printf("Warning: Failed to index listing: %v", err)
	}

	c.JSON(http.StatusOK, listing)
}

// getCrawlStatus returns the state of the latest crawl run
func getCrawlStatus(c *gin.Context) {
	if appScheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Scheduler is not available (requires MySQL/GORM)",
		})
		return
	}

	run := appScheduler.LastRun()
	if run == nil {
		c.JSON(http.StatusOK, gin.H{"status": "idle"})
		return
	}
	c.JSON(http.StatusOK, run)
}

func searchListings(c *gin.Context) {
	query := c.Query("q")
	limitStr := c.DefaultQuery("limit", "20")

	limit, err := strconv.ParseInt(limitStr, 10, 64)
	if err != nil {
		limit = 20
	}

	// If no query, get all from database
	if query == "" {
		var listings []models.Listing
		var err error

		if gormDB != nil {
			listings, err = gormDB.GetAllListings()
		} else {
			listings, err = db.GetAllListings()
		}

		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, listings)
		return
	}

	// Search using Meilisearch
	listings, err := searchClient.Search(query, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, listings)
}

func filterListings(c *gin.Context) {
	query := c.Query("q")
	limitStr := c.DefaultQuery("limit", "20")

	limit, err := strconv.ParseInt(limitStr, 10, 64)
	if err != nil {
		limit = 20
	}

	// Parse filter parameters
	params := search.FilterParams{
		Query: query,
		Limit: limit,
	}

	// Price range
	if minPriceStr := c.Query("min_price"); minPriceStr != "" {
		if minPrice, err := strconv.Atoi(minPriceStr); err == nil {
			params.MinPrice = &minPrice
		}
	}
	if maxPriceStr := c.Query("max_price"); maxPriceStr != "" {
		if maxPrice, err := strconv.Atoi(maxPriceStr); err == nil {
			params.MaxPrice = &maxPrice
		}
	}

	// Bedroom range
	if minBedsStr := c.Query("min_beds"); minBedsStr != "" {
		if minBeds, err := strconv.Atoi(minBedsStr); err == nil {
			params.MinBeds = &minBeds
		}
	}
	if maxBedsStr := c.Query("max_beds"); maxBedsStr != "" {
		if maxBeds, err := strconv.Atoi(maxBedsStr); err == nil {
			params.MaxBeds = &maxBeds
		}
	}

	// Bathrooms
	if bathsStr := c.Query("baths"); bathsStr != "" {
		if baths, err := strconv.Atoi(bathsStr); err == nil {
			params.Baths = &baths
		}
	}

	// Property types
	if propertyTypes := c.QueryArray("property_type"); len(propertyTypes) > 0 {
		params.PropertyTypes = propertyTypes
	}

	// Video tour flag
	if videoStr := c.Query("has_video_tour"); videoStr != "" {
		hasVideo := videoStr == "true" || videoStr == "1"
		params.HasVideoTour = &hasVideo
	}

	// Sort by
	if sortBy := c.Query("sort_by"); sortBy != "" {
		params.SortBy = sortBy
	}

	// If no query and no filters, get all from database
	if query == "" && params.MinPrice == nil && params.MaxPrice == nil &&
		params.MinBeds == nil && params.MaxBeds == nil && params.Baths == nil &&
		len(params.PropertyTypes) == 0 && params.HasVideoTour == nil {
		var listings []models.Listing
		var err error

		if gormDB != nil {
			listings, err = gormDB.GetAllListings()
		} else {
			listings, err = db.GetAllListings()
		}

		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, listings)
		return
	}

	// Search with filters using Meilisearch
	listings, err := searchClient.FilterSearch(params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, listings)
}

// advancedSearchListings performs advanced search with filters and facets
func advancedSearchListings(c *gin.Context) {
	var reqBody struct {
		Query         string   `json:"query"`
		Limit         int64    `json:"limit"`
		Offset        int64    `json:"offset"`
		MinPrice      *int     `json:"min_price"`
		MaxPrice      *int     `json:"max_price"`
		MinBeds       *int     `json:"min_beds"`
		MaxBeds       *int     `json:"max_beds"`
		PropertyTypes []string `json:"property_types"`
		HasVideoTour  *bool    `json:"has_video_tour"`
		Sort          string   `json:"sort"` // "price_asc", "price_desc", "area_desc", etc.
		Facets        []string `json:"facets"`
	}

	if err := c.ShouldBindJSON(&reqBody); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Build filter conditions
	filters := []string{}

	if reqBody.MinPrice != nil {
		filters = append(filters, fmt.Sprintf("price_amount >= %d", *reqBody.MinPrice))
	}
	if reqBody.MaxPrice != nil {
		filters = append(filters, fmt.Sprintf("price_amount <= %d", *reqBody.MaxPrice))
	}
	if reqBody.MinBeds != nil {
		filters = append(filters, fmt.Sprintf("beds >= %d", *reqBody.MinBeds))
	}
	if reqBody.MaxBeds != nil {
		filters = append(filters, fmt.Sprintf("beds <= %d", *reqBody.MaxBeds))
	}
	if reqBody.HasVideoTour != nil {
		filters = append(filters, fmt.Sprintf("has_video_tour = %t", *reqBody.HasVideoTour))
	}
	if len(reqBody.PropertyTypes) > 0 {
		typeFilters := make([]string, len(reqBody.PropertyTypes))
		for i, t := range reqBody.PropertyTypes {
			typeFilters[i] = fmt.Sprintf("property_type = '%s'", t)
		}
		filters = append(filters, "("+strings.Join(typeFilters, " OR ")+")")
	}

	// Build sort conditions
	sortConditions := []string{}
	if reqBody.Sort != "" {
		switch reqBody.Sort {
		case "price_asc":
			sortConditions = append(sortConditions, "price_amount:asc")
		case "price_desc":
			sortConditions = append(sortConditions, "price_amount:desc")
		case "area_desc":
			sortConditions = append(sortConditions, "area_sqft:desc")
		case "beds_desc":
			sortConditions = append(sortConditions, "beds:desc")
		case "newest":
			sortConditions = append(sortConditions, "fetched_at:desc")
		}
	}

	// Default facets
	facets := reqBody.Facets
	if len(facets) == 0 {
		facets = []string{"property_type", "beds"}
	}

	// Perform search
	searchReq := search.SearchRequest{
		Query:        reqBody.Query,
		Limit:        reqBody.Limit,
		Offset:       reqBody.Offset,
		Filter:       filters,
		Sort:         sortConditions,
		FacetsFilter: facets,
	}

	if searchReq.Limit == 0 {
		searchReq.Limit = 20
	}

	result, err := searchClient.AdvancedSearch(searchReq)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"hits":            result.Hits,
		"total_hits":      result.TotalHits,
		"facets":          result.Facets,
		"processing_time": result.ProcessingTime,
		"query":           reqBody.Query,
		"filters":         filters,
	})
}

// getSearchFacets retrieves facet distributions
func getSearchFacets(c *gin.Context) {
	facetsParam := c.DefaultQuery("facets", "property_type,beds")
	facets := strings.Split(facetsParam, ",")

	facetDist, err := searchClient.GetFacets(facets)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"facets": facetDist,
	})
}

// reindexAllListings re-indexes all listings from database to Meilisearch
func reindexAllListings(c *gin.Context) {
	log.Println("[Reindex] Starting full reindex of all listings")

	var listings []models.Listing
	var err error

	if gormDB != nil {
		listings, err = gormDB.GetAllListings()
	} else {
		listings, err = db.GetAllListings()
	}

	if err != nil {
		log.Printf("[Reindex] Error fetching listings from database: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to fetch listings from database",
		})
		return
	}

	log.Printf("[Reindex] Found %d listings in database", len(listings))

	successCount := 0
	failCount := 0

	for i, listing := range listings {
		if err := searchClient.IndexListing(&listing); err != nil {
			log.Printf("[Reindex] Error indexing listing %d (%s): %v", i+1, listing.ID, err)
			failCount++
		} else {
			successCount++
		}

		// Log progress every 100 listings
		if (i+1)%100 == 0 {
			log.Printf("[Reindex] Progress: %d/%d indexed", i+1, len(listings))
		}
	}

	log.Printf("[Reindex] Reindex complete. Success: %d, Failed: %d", successCount, failCount)

	c.JSON(http.StatusOK, gin.H{
		"message": "Reindex complete",
		"total":   len(listings),
		"indexed": successCount,
		"failed":  failCount,
	})
}

// exportFeed writes every stored listing to the JSON-Lines feed file
func exportFeed(c *gin.Context) {
	var req struct {
		Path       string `json:"path"`
		ActiveOnly bool   `json:"active_only"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	path := req.Path
	if path == "" {
		path = appConfig.Output.FeedPath
	}

	var listings []models.Listing
	var err error
	if gormDB != nil {
		if req.ActiveOnly {
			listings, err = gormDB.GetActiveListings()
		} else {
			listings, err = gormDB.GetAllListings()
		}
	} else {
		listings, err = db.GetAllListings()
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	writer, err := feed.NewWriter(path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer writer.Close()

	for i := range listings {
		if err := writer.Append(&listings[i]); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	log.Printf("[Export] Wrote %d listings to %s", writer.Written(), path)
	c.JSON(http.StatusOK, gin.H{
		"message": "Export complete",
		"path":    path,
		"written": writer.Written(),
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrConfig returns config value if set, otherwise falls back to environment variable, then default
func getEnvOrConfig(configValue, envKey, defaultValue string) string {
	if configValue != "" {
		return configValue
	}
	return getEnv(envKey, defaultValue)
}

// rateLimitMiddleware returns a Gin middleware that enforces rate limiting
func rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rateLimiter.AllowRequest() {
			stats := rateLimiter.GetStats()
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "Rate limit exceeded",
				"message": "Too many requests. Please try again later.",
				"stats":   stats,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// getRateLimitStats returns current rate limiter statistics
func getRateLimitStats(c *gin.Context) {
	stats := rateLimiter.GetStats()
	c.JSON(http.StatusOK, stats)
}

// getQueueStats returns current queue worker statistics
func getQueueStats(c *gin.Context) {
	if queueWorker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Queue worker is not available (requires MySQL/GORM)",
		})
		return
	}

	stats := queueWorker.GetQueueStats()
	c.JSON(http.StatusOK, stats)
}
