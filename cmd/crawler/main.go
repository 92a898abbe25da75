package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"rightmove-crawler/internal/config"
	"rightmove-crawler/internal/database"
	"rightmove-crawler/internal/feed"
	"rightmove-crawler/internal/models"
	"rightmove-crawler/internal/ratelimit"
	"rightmove-crawler/internal/scraper"
	"rightmove-crawler/internal/search"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	var (
		configPath  = flag.String("config", getEnv("CONFIG_PATH", "config/crawler_config.yaml"), "path to YAML configuration")
		feedPath    = flag.String("feed", "", "feed file path (overrides config)")
		maxListings = flag.Int("max", 0, "max listings to scrape (overrides config)")
		appendFeed  = flag.Bool("append", false, "append to the feed instead of truncating")
		withDB      = flag.Bool("db", false, "persist listings to the database")
		withSearch  = flag.Bool("search", false, "index listings in Meilisearch (requires -db)")
	)
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Printf("Warning: Failed to load config from %s: %v. Using defaults.", *configPath, err)
		cfg = config.DefaultConfig()
	}

	if *feedPath != "" {
		cfg.Output.FeedPath = *feedPath
	}
	if *maxListings > 0 {
		cfg.Crawler.MaxListings = *maxListings
	}

	run, err := crawl(cfg, *appendFeed, *withDB, *withSearch)
	if run != nil {
		log.Printf("[Crawler] Final: status=%s pages=%d scraped=%d skipped=%d duplicates=%d errors=%d",
			run.Status, run.PagesVisited, run.ListingsScraped, run.ListingsSkipped,
			run.DuplicatesSeen, run.ErrorCount)
	}
	if err != nil {
		log.Printf("Crawl failed: %v", err)
		os.Exit(1)
	}
}

func crawl(cfg *config.Config, appendFeed, withDB, withSearch bool) (*models.CrawlRun, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stop gracefully on Ctrl-C: the feed keeps everything written so far
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("[Crawler] Interrupt received, stopping...")
		cancel()
	}()

	var feedWriter *feed.Writer
	var err error
	if appendFeed {
		feedWriter, err = feed.NewAppendWriter(cfg.Output.FeedPath)
	} else {
		feedWriter, err = feed.NewWriter(cfg.Output.FeedPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open feed: %w", err)
	}
	defer feedWriter.Close()
	log.Printf("[Crawler] Writing feed to %s", feedWriter.Path())

	sc := scraper.NewWithConfig(scraper.Config{
		Timeout:          cfg.Crawler.GetTimeout(),
		MaxRetries:       cfg.Crawler.MaxRetries,
		RetryDelay:       cfg.Crawler.GetRetryDelay(),
		RequestDelay:     cfg.Crawler.GetRequestDelay(),
		RandomizeDelay:   cfg.Crawler.RandomizeDelay,
		UserAgent:        cfg.UserAgent,
		HeadlessFallback: cfg.Crawler.HeadlessFallback,
		ChromePath:       cfg.Crawler.ChromePath,
	})

	opts := scraper.CrawlerOptions{
		Query:         buildSearchQuery(cfg.Crawler),
		MaxListings:   cfg.Crawler.MaxListings,
		ListPageLimit: cfg.Crawler.ListPageLimit,
		StopOnError:   cfg.Crawler.StopOnError,
		Feed:          feedWriter,
	}

	if withDB {
		gormDB, err := openDatabase(cfg)
		if err != nil {
			return nil, err
		}
		defer gormDB.Close()
		opts.Store = gormDB

		if withSearch {
			searchClient := search.NewSearchClient(
				getEnvOrConfig(cfg.Search.Meilisearch.Host, "MEILISEARCH_HOST", "http://localhost:7700"),
				getEnvOrConfig(cfg.Search.Meilisearch.APIKey, "MEILISEARCH_KEY", ""),
			)
			if err := searchClient.InitIndex(); err != nil {
				log.Printf("Warning: Failed to initialize search index: %v", err)
			} else {
				opts.Index = searchClient
			}
		}
	}

	if cfg.Crawler.AutoThrottleEnabled {
		opts.Throttle = ratelimit.NewAutoThrottle(ratelimit.AutoThrottleConfig{
			StartDelay: cfg.Crawler.GetRequestDelay(),
		})
	}
	if cfg.RateLimit.Enabled {
		opts.Budget = ratelimit.NewRateLimiter(
			cfg.RateLimit.RequestsPerMinute,
			cfg.RateLimit.RequestsPerHour,
			cfg.RateLimit.RequestsPerDay,
			true,
		)
	}

	return scraper.NewCrawler(sc, opts).Run(ctx)
}

func openDatabase(cfg *config.Config) (*database.GormDB, error) {
	mysqlCfg := cfg.Database.MySQL

	portStr := ""
	if mysqlCfg.Port > 0 {
		portStr = fmt.Sprintf("%d", mysqlCfg.Port)
	}

	gormDB, err := database.NewGormDB(
		getEnvOrConfig(mysqlCfg.Host, "DB_HOST", "localhost"),
		getEnvOrConfig(portStr, "DB_PORT", "3306"),
		getEnvOrConfig(mysqlCfg.User, "DB_USER", "crawler_user"),
		getEnvOrConfig(mysqlCfg.Password, "DB_PASSWORD", "crawler_pass"),
		getEnvOrConfig(mysqlCfg.Database, "DB_NAME", "crawler_db"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	if err := gormDB.InitSchema(); err != nil {
		gormDB.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return gormDB, nil
}

// buildSearchQuery maps crawler config to portal search parameters.
func buildSearchQuery(cfg config.CrawlerConfig) scraper.SearchQuery {
	q := scraper.DefaultSearchQuery()
	if cfg.SearchLocation != "" {
		q.SearchLocation = cfg.SearchLocation
	}
	if cfg.LocationIdentifier != "" {
		q.LocationIdentifier = cfg.LocationIdentifier
	}
	if cfg.Radius != "" {
		q.Radius = cfg.Radius
	}
	if cfg.MaxDaysSinceAdded > 0 {
		q.MaxDaysSinceAdded = cfg.MaxDaysSinceAdded
	}
	if cfg.SortType > 0 {
		q.SortType = cfg.SortType
	}
	if cfg.PropertyTypes != "" {
		q.PropertyTypes = cfg.PropertyTypes
	}
	q.IncludeSSTC = cfg.IncludeSSTC
	return q
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrConfig(configValue, envKey, defaultValue string) string {
	if configValue != "" {
		return configValue
	}
	return getEnv(envKey, defaultValue)
}
