package database

import (
	"database/sql"
	"fmt"
	"time"

	"rightmove-crawler/internal/models"

	_ "github.com/lib/pq"
)

type DB struct {
	conn *sql.DB
}

func NewDB(host, port, user, password, dbname string) (*DB, error) {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	return &DB{conn: conn}, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// InitSchema creates the listings table if it doesn't exist
func (db *DB) InitSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS listings (
		id VARCHAR(32) PRIMARY KEY,
		source VARCHAR(50) NOT NULL,
		url TEXT NOT NULL UNIQUE,

		property_type VARCHAR(100),
		price VARCHAR(50),
		price_amount INTEGER,
		location TEXT,
		area VARCHAR(50),
		area_sqft DECIMAL(10, 2),
		beds INTEGER,
		baths INTEGER,
		features TEXT,
		description TEXT,
		images TEXT,
		has_video_tour BOOLEAN NOT NULL DEFAULT FALSE,
		video_url TEXT,
		video_thumbnail TEXT,
		page_number INTEGER,

		status VARCHAR(20) NOT NULL DEFAULT 'active',
		removed_at TIMESTAMP,
		fetched_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	-- Indexes for filtering
	CREATE INDEX IF NOT EXISTS idx_listings_created_at ON listings(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_listings_price_amount ON listings(price_amount);
	CREATE INDEX IF NOT EXISTS idx_listings_beds ON listings(beds);
	CREATE INDEX IF NOT EXISTS idx_listings_status ON listings(status);
	`
	_, err := db.conn.Exec(query)
	return err
}

// SaveListing saves a listing to the database (upsert by url)
func (db *DB) SaveListing(l *models.Listing) error {
	l.EnsureID()
	if l.FetchedAt.IsZero() {
		l.FetchedAt = time.Now()
	}
	if l.Status == "" {
		l.Status = models.ListingStatusActive
	}

	features, err := l.Features.Value()
	if err != nil {
		return err
	}
	images, err := l.Images.Value()
	if err != nil {
		return err
	}

	query := `
	INSERT INTO listings (
		id, source, url,
		property_type, price, price_amount, location, area, area_sqft, beds, baths,
		features, description, images, has_video_tour, video_url, video_thumbnail, page_number,
		status, fetched_at, created_at, updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, NOW(), NOW())
	ON CONFLICT (url) DO UPDATE SET
		property_type = EXCLUDED.property_type,
		price = EXCLUDED.price,
		price_amount = EXCLUDED.price_amount,
		location = EXCLUDED.location,
		area = EXCLUDED.area,
		area_sqft = EXCLUDED.area_sqft,
		beds = EXCLUDED.beds,
		baths = EXCLUDED.baths,
		features = EXCLUDED.features,
		description = EXCLUDED.description,
		images = EXCLUDED.images,
		has_video_tour = EXCLUDED.has_video_tour,
		video_url = EXCLUDED.video_url,
		video_thumbnail = EXCLUDED.video_thumbnail,
		page_number = EXCLUDED.page_number,
		fetched_at = EXCLUDED.fetched_at,
		updated_at = NOW()
	`
	_, err = db.conn.Exec(query,
		l.ID, l.Source, l.URL,
		l.PropertyType, l.Price, l.PriceAmount, l.Location, l.Area, l.AreaSqFt, l.Beds, l.Baths,
		features, l.Description, images, l.HasVideoTour, l.VideoURL, l.VideoThumbnail, l.PageNumber,
		l.Status, l.FetchedAt)
	return err
}

const listingColumns = `id, source, url,
	   property_type, price, price_amount, location, area, area_sqft, beds, baths,
	   features, description, images, has_video_tour, video_url, video_thumbnail, page_number,
	   status, removed_at, fetched_at, created_at, updated_at`

func scanListing(row interface{ Scan(...interface{}) error }) (*models.Listing, error) {
	var l models.Listing
	var features, images sql.NullString
	err := row.Scan(
		&l.ID, &l.Source, &l.URL,
		&l.PropertyType, &l.Price, &l.PriceAmount, &l.Location, &l.Area, &l.AreaSqFt, &l.Beds, &l.Baths,
		&features, &l.Description, &images, &l.HasVideoTour, &l.VideoURL, &l.VideoThumbnail, &l.PageNumber,
		&l.Status, &l.RemovedAt, &l.FetchedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if features.Valid {
		if err := l.Features.Scan(features.String); err != nil {
			return nil, err
		}
	}
	if images.Valid {
		if err := l.Images.Scan(images.String); err != nil {
			return nil, err
		}
	}
	return &l, nil
}

// GetAllListings retrieves all listings from the database
func (db *DB) GetAllListings() ([]models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings ORDER BY created_at DESC`

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}

	return listings, rows.Err()
}

// GetListingByID retrieves a listing by ID
func (db *DB) GetListingByID(id string) (*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`
	return scanListing(db.conn.QueryRow(query, id))
}
