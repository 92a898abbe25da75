package models

import (
	"crypto/md5"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// StringList stores a JSON array in a TEXT column while serializing as a
// plain JSON array in API responses and feed records.
type StringList []string

// Value implements driver.Valuer.
func (s StringList) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (s *StringList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into StringList", value)
	}

	if len(data) == 0 {
		*s = nil
		return nil
	}
	return json.Unmarshal(data, (*[]string)(s))
}

// Listing is a single scraped property record. The same struct is the GORM
// model, the search index document, and the JSON-Lines feed record (one
// object per line in real_estate_properties.jsonl).
type Listing struct {
	// 識別情報
	ID     string `gorm:"type:varchar(32);primaryKey" json:"id"`
	Source string `gorm:"type:varchar(50);not null" json:"source"`
	URL    string `gorm:"type:varchar(500);not null;uniqueIndex" json:"url"`

	// 抽出フィールド
	PropertyType string   `gorm:"type:varchar(100);index" json:"property_type"`
	Price        string   `gorm:"type:varchar(50)" json:"price"`
	PriceAmount  *int     `gorm:"type:int;index" json:"price_amount,omitempty"`
	Location     string   `gorm:"type:text" json:"location"`
	Area         string   `gorm:"type:varchar(100)" json:"area"`
	AreaSqFt     *float64 `gorm:"type:decimal(10,2)" json:"area_sqft,omitempty"`
	Beds         *int     `gorm:"type:int;index" json:"beds"`
	Baths        *int     `gorm:"type:int;index" json:"baths"`

	Features    StringList `gorm:"type:text" json:"features"`
	Description string     `gorm:"type:text" json:"description"`
	Images      StringList `gorm:"type:text" json:"images"`

	HasVideoTour   bool   `gorm:"not null;default:false;index" json:"has_video_tour"`
	VideoURL       string `gorm:"type:text" json:"video_url,omitempty"`
	VideoThumbnail string `gorm:"type:text" json:"video_thumbnail,omitempty"`

	// Which search result page the listing was discovered on
	PageNumber int `gorm:"type:int" json:"page_number,omitempty"`

	// ステータス管理（論理削除）
	Status    ListingStatus `gorm:"type:varchar(20);not null;default:'active';index" json:"status,omitempty"`
	RemovedAt *time.Time    `gorm:"type:datetime" json:"removed_at,omitempty"`

	// タイムスタンプ
	FetchedAt time.Time `gorm:"type:datetime;not null" json:"fetched_at"`
	CreatedAt time.Time `gorm:"type:datetime;not null;autoCreateTime;index:idx_created_at,sort:desc" json:"created_at,omitempty"`
	UpdatedAt time.Time `gorm:"type:datetime;not null;autoUpdateTime" json:"updated_at,omitempty"`
}

// ListingStatus は物件のステータス
type ListingStatus string

const (
	ListingStatusActive  ListingStatus = "active"
	ListingStatusRemoved ListingStatus = "removed"
)

// TableName はテーブル名を明示的に指定
func (Listing) TableName() string {
	return "listings"
}

// IsActive reports whether the listing is still on the market.
func (l *Listing) IsActive() bool {
	return l.Status == ListingStatusActive
}

// MarkAsRemoved soft-deletes the listing.
func (l *Listing) MarkAsRemoved() {
	l.Status = ListingStatusRemoved
	now := time.Now()
	l.RemovedAt = &now
}

// HasUsableData reports whether the extraction produced enough to keep the
// record. Listings with neither a price nor a location are discarded.
func (l *Listing) HasUsableData() bool {
	return l.Price != "" || l.Location != ""
}

// EnsureID derives the primary key from the normalized listing URL.
func (l *Listing) EnsureID() {
	if l.ID == "" {
		l.ID = GenerateListingID(l.URL)
	}
}

// GenerateListingID returns the md5 hex of the normalized URL.
func GenerateListingID(rawURL string) string {
	hash := md5.Sum([]byte(NormalizeListingURL(rawURL)))
	return hex.EncodeToString(hash[:])
}

// NormalizeListingURL strips query string, fragment and trailing slash so the
// same property always hashes to the same ID.
func NormalizeListingURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.RawQuery = ""
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.Scheme = "https"

	return u.String()
}
