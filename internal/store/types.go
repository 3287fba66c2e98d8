package store

import (
	"encoding/json"
	"time"
)

// EditionStatus is the lifecycle state of an uploaded edition.
type EditionStatus string

const (
	EditionUploaded   EditionStatus = "UPLOADED"
	EditionProcessing EditionStatus = "PROCESSING"
	EditionReady      EditionStatus = "READY"
	EditionFailed     EditionStatus = "FAILED"
	EditionArchived   EditionStatus = "ARCHIVED"
	EditionCancelled  EditionStatus = "CANCELLED"
)

// EditionStage is the pipeline phase an edition is currently executing.
type EditionStage string

const (
	StageQueued  EditionStage = "QUEUED"
	StageExtract EditionStage = "EXTRACT"
	StageOCR     EditionStage = "OCR"
	StageLayout  EditionStage = "LAYOUT"
	StageIndex   EditionStage = "INDEX"
	StageDone    EditionStage = "DONE"
)

// ArchiveStatus tracks the archival flow, independent of EditionStatus.
type ArchiveStatus string

const (
	ArchiveNotScheduled ArchiveStatus = "NOT_SCHEDULED"
	ArchiveScheduled    ArchiveStatus = "SCHEDULED"
	ArchiveArchiving    ArchiveStatus = "ARCHIVING"
	ArchiveArchived     ArchiveStatus = "ARCHIVED"
	ArchiveFailed       ArchiveStatus = "ARCHIVE_FAILED"
)

// PageStatus is the per-page processing state.
type PageStatus string

const (
	PagePending    PageStatus = "PENDING"
	PageProcessing PageStatus = "PROCESSING"
	PageDone       PageStatus = "DONE"
	PageFailed     PageStatus = "FAILED"
)

// ItemType classifies a segmented content unit.
type ItemType string

const (
	ItemStory      ItemType = "STORY"
	ItemAd         ItemType = "AD"
	ItemClassified ItemType = "CLASSIFIED"
)

// Subtype refines CLASSIFIED items.
type Subtype string

const (
	SubtypeTender   Subtype = "TENDER"
	SubtypeJob      Subtype = "JOB"
	SubtypeAuction  Subtype = "AUCTION"
	SubtypeNotice   Subtype = "NOTICE"
	SubtypeProperty Subtype = "PROPERTY"
	SubtypeOther    Subtype = "OTHER"
)

// Edition is one uploaded newspaper issue and its processing state.
type Edition struct {
	ID              string        `json:"id"`
	NewspaperName   string        `json:"newspaper_name"`
	EditionDate     string        `json:"edition_date"` // YYYY-MM-DD
	ContentHash     string        `json:"content_hash"`
	TotalPages      int           `json:"total_pages"`
	ProcessedPages  int           `json:"processed_pages"`
	Status          EditionStatus `json:"status"`
	Stage           EditionStage  `json:"stage"`
	ArchiveStatus   ArchiveStatus `json:"archive_status"`
	StorageBackend  string        `json:"storage_backend"`
	StorageKey      string        `json:"storage_key"`
	CoverImageKey   string        `json:"cover_image_key,omitempty"`
	ActiveRunID     string        `json:"active_run_id,omitempty"`
	CancelRequested bool          `json:"cancel_requested,omitempty"`
	LastError       string        `json:"last_error,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Page is one physical page of an edition.
type Page struct {
	ID            string     `json:"id"`
	EditionID     string     `json:"edition_id"`
	PageNumber    int        `json:"page_number"`
	Status        PageStatus `json:"status"`
	CharCount     int        `json:"char_count"`
	OCRUsed       bool       `json:"ocr_used"`
	OCREngine     string     `json:"ocr_engine,omitempty"`
	OCRConfidence *int       `json:"ocr_confidence,omitempty"` // 0-100, nil when OCR not used
	ImageKey      string     `json:"image_key,omitempty"`
	ExtractedText string     `json:"extracted_text,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// BoundingBox locates an item on its page, in page coordinate fractions.
type BoundingBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Entities holds pattern-extracted entity data for an item.
type Entities struct {
	Dates     []string `json:"dates,omitempty"`
	Emails    []string `json:"emails,omitempty"`
	Phones    []string `json:"phones,omitempty"`
	Prices    []string `json:"prices,omitempty"`
	Locations []string `json:"locations,omitempty"`
}

// Item is one segmented unit of content on a page.
type Item struct {
	ID             string          `json:"id"`
	EditionID      string          `json:"edition_id"`
	PageID         string          `json:"page_id"`
	PageNumber     int             `json:"page_number"`
	ItemType       ItemType        `json:"item_type"`
	Subtype        Subtype         `json:"subtype,omitempty"` // classifieds only
	Title          string          `json:"title,omitempty"`
	Text           string          `json:"text"`
	Bounds         BoundingBox     `json:"bounds"`
	Entities       Entities        `json:"entities"`
	StructuredData json.RawMessage `json:"structured_data,omitempty"` // JobDetails or TenderDetails
	CreatedAt      time.Time       `json:"created_at"`
}

// StoryGroup is a story's items merged across continuation pages.
// Derived data: recomputed on every (re)index, never hand-edited.
type StoryGroup struct {
	ID        string   `json:"id"`
	EditionID string   `json:"edition_id"`
	Title     string   `json:"title"`
	Pages     []int    `json:"pages"` // ordered
	ItemIDs   []string `json:"item_ids"`
	Excerpt   string   `json:"excerpt"`
	FullText  string   `json:"full_text"`
}

// Category is a named topical tag with keywords used for auto-classification.
type Category struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Color    string   `json:"color,omitempty"`
	Keywords []string `json:"keywords"`
	Active   bool     `json:"active"`
}

// CategorySource distinguishes automatic from manual assignments.
type CategorySource string

const (
	CategoryAuto   CategorySource = "auto"
	CategoryManual CategorySource = "manual"
)

// ItemCategory associates an item with a category.
type ItemCategory struct {
	ItemID     string         `json:"item_id"`
	CategoryID string         `json:"category_id"`
	Confidence int            `json:"confidence"` // 0-100
	Source     CategorySource `json:"source"`
}

// RunStats is the stats blob recorded on an extraction run.
type RunStats struct {
	PagesTotal     int   `json:"pages_total"`
	PagesProcessed int   `json:"pages_processed"`
	PagesFailed    int   `json:"pages_failed"`
	ItemCount      int   `json:"item_count"`
	DurationMS     int64 `json:"duration_ms"`
}

// RunStatus is the lifecycle state of an extraction run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// ExtractionRun is the append-only audit record of one pipeline execution.
type ExtractionRun struct {
	ID           string     `json:"id"`
	EditionID    string     `json:"edition_id"`
	Version      string     `json:"version"`
	Trigger      string     `json:"trigger"` // "initial", "reprocess", "retry"
	Success      bool       `json:"success"`
	Status       RunStatus  `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Stats        RunStats   `json:"stats"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// SavedSearch is a persisted query whose match count is recomputed on demand.
type SavedSearch struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Query      string     `json:"query"`
	ItemTypes  []ItemType `json:"item_types,omitempty"`
	DateFrom   string     `json:"date_from,omitempty"` // YYYY-MM-DD
	DateTo     string     `json:"date_to,omitempty"`
	MatchCount int        `json:"match_count"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
}
