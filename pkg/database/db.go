package database

import (
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Patient represents the patients table. Clinical and administrative data
// live in their own screens; the scheduling core only needs the reference
// and the contract linkage.
type Patient struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"not null" json:"name"`
	ContractorID uint      `gorm:"index" json:"contractor_id"`
	Active       bool      `gorm:"default:true" json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Professional represents the professionals table (the candidate assignees).
type Professional struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Role      string    `gorm:"not null;index" json:"role"`
	Active    bool      `gorm:"default:true" json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Service is the billable catalog entry a shift slot is charged against.
// One placeholder row per patient+name is ensured before generation.
type Service struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	PatientID uint            `gorm:"uniqueIndex:idx_patient_service;not null" json:"patient_id"`
	Name      string          `gorm:"uniqueIndex:idx_patient_service;not null" json:"name"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(10,2)" json:"unit_price"`
	CreatedAt time.Time       `json:"created_at"`
}

// RotationRuleRecord is the per-patient rotation configuration. Absence of a
// row is a normal case; the resolver substitutes the system default.
type RotationRuleRecord struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	PatientID             uint      `gorm:"uniqueIndex;not null" json:"patient_id"`
	Scheme                string    `gorm:"not null" json:"scheme"`
	DayStart              string    `gorm:"not null" json:"day_start"`
	NightStart            string    `gorm:"not null" json:"night_start"`
	ProfessionalsPerShift int       `gorm:"default:1" json:"professionals_per_shift"`
	RequiredRole          string    `gorm:"not null" json:"required_role"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// ShiftSlot is the central scheduling entity. The unique index on
// (patient_id, shift_type, start_time) is what makes bulk generation
// idempotent: a conflicting insert is a skip, not a failure.
type ShiftSlot struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	PatientID      uint       `gorm:"uniqueIndex:idx_patient_type_start;not null" json:"patient_id"`
	ProfessionalID *uint      `gorm:"index" json:"professional_id"`
	ServiceID      uint       `gorm:"not null" json:"service_id"`
	ShiftType      string     `gorm:"uniqueIndex:idx_patient_type_start;not null" json:"shift_type"`
	StartTime      time.Time  `gorm:"uniqueIndex:idx_patient_type_start;not null" json:"start_time"`
	EndTime        time.Time  `gorm:"not null" json:"end_time"`
	Status         string     `gorm:"not null;index" json:"status"`
	CheckInTime    *time.Time `json:"check_in_time"`
	CheckOutTime   *time.Time `json:"check_out_time"`
	BillingBatchID *uint      `gorm:"index" json:"billing_batch_id"`
	CandidateCount int        `gorm:"default:0" json:"candidate_count"`
	CancelReason   string     `json:"cancel_reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// BeforeCreate assigns a uuid primary key when the caller did not.
func (s *ShiftSlot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// BillingBatch groups completed shifts handed to the invoicing subsystem.
// The core only stamps the linkage; invoice math happens elsewhere.
type BillingBatch struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Reference string    `gorm:"unique;not null" json:"reference"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditEvent records one lifecycle transition. Writes are best-effort.
type AuditEvent struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Entity       string    `gorm:"not null;index" json:"entity"`
	EntityID     string    `gorm:"not null;index" json:"entity_id"`
	Action       string    `gorm:"not null" json:"action"`
	BeforeStatus string    `json:"before_status"`
	AfterStatus  string    `json:"after_status"`
	Actor        string    `json:"actor"`
	Detail       string    `json:"detail"`
	CreatedAt    time.Time `json:"created_at"`
}

func (e *AuditEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// APIKey represents the api_keys table
type APIKey struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Key        string     `gorm:"unique;not null" json:"key"`
	Name       string     `gorm:"not null" json:"name"`
	KeyPreview string     `json:"key_preview"`
	RateLimit  int        `gorm:"default:10000" json:"rate_limit"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsed   *time.Time `json:"last_used"`
}

// APIUsage represents the api_usage table
type APIUsage struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	KeyID            uint   `gorm:"uniqueIndex:idx_key_date;not null" json:"key_id"`
	Date             string `gorm:"uniqueIndex:idx_key_date;not null" json:"date"`
	RequestCount     int    `gorm:"default:0" json:"request_count"`
	TotalSlots       int    `gorm:"default:0" json:"total_slots"`
	TotalTransitions int    `gorm:"default:0" json:"total_transitions"`
}

// MasterUser represents the master_users table
type MasterUser struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"unique;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// Migrate runs the schema migration for every table the service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Patient{},
		&Professional{},
		&Service{},
		&RotationRuleRecord{},
		&ShiftSlot{},
		&BillingBatch{},
		&AuditEvent{},
		&APIKey{},
		&APIUsage{},
		&MasterUser{},
	)
}

// InitDB initializes the database connection and migrates the schema.
// DATABASE_URL selects Postgres; otherwise a local SQLite file is used.
func InitDB() *gorm.DB {
	var db *gorm.DB
	var err error

	dsn := os.Getenv("DATABASE_URL")
	if dsn != "" {
		db, err = gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			PrepareStmt: false,
		})
	} else {
		dbPath := os.Getenv("DATA_PATH")
		if dbPath == "" {
			dbPath = "homecare.db"
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	}

	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}

	if err := Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate schema")
	}

	return db
}
