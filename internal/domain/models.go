// Package domain defines the persistence models for sync jobs, reviews,
// stored credentials, derived-analysis caches, business settings, and
// scheduled review requests. These types are mapped with GORM and form the
// core data layer of the application.
package domain

import (
	"time"
)

// Job lifecycle statuses.
const (
	JobStatusCreated = "created"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
)

// ReviewRequest statuses. Every transition starts from "scheduled"; the other
// three are terminal.
const (
	RequestStatusScheduled = "scheduled"
	RequestStatusSent      = "sent"
	RequestStatusCancelled = "cancelled"
	RequestStatusFailed    = "failed"
)

// Job represents one sync target: a business location owned by a user.
// A Job is created on the first sync request for an owner+resource pair and
// is never hard-deleted; lookups by owner resolve to the most recent Job for
// that key prefix.
//
// Fields:
//   - ID: auto-increment primary key; also the upper bound used in dataset signatures.
//   - ResourceRef: stable upstream locator ("gbp://accounts/…/locations/…").
//   - OwnerKey: composite identity key ("user::<email>::gbp::<location>"), indexed.
//   - PlaceName: human-readable business label from the upstream location title.
//   - Status: created|running|done|failed.
//   - LastError: causing error text of the most recent failed run.
type Job struct {
	ID          uint      `json:"id"           gorm:"primaryKey"`
	ResourceRef string    `json:"resource_ref" gorm:"type:varchar(512);not null"`
	OwnerKey    string    `json:"owner_key"    gorm:"type:varchar(512);not null;index:idx_job_owner"`
	PlaceName   string    `json:"place_name"   gorm:"type:varchar(255)"`
	Status      string    `json:"status"       gorm:"type:varchar(16);not null;default:'created';check:status IN ('created','running','done','failed')"`
	LastError   *string   `json:"last_error,omitempty" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Job.
func (Job) TableName() string { return "jobs" }

// Review is one upstream review stored under a Job. Rows are append-only:
// the sync engine creates them and nothing mutates them afterwards. Logical
// uniqueness per Job is by external review identity, enforced by the engine's
// dedup pass rather than a structural constraint (the identity is derived
// from the raw payload, not a column).
//
// Raw keeps the full provider-native item as JSON text so the external
// identity and any dropped field can be recomputed later without a schema
// migration.
type Review struct {
	ID          uint      `json:"id"           gorm:"primaryKey"`
	JobID       uint      `json:"job_id"       gorm:"not null;index:idx_review_job"`
	Rating      int       `json:"rating"       gorm:"not null;default:0"`
	Body        *string   `json:"body,omitempty"         gorm:"type:text"`
	AuthorName  *string   `json:"author_name,omitempty"  gorm:"type:varchar(255)"`
	PublishedAt *string   `json:"published_at,omitempty" gorm:"type:varchar(64)"`
	Permalink   *string   `json:"permalink,omitempty"    gorm:"type:varchar(1024)"`
	Raw         string    `json:"-"            gorm:"type:text;not null"`
	CreatedAt   time.Time `json:"created_at"`

	// Job is the owning sync target. Reviews are cascade-deleted with it.
	Job Job `json:"-" gorm:"foreignKey:JobID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Review.
func (Review) TableName() string { return "reviews" }

// OAuthCredential stores the long-lived refresh credential for one owner
// identity. Connected=false marks a soft-revoked state without deleting
// history; the token manager refuses to use such rows.
type OAuthCredential struct {
	ID           uint      `json:"id"    gorm:"primaryKey"`
	Email        string    `json:"email" gorm:"type:varchar(255);not null;uniqueIndex"`
	RefreshToken string    `json:"-"     gorm:"type:text;not null"`
	SubjectID    *string   `json:"subject_id,omitempty" gorm:"type:varchar(128)"`
	Scope        string    `json:"scope"     gorm:"type:text"`
	Connected    bool      `json:"connected" gorm:"not null;default:true"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for OAuthCredential.
func (OAuthCredential) TableName() string { return "oauth_credentials" }

// AnalysisCache memoizes one expensive derived computation per
// (job, kind, params hash). The stored dataset signature
// (SourceCount, SourceMaxID) decides validity: when it no longer matches the
// live signature of the job's eligible reviews the entry is recomputed and
// overwritten in place. No history is kept.
type AnalysisCache struct {
	ID         uint   `json:"id"          gorm:"primaryKey"`
	JobID      uint   `json:"job_id"      gorm:"not null;uniqueIndex:uq_cache_job_kind_params,priority:1"`
	Kind       string `json:"kind"        gorm:"type:varchar(50);not null;uniqueIndex:uq_cache_job_kind_params,priority:2"`
	ParamsHash string `json:"params_hash" gorm:"type:varchar(64);not null;uniqueIndex:uq_cache_job_kind_params,priority:3"`

	SourceCount int  `json:"source_count"  gorm:"not null;default:0"`
	SourceMaxID uint `json:"source_max_id" gorm:"not null;default:0"`

	Payload    string    `json:"payload"     gorm:"type:text;not null"`
	ComputedAt time.Time `json:"computed_at" gorm:"not null"`
}

// TableName returns the database table name for AnalysisCache.
func (AnalysisCache) TableName() string { return "analysis_cache" }

// ReviewAIReply memoizes the AI-drafted reply for a single review, keyed by
// a hash of the review's (rating, body). The reply is regenerated if and only
// if that input hash changes.
type ReviewAIReply struct {
	ID        uint      `json:"id"         gorm:"primaryKey"`
	ReviewID  uint      `json:"review_id"  gorm:"not null;uniqueIndex"`
	JobID     uint      `json:"job_id"     gorm:"not null;index"`
	InputHash string    `json:"input_hash" gorm:"type:varchar(64);not null"`
	ReplyText string    `json:"reply_text" gorm:"type:text;not null"`
	Model     string    `json:"model"      gorm:"type:varchar(64);not null"`
	Tone      string    `json:"tone"       gorm:"type:varchar(32);not null;default:'default'"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for ReviewAIReply.
func (ReviewAIReply) TableName() string { return "review_ai_replies" }

// BusinessSettings holds per-Job outreach configuration. If PlaceID is set
// but ReviewURL is not, the URL is derivable deterministically and is
// backfilled lazily on first read.
type BusinessSettings struct {
	JobID        uint      `json:"job_id" gorm:"primaryKey"`
	PlaceID      *string   `json:"place_id,omitempty"      gorm:"type:varchar(128)"`
	ReviewURL    *string   `json:"review_url,omitempty"    gorm:"type:text"`
	BusinessName *string   `json:"business_name,omitempty" gorm:"type:varchar(200)"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for BusinessSettings.
func (BusinessSettings) TableName() string { return "business_settings" }

// ReviewRequest is one scheduled outbound review-request message tied to a
// completed customer interaction.
//
// State machine: scheduled → sent | cancelled | failed. Cancellation of an
// already-terminal request is a no-op. The sweep selects on
// (status=scheduled, send_at<=now) ordered oldest-due-first.
type ReviewRequest struct {
	ID            uint       `json:"id"             gorm:"primaryKey"`
	JobID         uint       `json:"job_id"         gorm:"not null;index:idx_request_job_send_status,priority:1"`
	CustomerName  string     `json:"customer_name"  gorm:"type:varchar(200);not null"`
	PhoneE164     string     `json:"phone_e164"     gorm:"type:varchar(32);not null;index"`
	InteractionAt time.Time  `json:"interaction_at" gorm:"not null"`
	SendAt        time.Time  `json:"send_at"        gorm:"not null;index:idx_request_job_send_status,priority:2"`
	Status        string     `json:"status"         gorm:"type:varchar(16);not null;default:'scheduled';index:idx_request_job_send_status,priority:3;check:status IN ('scheduled','sent','cancelled','failed')"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	ErrorMessage  *string    `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name for ReviewRequest.
func (ReviewRequest) TableName() string { return "review_requests" }
