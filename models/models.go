// Package models defines the relational schema shared by the API server and
// the indexing worker: users, documents, sources, notebooks, notebook
// memberships and messages.
//
// Schema invariants enforced at the database level:
//   - a user may hold at most one Document per object key (uq_user_object_key)
//   - a source appears at most once per notebook (uq_notebook_source)
//   - deleting a Notebook cascades to its NotebookSource and NotebookMessage rows
//   - deleting a Source cascades to its NotebookSource rows and linked Document
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Resource status values. Status is advanced only by the indexing worker
// after creation; failed may be reached from any state.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusIndexed    = "indexed"
	StatusFailed     = "failed"
)

// Source kinds.
const (
	SourceTypeDocument = "document"
	SourceTypeURL      = "url"
	SourceTypeVideo    = "video"
	SourceTypeImage    = "image"
	SourceTypeText     = "text"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// JSONMap stores a free-form JSON object in a single column.
type JSONMap map[string]interface{}

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported type %T for JSONMap", value)
	}
}

// StringList stores a JSON array of strings in a single column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported type %T for StringList", value)
	}
}

// User is the identity bearer. NoteBase does not manage user profiles; the
// row exists for foreign keys and the superuser flag on the admin surface.
type User struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email       string    `gorm:"uniqueIndex;not null" json:"email"`
	IsSuperuser bool      `gorm:"not null;default:false" json:"is_superuser"`
	CreatedAt   time.Time `json:"created_at"`
}

// Document is an uploaded binary blob plus its object-store coordinates.
type Document struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID     uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:uq_user_object_key" json:"owner_id"`
	Filename    string     `gorm:"not null" json:"filename"`
	MimeType    string     `gorm:"not null" json:"mime_type"`
	Size        int64      `gorm:"not null" json:"size"`
	Bucket      string     `gorm:"not null" json:"bucket"`
	ObjectKey   string     `gorm:"not null;uniqueIndex:uq_user_object_key" json:"object_key"`
	DocMetadata JSONMap    `gorm:"type:jsonb" json:"doc_metadata"`
	Status      string     `gorm:"not null;default:pending;index" json:"status"`
	Version     int        `gorm:"not null;default:1" json:"version"`
	SourceID    *uuid.UUID `gorm:"type:uuid;index" json:"source_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// BeforeCreate assigns an id when the caller did not.
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// Source is a logical citable item of a given kind. The metadata shape
// depends on SourceType: document -> {document_id}, url -> {url},
// text -> {content}.
type Source struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID        uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_id"`
	Title          string    `gorm:"not null" json:"title"`
	Description    string    `json:"description"`
	SourceType     string    `gorm:"not null;index" json:"source_type"`
	SourceMetadata JSONMap   `gorm:"type:jsonb" json:"source_metadata"`
	Status         string    `gorm:"not null;default:pending;index" json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (s *Source) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// DocumentID extracts the linked document id for document sources.
func (s *Source) DocumentID() (uuid.UUID, bool) {
	if s.SourceMetadata == nil {
		return uuid.Nil, false
	}
	raw, ok := s.SourceMetadata["document_id"].(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// URL extracts the url for url sources.
func (s *Source) URL() (string, bool) {
	if s.SourceMetadata == nil {
		return "", false
	}
	u, ok := s.SourceMetadata["url"].(string)
	return u, ok && u != ""
}

// Content extracts the raw content for text sources.
func (s *Source) Content() (string, bool) {
	if s.SourceMetadata == nil {
		return "", false
	}
	c, ok := s.SourceMetadata["content"].(string)
	return c, ok && c != ""
}

// Notebook is a user-owned workspace binding a set of sources and a message
// history.
type Notebook struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID     uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_id"`
	Title       string    `gorm:"not null" json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (n *Notebook) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

// NotebookSource is the M:N membership row with ordering.
type NotebookSource struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	NotebookID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_notebook_source" json:"notebook_id"`
	SourceID   uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uq_notebook_source" json:"source_id"`
	Position   int       `gorm:"not null;default:0" json:"position"`
	AddedAt    time.Time `gorm:"autoCreateTime" json:"added_at"`

	Notebook *Notebook `gorm:"foreignKey:NotebookID;constraint:OnDelete:CASCADE" json:"-"`
	Source   *Source   `gorm:"foreignKey:SourceID;constraint:OnDelete:CASCADE" json:"source,omitempty"`
}

func (ns *NotebookSource) BeforeCreate(tx *gorm.DB) error {
	if ns.ID == uuid.Nil {
		ns.ID = uuid.New()
	}
	return nil
}

// NotebookMessage is one conversational turn stored with a notebook.
type NotebookMessage struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	NotebookID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"notebook_id"`
	Role        string     `gorm:"not null" json:"role"`
	Content     string     `gorm:"not null" json:"content"`
	UsedSources StringList `gorm:"type:jsonb" json:"used_sources,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`

	Notebook *Notebook `gorm:"foreignKey:NotebookID;constraint:OnDelete:CASCADE" json:"-"`
}

func (m *NotebookMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// All lists every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Document{},
		&Source{},
		&Notebook{},
		&NotebookSource{},
		&NotebookMessage{},
	}
}
