package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User is a locally known chat user. Rows are created lazily on first
// successful authentication; Metadata carries the provider profile
// (name, id, token, provider).
type User struct {
	ID         string         `gorm:"primaryKey" json:"id"`
	Identifier string         `gorm:"uniqueIndex;not null" json:"identifier"`
	Metadata   datatypes.JSON `gorm:"column:metadata" json:"metadata"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"createdAt"`

	Threads []Thread `gorm:"foreignKey:UserID" json:"-"`
}

func (User) TableName() string { return "users" }

// Thread is one persisted conversation. Steps replay in creation order.
// Metadata may have been written by older deployments as a JSON string
// rather than a JSON object; NormalizeMetadata handles both shapes.
type Thread struct {
	ID             string         `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	Name           string         `json:"name"`
	UserID         *string        `gorm:"index" json:"userId"`
	UserIdentifier string         `gorm:"index" json:"userIdentifier"`
	Tags           datatypes.JSON `json:"tags"`
	Metadata       datatypes.JSON `gorm:"column:metadata" json:"metadata"`

	User  *User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Steps []Step `gorm:"foreignKey:ThreadID;constraint:OnDelete:CASCADE" json:"steps"`
}

func (Thread) TableName() string { return "threads" }

// Step types the replay logic cares about. The store accepts any type tag
// (tool calls, system steps, notes); only these two become LLM turns.
const (
	StepTypeUserMessage      = "user_message"
	StepTypeAssistantMessage = "assistant_message"
)

// Step is one recorded turn or event within a thread.
type Step struct {
	ID            string         `gorm:"primaryKey" json:"id"`
	Name          string         `gorm:"not null" json:"name"`
	Type          string         `gorm:"not null;index" json:"type"`
	ThreadID      string         `gorm:"not null;index" json:"threadId"`
	ParentID      *string        `json:"parentId"`
	Streaming     bool           `gorm:"not null;default:false" json:"streaming"`
	WaitForAnswer *bool          `json:"waitForAnswer"`
	IsError       bool           `gorm:"default:false" json:"isError"`
	Metadata      datatypes.JSON `gorm:"column:metadata" json:"metadata"`
	Tags          datatypes.JSON `json:"tags"`
	Input         string         `gorm:"type:text" json:"input"`
	Output        string         `gorm:"type:text" json:"output"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	Start         *time.Time     `json:"start"`
	End           *time.Time     `json:"end"`
	DefaultOpen   bool           `gorm:"default:false" json:"defaultOpen"`
	Generation    datatypes.JSON `json:"generation"`
	ShowInput     string         `gorm:"type:text" json:"showInput"`
	Language      string         `json:"language"`
	Indent        int            `json:"indent"`

	Thread *Thread `gorm:"foreignKey:ThreadID" json:"-"`
}

func (Step) TableName() string { return "steps" }

// Element is a file or rich attachment tied to a thread.
type Element struct {
	ID          string         `gorm:"primaryKey" json:"id"`
	ThreadID    *string        `gorm:"index" json:"threadId"`
	Type        string         `json:"type"`
	URL         string         `json:"url"`
	ClientKey   string         `json:"clientKey"`
	Name        string         `gorm:"not null" json:"name"`
	Display     string         `json:"display"`
	ObjectKey   string         `json:"objectKey"`
	Size        string         `json:"size"`
	Page        int            `json:"page"`
	Language    string         `json:"language"`
	ForID       string         `gorm:"column:for_id" json:"forId"`
	Mime        string         `json:"mime"`
	Props       datatypes.JSON `json:"props"`

	Thread *Thread `gorm:"foreignKey:ThreadID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Element) TableName() string { return "elements" }

// Feedback is a user rating attached to a step.
type Feedback struct {
	ID       string `gorm:"primaryKey" json:"id"`
	ForID    string `gorm:"column:for_id;not null" json:"forId"`
	ThreadID string `gorm:"not null;index" json:"threadId"`
	Value    int    `gorm:"not null" json:"value"`
	Comment  string `gorm:"type:text" json:"comment"`

	Thread *Thread `gorm:"foreignKey:ThreadID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Feedback) TableName() string { return "feedbacks" }

// BeforeCreate assigns UUIDs so callers never hand-roll IDs.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

func (t *Thread) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

func (s *Step) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

func (e *Element) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

func (f *Feedback) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}
