// Package knowledge implements four typed tables — Convention,
// Decision, Learning, Artifact — with semantic dedup and confidence
// maintenance.
package knowledge

import "time"

// Entry is the embedable interface shared by all four knowledge
// records.
type Entry interface {
	TypeTag() string
	EmbedText() string
	ID() string
	CreatedAt() time.Time
}

// Convention is a recurring project norm, deduplicated on add.
type Convention struct {
	IDValue       string    `json:"id"`
	Content       string    `json:"content"`
	Topics        []string  `json:"topics,omitempty"`
	SourceSession string    `json:"source_session,omitempty"`
	Confidence    float64   `json:"confidence"`
	LastVerified  time.Time `json:"last_verified"`
	Created       time.Time `json:"created_at"`
}

func (c Convention) TypeTag() string      { return "convention" }
func (c Convention) EmbedText() string    { return c.Content }
func (c Convention) ID() string           { return c.IDValue }
func (c Convention) CreatedAt() time.Time { return c.Created }

// Decision is an immutable record of a choice made during a session.
type Decision struct {
	IDValue      string    `json:"id"`
	Question     string    `json:"question"`
	DecisionText string    `json:"decision"`
	Rationale    string    `json:"rationale"`
	Alternatives []string  `json:"alternatives,omitempty"`
	DecidedBy    string    `json:"decided_by"`
	SessionID    string    `json:"session_id"`
	Topics       []string  `json:"topics,omitempty"`
	Created      time.Time `json:"created_at"`
}

func (d Decision) TypeTag() string      { return "decision" }
func (d Decision) EmbedText() string    { return d.Question + " " + d.DecisionText + " " + d.Rationale }
func (d Decision) ID() string           { return d.IDValue }
func (d Decision) CreatedAt() time.Time { return d.Created }

// Learning is a pattern distilled from one or more sessions, deduplicated
// on add.
type Learning struct {
	IDValue     string    `json:"id"`
	Pattern     string    `json:"pattern"`
	Confidence  float64   `json:"confidence"`
	LearnedFrom []string  `json:"learned_from"`
	Category    string    `json:"category"`
	Created     time.Time `json:"created_at"`
}

func (l Learning) TypeTag() string      { return "learning" }
func (l Learning) EmbedText() string    { return l.Pattern }
func (l Learning) ID() string           { return l.IDValue }
func (l Learning) CreatedAt() time.Time { return l.Created }

// Artifact is an immutable pointer to a produced file/class/function.
type Artifact struct {
	IDValue           string    `json:"id"`
	ArtifactType      string    `json:"type"`
	Path              string    `json:"path"`
	Description       string    `json:"description"`
	CreatedInSession  string    `json:"created_in_session"`
	Topics            []string  `json:"topics,omitempty"`
	Created           time.Time `json:"created_at"`
}

func (a Artifact) TypeTag() string      { return "artifact" }
func (a Artifact) EmbedText() string    { return a.ArtifactType + " " + a.Path + ": " + a.Description }
func (a Artifact) ID() string           { return a.IDValue }
func (a Artifact) CreatedAt() time.Time { return a.Created }
