package models

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrTranslationNotFound is returned when no stored translation exists for a reference.
var ErrTranslationNotFound = errors.New("translation not found")

// TextValue holds a Sefaria text body, which the upstream API returns either as a
// single string (whole page) or as an array of strings (one per section).
type TextValue struct {
	Single   string
	Sections []string
	isArray  bool
}

func (t *TextValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.Single = s
		t.isArray = false
		t.Sections = nil
		return nil
	}
	var arr []string
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	t.Sections = arr
	t.isArray = true
	return nil
}

func (t TextValue) MarshalJSON() ([]byte, error) {
	if t.isArray {
		return json.Marshal(t.Sections)
	}
	return json.Marshal(t.Single)
}

// IsSectioned reports whether the upstream delivered the text as per-section segments.
func (t TextValue) IsSectioned() bool { return t.isArray }

// Segments returns the text as an ordered list of sections. A single-string text
// yields one segment; an empty single string yields none.
func (t TextValue) Segments() []string {
	if t.isArray {
		return t.Sections
	}
	if t.Single == "" {
		return nil
	}
	return []string{t.Single}
}

// NewSectionedText builds an array-form TextValue.
func NewSectionedText(sections []string) TextValue {
	return TextValue{Sections: sections, isArray: true}
}

// NewSingleText builds a single-string TextValue.
func NewSingleText(s string) TextValue {
	return TextValue{Single: s}
}

// SefariaText is the subset of the upstream texts response the service depends on.
type SefariaText struct {
	Ref      string            `json:"ref"`
	HeRef    string            `json:"heRef"`
	Text     TextValue         `json:"text"`
	He       TextValue         `json:"he"`
	Versions []json.RawMessage `json:"versions,omitempty"`
}

// CollectiveTitle names a commentator collection in both languages.
type CollectiveTitle struct {
	En string `json:"en"`
	He string `json:"he"`
}

// Link is an edge from a source reference to a related text.
type Link struct {
	SourceRef       string           `json:"sourceRef"`
	SourceHeRef     string           `json:"sourceHeRef,omitempty"`
	Ref             string           `json:"ref"`
	HeRef           string           `json:"heRef,omitempty"`
	Type            string           `json:"type"`
	Category        string           `json:"category"`
	IndexTitle      string           `json:"index_title,omitempty"`
	CollectiveTitle *CollectiveTitle `json:"collectiveTitle,omitempty"`
	Commentator     string           `json:"commentator,omitempty"`
}

// TranslationRecord is the durable row stored per reference.
type TranslationRecord struct {
	ID                 string                 `json:"id"`
	SefariaRef         string                 `json:"sefaria_ref"`
	HebrewText         string                 `json:"hebrew_text"`
	EnglishTranslation string                 `json:"english_translation"`
	ModelUsed          string                 `json:"model_used"`
	RequestCost        float64                `json:"request_cost"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
}

// TranslationResult is what callers of the dispatcher receive.
type TranslationResult struct {
	Translation string  `json:"translation"`
	Cached      bool    `json:"cached"`
	Model       string  `json:"model"`
	Cost        float64 `json:"cost"`
}

// Stream frame types emitted on the translate stream.
const (
	StreamTypeCached   = "cached"
	StreamTypeChunk    = "chunk"
	StreamTypeComplete = "complete"
	StreamTypeError    = "error"
)

// StreamDone is the literal terminal sentinel payload.
const StreamDone = "[DONE]"

// StreamFrame is one event on the translate stream. Exactly one of the optional
// field groups is populated depending on Type. Cost is a pointer so chunk and
// error frames omit it entirely while cached frames still carry an explicit 0.
type StreamFrame struct {
	Type        string   `json:"type"`
	Content     string   `json:"content,omitempty"`
	Translation string   `json:"translation,omitempty"`
	Model       string   `json:"model,omitempty"`
	Cost        *float64 `json:"cost,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// FrameCost boxes a cost for the frame types that carry one.
func FrameCost(v float64) *float64 { return &v }

// NavigationState is the per-session study path. Path is append-only except for
// the explicit back/home operations; Expanded tracks open tree nodes;
// ExpandedCommentary maps a section reference to the single commentary currently
// open under it.
type NavigationState struct {
	Path               []string          `json:"path"`
	Expanded           []string          `json:"expanded_nodes,omitempty"`
	ExpandedCommentary map[string]string `json:"expanded_commentary,omitempty"`
}

// Visit is one recorded navigation step for a user.
type Visit struct {
	UserID     string    `json:"user_id"`
	SefariaRef string    `json:"sefaria_ref"`
	ParentRef  string    `json:"parent_ref,omitempty"`
	VisitedAt  time.Time `json:"visited_at"`
}
