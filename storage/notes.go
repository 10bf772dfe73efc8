package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"voicenotes/notes"
)

type noteRow struct {
	ID        string `gorm:"primaryKey"`
	Position  int    `gorm:"index;not null"`
	Content   string `gorm:"not null"`
	CreatedAt time.Time

	AIPromptType *string `gorm:"column:ai_prompt_type"`
	AIResponse   *string `gorm:"column:ai_response"`

	FailurePromptType *string    `gorm:"column:ai_failure_prompt_type"`
	FailureMessage    *string    `gorm:"column:ai_failure_message"`
	FailureAt         *time.Time `gorm:"column:ai_failure_at"`
}

func (noteRow) TableName() string { return "notes" }

func toRow(n notes.Note, pos int) noteRow {
	r := noteRow{ID: n.ID, Position: pos, Content: n.Content, CreatedAt: n.CreatedAt}
	if n.AI != nil {
		r.AIPromptType = &n.AI.PromptType
		r.AIResponse = &n.AI.Response
	}
	if f := n.AIFailure; f != nil {
		r.FailurePromptType = &f.PromptType
		r.FailureMessage = &f.Message
		r.FailureAt = &f.At
	}
	return r
}

func (r noteRow) toNote() notes.Note {
	n := notes.Note{ID: r.ID, Content: r.Content, CreatedAt: r.CreatedAt}
	// a half-written result is treated as no result
	if r.AIPromptType != nil && r.AIResponse != nil {
		n.AI = &notes.AIResult{PromptType: *r.AIPromptType, Response: *r.AIResponse}
	}
	if r.FailurePromptType != nil && r.FailureMessage != nil {
		f := &notes.AIFailure{PromptType: *r.FailurePromptType, Message: *r.FailureMessage}
		if r.FailureAt != nil {
			f.At = *r.FailureAt
		}
		n.AIFailure = f
	}
	return n
}

// NoteRepository stores the note collection as rows ordered by position.
type NoteRepository struct {
	db *gorm.DB
}

func NewNoteRepository(db *gorm.DB) *NoteRepository {
	return &NoteRepository{db: db}
}

func (r *NoteRepository) LoadNotes(ctx context.Context) ([]notes.Note, error) {
	var rows []noteRow
	if err := r.db.WithContext(ctx).Order("position asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load notes: %w", err)
	}
	out := make([]notes.Note, len(rows))
	for i, row := range rows {
		out[i] = row.toNote()
	}
	return out, nil
}

// SaveNotes replaces the table contents with ns in one transaction.
func (r *NoteRepository) SaveNotes(ctx context.Context, ns []notes.Note) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&noteRow{}).Error; err != nil {
			return fmt.Errorf("clear notes: %w", err)
		}
		if len(ns) == 0 {
			return nil
		}
		rows := make([]noteRow, len(ns))
		for i, n := range ns {
			rows[i] = toRow(n, i)
		}
		if err := tx.CreateInBatches(rows, 100).Error; err != nil {
			return fmt.Errorf("insert notes: %w", err)
		}
		return nil
	})
}

// Count is used by the doctor checks.
func (r *NoteRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&noteRow{}).Count(&n).Error
	return n, err
}
