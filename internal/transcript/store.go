// Package transcript persists agent conversations.
package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/BaSui01/agentdash/types"
)

// Entry is one stored conversation message.
type Entry struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	AgentID    string    `gorm:"size:36;not null;index:idx_transcript_agent" json:"agent_id"`
	AgentKind  string    `gorm:"size:32;not null" json:"agent_kind"`
	ParentID   string    `gorm:"size:36;index" json:"parent_id,omitempty"`
	Role       string    `gorm:"size:16;not null" json:"role"`
	Content    string    `gorm:"type:text" json:"content"`
	ToolCalls  string    `gorm:"type:text" json:"tool_calls,omitempty"`
	ToolCallID string    `gorm:"size:128" json:"tool_call_id,omitempty"`
	IsError    bool      `gorm:"default:false" json:"is_error"`
	Timestamp  time.Time `gorm:"index:idx_transcript_agent" json:"timestamp"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Entry) TableName() string {
	return "agent_transcripts"
}

// Message converts e back to a conversation message.
func (e Entry) Message() (types.Message, error) {
	msg := types.Message{
		Role:       types.Role(e.Role),
		Content:    e.Content,
		ToolCallID: e.ToolCallID,
		IsError:    e.IsError,
		Timestamp:  e.Timestamp,
	}
	if e.ToolCalls != "" {
		if err := json.Unmarshal([]byte(e.ToolCalls), &msg.ToolCalls); err != nil {
			return types.Message{}, fmt.Errorf("decode tool calls of entry %d: %w", e.ID, err)
		}
	}
	return msg, nil
}

func newEntry(id types.AgentID, agentType types.AgentType, msg types.Message) (Entry, error) {
	e := Entry{
		AgentID:    id.String(),
		AgentKind:  string(agentType.Kind),
		Role:       string(msg.Role),
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
		IsError:    msg.IsError,
		Timestamp:  msg.Timestamp,
	}
	if parent, ok := agentType.Parent(); ok {
		e.ParentID = parent.String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if len(msg.ToolCalls) > 0 {
		data, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return Entry{}, fmt.Errorf("encode tool calls: %w", err)
		}
		e.ToolCalls = string(data)
	}
	return e, nil
}

// Store reads and writes transcript entries.
type Store struct {
	db *gorm.DB
}

// NewStore migrates the transcript table and returns a Store.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Append stores msg for the agent.
func (s *Store) Append(ctx context.Context, id types.AgentID, agentType types.AgentType, msg types.Message) error {
	e, err := newEntry(id, agentType, msg)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&e).Error; err != nil {
		return fmt.Errorf("append transcript entry: %w", err)
	}
	return nil
}

// Entries returns the stored entries of an agent in insertion order.
func (s *Store) Entries(ctx context.Context, id types.AgentID) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).
		Where("agent_id = ?", id.String()).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list transcript: %w", err)
	}
	return entries, nil
}

// Messages returns the stored conversation of an agent.
func (s *Store) Messages(ctx context.Context, id types.AgentID) ([]types.Message, error) {
	entries, err := s.Entries(ctx, id)
	if err != nil {
		return nil, err
	}
	msgs := make([]types.Message, 0, len(entries))
	for _, e := range entries {
		m, err := e.Message()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Count returns the number of stored messages of an agent.
func (s *Store) Count(ctx context.Context, id types.AgentID) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Entry{}).Where("agent_id = ?", id.String()).Count(&n).Error
	return n, err
}

// Clear removes the stored conversation of an agent.
func (s *Store) Clear(ctx context.Context, id types.AgentID) (int64, error) {
	res := s.db.WithContext(ctx).Where("agent_id = ?", id.String()).Delete(&Entry{})
	if res.Error != nil {
		return 0, fmt.Errorf("clear transcript: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Workers returns the ids of agents whose transcripts name parent.
func (s *Store) Workers(ctx context.Context, parent types.AgentID) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&Entry{}).
		Where("parent_id = ?", parent.String()).
		Distinct("agent_id").
		Pluck("agent_id", &ids).Error
	return ids, err
}
