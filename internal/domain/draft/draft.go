// Package draft stores in-progress form input that has not been submitted
// yet. A draft is overwritten in place per form and removed once its
// submission is accepted.
package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fieldsync/internal/infrastructure/storage"
)

// Draft is one form's unsaved input.
type Draft struct {
	FormID    string          `json:"form_id"`
	Values    json.RawMessage `json:"values"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Service persists drafts in the store's drafts namespace.
type Service struct {
	store storage.DurableStore
}

// NewService creates a draft service.
func NewService(store storage.DurableStore) *Service {
	return &Service{store: store}
}

// Save writes the draft for formID, replacing any previous one.
func (s *Service) Save(ctx context.Context, formID string, values json.RawMessage) error {
	d := Draft{FormID: formID, Values: values, UpdatedAt: time.Now()}
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal draft %s: %w", formID, err)
	}
	if err := s.store.Set(ctx, storage.NamespaceDrafts, formID, data); err != nil {
		return fmt.Errorf("failed to save draft %s: %w", formID, err)
	}
	return nil
}

// Get loads the draft for formID. Returns storage.ErrNotFound when absent.
func (s *Service) Get(ctx context.Context, formID string) (*Draft, error) {
	data, err := s.store.Get(ctx, storage.NamespaceDrafts, formID)
	if err != nil {
		return nil, err
	}
	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft %s: %w", formID, err)
	}
	return &d, nil
}

// List returns all drafts in insertion order.
func (s *Service) List(ctx context.Context) ([]Draft, error) {
	entries, err := s.store.ListNamespace(ctx, storage.NamespaceDrafts)
	if err != nil {
		return nil, err
	}
	drafts := make([]Draft, 0, len(entries))
	for _, e := range entries {
		var d Draft
		if err := json.Unmarshal(e.Value, &d); err != nil {
			return nil, fmt.Errorf("failed to unmarshal draft %s: %w", e.Key, err)
		}
		drafts = append(drafts, d)
	}
	return drafts, nil
}

// Delete removes the draft for formID; deleting an absent draft is not an
// error.
func (s *Service) Delete(ctx context.Context, formID string) error {
	return s.store.Remove(ctx, storage.NamespaceDrafts, formID)
}
