package metadata

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Service validates input and delegates to the store. Authorization is
// the HTTP layer's concern; this layer only enforces data invariants.
type Service struct {
	store Store
}

func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("metadata store is required")
	}
	return &Service{store: store}, nil
}

func (s *Service) Create(ctx context.Context, ownerID, organizationID, title, abstract string, keywords []string) (*Record, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	rec := &Record{
		Title:          title,
		Abstract:       strings.TrimSpace(abstract),
		Keywords:       dedupeKeywords(keywords),
		OrganizationID: strings.TrimSpace(organizationID),
		OwnerID:        ownerID,
		Status:         StatusDraft,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: record id is required", ErrInvalidInput)
	}
	return s.store.Find(ctx, id)
}

func (s *Service) Update(ctx context.Context, id string, upd Update) (*Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: record id is required", ErrInvalidInput)
	}
	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
		}
		upd.Title = &title
	}
	if upd.Abstract != nil {
		abstract := strings.TrimSpace(*upd.Abstract)
		upd.Abstract = &abstract
	}
	if upd.Keywords != nil {
		upd.Keywords = dedupeKeywords(upd.Keywords)
	}
	return s.store.Update(ctx, id, upd)
}

// SetStatus moves a record through the validation workflow. Submission
// is open to the owner; approval and rejection are gated at the HTTP
// layer on the validate permission.
func (s *Service) SetStatus(ctx context.Context, id string, status Status) (*Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: record id is required", ErrInvalidInput)
	}
	if !ValidStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return s.store.SetStatus(ctx, id, status)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: record id is required", ErrInvalidInput)
	}
	return s.store.Delete(ctx, id)
}

func (s *Service) Search(ctx context.Context, q Query) ([]*Record, error) {
	if q.Limit <= 0 || q.Limit > 200 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.Status != "" && !ValidStatus(q.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, q.Status)
	}
	q.Keyword = strings.TrimSpace(q.Keyword)
	return s.store.Search(ctx, q)
}

func dedupeKeywords(keywords []string) []string {
	if len(keywords) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(keywords))
	var out []string
	for _, kw := range keywords {
		kw = strings.TrimSpace(strings.ToLower(kw))
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}
