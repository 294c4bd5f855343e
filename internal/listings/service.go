package listings

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, req *CreateListingRequest) (*Listing, error) {
	now := time.Now()
	condition := req.Condition
	if condition == "" {
		condition = "good"
	}

	l := &Listing{
		ID:          uuid.New(),
		OwnerUserID: ownerID,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		PriceCents:  req.PriceCents,
		Condition:   condition,
		PhotoURLs:   req.PhotoURLs,
		Status:      "draft",
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Listing, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByOwner(ctx context.Context, ownerID uuid.UUID, params ListParams) ([]*Listing, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}

	offset := (params.Page - 1) * params.PageSize
	items, err := s.repo.ListByOwner(ctx, ownerID, params.PageSize, offset)
	if err != nil {
		return nil, 0, err
	}

	count, err := s.repo.CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, 0, err
	}
	return items, count, nil
}

func (s *Service) Update(ctx context.Context, l *Listing, req *UpdateListingRequest) (*Listing, error) {
	if req.Title != nil {
		l.Title = *req.Title
	}
	if req.Description != nil {
		l.Description = *req.Description
	}
	if req.Category != nil {
		l.Category = *req.Category
	}
	if req.PriceCents != nil {
		l.PriceCents = *req.PriceCents
	}
	if req.Condition != nil {
		l.Condition = *req.Condition
	}
	if req.Status != nil {
		l.Status = *req.Status
	}
	if req.PhotoURLs != nil {
		l.PhotoURLs = req.PhotoURLs
	}
	l.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.SoftDelete(ctx, id)
}

// AttachGeneratedCopy stores the generated listing copy on the listing and
// promotes a draft to active.
func (s *Service) AttachGeneratedCopy(ctx context.Context, l *Listing, copyJSON json.RawMessage) error {
	l.GeneratedCopy = copyJSON
	if l.Status == "draft" {
		l.Status = "active"
	}
	l.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, l); err != nil {
		return fmt.Errorf("attaching generated copy: %w", err)
	}
	return nil
}

func (s *Service) AddFeedback(ctx context.Context, listingID uuid.UUID, userID *uuid.UUID, req *FeedbackRequest) (*Feedback, error) {
	f := &Feedback{
		ID:        uuid.New(),
		ListingID: listingID,
		UserID:    userID,
		Helpful:   req.Helpful,
		Comment:   req.Comment,
		CreatedAt: time.Now(),
	}
	if err := s.repo.AddFeedback(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Service) ListFeedback(ctx context.Context, listingID uuid.UUID, params ListParams) ([]*Feedback, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}
	offset := (params.Page - 1) * params.PageSize
	return s.repo.ListFeedback(ctx, listingID, params.PageSize, offset)
}
