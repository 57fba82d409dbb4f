// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

// Package leads validates and records lead submissions from the widget.
package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/leadchat/internal/logging"
	"github.com/tomtom215/leadchat/internal/metrics"
	"github.com/tomtom215/leadchat/internal/models"
	"github.com/tomtom215/leadchat/internal/validation"
)

// Repository is the subset of storage the service writes to.
type Repository interface {
	CreateLead(ctx context.Context, lead *models.Lead) error
	CreateChatSession(ctx context.Context, session *models.ChatSession) error
	RecordEvent(ctx context.Context, event *models.Event) error
}

// SubmitRequest is the body of POST /api/leads. The BHK preference may
// arrive as bhk (number or string), bhkType or bhk_type.
type SubmitRequest struct {
	Phone        string               `json:"phone" validate:"required,max=32"`
	Name         string               `json:"name,omitempty" validate:"max=120"`
	BHK          any                  `json:"bhk,omitempty"`
	BHKType      string               `json:"bhkType,omitempty" validate:"max=40"`
	BHKTypeSnake string               `json:"bhk_type,omitempty" validate:"max=40"`
	Microsite    string               `json:"microsite" validate:"required,max=255"`
	ProjectID    string               `json:"projectId,omitempty" validate:"omitempty,projectid"`
	Metadata     map[string]any       `json:"metadata,omitempty"`
	Conversation []models.ChatMessage `json:"conversation,omitempty" validate:"max=200"`
}

// Service turns submissions into stored leads.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a lead service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Submit validates req, stores the lead and then, best-effort, the chat
// session and a lead_submitted event. Only the lead insert can fail the call.
//
// Errors wrapping ErrInvalidPhone, ErrInvalidBHK or a
// *validation.RequestValidationError are client errors.
func (s *Service) Submit(ctx context.Context, req *SubmitRequest) (*models.Lead, error) {
	if verr := validation.ValidateStruct(req); verr != nil {
		metrics.LeadsRejected.WithLabelValues("request").Inc()
		return nil, verr
	}

	phone, err := NormalizePhone(req.Phone)
	if err != nil {
		metrics.LeadsRejected.WithLabelValues("phone").Inc()
		return nil, err
	}

	label := req.BHKType
	if label == "" {
		label = req.BHKTypeSnake
	}
	bhk, err := NormalizeBHK(req.BHK, label)
	if err != nil {
		metrics.LeadsRejected.WithLabelValues("bhk").Inc()
		return nil, err
	}

	now := s.now().UTC()
	lead := &models.Lead{
		ID:           uuid.NewString(),
		Phone:        phone.Number,
		CountryCode:  phone.CountryCode,
		Name:         strings.TrimSpace(req.Name),
		BHK:          bhk.Count,
		BHKType:      bhk.Type,
		Microsite:    strings.TrimSpace(req.Microsite),
		ProjectID:    req.ProjectID,
		Status:       models.LeadStatusNew,
		Metadata:     req.Metadata,
		Conversation: req.Conversation,
		CreatedAt:    now,
	}

	if err := s.repo.CreateLead(ctx, lead); err != nil {
		return nil, fmt.Errorf("store lead: %w", err)
	}
	metrics.LeadsCreated.WithLabelValues(lead.BHKType).Inc()

	session := &models.ChatSession{
		ID:           uuid.NewString(),
		LeadID:       lead.ID,
		Microsite:    lead.Microsite,
		ProjectID:    lead.ProjectID,
		Conversation: lead.Conversation,
		CreatedAt:    now,
	}
	if err := s.repo.CreateChatSession(ctx, session); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("lead_id", lead.ID).Msg("Failed to store chat session for lead")
	}

	var bhkPayload any
	if lead.BHK != nil {
		bhkPayload = *lead.BHK
	}
	event := &models.Event{
		ID:        uuid.NewString(),
		Type:      models.EventLeadSubmitted,
		Microsite: lead.Microsite,
		ProjectID: lead.ProjectID,
		Payload: map[string]any{
			"leadId":  lead.ID,
			"bhk":     bhkPayload,
			"bhkType": lead.BHKType,
		},
		CreatedAt: now,
	}
	if err := s.repo.RecordEvent(ctx, event); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("lead_id", lead.ID).Msg("Failed to record lead_submitted event")
	}

	logging.Ctx(ctx).Info().
		Str("lead_id", lead.ID).
		Str("microsite", lead.Microsite).
		Str("bhk_type", lead.BHKType).
		Str("phone", logging.RedactPhone(lead.Phone)).
		Msg("Lead captured")
	return lead, nil
}

// IsClientError reports whether err was caused by the submitted data.
func IsClientError(err error) bool {
	var verr *validation.RequestValidationError
	return errors.Is(err, ErrInvalidPhone) || errors.Is(err, ErrInvalidBHK) || errors.As(err, &verr)
}
