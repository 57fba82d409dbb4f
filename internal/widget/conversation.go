// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package widget

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/leadchat/internal/leads"
	"github.com/tomtom215/leadchat/internal/logging"
	"github.com/tomtom215/leadchat/internal/models"
)

// Stage is a step of the lead-capture conversation.
type Stage string

// Conversation stages, in order.
const (
	StageGreeting   Stage = "greeting"
	StagePreference Stage = "preference"
	StagePhone      Stage = "phone"
	StageThankYou   Stage = "thank_you"
)

// Visitor-facing validation messages.
const (
	msgInvalidPreference = "Please pick one of the options above."
	msgInvalidPhone      = "Please enter a valid 10-digit mobile number."
)

// ErrWrongStage is returned by a conversation step taken out of order.
var ErrWrongStage = errors.New("conversation is not at that step")

// ConversationState survives re-renders: the controller threads the same
// pointer through every render and only Conversation mutates it.
type ConversationState struct {
	mu       sync.Mutex
	open     bool
	stage    Stage
	name     string
	phone    string
	bhkType  string
	messages []models.ChatMessage
	leadID   string
	errMsg   string
}

// ConversationSnapshot is a read-only copy of ConversationState.
type ConversationSnapshot struct {
	Open     bool
	Stage    Stage
	Name     string
	Phone    string
	BHKType  string
	Messages []models.ChatMessage
	LeadID   string
	Error    string
}

// NewConversationState returns a closed conversation at the greeting.
func NewConversationState() *ConversationState {
	return &ConversationState{stage: StageGreeting}
}

// Snapshot copies the state.
func (s *ConversationState) Snapshot() ConversationSnapshot {
	if s == nil {
		return ConversationSnapshot{Stage: StageGreeting}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return ConversationSnapshot{
		Open:     s.open,
		Stage:    s.stage,
		Name:     s.name,
		Phone:    s.phone,
		BHKType:  s.bhkType,
		Messages: slices.Clone(s.messages),
		LeadID:   s.leadID,
		Error:    s.errMsg,
	}
}

// LeadRequest is what the widget submits to POST /api/leads.
type LeadRequest struct {
	Phone        string               `json:"phone"`
	Name         string               `json:"name,omitempty"`
	BHKType      string               `json:"bhkType"`
	Microsite    string               `json:"microsite"`
	ProjectID    string               `json:"projectId,omitempty"`
	Metadata     map[string]any       `json:"metadata,omitempty"`
	Conversation []models.ChatMessage `json:"conversation,omitempty"`
}

// LeadSubmitter delivers a captured lead and returns its ID.
type LeadSubmitter interface {
	SubmitLead(ctx context.Context, req LeadRequest) (string, error)
}

// HTTPLeadSubmitter posts leads to the API.
type HTTPLeadSubmitter struct {
	Client  *http.Client
	APIBase string
}

// SubmitLead posts req and expects 201 with the created lead.
func (s *HTTPLeadSubmitter) SubmitLead(ctx context.Context, req LeadRequest) (string, error) {
	if s.APIBase == "" {
		return "", errors.New("no api base configured")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode lead: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.APIBase+"/api/leads", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build lead request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: dispatchTimeout}
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("submit lead: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read lead response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("submit lead: status %d", resp.StatusCode)
	}
	var created struct {
		ID   string `json:"id"`
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		return "", fmt.Errorf("decode lead response: %w", err)
	}
	if created.ID == "" {
		created.ID = created.Data.ID
	}
	return created.ID, nil
}

// conversationHost is what a Conversation needs from its widget instance.
type conversationHost interface {
	resolvedTheme() models.ThemeConfig
	attribution() (projectID, microsite string)
	dispatch(eventType string, extra map[string]any)
	rerender()
}

// Conversation drives the chat: greeting, BHK preference, phone number,
// thank-you. A nil Conversation ignores every call.
type Conversation struct {
	state     *ConversationState
	host      conversationHost
	submitter LeadSubmitter
	now       func() time.Time
}

func newConversation(state *ConversationState, host conversationHost, submitter LeadSubmitter) *Conversation {
	return &Conversation{state: state, host: host, submitter: submitter, now: time.Now}
}

// State returns the shared state.
func (c *Conversation) State() *ConversationState {
	if c == nil {
		return nil
	}
	return c.state
}

// Open shows the chat panel. The first open greets the visitor and asks
// for a preference.
func (c *Conversation) Open() {
	if c == nil {
		return
	}
	theme := c.host.resolvedTheme()
	s := c.state
	s.mu.Lock()
	wasOpen := s.open
	s.open = true
	if s.stage == StageGreeting {
		s.messages = append(s.messages, c.bot(theme.WelcomeMessage), c.bot(theme.BHKPrompt))
		s.stage = StagePreference
	}
	s.mu.Unlock()

	if !wasOpen {
		c.host.dispatch(models.EventChatOpened, nil)
	}
	c.host.rerender()
}

// Close hides the panel without losing progress.
func (c *Conversation) Close() {
	if c == nil {
		return
	}
	s := c.state
	s.mu.Lock()
	wasOpen := s.open
	s.open = false
	stage := s.stage
	s.mu.Unlock()

	if wasOpen {
		c.host.dispatch(models.EventChatClosed, map[string]any{"stage": string(stage)})
	}
	c.host.rerender()
}

// SelectPreference records the visitor's BHK choice and asks for a phone number.
func (c *Conversation) SelectPreference(choice string) error {
	if c == nil {
		return nil
	}
	theme := c.host.resolvedTheme()
	s := c.state
	s.mu.Lock()
	if s.stage != StagePreference {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrWrongStage, StagePreference)
	}
	bhk, err := leads.NormalizeBHK(nil, choice)
	if err != nil {
		s.errMsg = msgInvalidPreference
		s.mu.Unlock()
		c.host.rerender()
		return err
	}
	s.errMsg = ""
	s.bhkType = bhk.Type
	s.messages = append(s.messages, c.user(bhk.Type))
	if !bhk.Undecided() {
		s.messages = append(s.messages, c.bot(theme.InventoryMessage))
	} else {
		s.messages = append(s.messages, c.bot(theme.FollowupMessage))
	}
	s.messages = append(s.messages, c.bot(theme.PhonePrompt))
	s.stage = StagePhone
	s.mu.Unlock()

	extra := map[string]any{"bhkType": bhk.Type}
	if bhk.Count != nil {
		extra["bhk"] = *bhk.Count
	}
	c.host.dispatch(models.EventBHKSelected, extra)
	c.host.rerender()
	return nil
}

// SubmitPhone validates the number and submits the lead. An invalid number
// keeps the conversation at the phone step with a visible message. A failed
// submission is not shown to the visitor; it is reported as a
// lead_submit_failed event.
func (c *Conversation) SubmitPhone(ctx context.Context, raw string) error {
	if c == nil {
		return nil
	}
	theme := c.host.resolvedTheme()
	projectID, microsite := c.host.attribution()

	s := c.state
	s.mu.Lock()
	if s.stage != StagePhone {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrWrongStage, StagePhone)
	}
	phone, err := leads.NormalizePhone(raw)
	if err != nil {
		s.errMsg = msgInvalidPhone
		s.mu.Unlock()
		c.host.rerender()
		return err
	}
	s.errMsg = ""
	s.phone = phone.String()
	s.messages = append(s.messages, c.user(raw))
	req := LeadRequest{
		Phone:        phone.String(),
		Name:         s.name,
		BHKType:      s.bhkType,
		Microsite:    microsite,
		ProjectID:    projectID,
		Metadata:     map[string]any{"source": "widget"},
		Conversation: slices.Clone(s.messages),
	}
	s.mu.Unlock()

	c.host.dispatch(models.EventPhoneSubmitted, map[string]any{"bhkType": req.BHKType})

	var leadID string
	if c.submitter != nil {
		leadID, err = c.submitter.SubmitLead(ctx, req)
	} else {
		err = errors.New("no lead submitter")
	}
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("microsite", microsite).Msg("Lead submission failed")
		c.host.dispatch(models.EventLeadSubmitFailed, map[string]any{"error": err.Error(), "bhkType": req.BHKType})
	}

	s.mu.Lock()
	s.leadID = leadID
	s.messages = append(s.messages, c.bot(theme.ThankYouMessage))
	s.stage = StageThankYou
	s.mu.Unlock()

	c.host.rerender()
	return nil
}

// SetName records the visitor's name for the lead.
func (c *Conversation) SetName(name string) {
	if c == nil {
		return
	}
	c.state.mu.Lock()
	c.state.name = collapseSpace(name)
	c.state.mu.Unlock()
}

func (c *Conversation) bot(text string) models.ChatMessage {
	return models.ChatMessage{Role: models.RoleBot, Text: text, At: c.now().UTC()}
}

func (c *Conversation) user(text string) models.ChatMessage {
	return models.ChatMessage{Role: models.RoleUser, Text: text, At: c.now().UTC()}
}
