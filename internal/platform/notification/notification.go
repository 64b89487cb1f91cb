// Package notification delivers vaccination reminders over email, SMS and
// push, with template rendering, an in-memory delivery log, and Echo HTTP
// handlers for inspection.
package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/vaxtrack/vaxtrack/pkg/pagination"
)

// ---------------------------------------------------------------------------
// Notification Types
// ---------------------------------------------------------------------------

// Channel represents the transport used to deliver a notification.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// Built-in template ids used by the reminder engine.
const (
	TemplateReminder3Day       = "vaccine-reminder-3day"
	TemplateReminder1Day       = "vaccine-reminder-1day"
	TemplateOverdue            = "vaccine-overdue"
	TemplateSideEffectFollowUp = "side-effect-followup"
	TemplateWeeklyDigest       = "weekly-digest"
)

// Notification represents a single outbound notification.
type Notification struct {
	ID           string            `json:"id"`
	Channel      Channel           `json:"channel"`
	Recipient    string            `json:"recipient"`
	Subject      string            `json:"subject,omitempty"`
	Body         string            `json:"body"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	Status       string            `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// ---------------------------------------------------------------------------
// Sender Interfaces
// ---------------------------------------------------------------------------

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// PushSender is the interface for sending push messages.
type PushSender interface {
	SendPush(ctx context.Context, to, title, body string) error
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template defines a reusable notification template.
type Template struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Subject string  `json:"subject"`
	Body    string  `json:"body"`
	Channel Channel `json:"channel"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplateReminder3Day,
			Name:    "Vaccine Reminder (3 days)",
			Subject: "Upcoming vaccination for {{child_name}}",
			Body:    "Hi, {{vaccine_name}} (dose {{dose_number}}) for {{child_name}} is scheduled on {{scheduled_date}}, in 3 days. Don't forget to book an appointment.",
			Channel: ChannelEmail,
		},
		{
			ID:      TemplateReminder1Day,
			Name:    "Vaccine Reminder (1 day)",
			Subject: "Vaccination tomorrow for {{child_name}}",
			Body:    "Reminder: {{vaccine_name}} (dose {{dose_number}}) for {{child_name}} is scheduled tomorrow, {{scheduled_date}}.",
			Channel: ChannelEmail,
		},
		{
			ID:      TemplateOverdue,
			Name:    "Vaccine Overdue",
			Subject: "Missed vaccination for {{child_name}}",
			Body:    "{{vaccine_name}} (dose {{dose_number}}) for {{child_name}} was scheduled on {{scheduled_date}} and has not been marked as done. Please reschedule as soon as possible.",
			Channel: ChannelEmail,
		},
		{
			ID:      TemplateSideEffectFollowUp,
			Name:    "Side Effect Follow-up",
			Subject: "How did {{child_name}}'s vaccination go?",
			Body:    "{{child_name}} received {{vaccine_name}} yesterday. Any side effects? Log them in the app so we can keep the record complete.",
			Channel: ChannelPush,
		},
		{
			ID:      TemplateWeeklyDigest,
			Name:    "Weekly Vaccination Digest",
			Subject: "Your weekly vaccination summary",
			Body:    "This week: {{done_count}} completed, {{upcoming_count}} due in the next 7 days, {{overdue_count}} overdue.\n\n{{details}}",
			Channel: ChannelEmail,
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Channel returns the delivery channel configured for a template.
func (e *TemplateEngine) Channel(templateID string) (Channel, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.templates[templateID]
	if !ok {
		return "", fmt.Errorf("template %q not found", templateID)
	}
	return t.Channel, nil
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// Mock Senders (test doubles)
// ---------------------------------------------------------------------------

// Call records a single dispatch through a mock sender.
type Call struct {
	To      string
	Subject string
	Body    string
}

// MockSender is a test double implementing all three sender interfaces.
type MockSender struct {
	mu         sync.Mutex
	calls      []Call
	ShouldFail bool
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockSender) SendEmail(_ context.Context, to, subject, body string) error {
	return m.record(Call{To: to, Subject: subject, Body: body})
}

// SendSMS records the call and optionally returns an error.
func (m *MockSender) SendSMS(_ context.Context, to, body string) error {
	return m.record(Call{To: to, Body: body})
}

// SendPush records the call and optionally returns an error.
func (m *MockSender) SendPush(_ context.Context, to, title, body string) error {
	return m.record(Call{To: to, Subject: title, Body: body})
}

func (m *MockSender) record(c Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded calls.
func (m *MockSender) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// Reset clears recorded calls.
func (m *MockSender) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// ---------------------------------------------------------------------------
// Manager
// ---------------------------------------------------------------------------

// Manager orchestrates sending, storage, and retrieval of notifications.
type Manager struct {
	emailSender EmailSender
	smsSender   SMSSender
	pushSender  PushSender
	templates   *TemplateEngine

	mu  sync.RWMutex
	log map[string]*Notification
}

// NewManager constructs a Manager. Any sender may be nil; sends on a nil
// channel fail with an explicit error instead of panicking.
func NewManager(email EmailSender, sms SMSSender, push PushSender, tpl *TemplateEngine) *Manager {
	return &Manager{
		emailSender: email,
		smsSender:   sms,
		pushSender:  push,
		templates:   tpl,
		log:         make(map[string]*Notification),
	}
}

// Templates exposes the template engine (for registering custom templates).
func (m *Manager) Templates() *TemplateEngine { return m.templates }

// Send dispatches a notification through the appropriate channel, assigns an
// ID and timestamps, and records the result in the delivery log.
func (m *Manager) Send(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = time.Now().UTC()
	n.Status = "pending"

	sendErr := m.dispatch(ctx, n)
	if sendErr != nil {
		n.Status = "failed"
		n.Error = sendErr.Error()
	} else {
		n.Status = "sent"
		sentAt := time.Now().UTC()
		n.SentAt = &sentAt
	}

	m.mu.Lock()
	m.log[n.ID] = n
	m.mu.Unlock()

	return sendErr
}

func (m *Manager) dispatch(ctx context.Context, n *Notification) error {
	switch n.Channel {
	case ChannelEmail:
		if m.emailSender == nil {
			return errors.New("no email sender configured")
		}
		return m.emailSender.SendEmail(ctx, n.Recipient, n.Subject, n.Body)
	case ChannelSMS:
		if m.smsSender == nil {
			return errors.New("no sms sender configured")
		}
		return m.smsSender.SendSMS(ctx, n.Recipient, n.Body)
	case ChannelPush:
		if m.pushSender == nil {
			return errors.New("no push sender configured")
		}
		return m.pushSender.SendPush(ctx, n.Recipient, n.Subject, n.Body)
	default:
		return fmt.Errorf("unsupported notification channel: %s", n.Channel)
	}
}

// SendFromTemplate renders a template and sends the resulting notification on
// the template's channel.
func (m *Manager) SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*Notification, error) {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	channel, err := m.templates.Channel(templateID)
	if err != nil {
		return nil, err
	}

	n := &Notification{
		Channel:      channel,
		Recipient:    recipient,
		Subject:      subject,
		Body:         body,
		TemplateID:   templateID,
		TemplateData: data,
	}

	if err := m.Send(ctx, n); err != nil {
		return n, err
	}
	return n, nil
}

// Get retrieves a notification by ID.
func (m *Manager) Get(_ context.Context, id string) (*Notification, error) {
	m.mu.RLock()
	n, ok := m.log[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("notification %q not found", id)
	}
	return n, nil
}

// ListByRecipient returns one page of notifications for a recipient along
// with the total number of matches.
func (m *Manager) ListByRecipient(_ context.Context, recipient string, limit, offset int) ([]*Notification, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*Notification
	for _, n := range m.log {
		if n.Recipient == recipient {
			matched = append(matched, n)
		}
	}

	total := len(matched)
	if offset >= total {
		return []*Notification{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

// Stats returns counts of notifications grouped by status.
func (m *Manager) Stats(_ context.Context) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]int)
	for _, n := range m.log {
		stats[n.Status]++
	}
	return stats
}

// ---------------------------------------------------------------------------
// HTTP Handler
// ---------------------------------------------------------------------------

// Handler exposes the delivery log over HTTP for operational inspection.
type Handler struct {
	manager *Manager
}

// NewHandler creates a new Handler.
func NewHandler(mgr *Manager) *Handler {
	return &Handler{manager: mgr}
}

// RegisterRoutes registers notification routes on the given Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications/stats", h.HandleStats)
	g.GET("/notifications/:id", h.HandleGet)
	g.GET("/notifications", h.HandleList)
}

// HandleGet handles GET /notifications/:id.
func (h *Handler) HandleGet(c echo.Context) error {
	id := c.Param("id")
	n, err := h.manager.Get(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, n)
}

// HandleList handles GET /notifications?recipient=...
func (h *Handler) HandleList(c echo.Context) error {
	recipient := c.QueryParam("recipient")
	if recipient == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "recipient query parameter is required"})
	}

	p := pagination.FromContext(c)
	list, total, err := h.manager.ListByRecipient(c.Request().Context(), recipient, p.Limit, p.Offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(list, total, p.Limit, p.Offset))
}

// HandleStats handles GET /notifications/stats.
func (h *Handler) HandleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.Stats(c.Request().Context()))
}
