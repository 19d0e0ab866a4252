package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/triage-portal/internal/api/http/handlers"
	"github.com/spec-kit/triage-portal/internal/auth"
	"github.com/spec-kit/triage-portal/internal/classifier"
	"github.com/spec-kit/triage-portal/internal/config"
	"github.com/spec-kit/triage-portal/internal/domain"
	"github.com/spec-kit/triage-portal/internal/observability"
	"github.com/spec-kit/triage-portal/internal/repository"
	"github.com/spec-kit/triage-portal/internal/service"
)

type stubModel struct {
	verdict domain.Classification
}

func (s stubModel) Classify(context.Context, string) (domain.Classification, *classifier.Trace) {
	return s.verdict, nil
}

func (s stubModel) Respond(context.Context, string, string) string {
	return "Try restarting the VPN client."
}

type testServer struct {
	app     *fiber.App
	store   repository.Store
	auth    *service.AuthService
	metrics *observability.Metrics
}

func newTestServer(t *testing.T, verdict domain.Classification) *testServer {
	t.Helper()
	store := repository.NewMemoryStore()
	cfg := config.Config{Auth: config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTLMinutes: 15, BcryptCost: 4}}
	model := stubModel{verdict: verdict}

	tokens := service.NewTokenAssignmentService(service.TokenAssignmentDependencies{UserRepo: store.Users()})
	authService := service.NewAuthService(cfg, service.AuthDependencies{UserRepo: store.Users(), Roster: tokens})
	metrics := observability.NewMetrics()
	tickets := service.NewTicketService(service.TicketDependencies{
		Store:      store,
		Classifier: model,
		Tokens:     tokens,
		Outcomes:   metrics,
	})

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("triage-portal", "test", store, nil),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(tickets),
		Admin:          handlers.NewAdminHandler(tickets, tokens, authService, metrics),
		LLM:            handlers.NewLLMHandler(model, model),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), store.Users()),
	})
	return &testServer{app: app, store: store, auth: authService, metrics: metrics}
}

func (s *testServer) signIn(t *testing.T, name string, role domain.UserRole) string {
	t.Helper()
	session, err := s.auth.Register(context.Background(), name, name+"@example.com", "long-enough-pass")
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	if role != domain.RoleUser {
		if err := s.store.Users().UpdateRole(context.Background(), session.User.ID, role, session.User.CreatedAt); err != nil {
			t.Fatalf("promote %s: %v", name, err)
		}
	}
	return session.AccessToken
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, raw)
		}
	}
	return resp.StatusCode, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode data: %v (%s)", err, raw)
	}
	return out
}

type submission struct {
	Ticket struct {
		ID              string  `json:"id"`
		Status          string  `json:"status"`
		AutoResolved    bool    `json:"auto_resolved"`
		AssignedTo      *string `json:"assigned_to"`
		EscalationToken *string `json:"escalation_token"`
		CompletedAt     *string `json:"completed_at"`
	} `json:"ticket"`
	AuditLog []struct {
		ActionType string `json:"action_type"`
		Success    bool   `json:"success"`
	} `json:"audit_log"`
}

func passwordReset() domain.Classification {
	return domain.Classification{
		Category:        domain.CategoryPasswordReset,
		Priority:        domain.TicketPriorityMedium,
		ComplexityScore: 2,
		CanAutomate:     true,
		Reasoning:       "routine reset",
	}
}

func TestSubmitTicketIsAutomated(t *testing.T) {
	srv := newTestServer(t, passwordReset())
	token := srv.signIn(t, "ada", domain.RoleUser)

	status, env := srv.do(t, http.MethodPost, "/tickets", token, map[string]string{"request_text": "I forgot my password"})
	if status != http.StatusCreated {
		t.Fatalf("status = %d (%+v)", status, env.Error)
	}
	sub := decode[submission](t, env.Data)
	if sub.Ticket.Status != "automated" || !sub.Ticket.AutoResolved || sub.Ticket.CompletedAt == nil {
		t.Fatalf("unexpected ticket: %+v", sub.Ticket)
	}
	if sub.Ticket.EscalationToken != nil {
		t.Fatal("automated ticket should not expose an escalation token")
	}
	if len(sub.AuditLog) != 3 || sub.AuditLog[0].ActionType != "automation_executed" || sub.AuditLog[2].ActionType != "request_created" {
		t.Fatalf("unexpected audit log: %+v", sub.AuditLog)
	}
	if got := srv.metrics.Snapshot()["outcomes"]["automated"]; got != 1 {
		t.Fatalf("automated outcomes = %d", got)
	}

	status, env = srv.do(t, http.MethodGet, "/tickets/"+sub.Ticket.ID+"/logs", token, nil)
	if status != http.StatusOK {
		t.Fatalf("logs status = %d", status)
	}
	if logs := decode[[]map[string]any](t, env.Data); len(logs) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(logs))
	}
}

func TestSubmitTicketValidation(t *testing.T) {
	srv := newTestServer(t, passwordReset())
	token := srv.signIn(t, "ada", domain.RoleUser)

	status, env := srv.do(t, http.MethodPost, "/tickets", token, map[string]string{"request_text": "   "})
	if status != http.StatusBadRequest || env.Error == nil || env.Error.Code != "VALIDATION_FAILED" {
		t.Fatalf("status = %d error = %+v", status, env.Error)
	}

	status, env = srv.do(t, http.MethodPost, "/tickets", "", map[string]string{"request_text": "hi"})
	if status != http.StatusUnauthorized || env.Error == nil || env.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("anonymous: status = %d error = %+v", status, env.Error)
	}
}

func TestTicketOwnership(t *testing.T) {
	srv := newTestServer(t, passwordReset())
	owner := srv.signIn(t, "ada", domain.RoleUser)
	stranger := srv.signIn(t, "bob", domain.RoleUser)
	staff := srv.signIn(t, "grace", domain.RoleAdmin)

	_, env := srv.do(t, http.MethodPost, "/tickets", owner, map[string]string{"request_text": "reset my password"})
	id := decode[submission](t, env.Data).Ticket.ID

	if status, env := srv.do(t, http.MethodGet, "/tickets/"+id, stranger, nil); status != http.StatusForbidden || env.Error.Code != "FORBIDDEN" {
		t.Fatalf("stranger: status = %d", status)
	}
	if status, _ := srv.do(t, http.MethodGet, "/tickets/"+id, staff, nil); status != http.StatusOK {
		t.Fatalf("staff: status = %d", status)
	}
	if status, env := srv.do(t, http.MethodGet, "/tickets/missing", owner, nil); status != http.StatusNotFound || env.Error.Code != "NOT_FOUND" {
		t.Fatalf("missing: status = %d", status)
	}

	_, env = srv.do(t, http.MethodGet, "/tickets", stranger, nil)
	if list := decode[[]map[string]any](t, env.Data); len(list) != 0 {
		t.Fatalf("stranger lists %d tickets", len(list))
	}
}

func TestEscalationClaimFlow(t *testing.T) {
	srv := newTestServer(t, domain.Classification{
		Category:        domain.CategoryHardware,
		Priority:        domain.TicketPriorityHigh,
		ComplexityScore: 6,
		CanAutomate:     false,
		Reasoning:       "screen replacement",
	})
	requester := srv.signIn(t, "ada", domain.RoleUser)
	staff := srv.signIn(t, "grace", domain.RoleAdmin)

	status, env := srv.do(t, http.MethodPost, "/tickets", requester, map[string]string{"request_text": "my laptop screen is cracked"})
	if status != http.StatusCreated {
		t.Fatalf("submit status = %d", status)
	}
	sub := decode[submission](t, env.Data)
	if sub.Ticket.Status != "escalated" || sub.Ticket.EscalationToken == nil {
		t.Fatalf("unexpected ticket: %+v", sub.Ticket)
	}
	if sub.Ticket.AssignedTo == nil || *sub.Ticket.AssignedTo != "grace" {
		t.Fatalf("escalation should go to the only staff member, got %v", sub.Ticket.AssignedTo)
	}

	claim := map[string]string{"token": *sub.Ticket.EscalationToken}
	if status, env := srv.do(t, http.MethodPost, "/admin/escalations/claim", requester, claim); status != http.StatusForbidden || env.Error.Code != "FORBIDDEN" {
		t.Fatalf("requester claim: status = %d", status)
	}
	status, env = srv.do(t, http.MethodPost, "/admin/escalations/claim", staff, claim)
	if status != http.StatusOK {
		t.Fatalf("claim status = %d (%+v)", status, env.Error)
	}

	completed := map[string]string{"status": "completed", "resolution_notes": "replaced the panel"}
	status, env = srv.do(t, http.MethodPatch, "/admin/tickets/"+sub.Ticket.ID, staff, completed)
	if status != http.StatusOK {
		t.Fatalf("complete status = %d (%+v)", status, env.Error)
	}
	status, env = srv.do(t, http.MethodPatch, "/admin/tickets/"+sub.Ticket.ID, staff, map[string]string{"status": "processing"})
	if status != http.StatusConflict || env.Error.Code != "CONFLICT" {
		t.Fatalf("reopen: status = %d", status)
	}
}

func TestRosterEndpoints(t *testing.T) {
	srv := newTestServer(t, passwordReset())
	srv.signIn(t, "ada", domain.RoleUser)
	staff := srv.signIn(t, "grace", domain.RoleAdmin)

	status, env := srv.do(t, http.MethodGet, "/admin/roster", staff, nil)
	if status != http.StatusOK {
		t.Fatalf("roster status = %d", status)
	}
	roster := decode[[]struct {
		User   map[string]any `json:"user"`
		Online bool           `json:"online"`
		Holder bool           `json:"holder"`
	}](t, env.Data)
	if len(roster) != 1 || !roster[0].Online || !roster[0].Holder {
		t.Fatalf("unexpected roster: %+v", roster)
	}

	if status, _ := srv.do(t, http.MethodPost, "/admin/roster/reassign", staff, nil); status != http.StatusOK {
		t.Fatalf("reassign status = %d", status)
	}
}

func TestLLMEndpoints(t *testing.T) {
	srv := newTestServer(t, passwordReset())
	token := srv.signIn(t, "ada", domain.RoleUser)

	status, env := srv.do(t, http.MethodPost, "/llm/analyze", token, map[string]string{"requestText": "forgot password"})
	if status != http.StatusOK {
		t.Fatalf("analyze status = %d", status)
	}
	verdict := decode[domain.Classification](t, env.Data)
	if verdict.Category != domain.CategoryPasswordReset || verdict.ComplexityScore != 2 {
		t.Fatalf("unexpected verdict: %+v", verdict)
	}

	status, env = srv.do(t, http.MethodPost, "/llm/respond", token, map[string]string{"context": "vpn", "question": "why is it slow?"})
	if status != http.StatusOK {
		t.Fatalf("respond status = %d", status)
	}
	if answer := decode[map[string]string](t, env.Data); answer["content"] == "" {
		t.Fatal("expected assistant content")
	}
}

func TestHealthAndUnknownRoutes(t *testing.T) {
	srv := newTestServer(t, passwordReset())

	if status, _ := srv.do(t, http.MethodGet, "/health/ready", "", nil); status != http.StatusOK {
		t.Fatalf("ready status = %d", status)
	}
	status, env := srv.do(t, http.MethodGet, "/nowhere", "", nil)
	if status != http.StatusNotFound || env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Fatalf("unknown route: status = %d error = %+v", status, env.Error)
	}
}
