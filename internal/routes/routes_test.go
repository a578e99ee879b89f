package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/curasync-homepage/curasync-web-app/internal/config"
	"github.com/curasync-homepage/curasync-web-app/internal/models"
	"github.com/curasync-homepage/curasync-web-app/internal/repository/sqlitestore"
	"github.com/curasync-homepage/curasync-web-app/internal/services"
	chatws "github.com/curasync-homepage/curasync-web-app/internal/websocket"
	"github.com/curasync-homepage/curasync-web-app/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

const testSecret = "route-secret"

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	store, err := sqlitestore.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	registry := prometheus.NewRegistry()
	hub := chatws.NewHub(chatws.NewMetrics(registry), nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	requests := services.NewRequestService(store, store, time.UTC, nil)
	chat := services.NewChatService(store, requests, hub, nil)

	cfg := &config.Config{JWTSecret: testSecret, SendRatePerSecond: 100, SendBurst: 100, EnableMetrics: true}
	app := fiber.New()
	if err := RegisterRoutes(app, cfg, Dependencies{
		Requests: requests,
		Chat:     chat,
		Profiles: services.NewProfileService(store, nil),
		Hub:      hub,
		Store:    store,
		Gatherer: registry,
	}); err != nil {
		t.Fatalf("RegisterRoutes: %v", err)
	}
	return app
}

func call(t *testing.T, app *fiber.App, method, path, userID, role, body string, into any) int {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		token, err := utils.GenerateToken(userID, role, testSecret)
		if err != nil {
			t.Fatalf("GenerateToken: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if into != nil {
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestRequestToMessageFlow(t *testing.T) {
	app := newTestApp(t)

	status := call(t, app, http.MethodGet, "/api/v1/conversations/lab-b/messages", "patient-a", "patient", "", nil)
	if status != http.StatusForbidden {
		t.Fatalf("history before acceptance: expected 403, got %d", status)
	}

	var created struct {
		Request models.ConnectionRequest `json:"request"`
	}
	status = call(t, app, http.MethodPost, "/api/v1/requests", "patient-a", "patient", `{"targetId":"lab-b","targetRole":"laboratory"}`, &created)
	if status != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", status)
	}

	var pending models.RequestPartitions
	if status := call(t, app, http.MethodGet, "/api/v1/requests/pending", "lab-b", "laboratory", "", &pending); status != http.StatusOK {
		t.Fatalf("pending: expected 200, got %d", status)
	}
	if len(pending.Lab) != 1 || pending.Lab[0].ID != created.Request.ID || len(pending.Pharmacy) != 0 {
		t.Fatalf("unexpected pending partitions %+v", pending)
	}

	if status := call(t, app, http.MethodPost, "/api/v1/requests/"+created.Request.ID+"/accept", "patient-a", "patient", "", nil); status != http.StatusForbidden {
		t.Fatalf("accept by requester: expected 403, got %d", status)
	}
	var accepted struct {
		Request models.RequestView `json:"request"`
	}
	if status := call(t, app, http.MethodPost, "/api/v1/requests/"+created.Request.ID+"/accept", "lab-b", "laboratory", "", &accepted); status != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d", status)
	}
	if accepted.Request.AcceptedDate == "" || accepted.Request.AcceptedTime == "" {
		t.Fatalf("accept must carry the server stamp, got %+v", accepted.Request)
	}
	if status := call(t, app, http.MethodPost, "/api/v1/requests/"+created.Request.ID+"/accept", "lab-b", "laboratory", "", nil); status != http.StatusConflict {
		t.Fatalf("second accept: expected 409, got %d", status)
	}

	var history struct {
		ConversationKey string           `json:"conversationKey"`
		Messages        []models.Message `json:"messages"`
	}
	if status := call(t, app, http.MethodGet, "/api/v1/conversations/patient-a/messages", "lab-b", "laboratory", "", &history); status != http.StatusOK {
		t.Fatalf("empty history: expected 200, got %d", status)
	}
	if len(history.Messages) != 0 || history.ConversationKey != "lab-b:patient-a" {
		t.Fatalf("unexpected empty history %+v", history)
	}

	var ack struct {
		Ack models.Ack `json:"ack"`
	}
	status = call(t, app, http.MethodPost, "/api/v1/messages", "patient-a", "patient",
		`{"counterpartId":"lab-b","kind":"message","data":{"message":"Hello"},"sentDate":"2024-03-01","sentTime":"10:00"}`, &ack)
	if status != http.StatusCreated || ack.Ack.ID == "" {
		t.Fatalf("send: expected 201 with ack, got %d %+v", status, ack)
	}

	if status := call(t, app, http.MethodGet, "/api/v1/conversations/patient-a/messages", "lab-b", "laboratory", "", &history); status != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", status)
	}
	if len(history.Messages) != 1 || history.Messages[0].ID != ack.Ack.ID {
		t.Fatalf("expected the single sent message, got %+v", history.Messages)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestApp(t)

	if status := call(t, app, http.MethodGet, "/health", "", "", "", nil); status != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", status)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if err != nil {
		t.Fatalf("app.Test metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !strings.Contains(string(body), "curasync_channel_open_connections") {
		t.Fatalf("expected hub metrics in exposition")
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	app := newTestApp(t)
	if status := call(t, app, http.MethodGet, "/api/v1/requests/pending", "", "", "", nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
}

func TestProfileNameShowsInPendingList(t *testing.T) {
	app := newTestApp(t)

	var profile struct {
		Profile models.Profile `json:"profile"`
	}
	if status := call(t, app, http.MethodPut, "/api/v1/profile", "patient-a", "patient", `{"displayName":"Ann Perera"}`, &profile); status != http.StatusOK {
		t.Fatalf("update profile: expected 200, got %d", status)
	}
	if profile.Profile.DisplayName != "Ann Perera" {
		t.Fatalf("unexpected profile %+v", profile.Profile)
	}

	if status := call(t, app, http.MethodPost, "/api/v1/requests", "patient-a", "patient", `{"targetId":"pharm-c","targetRole":"pharmacy"}`, nil); status != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", status)
	}

	var pending models.RequestPartitions
	if status := call(t, app, http.MethodGet, "/api/v1/requests/pending", "pharm-c", "pharmacy", "", &pending); status != http.StatusOK {
		t.Fatalf("pending: expected 200, got %d", status)
	}
	if len(pending.Pharmacy) != 1 || pending.Pharmacy[0].CounterpartName != "Ann Perera" {
		t.Fatalf("expected counterpart name in pending list, got %+v", pending)
	}
}
