package daemon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/tokend/internal/apps"
	"github.com/danmuck/tokend/internal/devicesim"
	"github.com/danmuck/tokend/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

func adminService(t *testing.T, token string) *Service {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := devicesim.DefaultHub()
	reg := apps.NewRegistry()
	if err := devicesim.RegisterApps(reg); err != nil {
		t.Fatalf("register apps: %v", err)
	}

	svc, err := NewService(ServiceConfig{
		ListenAddr: "127.0.0.1:7440",
		AdminAddr:  "127.0.0.1:7441",
		AdminToken: token,
	}, TreeDeps{
		Devices:   hub.Devices(),
		Readers:   hub.Readers(),
		Reconnect: hub,
		Identity:  hub,
		Apps:      reg,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func adminGet(t *testing.T, engine *gin.Engine, path, token string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, req)

	var body map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s: %v body=%s", path, err, rr.Body.String())
		}
	}
	return rr, body
}

func TestAdminOpenEndpoints(t *testing.T) {
	testlog.Start(t)

	svc := adminService(t, "secret")
	engine := svc.adminEngine()

	rr, body := adminGet(t, engine, "/health", "")
	if rr.Code != http.StatusOK || body["status"] != "ok" || body["version"] != Version {
		t.Fatalf("health: code=%d body=%#v", rr.Code, body)
	}

	rr, body = adminGet(t, engine, "/ready", "")
	if rr.Code != http.StatusOK || body["ready"] != true {
		t.Fatalf("ready: code=%d body=%#v", rr.Code, body)
	}

	rr, _ = adminGet(t, engine, "/metrics", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "tokend_rpc_sessions_active") {
		t.Fatalf("metrics: code=%d", rr.Code)
	}
}

func TestAdminStatusRequiresToken(t *testing.T) {
	testlog.Start(t)

	svc := adminService(t, "secret")
	engine := svc.adminEngine()

	rr, _ := adminGet(t, engine, "/status", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: %d", rr.Code)
	}

	rr, _ = adminGet(t, engine, "/status", "wrong")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: %d", rr.Code)
	}

	rr, body := adminGet(t, engine, "/status", "secret")
	if rr.Code != http.StatusOK {
		t.Fatalf("valid token: %d body=%#v", rr.Code, body)
	}
	appsList, ok := body["apps"].([]any)
	if !ok || len(appsList) != 1 || appsList[0] != "demo" {
		t.Fatalf("status apps: %#v", body["apps"])
	}
	if body["version"] != Version {
		t.Fatalf("status version: %#v", body["version"])
	}
}

func TestAdminWithoutTokenDeniesEverything(t *testing.T) {
	testlog.Start(t)

	svc := adminService(t, "")
	engine := svc.adminEngine()

	rr, _ := adminGet(t, engine, "/status", "anything")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("tokenless config must deny: %d", rr.Code)
	}
}

func TestAdminCommandHistory(t *testing.T) {
	testlog.Start(t)

	svc := adminService(t, "secret")
	svc.recent.add(CommandRecord{Session: 1, Action: "get", Result: "success"})
	svc.recent.add(CommandRecord{Session: 1, Action: "watch", Result: "error", Error: "cancelled"})
	engine := svc.adminEngine()

	rr, body := adminGet(t, engine, "/commands?limit=1", "secret")
	if rr.Code != http.StatusOK {
		t.Fatalf("commands: %d", rr.Code)
	}
	list, ok := body["commands"].([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("commands payload: %#v", body)
	}
	entry := list[0].(map[string]any)
	if entry["action"] != "watch" || entry["error"] != "cancelled" {
		t.Fatalf("command entry: %#v", entry)
	}
}
