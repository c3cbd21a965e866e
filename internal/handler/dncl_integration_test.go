package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/kursadbilgin/dncl-gateway/internal/diagnostics"
	"github.com/kursadbilgin/dncl-gateway/internal/domain"
	"github.com/kursadbilgin/dncl-gateway/internal/notifier"
	"github.com/kursadbilgin/dncl-gateway/internal/provider"
	"github.com/kursadbilgin/dncl-gateway/internal/service"
	"github.com/kursadbilgin/dncl-gateway/internal/transport"
)

const (
	addPath    = "/api/instance/instanceManager/addToDoNotCallList"
	removePath = "/api/instance/instanceManager/fromDoNotCallList"
)

// vendorStub answers the token grant and one configurable list response.
type vendorStub struct {
	server     *httptest.Server
	status     int
	body       string
	tokenCalls int32
	listCalls  int32
}

func newVendorStub(t *testing.T, status int, body string) *vendorStub {
	t.Helper()

	v := &vendorStub{status: status, body: body}
	v.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			atomic.AddInt32(&v.tokenCalls, 1)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer"}`))
		case addPath, removePath:
			atomic.AddInt32(&v.listCalls, 1)
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(v.status)
			_, _ = w.Write([]byte(v.body))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(v.server.Close)
	return v
}

func (v *vendorStub) calls() int32 {
	return atomic.LoadInt32(&v.tokenCalls) + atomic.LoadInt32(&v.listCalls)
}

type recordingAuditStore struct {
	mu      sync.Mutex
	err     error
	records []domain.AuditRecord
}

func (s *recordingAuditStore) RecordRemoval(_ context.Context, record domain.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, record)
	return nil
}

type gateway struct {
	app    *fiber.App
	cloud  *vendorStub
	onPrem *vendorStub
	audit  *recordingAuditStore
}

func newInvoker(t *testing.T, target domain.Target, vendor *vendorStub, fallback *domain.Credentials) *provider.Invoker {
	t.Helper()

	client, err := provider.NewRestyClient(provider.Endpoint{
		BaseURL:         vendor.server.URL,
		InstanceAddress: "instance.test",
		Timeout:         5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewRestyClient() error = %v", err)
	}
	auth, err := provider.NewAuthenticator(client, "instance.test")
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}
	lists, err := provider.NewListClient(client)
	if err != nil {
		t.Fatalf("NewListClient() error = %v", err)
	}
	invoker, err := provider.NewInvoker(target, auth, lists, fallback, nil)
	if err != nil {
		t.Fatalf("NewInvoker() error = %v", err)
	}
	return invoker
}

func newGateway(t *testing.T, cloud *vendorStub, onPrem *vendorStub) *gateway {
	t.Helper()

	g := &gateway{cloud: cloud, onPrem: onPrem, audit: &recordingAuditStore{}}

	serverOnPrem := &domain.Credentials{Username: "svc-onprem", Password: "pw"}
	serverCloud := &domain.Credentials{Username: "svc-cloud", Password: "pw"}

	orch, err := service.NewOrchestrator([]service.Invoker{
		newInvoker(t, domain.TargetCloud, cloud, nil),
		newInvoker(t, domain.TargetOnPrem, onPrem, serverOnPrem),
	}, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}

	root := t.TempDir()
	sink, err := diagnostics.NewFileSink(filepath.Join(root, "logs"), filepath.Join(root, "errors"), nil)
	if err != nil {
		t.Fatalf("NewFileSink() error = %v", err)
	}

	dispatcher, err := service.NewDispatcher(g.audit, sink, notifier.NopNotifier{}, nil)
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	svc, err := service.NewDNCLService(orch, dispatcher, domain.CredentialSet{domain.TargetCloud: serverCloud}, nil)
	if err != nil {
		t.Fatalf("NewDNCLService() error = %v", err)
	}

	g.app = fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop(), sink)})
	if err := RegisterDNCLRoutes(g.app, svc); err != nil {
		t.Fatalf("RegisterDNCLRoutes() error = %v", err)
	}
	return g
}

const bothTargetsBody = `{
	"doNotCallListName": "blocklist-1",
	"number": "+15551234567",
	"cloud": {"username": "c-user", "password": "c-pass"},
	"onPrem": {"username": "o-user", "password": "o-pass"}
}`

type removeAllBody struct {
	Message string                         `json:"message"`
	Results map[string]service.OutcomeView `json:"results"`
	Success map[string]service.OutcomeView `json:"success"`
	Failed  []failedTarget                 `json:"failed"`
	Issues  []validationIssue              `json:"issues"`
}

func decodeRemoveAll(t *testing.T, raw []byte) removeAllBody {
	t.Helper()

	var body removeAllBody
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode body %s: %v", string(raw), err)
	}
	return body
}

func TestRemoveAllIntegration_BothTargetsSucceed(t *testing.T) {
	t.Parallel()

	g := newGateway(t, newVendorStub(t, http.StatusOK, `{}`), newVendorStub(t, http.StatusOK, `{}`))

	resp, raw := performRequest(t, g.app, http.MethodDelete, "/remove-all", bothTargetsBody)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(raw))
	}

	body := decodeRemoveAll(t, raw)
	if body.Message != "Remoção concluída" {
		t.Fatalf("message = %q", body.Message)
	}
	if body.Results["cloud"].Status != "success" || body.Results["onPrem"].Status != "success" {
		t.Fatalf("results = %+v", body.Results)
	}

	if len(g.audit.records) != 1 || g.audit.records[0].Status != domain.AggregateOK {
		t.Fatalf("audit records = %+v, want one OK row", g.audit.records)
	}
}

func TestRemoveAllIntegration_CloudDuplicateIsPartial(t *testing.T) {
	t.Parallel()

	cloud := newVendorStub(t, http.StatusBadRequest, `{"code":"DuplicateKey","message":"already exists"}`)
	g := newGateway(t, cloud, newVendorStub(t, http.StatusOK, `{}`))

	resp, raw := performRequest(t, g.app, http.MethodDelete, "/remove-all", bothTargetsBody)
	if resp.StatusCode != fiber.StatusMultiStatus {
		t.Fatalf("status = %d, want 207, body=%s", resp.StatusCode, string(raw))
	}

	body := decodeRemoveAll(t, raw)
	if body.Results["onPrem"].Status != "success" {
		t.Fatalf("results.onPrem.status = %q, want success", body.Results["onPrem"].Status)
	}
	if body.Success["onPrem"].Status != "success" {
		t.Fatalf("success.onPrem.status = %q, want success", body.Success["onPrem"].Status)
	}
	if len(body.Failed) != 1 || body.Failed[0].Env != "Cloud" || body.Failed[0].Error != "JA_EXISTE_CLOUD" {
		t.Fatalf("failed = %+v, want one Cloud entry", body.Failed)
	}

	if len(g.audit.records) != 1 {
		t.Fatalf("audit records = %d, want 1", len(g.audit.records))
	}
	record := g.audit.records[0]
	if *record.CloudStatus != "ERROR" || *record.OnPremStatus != "OK" || record.Status != domain.AggregatePartial {
		t.Fatalf("audit row = cloud:%s onprem:%s status:%s", *record.CloudStatus, *record.OnPremStatus, record.Status)
	}
	if *record.LoginCloud != "c-user" || *record.LoginOnPrem != "o-user" {
		t.Fatalf("audit logins = %s/%s", *record.LoginCloud, *record.LoginOnPrem)
	}
}

func TestRemoveAllIntegration_MissingNumber(t *testing.T) {
	t.Parallel()

	g := newGateway(t, newVendorStub(t, http.StatusOK, `{}`), newVendorStub(t, http.StatusOK, `{}`))

	resp, raw := performRequest(t, g.app, http.MethodDelete, "/remove-all",
		`{"doNotCallListName":"blocklist-1","cloud":{"username":"u","password":"p"}}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", resp.StatusCode, string(raw))
	}

	body := decodeRemoveAll(t, raw)
	if len(body.Issues) != 1 || body.Issues[0].Field != "number" {
		t.Fatalf("issues = %+v, want one issue for number", body.Issues)
	}
	if g.cloud.calls()+g.onPrem.calls() != 0 {
		t.Fatal("no vendor call expected")
	}
	if len(g.audit.records) != 0 {
		t.Fatal("no audit row expected")
	}
}

func TestRemoveAllIntegration_NoCredentials(t *testing.T) {
	t.Parallel()

	g := newGateway(t, newVendorStub(t, http.StatusOK, `{}`), newVendorStub(t, http.StatusOK, `{}`))

	resp, raw := performRequest(t, g.app, http.MethodDelete, "/remove-all",
		`{"doNotCallListName":"blocklist-1","number":"+15551234567"}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", resp.StatusCode, string(raw))
	}

	body := decodeRemoveAll(t, raw)
	if body.Message != "É necessário informar credentials Cloud ou OnPrem" {
		t.Fatalf("message = %q", body.Message)
	}
	if g.cloud.calls()+g.onPrem.calls() != 0 {
		t.Fatal("no target invoker should start")
	}
}

func TestRemoveAllIntegration_AuditOutageKeepsResponse(t *testing.T) {
	t.Parallel()

	healthy := newGateway(t, newVendorStub(t, http.StatusOK, `{}`), newVendorStub(t, http.StatusOK, `{}`))
	wantResp, wantRaw := performRequest(t, healthy.app, http.MethodDelete, "/remove-all", bothTargetsBody)

	g := newGateway(t, newVendorStub(t, http.StatusOK, `{}`), newVendorStub(t, http.StatusOK, `{}`))
	g.audit.err = errors.New("database unreachable")

	resp, raw := performRequest(t, g.app, http.MethodDelete, "/remove-all", bothTargetsBody)
	if resp.StatusCode != wantResp.StatusCode {
		t.Fatalf("status = %d, want %d, body=%s", resp.StatusCode, wantResp.StatusCode, string(raw))
	}
	if !bytes.Equal(raw, wantRaw) {
		t.Fatalf("body = %s, want %s", string(raw), string(wantRaw))
	}
	if len(g.audit.records) != 0 {
		t.Fatal("no audit row expected during the outage")
	}
}

func TestRemoveAllIntegration_BodyDecoding(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		body       string
		wantFields []string
	}{
		{
			name:       "malformed json",
			body:       `{"doNotCallListName":`,
			wantFields: []string{"body"},
		},
		{
			name:       "empty body is an empty object",
			body:       ``,
			wantFields: []string{"doNotCallListName", "number"},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			g := newGateway(t, newVendorStub(t, http.StatusOK, `{}`), newVendorStub(t, http.StatusOK, `{}`))

			resp, raw := performRequest(t, g.app, http.MethodDelete, "/remove-all", tc.body)
			if resp.StatusCode != fiber.StatusBadRequest {
				t.Fatalf("status = %d, want 400, body=%s", resp.StatusCode, string(raw))
			}

			body := decodeRemoveAll(t, raw)
			if len(body.Issues) != len(tc.wantFields) {
				t.Fatalf("issues = %+v, want fields %v", body.Issues, tc.wantFields)
			}
			for i, field := range tc.wantFields {
				if body.Issues[i].Field != field {
					t.Fatalf("issues[%d].field = %q, want %q", i, body.Issues[i].Field, field)
				}
			}
			if g.cloud.calls()+g.onPrem.calls() != 0 {
				t.Fatal("no vendor call expected")
			}
		})
	}
}

func TestRemoveAllIntegration_InvalidCredentialsObject(t *testing.T) {
	t.Parallel()

	g := newGateway(t, newVendorStub(t, http.StatusOK, `{}`), newVendorStub(t, http.StatusOK, `{}`))

	resp, raw := performRequest(t, g.app, http.MethodDelete, "/remove-all",
		`{"doNotCallListName":"L","number":"1","onPrem":{"username":"u"}}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", resp.StatusCode, string(raw))
	}

	body := decodeRemoveAll(t, raw)
	if len(body.Issues) != 1 || body.Issues[0].Field != "onPrem.password" {
		t.Fatalf("issues = %+v, want onPrem.password", body.Issues)
	}
}

func TestUploadIntegration(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		method      string
		path        string
		status      int
		vendorBody  string
		body        string
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "cloud success",
			method:      http.MethodPut,
			path:        "/upload-dncl-cloud",
			status:      http.StatusOK,
			vendorBody:  `{}`,
			body:        `{"doNotCallListName":"L1","number":"912345678"}`,
			wantStatus:  fiber.StatusOK,
			wantMessage: "OK",
		},
		{
			name:        "on-prem duplicate via POST",
			method:      http.MethodPost,
			path:        "/upload-dncl-on-prem",
			status:      http.StatusBadRequest,
			vendorBody:  `{"code":"DuplicateKey","message":"exists"}`,
			body:        `{"doNotCallListName":"L1","number":"912345678"}`,
			wantStatus:  fiber.StatusBadRequest,
			wantMessage: "JA_EXISTE_ON_PREM",
		},
		{
			name:        "vendor error",
			method:      http.MethodPut,
			path:        "/upload-dncl-cloud",
			status:      http.StatusInternalServerError,
			vendorBody:  `{"code":"Boom","message":"internal"}`,
			body:        `{"doNotCallListName":"L1","number":"912345678"}`,
			wantStatus:  fiber.StatusInternalServerError,
			wantMessage: "Erro",
		},
		{
			name:        "malformed body",
			method:      http.MethodPut,
			path:        "/upload-dncl-on-prem",
			status:      http.StatusOK,
			vendorBody:  `{}`,
			body:        `{"number":`,
			wantStatus:  fiber.StatusBadRequest,
			wantMessage: "Validation error",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			g := newGateway(t, newVendorStub(t, tc.status, tc.vendorBody), newVendorStub(t, tc.status, tc.vendorBody))

			resp, raw := performRequest(t, g.app, tc.method, tc.path, tc.body)
			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("status = %d, want %d, body=%s", resp.StatusCode, tc.wantStatus, string(raw))
			}

			var body messageResponse
			if err := json.Unmarshal(raw, &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Message != tc.wantMessage {
				t.Fatalf("message = %q, want %q", body.Message, tc.wantMessage)
			}
			if len(g.audit.records) != 0 {
				t.Fatal("uploads must not write audit rows")
			}
		})
	}
}

func TestHealthIntegration_LivezAndReadyz(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		path       string
		check      HealthCheck
		wantStatus int
	}{
		{name: "livez returns 200", path: "/livez", wantStatus: fiber.StatusOK},
		{name: "readyz returns 200 when audit database healthy", path: "/readyz", check: func(context.Context) error { return nil }, wantStatus: fiber.StatusOK},
		{name: "readyz returns 503 when audit database down", path: "/readyz", check: func(context.Context) error { return errors.New("down") }, wantStatus: fiber.StatusServiceUnavailable},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop(), nil)})
			RegisterHealthRoutes(app, tc.check)

			resp, body := performRequest(t, app, http.MethodGet, tc.path, "")
			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("status = %d, want %d, body=%s", resp.StatusCode, tc.wantStatus, string(body))
			}
		})
	}
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}
