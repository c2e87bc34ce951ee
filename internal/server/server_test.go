package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"bidline/internal/config"
	"bidline/internal/db"
	"bidline/internal/domain"
	"bidline/internal/migrate"
	"bidline/internal/orchestrator"
	"bidline/internal/repo"
	"bidline/internal/stage"
)

type testServer struct {
	URL    string
	Orch   *orchestrator.Orchestrator
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, auth AuthConfig) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("Test Federal LLC")
	set, err := stage.DefaultSet(stage.Deps{Scores: orchestrator.NewScoreSink(conn)})
	if err != nil {
		t.Fatalf("build stage set: %v", err)
	}
	orch := orchestrator.New(conn, cfg, set)
	handler, err := New(Config{Orchestrator: orch, BasePath: "/v0", Auth: auth})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Orch:   orch,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createTestOpportunity(t *testing.T, srv *testServer) domain.Opportunity {
	t.Helper()
	deadline := time.Now().UTC().AddDate(0, 2, 0).Format(time.RFC3339)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/opportunities", map[string]any{
		"solicitation_number": "36C10B25R0042",
		"title":               "Enterprise Cybersecurity Support Services",
		"agency":              "Department of Veterans Affairs",
		"description": "The contractor shall provide cybersecurity monitoring and incident response services. " +
			"The contractor must maintain a help desk during business hours. " +
			"All personnel are required to complete annual security training.",
		"naics_code":        "541512",
		"psc_code":          "D302",
		"set_aside":         "SDVOSB",
		"estimated_value":   2000000,
		"response_deadline": deadline,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create opportunity: %d %s", res.StatusCode, string(data))
	}
	var opp domain.Opportunity
	if err := json.Unmarshal(data, &opp); err != nil {
		t.Fatalf("unmarshal opportunity: %v", err)
	}
	return opp
}

func TestOpportunityCRUDAndScoring(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	opp := createTestOpportunity(t, srv)
	if opp.ID == "" || opp.Status != domain.OppDiscovered {
		t.Fatalf("unexpected opportunity %+v", opp)
	}

	getRes, getBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/opportunities/"+opp.ID, nil, nil)
	if getRes.StatusCode != http.StatusOK {
		t.Fatalf("get opportunity: %d %s", getRes.StatusCode, string(getBody))
	}

	listRes, listBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/opportunities?status=discovered", nil, nil)
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("list opportunities: %d %s", listRes.StatusCode, string(listBody))
	}
	var listed struct {
		Items []domain.Opportunity `json:"items"`
	}
	if err := json.Unmarshal(listBody, &listed); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(listed.Items) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(listed.Items))
	}

	scoreRes, scoreBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/opportunities/"+opp.ID+"/score", nil, nil)
	if scoreRes.StatusCode != http.StatusCreated {
		t.Fatalf("score opportunity: %d %s", scoreRes.StatusCode, string(scoreBody))
	}
	var score domain.BidScore
	if err := json.Unmarshal(scoreBody, &score); err != nil {
		t.Fatalf("unmarshal score: %v", err)
	}
	if score.Recommendation != domain.RecommendBid {
		t.Fatalf("expected BID for a strong match, got %s (total %.1f)", score.Recommendation, score.Total)
	}
	if !score.IsVAProcurement {
		t.Fatalf("expected VA procurement flag")
	}

	scoresRes, scoresBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/opportunities/"+opp.ID+"/scores", nil, nil)
	if scoresRes.StatusCode != http.StatusOK {
		t.Fatalf("list scores: %d %s", scoresRes.StatusCode, string(scoresBody))
	}
	var scores struct {
		Items []domain.BidScore `json:"items"`
	}
	if err := json.Unmarshal(scoresBody, &scores); err != nil {
		t.Fatalf("unmarshal scores: %v", err)
	}
	if len(scores.Items) != 1 {
		t.Fatalf("expected 1 score, got %d", len(scores.Items))
	}
}

func TestCreateOpportunityValidation(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/opportunities", map[string]any{
		"solicitation_number": "FA8750-25-R-0001",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "bad_request" {
		t.Fatalf("expected bad_request code, got %q", envelope.Error.Code)
	}
}

func TestUnknownOpportunityIs404(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/opportunities/nope", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
}

func TestWorkflowCompletesWithAutoApprove(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()
	opp := createTestOpportunity(t, srv)

	startRes, startBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/opportunities/"+opp.ID+"/workflow/start", map[string]any{
		"auto_approve": true,
	}, nil)
	if startRes.StatusCode != http.StatusCreated {
		t.Fatalf("start workflow: %d %s", startRes.StatusCode, string(startBody))
	}

	advRes, advBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/opportunities/"+opp.ID+"/workflow/advance", nil, nil)
	if advRes.StatusCode != http.StatusOK {
		t.Fatalf("advance workflow: %d %s", advRes.StatusCode, string(advBody))
	}
	var result orchestrator.AdvanceResult
	if err := json.Unmarshal(advBody, &result); err != nil {
		t.Fatalf("unmarshal advance result: %v", err)
	}
	if result.Outcome != domain.OutcomeCompleted {
		t.Fatalf("expected completed, got %s: %s", result.Outcome, string(advBody))
	}
	if len(result.State.Completed) != len(domain.StageOrder) {
		t.Fatalf("expected %d completed stages, got %d", len(domain.StageOrder), len(result.State.Completed))
	}

	wfRes, wfBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/opportunities/"+opp.ID+"/workflow", nil, nil)
	if wfRes.StatusCode != http.StatusOK {
		t.Fatalf("workflow status: %d %s", wfRes.StatusCode, string(wfBody))
	}
	var w domain.WorkflowState
	if err := json.Unmarshal(wfBody, &w); err != nil {
		t.Fatalf("unmarshal workflow: %v", err)
	}
	if w.Status != domain.WorkflowCompleted {
		t.Fatalf("expected completed workflow, got %s", w.Status)
	}
}

func TestGatesHoldAndResolveOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()
	opp := createTestOpportunity(t, srv)

	if res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/opportunities/"+opp.ID+"/workflow/start", map[string]any{}, nil); res.StatusCode != http.StatusCreated {
		t.Fatalf("start workflow: %d %s", res.StatusCode, string(body))
	}

	advRes, advBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/opportunities/"+opp.ID+"/workflow/advance", nil, nil)
	if advRes.StatusCode != http.StatusOK {
		t.Fatalf("advance: %d %s", advRes.StatusCode, string(advBody))
	}
	var first orchestrator.AdvanceResult
	if err := json.Unmarshal(advBody, &first); err != nil {
		t.Fatalf("unmarshal advance: %v", err)
	}
	if first.Outcome != domain.OutcomeAwaitingApproval || first.Gate != domain.GateFirst {
		t.Fatalf("expected hold at first gate, got %s %s", first.Outcome, first.Gate)
	}

	badRes, badBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/opportunities/"+opp.ID+"/workflow/gates/second-gate/approve", map[string]any{}, nil)
	if badRes.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for non-pending gate, got %d %s", badRes.StatusCode, string(badBody))
	}

	appRes, appBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/opportunities/"+opp.ID+"/workflow/gates/first-gate/approve", map[string]any{
		"note": "pursue",
	}, nil)
	if appRes.StatusCode != http.StatusOK {
		t.Fatalf("approve gate: %d %s", appRes.StatusCode, string(appBody))
	}

	advRes2, advBody2 := doJSON(t, client, http.MethodPost, srv.URL+"/v0/opportunities/"+opp.ID+"/workflow/advance", nil, nil)
	if advRes2.StatusCode != http.StatusOK {
		t.Fatalf("advance after approve: %d %s", advRes2.StatusCode, string(advBody2))
	}
	var second orchestrator.AdvanceResult
	if err := json.Unmarshal(advBody2, &second); err != nil {
		t.Fatalf("unmarshal advance: %v", err)
	}
	if second.Outcome != domain.OutcomeAwaitingApproval || second.Gate != domain.GateSecond {
		t.Fatalf("expected hold at second gate, got %s %s", second.Outcome, second.Gate)
	}

	rejRes, rejBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/opportunities/"+opp.ID+"/workflow/gates/second-gate/reject", map[string]any{
		"note": "pricing too thin",
	}, nil)
	if rejRes.StatusCode != http.StatusOK {
		t.Fatalf("reject gate: %d %s", rejRes.StatusCode, string(rejBody))
	}
	var rejected domain.WorkflowState
	if err := json.Unmarshal(rejBody, &rejected); err != nil {
		t.Fatalf("unmarshal rejected workflow: %v", err)
	}
	if rejected.Status != domain.WorkflowAborted {
		t.Fatalf("expected aborted after rejection, got %s", rejected.Status)
	}

	finalRes, finalBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/opportunities/"+opp.ID+"/workflow/advance", nil, nil)
	if finalRes.StatusCode != http.StatusOK {
		t.Fatalf("advance after rejection: %d %s", finalRes.StatusCode, string(finalBody))
	}
	var final orchestrator.AdvanceResult
	if err := json.Unmarshal(finalBody, &final); err != nil {
		t.Fatalf("unmarshal final advance: %v", err)
	}
	if final.Outcome != domain.OutcomeAborted {
		t.Fatalf("rejection should be sticky, got %s", final.Outcome)
	}
}

func TestUnknownGateIs400(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	opp := createTestOpportunity(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/opportunities/"+opp.ID+"/workflow/gates/third-gate/approve", map[string]any{}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(data))
	}
}

func TestTriageSignalOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/signals", map[string]any{
		"signal_type":         "sources_sought",
		"title":               "IT Security Support Services",
		"agency":              "Department of Veterans Affairs",
		"naics_code":          "541511",
		"set_aside":           "SDVOSB",
		"solicitation_number": "36C10X25Q0100",
		"estimated_value":     500000,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("triage signal: %d %s", res.StatusCode, string(data))
	}
	var sig domain.EarlySignal
	if err := json.Unmarshal(data, &sig); err != nil {
		t.Fatalf("unmarshal signal: %v", err)
	}
	if !sig.HotLead {
		t.Fatalf("expected hot lead, composite %.1f", sig.Composite)
	}

	dupRes, dupBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/signals", map[string]any{
		"title":               "IT Security Support Services",
		"solicitation_number": "36C10X25Q0100",
	}, nil)
	if dupRes.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d %s", dupRes.StatusCode, string(dupBody))
	}

	listRes, listBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/signals?hot=true", nil, nil)
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("list signals: %d %s", listRes.StatusCode, string(listBody))
	}
	var listed struct {
		Items []domain.EarlySignal `json:"items"`
	}
	if err := json.Unmarshal(listBody, &listed); err != nil {
		t.Fatalf("unmarshal signals: %v", err)
	}
	if len(listed.Items) != 1 {
		t.Fatalf("expected 1 hot signal, got %d", len(listed.Items))
	}
}

func TestScanWithoutFeedIs503(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/signals/scan", map[string]any{}, nil)
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a feed, got %d %s", res.StatusCode, string(data))
	}
}

func TestEventsLogOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()
	opp := createTestOpportunity(t, srv)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?opportunity_id="+opp.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list events: %d %s", res.StatusCode, string(data))
	}
	var listed struct {
		Items []EventResponse `json:"items"`
	}
	if err := json.Unmarshal(data, &listed); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(listed.Items) != 1 || listed.Items[0].Type != "opportunity.created" {
		t.Fatalf("expected one opportunity.created event, got %+v", listed.Items)
	}
	if listed.Items[0].Payload["solicitation_number"] != "36C10B25R0042" {
		t.Fatalf("expected payload to decode, got %+v", listed.Items[0].Payload)
	}
}

func TestJWTAuthRequiredWhenConfigured(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{JWTSecret: "test-secret"})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/opportunities", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d %s", res.StatusCode, string(data))
	}

	healthRes, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if healthRes.StatusCode != http.StatusOK {
		t.Fatalf("health should be public, got %d", healthRes.StatusCode)
	}

	loginRes, loginBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"actor_id": "alice",
	}, nil)
	if loginRes.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", loginRes.StatusCode, string(loginBody))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(loginBody, &login); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}

	okRes, okBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/opportunities", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if okRes.StatusCode != http.StatusOK {
		t.Fatalf("authenticated request: %d %s", okRes.StatusCode, string(okBody))
	}

	badRes, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/opportunities", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if badRes.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", badRes.StatusCode)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{JWTSecret: "test-secret"})
	defer cleanup()
	client := srv.Client()

	key := "blk_live_0123456789abcdef"
	err := srv.Orch.Repo.InsertAPIKey(context.Background(), nil, domain.APIKey{
		ID:        "key-1",
		ActorID:   "pipeline-bot",
		Name:      "ci",
		KeyHash:   repo.HashAPIKey(key),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("insert api key: %v", err)
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/opportunities", nil, map[string]string{
		"X-Api-Key": key,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key request: %d %s", res.StatusCode, string(data))
	}

	badRes, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/opportunities", nil, map[string]string{
		"X-Api-Key": "wrong",
	})
	if badRes.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown key, got %d", badRes.StatusCode)
	}
}
