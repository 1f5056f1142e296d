package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/sebas/ivrcaller/internal/ivr/correlation"
	"github.com/sebas/ivrcaller/internal/ivr/gateway"
	"github.com/sebas/ivrcaller/internal/ivr/registry"
	"github.com/sebas/ivrcaller/internal/ivr/router"
	"github.com/sebas/ivrcaller/internal/ivr/session"
)

func newTestServer(t *testing.T) (*httptest.Server, *registry.Registry, *gateway.Recorder) {
	t.Helper()
	gw := gateway.NewRecorder()
	reg := registry.New(registry.Config{Gateway: gw})
	t.Cleanup(reg.Close)

	rt := router.New(reg, session.CallConfiguration{}, nil)
	srv := httptest.NewServer(NewServer(":0", rt, reg, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, reg, gw
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func startCall(t *testing.T, srv *httptest.Server) uuid.UUID {
	t.Helper()
	resp := post(t, srv.URL+"/api/v1/calls", `{"phone_number": "+15551234567"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var body struct {
		CallID string `json:"call_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	id, err := uuid.Parse(body.CallID)
	if err != nil {
		t.Fatalf("call_id %q: %v", body.CallID, err)
	}
	return id
}

func callbackBody(id uuid.UUID, typ string, tones ...string) string {
	data := map[string]any{
		"operationContext": correlation.Encode(id),
		"callConnectionId": "conn-9",
	}
	if len(tones) > 0 {
		data["dtmfResult"] = map[string]any{"tones": tones}
	}
	ev := map[string]any{
		"id":     uuid.NewString(),
		"source": "calling/callConnections/conn-9",
		"type":   "Microsoft.Communication." + typ,
		"data":   data,
	}
	b, _ := json.Marshal([]any{ev})
	return string(b)
}

func TestStartCallEndpoint(t *testing.T) {
	srv, reg, gw := newTestServer(t)

	id := startCall(t, srv)
	if _, ok := reg.Get(id); !ok {
		t.Error("session not registered")
	}
	if gw.Count(gateway.OpDial) != 1 {
		t.Errorf("dials = %d, want 1", gw.Count(gateway.OpDial))
	}
}

func TestStartCallEndpointErrors(t *testing.T) {
	srv, _, gw := newTestServer(t)

	if resp := post(t, srv.URL+"/api/v1/calls", `{"phone_number": "nope"}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid number: status = %d, want 400", resp.StatusCode)
	}
	if resp := post(t, srv.URL+"/api/v1/calls", `{`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad JSON: status = %d, want 400", resp.StatusCode)
	}

	resp, err := http.Get(srv.URL + "/api/v1/calls")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET: status = %d, want 405", resp.StatusCode)
	}

	gw.FailOn(gateway.OpDial, errors.New("unavailable"))
	resp = post(t, srv.URL+"/api/v1/calls", `{"phone_number": "+15551234567"}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("dial failure: status = %d, want 502", resp.StatusCode)
	}
	var body struct {
		CallID string `json:"call_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := uuid.Parse(body.CallID); err != nil {
		t.Fatalf("call_id %q: %v", body.CallID, err)
	}

	// The failed session has ended and is no longer listed.
	got, err := http.Get(srv.URL + "/api/v1/sessions/" + body.CallID)
	if err != nil {
		t.Fatal(err)
	}
	got.Body.Close()
	if got.StatusCode != http.StatusNotFound {
		t.Errorf("failed session lookup: status = %d, want 404", got.StatusCode)
	}
}

func TestCallbacksDriveSession(t *testing.T) {
	srv, reg, gw := newTestServer(t)
	id := startCall(t, srv)
	s, _ := reg.Get(id)

	steps := []struct {
		body string
		want session.State
	}{
		{callbackBody(id, "CallConnected"), session.StateAskMainQuestion},
		{callbackBody(id, "RecognizeCompleted", "one"), session.StateAskFavoriteAnimal},
		{callbackBody(id, "RecognizeCompleted", "two"), session.StateThankYou},
		{callbackBody(id, "PlayCompleted"), session.StateTerminal},
	}
	for _, step := range steps {
		resp := post(t, srv.URL+"/api/v1/callbacks", step.body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		if got := s.State(); got != step.want {
			t.Fatalf("state = %s, want %s", got, step.want)
		}
	}

	if gw.Count(gateway.OpHangup) != 1 {
		t.Errorf("hangups = %d, want 1", gw.Count(gateway.OpHangup))
	}
}

func TestCallbacksTolerateUnroutableEvents(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body := fmt.Sprintf(`[
		{"type": "Microsoft.Communication.CallConnected", "data": {}},
		{"type": "Microsoft.Communication.CallConnected", "data": {"operationContext": "a|not-a-uuid"}},
		{"type": "Microsoft.Communication.CallConnected", "data": {"operationContext": %q}}
	]`, correlation.Encode(uuid.New()))

	resp := post(t, srv.URL+"/api/v1/callbacks", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out struct {
		Received int `json:"received"`
		Routed   int `json:"routed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Received != 3 || out.Routed != 0 {
		t.Errorf("got %+v, want 3 received, 0 routed", out)
	}

	if resp := post(t, srv.URL+"/api/v1/callbacks", `not json`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("garbage body: status = %d, want 400", resp.StatusCode)
	}
}

func TestSessionEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t)
	id := startCall(t, srv)

	resp, err := http.Get(srv.URL + "/api/v1/sessions")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var list []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0]["id"] != id.String() || list[0]["state"] != "Ringing" {
		t.Errorf("sessions = %v", list)
	}

	one, err := http.Get(srv.URL + "/api/v1/sessions/" + id.String())
	if err != nil {
		t.Fatal(err)
	}
	defer one.Body.Close()
	if one.StatusCode != http.StatusOK {
		t.Errorf("GET session: status = %d, want 200", one.StatusCode)
	}

	for path, want := range map[string]int{
		"/api/v1/sessions/" + uuid.NewString(): http.StatusNotFound,
		"/api/v1/sessions/bad":                 http.StatusBadRequest,
		"/api/v1/health":                       http.StatusOK,
		"/api/v1/stats":                        http.StatusOK,
	} {
		r, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		r.Body.Close()
		if r.StatusCode != want {
			t.Errorf("GET %s: status = %d, want %d", path, r.StatusCode, want)
		}
	}
}

func TestDecodeCallbacksSingleObject(t *testing.T) {
	batch, err := decodeCallbacks([]byte(`{"type": "Microsoft.Communication.RecognizeCompleted",
		"data": {"operationContext": "ivr|x", "collectTonesResult": {"tones": ["five"]}}}`))
	if err != nil {
		t.Fatalf("decodeCallbacks() error: %v", err)
	}
	if len(batch) != 1 || batch[0].OperationContext != "ivr|x" || len(batch[0].Tones) != 1 || batch[0].Tones[0] != "five" {
		t.Errorf("batch = %+v", batch)
	}
	if _, err := decodeCallbacks(nil); err == nil {
		t.Error("expected error for empty body")
	}
}
