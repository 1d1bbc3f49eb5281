package server

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	return New(
		WithFlowsDir(t.TempDir()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

const mathChain = `{
	"nodes": [
		{"id": "in", "type_name": "start", "config": {}},
		{"id": "add", "type_name": "math_add", "config": {"value": 2}},
		{"id": "mul", "type_name": "math_multiply", "config": {"value": 3}}
	],
	"edges": [
		{"source": "in", "target": "add"},
		{"source": "add", "target": "mul"}
	]
}`

func decodeBody(t *testing.T, body io.Reader, out any) {
	t.Helper()
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("decode body: %v\n%s", err, data)
	}
}

func TestServer_DeployAndRun(t *testing.T) {
	srv := testServer(t)

	t.Run("deploy", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/deploy/pipeline", strings.NewReader(mathChain))
		req.Header.Set("Content-Type", "application/json")
		resp, err := srv.App().Test(req)
		if err != nil {
			t.Fatalf("Test failed: %v", err)
		}
		if resp.StatusCode != 201 {
			t.Fatalf("status = %d, want 201", resp.StatusCode)
		}
		var body deployResponse
		decodeBody(t, resp.Body, &body)
		if body.FlowName != "pipeline" || body.Nodes != 3 {
			t.Errorf("body = %+v", body)
		}
		if !strings.HasPrefix(body.Source, "program workflow {") {
			t.Errorf("source = %q", body.Source)
		}
	})

	var runID string
	t.Run("run", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/run/pipeline?backend=cpu", strings.NewReader("3"))
		resp, err := srv.App().Test(req)
		if err != nil {
			t.Fatalf("Test failed: %v", err)
		}
		if resp.StatusCode != 200 {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		var body struct {
			RunID  string  `json:"run_id"`
			Phase  string  `json:"phase"`
			Output float64 `json:"output"`
		}
		decodeBody(t, resp.Body, &body)
		if body.Phase != "done" || body.Output != 15 {
			t.Errorf("body = %+v", body)
		}
		runID = body.RunID
	})

	t.Run("timeline", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/runs/"+runID+"/timeline", nil)
		resp, err := srv.App().Test(req)
		if err != nil {
			t.Fatalf("Test failed: %v", err)
		}
		if resp.StatusCode != 200 {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		var body struct {
			Run struct {
				FlowName string `json:"flow_name"`
				Backend  string `json:"backend"`
			} `json:"run"`
			Entries []struct {
				Seq   int    `json:"seq"`
				State string `json:"state"`
			} `json:"entries"`
		}
		decodeBody(t, resp.Body, &body)
		if body.Run.FlowName != "pipeline" || body.Run.Backend != "cpu" {
			t.Errorf("run = %+v", body.Run)
		}
		if len(body.Entries) != 3 {
			t.Fatalf("entries = %d, want 3", len(body.Entries))
		}
		for i, e := range body.Entries {
			if e.Seq != i || e.State != "completed" {
				t.Errorf("entry %d = %+v", i, e)
			}
		}
	})

	t.Run("run unknown flow", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/run/ghost", nil)
		resp, err := srv.App().Test(req)
		if err != nil {
			t.Fatalf("Test failed: %v", err)
		}
		if resp.StatusCode != 404 {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("timeline unknown run", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/runs/ghost/timeline", nil)
		resp, err := srv.App().Test(req)
		if err != nil {
			t.Fatalf("Test failed: %v", err)
		}
		if resp.StatusCode != 404 {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})
}

func TestServer_DeployValidation(t *testing.T) {
	srv := testServer(t)

	t.Run("cycle rejected", func(t *testing.T) {
		doc := `{
			"nodes": [
				{"id": "a", "type_name": "start", "config": {}},
				{"id": "b", "type_name": "print", "config": {}}
			],
			"edges": [
				{"source": "a", "target": "b"},
				{"source": "b", "target": "a"}
			]
		}`
		req := httptest.NewRequest("POST", "/deploy/loop", strings.NewReader(doc))
		resp, err := srv.App().Test(req)
		if err != nil {
			t.Fatalf("Test failed: %v", err)
		}
		if resp.StatusCode != 422 {
			t.Fatalf("status = %d, want 422", resp.StatusCode)
		}
		var body struct {
			Error struct {
				Code    string   `json:"code"`
				NodeIDs []string `json:"node_ids"`
			} `json:"error"`
		}
		decodeBody(t, resp.Body, &body)
		if body.Error.Code != "CYCLIC_GRAPH" || len(body.Error.NodeIDs) == 0 {
			t.Errorf("error = %+v", body.Error)
		}
	})

	t.Run("malformed document", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/deploy/bad", strings.NewReader("{not json"))
		resp, err := srv.App().Test(req)
		if err != nil {
			t.Fatalf("Test failed: %v", err)
		}
		if resp.StatusCode != 400 {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("unknown backend hint", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/deploy/ok", strings.NewReader(mathChain))
		if _, err := srv.App().Test(req); err != nil {
			t.Fatalf("deploy failed: %v", err)
		}
		runReq := httptest.NewRequest("POST", "/run/ok?backend=tpu", nil)
		resp, err := srv.App().Test(runReq)
		if err != nil {
			t.Fatalf("Test failed: %v", err)
		}
		if resp.StatusCode != 400 {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})
}

func TestServer_Kinds(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest("GET", "/kinds", nil)
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("Test failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Kinds []kindView `json:"kinds"`
	}
	decodeBody(t, resp.Body, &body)
	if len(body.Kinds) == 0 {
		t.Fatal("no kinds returned")
	}
	seen := map[string]bool{}
	for _, k := range body.Kinds {
		seen[k.Name] = true
	}
	for _, want := range []string{"start", "http_get", "tensor_op", "math_random"} {
		if !seen[want] {
			t.Errorf("kind %s missing from catalog", want)
		}
	}
}
