package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/playground"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestServer(t *testing.T) (*server, *httptest.Server) {
	t.Helper()
	s := newServer(testEnv(t), 15*time.Minute)
	ts := httptest.NewServer(s.handler())
	t.Cleanup(func() {
		ts.Close()
		s.sessions.closeAll()
	})
	return s, ts
}

func do(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func createSession(t *testing.T, ts *httptest.Server, settings any) string {
	t.Helper()
	var created createSessionResponse
	require.Equal(t, http.StatusCreated, do(t, http.MethodPost, ts.URL+"/sessions", settings, &created))
	require.NotEmpty(t, created.ID)
	return created.ID
}

func intPtr(v int) *int { return &v }

func TestHealthEndpoint(t *testing.T) {
	_, ts := setupTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestCreateSession(t *testing.T) {
	s, ts := setupTestServer(t)

	var created createSessionResponse
	require.Equal(t, http.StatusCreated, do(t, http.MethodPost, ts.URL+"/sessions", nil, &created))
	assert.Len(t, created.ID, 36)
	assert.Equal(t, playground.Settings{Language: guest.Brace, Output: guest.OutputRun}, created.Options)

	require.Equal(t, http.StatusCreated, do(t, http.MethodPost, ts.URL+"/sessions",
		playground.SettingsChange{Language: guest.Basic, Output: guest.OutputWAT, LanguageVersion: intPtr(1)}, &created))
	assert.Equal(t, playground.Settings{Language: guest.Basic, Output: guest.OutputWAT, LanguageVersion: 1}, created.Options)
	assert.Equal(t, 2, s.sessions.len())

	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, ts.URL+"/sessions", playground.SettingsChange{Language: "cobol"}, nil))
	assert.Equal(t, 2, s.sessions.len())
}

func TestSessionOptions(t *testing.T) {
	_, ts := setupTestServer(t)
	id := createSession(t, ts, nil)
	url := ts.URL + "/sessions/" + id + "/options"

	var got playground.Settings
	require.Equal(t, http.StatusOK, do(t, http.MethodPut, url, playground.SettingsChange{Output: guest.OutputBrace, OutputVersion: intPtr(1)}, &got))
	assert.Equal(t, playground.Settings{Language: guest.Brace, Output: guest.OutputBrace, OutputVersion: 1}, got)

	require.Equal(t, http.StatusOK, do(t, http.MethodGet, url, nil, &got))
	assert.Equal(t, guest.OutputBrace, got.Output)

	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPut, url, playground.SettingsChange{LanguageVersion: intPtr(42)}, nil))
}

func TestOptionsChangeKeepsVersionAndActions(t *testing.T) {
	_, ts := setupTestServer(t)
	id := createSession(t, ts, playground.SettingsChange{Output: guest.OutputWAT, LanguageVersion: intPtr(2)})
	base := ts.URL + "/sessions/" + id

	var diags diagnosticsResponse
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, base+"/diagnostics", codeRequest{Code: misspelled}, &diags))
	require.Len(t, diags.Diagnostics, 2)
	require.NotEmpty(t, diags.Diagnostics[1].Actions)
	action := diags.Diagnostics[1].Actions[0]

	var got playground.Settings
	require.Equal(t, http.StatusOK, do(t, http.MethodPut, base+"/options", map[string]any{"output": "brace"}, &got))
	assert.Equal(t, playground.Settings{Language: guest.Brace, Output: guest.OutputBrace, LanguageVersion: 2}, got)

	var applied actionResponse
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, base+"/actions/"+action.ID, nil, &applied))
	assert.Contains(t, applied.Text, "print(count);")
}

func TestDiagnosticsAndActions(t *testing.T) {
	_, ts := setupTestServer(t)
	id := createSession(t, ts, nil)
	base := ts.URL + "/sessions/" + id

	var diags diagnosticsResponse
	code := "func main() {\n    var count = 1;\n    print(cout);\n}"
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, base+"/diagnostics", codeRequest{Code: code}, &diags))
	require.Len(t, diags.Diagnostics, 2)
	assert.Equal(t, "BR0103", diags.Diagnostics[1].ID)
	require.NotEmpty(t, diags.Diagnostics[1].Actions)
	action := diags.Diagnostics[1].Actions[0]
	assert.Equal(t, "Change 'cout' to 'count'", action.Title)

	var applied actionResponse
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, base+"/actions/"+action.ID, nil, &applied))
	assert.Contains(t, applied.Text, "print(count);")

	assert.Equal(t, http.StatusNotFound, do(t, http.MethodPost, base+"/actions/"+action.ID, nil, nil))

	require.Equal(t, http.StatusOK, do(t, http.MethodPost, base+"/diagnostics", codeRequest{Code: applied.Text}, &diags))
	assert.NotNil(t, diags.Diagnostics)
	assert.Empty(t, diags.Diagnostics)
}

func TestCompletionsAndInfoTip(t *testing.T) {
	_, ts := setupTestServer(t)
	id := createSession(t, ts, nil)
	base := ts.URL + "/sessions/" + id

	code := "func main() {\n    print(math.);\n}"
	var items completionsResponse
	req := codeRequest{Code: code, Position: strings.Index(code, "math.") + 5, Trigger: &triggerRequest{Kind: "insertion", Character: "."}}
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, base+"/completions", req, &items))
	var names []string
	for _, it := range items.Items {
		names = append(names, it.DisplayText)
	}
	assert.Contains(t, names, "max")
	assert.Contains(t, names, "gcd")

	req.Trigger = &triggerRequest{Kind: "sideways"}
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, base+"/completions", req, nil))

	code = "func main() {\n    println(math.max(1, 2));\n}"
	var tip guest.InfoTip
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, base+"/infotip", codeRequest{Code: code, Position: strings.Index(code, "max") + 1}, &tip))
	require.NotEmpty(t, tip.Sections)
	assert.True(t, strings.HasPrefix(tip.Sections[0].Text(), "func math.max("), tip.Sections[0].Text())
}

func TestProcess(t *testing.T) {
	_, ts := setupTestServer(t)
	id := createSession(t, ts, nil)
	base := ts.URL + "/sessions/" + id

	var res playground.ProcessResult
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, base+"/process", codeRequest{Code: `println("hi");`}, &res))
	assert.Equal(t, []string{"hi\n", "exit code 0"}, res.Output)

	require.Equal(t, http.StatusOK, do(t, http.MethodPut, base+"/options", playground.SettingsChange{Output: guest.OutputWAT}, nil))
	res = playground.ProcessResult{}
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, base+"/process", codeRequest{Code: `println("hi");`}, &res))
	assert.Contains(t, res.Text, `(data (i32.const 1024) "hi")`)
	assert.Empty(t, res.Output)

	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, base+"/process", "not an object", nil))
}

func TestReferenceEndpoint(t *testing.T) {
	_, ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/references/math")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/wasm", resp.Header.Get("Content-Type"))
	assert.Equal(t, []byte("\x00asm"), body[:4])

	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, ts.URL+"/references/nope", nil, nil))
}

func TestDeleteSession(t *testing.T) {
	s, ts := setupTestServer(t)
	id := createSession(t, ts, nil)

	assert.Equal(t, http.StatusNoContent, do(t, http.MethodDelete, ts.URL+"/sessions/"+id, nil, nil))
	assert.Equal(t, 0, s.sessions.len())
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodDelete, ts.URL+"/sessions/"+id, nil, nil))
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodPost, ts.URL+"/sessions/"+id+"/process", codeRequest{Code: "x"}, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, http.MethodGet, ts.URL+"/sessions", nil, nil))
}

func TestSessionExpiry(t *testing.T) {
	s, ts := setupTestServer(t)
	stale := createSession(t, ts, nil)
	fresh := createSession(t, ts, nil)

	s.sessions.mu.Lock()
	s.sessions.sessions[stale].lastUsed = time.Now().Add(-time.Hour)
	s.sessions.mu.Unlock()

	assert.Equal(t, 1, s.sessions.sweep(time.Now()))
	_, ok := s.sessions.get(stale)
	assert.False(t, ok)
	_, ok = s.sessions.get(fresh)
	assert.True(t, ok)
}

func TestTriggerRequest(t *testing.T) {
	var nilReq *triggerRequest
	tr, err := nilReq.trigger()
	require.NoError(t, err)
	assert.Equal(t, guest.Trigger{Kind: guest.TriggerInvoke}, tr)

	tr, err = (&triggerRequest{Kind: "deletion"}).trigger()
	require.NoError(t, err)
	assert.Equal(t, guest.TriggerDeletion, tr.Kind)

	tr, err = (&triggerRequest{Kind: "insertion", Character: "é"}).trigger()
	require.NoError(t, err)
	assert.Equal(t, 'é', tr.Character)
}
