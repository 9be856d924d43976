package executors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/voiden-dev/scriptrunner/internal/collection"
	"github.com/voiden-dev/scriptrunner/internal/script/runtime"
)

func newJSSession(t *testing.T) *runtime.Session {
	t.Helper()
	return runtime.NewSession(&runtime.ExecutionRequest{
		Language: runtime.LanguageJavaScript,
		Request: runtime.RequestState{
			URL:    "https://api.example.com/users",
			Method: "GET",
			Headers: []collection.KVEntry{
				{Key: "Accept", Value: "application/json", Enabled: true},
			},
		},
		Response: &runtime.ResponseState{
			Status:     200,
			StatusText: "OK",
			Body:       `{"id": 7}`,
		},
		EnvVars:   map[string]string{"BASE_URL": "https://api.example.com"},
		Variables: map[string]interface{}{"token": "abc"},
	})
}

func TestJavaScriptExecutor_HappyPath(t *testing.T) {
	sess := newJSSession(t)
	ex := NewJavaScriptExecutor(DefaultWorkerTimeout, false)

	script := `
		voiden.log("starting");
		voiden.assert(voiden.response.status, "==", 200, "status ok");
		voiden.variables.set("userId", 7);
		vd.log("warn", "heads up");
	`
	err := ex.Execute(context.Background(), script, sess)
	require.NoError(t, err)

	logs := sess.Logs()
	require.Len(t, logs, 2)
	require.Equal(t, runtime.LevelLog, logs[0].Level)
	require.Equal(t, runtime.LevelWarn, logs[1].Level)

	asserts := sess.Assertions()
	require.Len(t, asserts, 1)
	require.True(t, asserts[0].Passed)
	require.Equal(t, "status ok", asserts[0].Message)

	require.Equal(t, float64(7), sess.Modified()["userId"])
}

func TestJavaScriptExecutor_EnvAndVariableReads(t *testing.T) {
	sess := newJSSession(t)
	ex := NewJavaScriptExecutor(DefaultWorkerTimeout, false)

	script := `
		voiden.assert(voiden.env.get("BASE_URL"), "==", "https://api.example.com", "env read");
		voiden.assert(voiden.env.get("MISSING"), "falsy", null, "absent env");
		voiden.assert(voiden.variables.get("token"), "==", "abc", "var read");
	`
	require.NoError(t, ex.Execute(context.Background(), script, sess))
	for _, a := range sess.Assertions() {
		require.True(t, a.Passed, a.Condition)
	}
}

func TestJavaScriptExecutor_SnapshotMutation(t *testing.T) {
	sess := newJSSession(t)
	ex := NewJavaScriptExecutor(DefaultWorkerTimeout, false)

	script := `
		voiden.request.addHeader("X-Trace", "t-1");
		voiden.request.url = "https://api.example.com/v2/users";
	`
	require.NoError(t, ex.Execute(context.Background(), script, sess))

	req := sess.RequestSnapshot()
	require.Equal(t, "https://api.example.com/v2/users", req.URL)
	require.Len(t, req.Headers, 2)
	require.Equal(t, "X-Trace", req.Headers[1].Key)
	require.True(t, req.Headers[1].Enabled)
}

func TestJavaScriptExecutor_StructuredHeaderValue(t *testing.T) {
	sess := newJSSession(t)
	ex := NewJavaScriptExecutor(DefaultWorkerTimeout, false)

	// object values normalize to JSON, same as host-side fixtures
	script := `
		voiden.request.addHeader("X-Meta", { a: 1 });
		voiden.request.addQueryParam("ids", [1, 2]);
	`
	require.NoError(t, ex.Execute(context.Background(), script, sess))

	req := sess.RequestSnapshot()
	require.Equal(t, `{"a":1}`, req.Headers[len(req.Headers)-1].Value)
	require.Equal(t, `[1,2]`, req.QueryParams[len(req.QueryParams)-1].Value)
}

func TestJavaScriptExecutor_ScriptError(t *testing.T) {
	sess := newJSSession(t)
	ex := NewJavaScriptExecutor(DefaultWorkerTimeout, false)

	err := ex.Execute(context.Background(), `voiden.log("before"); throw new Error("boom");`, sess)
	var scriptErr *runtime.ScriptError
	require.ErrorAs(t, err, &scriptErr)
	require.Contains(t, scriptErr.Message, "boom")
	require.NotEmpty(t, scriptErr.Stack)

	// work done before the throw survives
	require.Len(t, sess.Logs(), 1)
}

func TestJavaScriptExecutor_WorkerTimeout(t *testing.T) {
	sess := newJSSession(t)
	ex := NewJavaScriptExecutor(100*time.Millisecond, false)

	start := time.Now()
	err := ex.Execute(context.Background(), `voiden.log("in"); for (;;) {}`, sess)
	var timeoutErr *runtime.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.Equal(t, "worker", timeoutErr.Environment)
	require.Less(t, time.Since(start), 5*time.Second)

	// partial output recorded before the interrupt survives
	require.Len(t, sess.Logs(), 1)
}

func TestJavaScriptExecutor_Inline(t *testing.T) {
	sess := newJSSession(t)
	ex := NewJavaScriptExecutor(DefaultWorkerTimeout, true)

	require.NoError(t, ex.Execute(context.Background(), `voiden.log("inline run");`, sess))
	require.Len(t, sess.Logs(), 1)
}

func TestJavaScriptExecutor_Cancel(t *testing.T) {
	sess := newJSSession(t)
	ex := NewJavaScriptExecutor(DefaultWorkerTimeout, false)

	require.NoError(t, ex.Execute(context.Background(), `voiden.cancel(); voiden.log("after cancel");`, sess))
	require.True(t, sess.IsCancelled())
	// cancel is a flag, not an abort; the script keeps running
	require.Len(t, sess.Logs(), 1)
}

func TestJavaScriptExecutor_HostGlobalsNeutered(t *testing.T) {
	sess := newJSSession(t)
	ex := NewJavaScriptExecutor(DefaultWorkerTimeout, false)

	script := `
		voiden.assert(typeof require, "==", "undefined", "no require");
		voiden.assert(typeof process, "==", "undefined", "no process");
		setTimeout(function () { voiden.log("never"); }, 0);
	`
	require.NoError(t, ex.Execute(context.Background(), script, sess))
	for _, a := range sess.Assertions() {
		require.True(t, a.Passed, a.Condition)
	}
	require.Empty(t, sess.Logs())
}

func TestJavaScriptExecutor_LookaheadAssertion(t *testing.T) {
	sess := newJSSession(t)
	ex := NewJavaScriptExecutor(DefaultWorkerTimeout, false)

	// lookahead patterns must behave the same on every execution path
	script := `
		voiden.assert("abc", "matches", "a(?=b)", "lookahead hit");
		voiden.assert("acb", "matches", "a(?=b)", "lookahead miss");
	`
	require.NoError(t, ex.Execute(context.Background(), script, sess))

	asserts := sess.Assertions()
	require.Len(t, asserts, 2)
	require.True(t, asserts[0].Passed)
	require.False(t, asserts[1].Passed)
}

func TestValidateJavaScript(t *testing.T) {
	require.NoError(t, ValidateJavaScript(`var x = 1; voiden.log(x);`))
	require.Error(t, ValidateJavaScript(`var x = ;`))
}

func TestSelect_DecisionTable(t *testing.T) {
	t.Run("inline wins for javascript", func(t *testing.T) {
		ex, err := Select(runtime.LanguageJavaScript, Config{Inline: true})
		require.NoError(t, err)
		js, ok := ex.(*JavaScriptExecutor)
		require.True(t, ok)
		require.True(t, js.inline)
	})

	t.Run("worker when subprocess disabled", func(t *testing.T) {
		ex, err := Select(runtime.LanguageJavaScript, Config{DisableSubprocess: true})
		require.NoError(t, err)
		js, ok := ex.(*JavaScriptExecutor)
		require.True(t, ok)
		require.False(t, js.inline)
	})

	t.Run("worker fallback when node binary absent", func(t *testing.T) {
		ex, err := Select(runtime.LanguageJavaScript, Config{NodeBinary: "definitely-not-a-node-binary"})
		require.NoError(t, err)
		_, ok := ex.(*JavaScriptExecutor)
		require.True(t, ok)
	})

	t.Run("python requires the interpreter", func(t *testing.T) {
		_, err := Select(runtime.LanguagePython, Config{PythonBinary: "definitely-not-a-python-binary"})
		var unavailable *runtime.BridgeUnavailableError
		require.ErrorAs(t, err, &unavailable)
	})

	t.Run("unsupported language", func(t *testing.T) {
		_, err := Select(runtime.Language("ruby"), Config{})
		require.Error(t, err)
	})
}
