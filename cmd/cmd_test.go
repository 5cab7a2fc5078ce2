package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hb-chen/skillgate/internal/config"
	"github.com/hb-chen/skillgate/internal/skill"
	"github.com/hb-chen/skillgate/internal/skill/direct"
	"github.com/hb-chen/skillgate/internal/storage"
)

func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--log-path", t.TempDir()))
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestVersionCommand(t *testing.T) {
	assert.Equal(t, "skillgate dev\n", runCommand(t, "version"))
}

func TestLimitedExecCommandIsHidden(t *testing.T) {
	found, args, err := rootCmd.Find([]string{direct.LimitedExecCommand, "1", "0", "/bin/sh", "-c", "true"})
	require.NoError(t, err)
	assert.Same(t, limitedCmd, found)
	assert.True(t, found.Hidden)
	assert.True(t, found.DisableFlagParsing)
	assert.Equal(t, []string{"1", "0", "/bin/sh", "-c", "true"}, args)

	assert.NotContains(t, runCommand(t, "--help"), direct.LimitedExecCommand)
}

func TestSkillsCommandListsBuiltinCatalog(t *testing.T) {
	out := runCommand(t, "skills")
	assert.Contains(t, out, "scan_nmap")
	assert.Contains(t, out, "fuzz_ffuf")
	assert.Contains(t, out, "timing")
}

func sampleRecords() []storage.Record {
	code := 0
	finished := time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC)
	return []storage.Record{
		{
			ExecutionID: "11111111-1111-4111-8111-111111111111",
			Module:      "scan_nmap",
			Target:      "10.0.0.1",
			Parameters:  map[string]interface{}{},
			Output:      "22/tcp open ssh",
			Status:      storage.StatusSuccess,
			Timestamp:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			FinishedAt:  &finished,
			ExitCode:    &code,
			DurationMS:  1200,
		},
		{
			ExecutionID: "22222222-2222-4222-8222-222222222222",
			Module:      "fuzz_ffuf",
			Target:      "https://example.com/FUZZ",
			Parameters:  map[string]interface{}{},
			Status:      storage.StatusFailed,
			Timestamp:   time.Date(2026, 1, 2, 3, 5, 0, 0, time.UTC),
			Error:       "binary not found: ffuf",
		},
	}
}

func historyServerStub(t *testing.T) *httptest.Server {
	records := sampleRecords()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /history", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(records)
	})
	mux.HandleFunc("GET /history/{id}", func(w http.ResponseWriter, r *http.Request) {
		for _, rec := range records {
			if rec.ExecutionID == r.PathValue("id") {
				_ = json.NewEncoder(w).Encode(rec)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"execution missing not found"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHistoryClient(t *testing.T) {
	srv := historyServerStub(t)
	client := newHistoryClient(srv.URL+"/", srv.Client())
	ctx := context.Background()

	records, err := client.History(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "scan_nmap", records[0].Module)

	rec, err := client.Record(ctx, records[1].ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, rec.Status)

	_, err = client.Record(ctx, "missing")
	assert.ErrorContains(t, err, "execution missing not found")
}

func TestHistoryCommand(t *testing.T) {
	srv := historyServerStub(t)

	out := runCommand(t, "history", "--server", srv.URL)
	assert.Contains(t, out, "EXECUTION")
	assert.Contains(t, out, "11111111-1111-4111-8111-111111111111")
	assert.Contains(t, out, "1.2s")

	out = runCommand(t, "history", "--server", srv.URL, "--id", "22222222-2222-4222-8222-222222222222")
	assert.Contains(t, out, "binary not found: ffuf")
	historyID = ""
}

func TestRenderEmpty(t *testing.T) {
	assert.Contains(t, renderHistory(nil), "No executions recorded.")
	assert.Contains(t, renderSkills(nil), "No skills registered.")
}

func TestRenderRecordSections(t *testing.T) {
	out := renderRecord(sampleRecords()[0])
	assert.Contains(t, out, "stdout")
	assert.Contains(t, out, "22/tcp open ssh")
	assert.NotContains(t, out, "stderr")
	assert.Contains(t, out, "exit code")
}

func TestParamConstraint(t *testing.T) {
	lo, hi := int64(1), int64(10)
	assert.Equal(t, ">= 1, <= 10", paramConstraint(skill.ParamSpec{Type: skill.ParamInt, Min: &lo, Max: &hi}))
	assert.Equal(t, "one of A|B", paramConstraint(skill.ParamSpec{Type: skill.ParamEnum, Values: []string{"A", "B"}}))
	assert.Equal(t, "-v", paramConstraint(skill.ParamSpec{Type: skill.ParamBool, Flag: "-v"}))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", truncateString("abc", 3))
	assert.Equal(t, "ab…", truncateString("abcd", 3))
}

func TestNewTracerWritesReportsWhenEnabled(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Tracing: config.Tracing{Level: "minimal"},
		Reports: config.Reports{Enabled: true, Dir: dir},
	}

	rec := sampleRecords()[0]
	require.NoError(t, newTracer(cfg).TraceExecutionEnd(context.Background(), rec))

	matches, err := filepath.Glob(filepath.Join(dir, "*-"+rec.ExecutionID+".md"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	body, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(body), "22/tcp open ssh")

	cfg.Reports = config.Reports{Enabled: false, Dir: filepath.Join(dir, "off")}
	require.NoError(t, newTracer(cfg).TraceExecutionEnd(context.Background(), rec))
	_, err = os.Stat(filepath.Join(dir, "off"))
	assert.True(t, os.IsNotExist(err))
}
