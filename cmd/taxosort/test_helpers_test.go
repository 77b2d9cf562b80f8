package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type cliTestEnv struct {
	baseDir    string
	inputDir   string
	outputDir  string
	ledgerPath string
	configPath string
	service    *fakeService
}

// fakeService mimics the classification service's HTTP API.
type fakeService struct {
	mu          sync.Mutex
	vocabulary  map[string][]string
	predictions map[string]map[string][]map[string]any
	predicts    int
	server      *httptest.Server
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()
	svc := &fakeService{
		vocabulary: map[string][]string{
			"family": {"Apidae", "Syrphidae", "Vespidae"},
			"order":  {"Hymenoptera", "Diptera"},
			"class":  {"Insecta", "Arachnida"},
		},
		predictions: make(map[string]map[string][]map[string]any),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /v1/labels", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ranks": svc.vocabulary})
	})
	mux.HandleFunc("POST /v1/filters", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "filter-1"})
	})
	mux.HandleFunc("POST /v1/predict", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Rank     string `json:"rank"`
			Filename string `json:"filename"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		svc.mu.Lock()
		svc.predicts++
		preds := svc.predictions[req.Rank][req.Filename]
		svc.mu.Unlock()
		if preds == nil {
			preds = []map[string]any{}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"predictions": preds})
	})
	svc.server = httptest.NewServer(mux)
	t.Cleanup(svc.server.Close)
	return svc
}

func (s *fakeService) answer(rank, filename, label string, score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.predictions[rank] == nil {
		s.predictions[rank] = make(map[string][]map[string]any)
	}
	s.predictions[rank][filename] = append(s.predictions[rank][filename], map[string]any{"label": label, "score": score})
}

func (s *fakeService) predictCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.predicts
}

// setupCLITestEnv writes a config file for mode pointing at temp directories
// and a fake classification service.
func setupCLITestEnv(t *testing.T, mode string, extra string) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("TAXOSORT_CLASSIFIER_URL", "")
	t.Setenv("TAXOSORT_CLASSIFIER_TOKEN", "")
	t.Setenv("TAXOSORT_INPUT_DIR", "")

	env := &cliTestEnv{
		baseDir:    base,
		inputDir:   filepath.Join(base, "images"),
		outputDir:  filepath.Join(base, "out"),
		configPath: filepath.Join(base, "taxosort.toml"),
		service:    newFakeService(t),
	}
	env.ledgerPath = filepath.Join(env.outputDir, "classifications.csv")
	if err := os.MkdirAll(env.inputDir, 0o755); err != nil {
		t.Fatalf("mkdir input: %v", err)
	}
	targets := filepath.Join(base, "targets.txt")
	if err := os.WriteFile(targets, []byte("# families\nApidae\nMegachilidae\n"), 0o644); err != nil {
		t.Fatalf("write targets: %v", err)
	}

	content := fmt.Sprintf(`[paths]
input_dir = %q
output_dir = %q
target_labels_file = %q
log_dir = %q
state_dir = %q

[pipeline]
mode = %q

[classifier]
base_url = %q
retry_attempts = 1

[logging]
level = "error"
%s`,
		env.inputDir,
		env.outputDir,
		targets,
		filepath.Join(base, "logs"),
		filepath.Join(base, "state"),
		mode,
		env.service.server.URL,
		extra,
	)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func (e *cliTestEnv) writeImage(t *testing.T, rel string) string {
	t.Helper()
	path := filepath.Join(e.inputDir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("image:"+rel), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
