package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestSetup(t *testing.T) {
	t.Cleanup(func() {
		logrus.SetLevel(logrus.InfoLevel)
		logrus.SetFormatter(&logrus.TextFormatter{})
	})

	if err := Setup("debug", "json"); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if logrus.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level = %v", logrus.GetLevel())
	}
	if err := Setup("loud", "text"); err == nil {
		t.Fatalf("expected level error")
	}
	if err := Setup("info", "xml"); err == nil {
		t.Fatalf("expected format error")
	}
}

func TestRequestsMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logrus.SetOutput(&buf)
	logrus.SetFormatter(&logrus.JSONFormatter{})
	t.Cleanup(func() {
		logrus.SetOutput(os.Stderr)
		logrus.SetFormatter(&logrus.TextFormatter{})
	})

	h := Requests(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/client-ip", nil))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["component"] != "http" || entry["path"] != "/api/client-ip" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if status, _ := entry["status"].(float64); int(status) != http.StatusTeapot {
		t.Fatalf("status field = %v", entry["status"])
	}
}
