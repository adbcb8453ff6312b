package db

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/heliradar/tracker/internal/model"
)

func TestAttachAdminRoutes_Backup(t *testing.T) {
	db := newTestDB(t)
	if err := db.Insert(context.Background(), model.Flights, point("BK", 1, 2, "2024-01-01T00:00:00Z")); err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	if err := db.AttachAdminRoutes(mux); err != nil {
		t.Fatalf("AttachAdminRoutes: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	gz, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("backup is not gzip: %v", err)
	}
	restored := filepath.Join(t.TempDir(), "restored.db")
	f, err := os.Create(restored)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.Copy(f, gz); err != nil {
		t.Fatal(err)
	}
	f.Close()

	copyDB, err := NewDB(restored)
	if err != nil {
		t.Fatalf("open restored backup: %v", err)
	}
	defer copyDB.Close()

	ids, err := copyDB.Distinct(context.Background(), model.Flights, model.DeviceID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "BK" {
		t.Errorf("restored ids = %v, want [BK]", ids)
	}
}
