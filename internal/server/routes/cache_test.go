package routes

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/geocache/geocache/internal/cache"
)

func TestEncodeEntriesMarksStale(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	entries := []cache.Entry{
		{BaseName: "a", FilePath: "/tmp/a_1.xml", Timestamp: now.Add(-time.Minute)},
		{BaseName: "b", FilePath: "/tmp/b_1.xml", Timestamp: now.Add(-time.Hour)},
		{BaseName: "c", FilePath: "/tmp/c_1.xml", Timestamp: now.Add(-10 * time.Minute)},
	}

	encoded := encodeEntries(entries, 10*time.Minute, now)
	if len(encoded) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(encoded))
	}
	if encoded[0].Stale {
		t.Fatalf("entry a should be fresh")
	}
	if !encoded[1].Stale {
		t.Fatalf("entry b should be stale")
	}
	if encoded[2].Stale {
		t.Fatalf("entry exactly at max age should be fresh")
	}
	if encoded[1].AgeSeconds != 3600 {
		t.Fatalf("expected age 3600s, got %d", encoded[1].AgeSeconds)
	}
}

func TestCacheRouteListsDirectoryEntries(t *testing.T) {
	dir, err := cache.NewDirectory(t.TempDir(), ".xml", time.Hour)
	if err != nil {
		t.Fatalf("new directory error: %v", err)
	}
	if _, err := dir.Create(t.Context(), "bbox_1_2_3_4", time.Now(), strings.NewReader("<osm/>")); err != nil {
		t.Fatalf("seed error: %v", err)
	}

	app := fiber.New()
	RegisterCacheRoutes(app, dir)

	resp, err := app.Test(httptest.NewRequest("GET", "/-/cache", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var payload struct {
		Root    string         `json:"root"`
		Entries []entryPayload `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if payload.Root != dir.Root() {
		t.Fatalf("unexpected root %s", payload.Root)
	}
	if len(payload.Entries) != 1 || payload.Entries[0].BaseName != "bbox_1_2_3_4" {
		t.Fatalf("unexpected entries: %+v", payload.Entries)
	}
}
