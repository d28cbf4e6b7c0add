package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"cloudpico-humidity/internal/migrate"
	"cloudpico-humidity/internal/modules/nodes/types"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
	})
	if _, err := migrate.Run(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func ptr(v float64) *float64 { return &v }

func TestGetLatestReadings_Empty(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	got, err := repo.GetLatestReadings(context.Background(), "living", 10)
	if err != nil {
		t.Fatalf("GetLatestReadings: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("GetLatestReadings = %#v, want empty non-nil slice", got)
	}
}

func TestInsertReading_RoundTrip(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	readings := []types.Reading{
		{Node: "living", MsgID: "m1", Time: base, Formula: "wetterochs", TemperatureC: 20, HumidityPct: 75, DewPointC: ptr(15.43), AbsoluteHumidityGM3: 12.96},
		{Node: "living", MsgID: "m2", Time: base.Add(time.Minute), Formula: "wetterochs", TemperatureC: 0, HumidityPct: 0, DewPointC: nil, AbsoluteHumidityGM3: 0},
		{Node: "cellar", MsgID: "m3", Time: base.Add(2 * time.Minute), Formula: "lawrence", TemperatureC: 10, HumidityPct: 20, DewPointC: ptr(-11.97), AbsoluteHumidityGM3: 1.88},
	}
	for _, r := range readings {
		id, err := repo.InsertReading(ctx, r)
		if err != nil {
			t.Fatalf("InsertReading(%s): %v", r.MsgID, err)
		}
		if id <= 0 {
			t.Errorf("InsertReading(%s) id = %d, want > 0", r.MsgID, id)
		}
	}

	got, err := repo.GetLatestReadings(ctx, "living", 10)
	if err != nil {
		t.Fatalf("GetLatestReadings: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetLatestReadings: got %d, want 2", len(got))
	}
	// Newest first.
	if got[0].MsgID != "m2" || got[1].MsgID != "m1" {
		t.Errorf("order = %s,%s; want m2,m1", got[0].MsgID, got[1].MsgID)
	}
	if got[0].DewPointC != nil {
		t.Errorf("m2 dew point = %v, want NULL", *got[0].DewPointC)
	}
	if got[1].DewPointC == nil || *got[1].DewPointC != 15.43 {
		t.Errorf("m1 dew point = %v, want 15.43", got[1].DewPointC)
	}
	if !got[1].Time.Equal(base) {
		t.Errorf("m1 time = %v, want %v", got[1].Time, base)
	}
	if got[1].Formula != "wetterochs" || got[1].TemperatureC != 20 || got[1].HumidityPct != 75 || got[1].AbsoluteHumidityGM3 != 12.96 {
		t.Errorf("m1 = %+v", got[1])
	}

	limited, err := repo.GetLatestReadings(ctx, "living", 1)
	if err != nil {
		t.Fatalf("GetLatestReadings limit: %v", err)
	}
	if len(limited) != 1 || limited[0].MsgID != "m2" {
		t.Errorf("limit 1 = %+v, want only m2", limited)
	}
}

func TestInsertReading_ZeroTimeUsesNow(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	before := time.Now().Add(-time.Second)
	if _, err := repo.InsertReading(ctx, types.Reading{Node: "n", MsgID: "m", Formula: "wetterochs"}); err != nil {
		t.Fatalf("InsertReading: %v", err)
	}
	got, err := repo.GetLatestReadings(ctx, "n", 1)
	if err != nil || len(got) != 1 {
		t.Fatalf("GetLatestReadings = %v, %v", got, err)
	}
	if got[0].Time.Before(before) {
		t.Errorf("time = %v, want >= %v", got[0].Time, before)
	}
}

func TestRejections_RoundTrip(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, rj := range []types.Rejection{
		{Node: "living", MsgID: "a", Time: base, Kind: types.RejectionInvalidHumidity, Message: "Invalid humidity: -5% (OK: 0-100%)"},
		{Node: "living", MsgID: "b", Time: base.Add(time.Second), Kind: types.RejectionInvalidTemperature, Message: "-46°C not valid for Wetterochs (-45-60°C)"},
		{Node: "other", MsgID: "c", Time: base, Kind: types.RejectionOther, Message: "x"},
	} {
		if _, err := repo.InsertRejection(ctx, rj); err != nil {
			t.Fatalf("InsertRejection[%d]: %v", i, err)
		}
	}

	got, err := repo.GetLatestRejections(ctx, "living", 100)
	if err != nil {
		t.Fatalf("GetLatestRejections: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetLatestRejections: got %d, want 2", len(got))
	}
	if got[0].MsgID != "b" || got[0].Kind != types.RejectionInvalidTemperature {
		t.Errorf("first = %+v, want b/invalid_temperature", got[0])
	}
	if got[1].Message != "Invalid humidity: -5% (OK: 0-100%)" {
		t.Errorf("second message = %q", got[1].Message)
	}
}

func TestInsertReading_ClosedDB(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := repo.InsertReading(context.Background(), types.Reading{Node: "n"}); err == nil {
		t.Fatal("InsertReading on closed db error = nil")
	}
}
