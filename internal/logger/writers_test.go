package logger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSafeCSVWriterConcurrentWrites(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "journal", "trades.csv")
	header := []string{"id", "action", "amount"}

	writer, err := NewSafeCSVWriter(testFile, header, 20*time.Millisecond, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create CSV writer: %v", err)
	}

	var wg sync.WaitGroup
	numGoroutines := 8
	recordsPerGoroutine := 50

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < recordsPerGoroutine; j++ {
				record := []string{fmt.Sprintf("%d_%d", id, j), "buy", "0.5"}
				if err := writer.WriteRecord(record); err != nil {
					t.Errorf("Failed to write record: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	records, _ := writer.GetStats()
	if records != uint64(numGoroutines*recordsPerGoroutine) {
		t.Errorf("Expected %d records, got %d", numGoroutines*recordsPerGoroutine, records)
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	f, err := os.Open(testFile)
	if err != nil {
		t.Fatalf("Failed to open written file: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("Failed to read CSV: %v", err)
	}
	if len(rows) != numGoroutines*recordsPerGoroutine+1 {
		t.Errorf("Expected %d rows including header, got %d", numGoroutines*recordsPerGoroutine+1, len(rows))
	}
	if rows[0][0] != "id" {
		t.Errorf("Expected header row first, got %v", rows[0])
	}
}

func TestSafeCSVWriterHeaderOnlyOnce(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "trades.csv")
	header := []string{"id", "action"}

	for i := 0; i < 2; i++ {
		writer, err := NewSafeCSVWriter(testFile, header, time.Second, zap.NewNop())
		if err != nil {
			t.Fatalf("Failed to create CSV writer: %v", err)
		}
		if err := writer.WriteRecord([]string{fmt.Sprint(i), "sell"}); err != nil {
			t.Fatalf("WriteRecord failed: %v", err)
		}
		if err := writer.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}

	data, err := os.ReadFile(testFile)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	want := "id,action\n0,sell\n1,sell\n"
	if string(data) != want {
		t.Errorf("Unexpected file content:\n%q\nwant\n%q", string(data), want)
	}
}

func TestSafeCSVWriterWriteAfterClose(t *testing.T) {
	writer, err := NewSafeCSVWriter(filepath.Join(t.TempDir(), "x.csv"), nil, time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create CSV writer: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := writer.WriteRecord([]string{"late"}); err == nil {
		t.Error("Expected error writing to closed writer")
	}
	if err := writer.Close(); err != nil {
		t.Errorf("Second close should be a no-op, got %v", err)
	}
}
