package rotate

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestNew(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "test.log")

	_, closer, err := New(Config{
		Filename: filename,
	})
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer closer.Close()

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		t.Error("Log file was not created")
	}
}

func TestNew_RequiresFilename(t *testing.T) {
	if _, _, err := New(Config{}); err == nil {
		t.Error("expected error for empty filename")
	}
}

func TestWrite(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "test.log")

	writer, closer, err := New(Config{
		Filename: filename,
	})
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer closer.Close()

	message := "test log message\n"
	n, err := writer.Write([]byte(message))
	if err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if n != len(message) {
		t.Errorf("Expected to write %d bytes, wrote %d", len(message), n)
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if string(content) != message {
		t.Errorf("Expected content %q, got %q", message, string(content))
	}
}

func TestConcurrentWrite(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "test.log")

	writer, closer, err := New(Config{
		Filename: filename,
	})
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer closer.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			message := fmt.Sprintf("test message %d\n", n)
			for j := 0; j < 100; j++ {
				writer.Write([]byte(message))
			}
		}(i)
	}
	wg.Wait()

	info, err := os.Stat(filename)
	if err != nil {
		t.Fatalf("Failed to stat log file: %v", err)
	}
	if info.Size() == 0 {
		t.Error("Log file is empty after concurrent writes")
	}
}

func TestNormalizeFilename(t *testing.T) {
	if got := normalizeFilename("app"); got != "app.log" {
		t.Errorf("Expected app.log, got %s", got)
	}
	if got := normalizeFilename("app.txt"); got != "app.txt" {
		t.Errorf("Expected app.txt, got %s", got)
	}
}

func TestBackupName(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "app.log")

	writer, closer, err := New(Config{Filename: filename})
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer closer.Close()

	w := writer.(*Writer)
	got := w.backupName(2026, 8, 30)
	want := w.basename + "-2026-08-30" + w.ext
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}
