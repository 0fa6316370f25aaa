package persistent

import (
	"FlowLens/internal/config"
	"bufio"
	"encoding/gob"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWorkerArchivesJSONLines(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWorker(config.PersistenceConfig{
		Path:              dir,
		Encoding:          "json",
		MaxFileSize:       1 << 20,
		ChannelBufferSize: 16,
	})
	if err != nil {
		t.Fatalf("NewWorker returned error: %v", err)
	}

	w.Enqueue([]byte(`{"records": [{"category": "one"}]}`))
	w.Enqueue([]byte("{\n  \"records\": []\n}"))
	w.Enqueue([]byte("definitely not json"))
	w.Stop()

	files, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil || len(files) != 1 {
		t.Fatalf("expected one archive file, got %v (err %v)", files, err)
	}

	f, err := os.Open(files[0])
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	// The malformed document is dropped; the multi-line one is compacted.
	if len(lines) != 2 {
		t.Fatalf("archive holds %d lines, want 2: %v", len(lines), lines)
	}
	if lines[0] != `{"records":[{"category":"one"}]}` {
		t.Errorf("first line = %q", lines[0])
	}
	if strings.Contains(lines[1], "\n") || lines[1] != `{"records":[]}` {
		t.Errorf("second line not compacted: %q", lines[1])
	}
}

func TestWorkerRotatesBySize(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWorker(config.PersistenceConfig{
		Path:              dir,
		Encoding:          "json",
		MaxFileSize:       40,
		ChannelBufferSize: 16,
	})
	if err != nil {
		t.Fatalf("NewWorker returned error: %v", err)
	}

	// Each document lands around 30 bytes, so every other write rotates.
	for i := 0; i < 6; i++ {
		w.Enqueue([]byte(`{"records": [{"category": 1}]}`))
	}
	w.Stop()

	files, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}
	if len(files) < 2 {
		t.Fatalf("expected rotation to produce multiple archives, got %v", files)
	}
}

func TestWorkerGobRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWorker(config.PersistenceConfig{
		Path:              dir,
		Encoding:          "gob",
		ChannelBufferSize: 16,
	})
	if err != nil {
		t.Fatalf("NewWorker returned error: %v", err)
	}

	docs := [][]byte{
		[]byte(`{"records": []}`),
		[]byte("arbitrary bytes are fine in gob mode"),
	}
	for _, doc := range docs {
		w.Enqueue(doc)
	}
	w.Stop()

	files, err := filepath.Glob(filepath.Join(dir, "*.gob"))
	if err != nil || len(files) != 1 {
		t.Fatalf("expected one archive file, got %v (err %v)", files, err)
	}

	f, err := os.Open(files[0])
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer f.Close()

	dec := gob.NewDecoder(f)
	var got [][]byte
	for {
		var doc []byte
		if err := dec.Decode(&doc); err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		got = append(got, doc)
	}

	if len(got) != len(docs) {
		t.Fatalf("decoded %d documents, want %d", len(got), len(docs))
	}
	for i := range docs {
		if string(got[i]) != string(docs[i]) {
			t.Errorf("document %d = %q, want %q", i, got[i], docs[i])
		}
	}
}

func TestWorkerRejectsUnknownEncoding(t *testing.T) {
	_, err := NewWorker(config.PersistenceConfig{Path: t.TempDir(), Encoding: "yaml"})
	if err == nil {
		t.Fatal("expected an error for unknown encoding")
	}
}
