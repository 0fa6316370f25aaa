package persistent

import (
	"FlowLens/internal/config"
	"bufio"
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Worker archives raw flow-log documents to disk so a capture window can
// be replayed through the engine after the fact.
type Worker struct {
	docChan chan []byte
	wg      sync.WaitGroup
}

// NewWorker creates and starts a new persistent archiver.
func NewWorker(cfg config.PersistenceConfig) (*Worker, error) {
	// Ensure the directory exists
	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create persistence directory: %w", err)
	}

	switch cfg.Encoding {
	case "json", "gob":
	default:
		return nil, fmt.Errorf("unknown persistence encoding: %q", cfg.Encoding)
	}

	bufferSize := cfg.ChannelBufferSize
	if bufferSize <= 0 {
		bufferSize = 10000 // Default value
	}

	w := &Worker{
		docChan: make(chan []byte, bufferSize),
	}

	w.wg.Add(1)
	go w.runArchiver(cfg)
	log.Printf("Persistent worker started, encoding: %s, writing to: %s", cfg.Encoding, cfg.Path)

	return w, nil
}

// runArchiver drains the document channel into rotating archive files.
// A single goroutine does all writing so documents stay in arrival order.
func (w *Worker) runArchiver(cfg config.PersistenceConfig) {
	defer w.wg.Done()

	archive, err := newArchiveFile(cfg, 0)
	if err != nil {
		log.Fatalf("PersistentWorker: Failed to create archive file: %v", err)
	}
	seq := 0

	for doc := range w.docChan {
		if err := archive.write(doc); err != nil {
			log.Printf("PersistentWorker: Error writing document: %v", err)
			continue
		}

		if cfg.MaxFileSize > 0 && archive.written >= cfg.MaxFileSize {
			if err := archive.close(); err != nil {
				log.Printf("PersistentWorker: Error closing archive file: %v", err)
			}
			seq++
			archive, err = newArchiveFile(cfg, seq)
			if err != nil {
				log.Printf("PersistentWorker: Failed to rotate archive file, discarding further documents: %v", err)
				for range w.docChan {
				}
				return
			}
			log.Printf("PersistentWorker: Rotated archive to %s", archive.name)
		}
	}

	if err := archive.close(); err != nil {
		log.Printf("PersistentWorker: Error closing archive file: %v", err)
	}
}

// archiveFile is one output file plus its encoder state. written counts
// logical bytes handed to the encoder, which is close enough for rotation.
type archiveFile struct {
	name    string
	file    *os.File
	buf     *bufio.Writer
	enc     *gob.Encoder // nil for json encoding
	written int64
}

func newArchiveFile(cfg config.PersistenceConfig, seq int) (*archiveFile, error) {
	ext := ".jsonl"
	if cfg.Encoding == "gob" {
		ext = ".gob"
	}
	name := fmt.Sprintf("%s_%04d%s", time.Now().Format("2006-01-02_15-04-05"), seq, ext)
	path := filepath.Join(cfg.Path, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}

	a := &archiveFile{name: path, file: file, buf: bufio.NewWriter(file)}
	if cfg.Encoding == "gob" {
		a.enc = gob.NewEncoder(a.buf)
	}
	return a, nil
}

func (a *archiveFile) write(doc []byte) error {
	if a.enc != nil {
		if err := a.enc.Encode(doc); err != nil {
			return err
		}
		a.written += int64(len(doc))
		return nil
	}

	// JSON-lines framing needs one document per line, so multi-line
	// documents are compacted and anything unparseable is dropped here.
	var compact bytes.Buffer
	if err := json.Compact(&compact, doc); err != nil {
		return fmt.Errorf("document is not valid JSON: %w", err)
	}
	n, err := a.buf.Write(compact.Bytes())
	a.written += int64(n)
	if err != nil {
		return err
	}
	if err := a.buf.WriteByte('\n'); err != nil {
		return err
	}
	a.written++
	return nil
}

func (a *archiveFile) close() error {
	if err := a.buf.Flush(); err != nil {
		a.file.Close()
		return err
	}
	return a.file.Close()
}

// Stop closes the intake channel and blocks until buffered documents
// are flushed and the archive file is closed. Enqueue must not be
// called after Stop.
func (w *Worker) Stop() {
	close(w.docChan)
	w.wg.Wait()
	log.Println("Persistent worker stopped.")
}

// Enqueue hands a document to the archiver without blocking the hot path.
func (w *Worker) Enqueue(doc []byte) {
	select {
	case w.docChan <- doc:
	default:
		log.Println("PersistentWorker: Channel is full, dropping document.")
	}
}
