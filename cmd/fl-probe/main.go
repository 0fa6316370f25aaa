package main

import (
	"FlowLens/internal/config"
	"FlowLens/internal/flowlog"
	"FlowLens/internal/probe"
	"FlowLens/internal/probe/persistent"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// --- Command-Line Flag Parsing ---
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	mode := flag.String("mode", "sub", "Operating mode: 'pub' to publish flow-log documents, 'sub' to subscribe and print.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// --- Mode Dispatch ---
	switch *mode {
	case "pub":
		runPublisher(cfg, flag.Args())
	case "sub":
		runSubscriber(cfg)
	default:
		fmt.Fprintf(os.Stderr, "Invalid mode: %s\n", *mode)
		flag.Usage()
		os.Exit(1)
	}
}

// runPublisher reads flow-log JSON documents from the given files and
// publishes each one to NATS.
func runPublisher(cfg *config.Config, files []string) {
	if len(files) == 0 {
		log.Println("Error: at least one flow-log document file is required in pub mode.")
		flag.Usage()
		os.Exit(1)
	}
	log.Printf("Starting fl-probe in PUBLISH mode with %d file(s)", len(files))

	// Initialize NATS Publisher
	pub, err := probe.NewPublisher(cfg.Probe)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer pub.Close()

	published := 0
	for _, path := range files {
		doc, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Failed to read %s: %v", path, err)
			continue
		}
		if err := pub.Publish(doc); err != nil {
			log.Printf("Failed to publish %s: %v", path, err)
			continue
		}
		published++
		if published%1000 == 0 {
			log.Printf("%d documents published...", published)
		}
	}

	log.Printf("Done. Published %d of %d documents.", published, len(files))
}

// runSubscriber subscribes to the document subject, logs a line per
// document, and archives raw documents when persistence is enabled.
func runSubscriber(cfg *config.Config) {
	log.Println("Starting fl-probe in SUBSCRIBER mode...")

	// Create a new subscriber
	sub, err := probe.NewSubscriber(cfg.Probe)
	if err != nil {
		log.Fatalf("Failed to create subscriber: %v", err)
	}

	var archiver *persistent.Worker
	if cfg.Probe.Persistence.Enabled {
		archiver, err = persistent.NewWorker(cfg.Probe.Persistence)
		if err != nil {
			log.Fatalf("Failed to start persistent worker: %v", err)
		}
	}

	// Define the handler function for received documents
	handler := func(document []byte) {
		if doc, err := flowlog.DecodeDocument(document); err != nil {
			log.Printf("Received undecodable document (%d bytes): %v", len(document), err)
		} else {
			log.Printf("Received document: %d bytes, %d flow records", len(document), len(doc.Extract()))
		}
		if archiver != nil {
			archiver.Enqueue(document)
		}
	}

	// Start listening for messages
	if err := sub.Start(handler); err != nil {
		log.Fatalf("Subscriber failed to start: %v", err)
	}

	// Set up a channel to handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Wait for a shutdown signal
	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")

	// Close the subscription before the archiver so no handler can
	// enqueue into a stopped worker.
	sub.Close()
	if archiver != nil {
		archiver.Stop()
	}
}
