package alerter

import (
	"FlowLens/internal/config"
	"FlowLens/internal/model"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// Alerter is responsible for evaluating task snapshots against predefined rules
// and triggering notifications if rules are violated.
type Alerter struct {
	tasks         []model.Task
	rules         []config.AlerterRule
	notifier      model.Notifier
	checkInterval time.Duration
	stopChan      chan struct{}
	wg            sync.WaitGroup
}

// NewAlerter creates a new Alerter instance.
func NewAlerter(cfg *config.AlerterConfig, tasks []model.Task, notifier model.Notifier) (*Alerter, error) {
	interval, err := time.ParseDuration(cfg.CheckInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid check_interval for alerter: %w", err)
	}

	return &Alerter{
		tasks:         tasks,
		rules:         cfg.Rules,
		notifier:      notifier,
		checkInterval: interval,
		stopChan:      make(chan struct{}),
	}, nil
}

// Start begins the periodic evaluation of alert rules.
func (a *Alerter) Start() {
	log.Println("Alerter started")

	a.wg.Add(1)
	defer a.wg.Done()

	ticker := time.NewTicker(a.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.evaluateAllTasks()
		case <-a.stopChan:
			return
		}
	}
}

// Stop gracefully stops the alerter's evaluation loop.
func (a *Alerter) Stop() {
	log.Println("Stopping Alerter...")
	close(a.stopChan)
	a.wg.Wait()
	// One last evaluation so alerts pending at shutdown still go out.
	a.evaluateAllTasks()
}

// evaluateAllTasks orchestrates the concurrent evaluation of all tasks against the rules.
func (a *Alerter) evaluateAllTasks() {
	var wg sync.WaitGroup
	resultsChan := make(chan string, len(a.tasks))

	for _, task := range a.tasks {
		wg.Add(1)
		go func(t model.Task) {
			defer wg.Done()
			// Find rules relevant to this task
			var relevantRules []config.AlerterRule
			for _, rule := range a.rules {
				if rule.TaskName == t.Name() {
					relevantRules = append(relevantRules, rule)
				}
			}

			// If there are relevant rules, ask the task to evaluate itself
			if len(relevantRules) > 0 {
				if msg := t.AlerterMsg(relevantRules); msg != "" {
					resultsChan <- msg
				}
			}
		}(task)
	}

	wg.Wait()
	close(resultsChan)

	// Collect all triggered alert messages
	var allMessages []string
	for msg := range resultsChan {
		allMessages = append(allMessages, msg)
	}

	if len(allMessages) == 0 {
		return
	}

	log.Printf("Alerter evaluation completed. %d alert(s) triggered.", len(allMessages))

	// Prepare the consolidated notification body
	body := "<h1>FlowLens Alert Summary</h1>" +
		"<p>The following alerts were triggered during the last check:</p><hr>" +
		strings.Join(allMessages, "<hr>")

	// Send the final notification
	if a.notifier != nil {
		subject := fmt.Sprintf("FlowLens Alert Summary (%d Triggered)", len(allMessages))
		if err := a.notifier.Send(subject, body); err != nil {
			log.Printf("ERROR: Failed to send consolidated alert notification: %v", err)
		} else {
			log.Printf("INFO: Consolidated alert notification sent successfully.")
		}
	}
}
