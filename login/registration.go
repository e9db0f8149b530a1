package login

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jmcleod/suilink/internal/remote"
)

// registrationQueueSize bounds pending registration posts.
const registrationQueueSize = 64

// Registration is the payload posted to the backend after a login.
type Registration struct {
	Address      string    `json:"address"`
	Provider     string    `json:"provider"`
	Subject      string    `json:"subject"`
	Audience     string    `json:"audience"`
	RegisteredAt time.Time `json:"registeredAt"`
}

type registrationJob struct {
	url string
	reg Registration
}

// Registrar posts registrations from a background goroutine. Each
// registration is attempted once; failures are logged and dropped.
type Registrar struct {
	client *http.Client
	logger *slog.Logger
	jobs   chan registrationJob
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewRegistrar starts the background sender. A nil client uses a client
// with a 10 second timeout.
func NewRegistrar(client *http.Client, logger *slog.Logger) *Registrar {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registrar{
		client: client,
		logger: logger.With("component", "registration"),
		jobs:   make(chan registrationJob, registrationQueueSize),
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

// Enqueue schedules reg for delivery to url. It never blocks; when the
// queue is full or the registrar is closed the registration is dropped.
func (r *Registrar) Enqueue(url string, reg Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.logger.Warn("registrar closed, dropping registration", "address", reg.Address)
		return
	}
	select {
	case r.jobs <- registrationJob{url: url, reg: reg}:
	default:
		r.logger.Warn("registration queue full, dropping registration", "address", reg.Address)
	}
}

// Close stops accepting registrations and waits for queued ones to be sent.
func (r *Registrar) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.jobs)
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Registrar) loop() {
	defer r.wg.Done()
	for job := range r.jobs {
		r.send(job)
	}
}

func (r *Registrar) send(job registrationJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := remote.Do(ctx, r.client, remote.Request{
		Service: "registration",
		Method:  http.MethodPost,
		URL:     job.url,
		Body:    job.reg,
	}, nil)
	if err != nil {
		r.logger.Warn("registration failed", "address", job.reg.Address, "error", err)
		return
	}
	r.logger.Debug("registration delivered", "address", job.reg.Address)
}
