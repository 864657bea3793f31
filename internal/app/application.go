// Package app wires stores, services and background workers into one
// lifecycle-managed application.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/quickgig/quickgig/internal/services/applications"
	"github.com/quickgig/quickgig/internal/services/engagements"
	"github.com/quickgig/quickgig/internal/services/jobs"
	"github.com/quickgig/quickgig/internal/services/notify"
	"github.com/quickgig/quickgig/internal/services/rating"
	"github.com/quickgig/quickgig/internal/services/users"
	"github.com/quickgig/quickgig/internal/storage"
	"github.com/quickgig/quickgig/internal/storage/memory"
	"github.com/quickgig/quickgig/internal/system"
	"github.com/quickgig/quickgig/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Users         storage.UserStore
	Jobs          storage.JobStore
	Applications  storage.ApplicationStore
	Engagements   storage.EngagementStore
	Notifications storage.NotificationStore
}

// Options carries the tunables of the side-effect pipeline.
type Options struct {
	// PushEndpoint is the push gateway URL. Empty disables push delivery.
	PushEndpoint string
	PushAPIKey   string
	// PushRatePerSecond caps outbound pushes; zero keeps the default.
	PushRatePerSecond float64
	PushBurst         int
	// NotificationRetention bounds how long notifications are kept. Zero
	// keeps the default.
	NotificationRetention time.Duration
	RetentionSchedule     string
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Users         *users.Service
	Jobs          *jobs.Service
	Applications  *applications.Service
	Engagements   *engagements.Service
	Notifications *notify.Emitter
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Jobs == nil {
		stores.Jobs = mem
	}
	if stores.Applications == nil {
		stores.Applications = mem
	}
	if stores.Engagements == nil {
		stores.Engagements = mem
	}
	if stores.Notifications == nil {
		stores.Notifications = mem
	}

	manager := system.NewManager()

	var pusher notify.Pusher
	if endpoint := strings.TrimSpace(opts.PushEndpoint); endpoint != "" {
		httpClient := &http.Client{Timeout: 10 * time.Second}
		p, err := notify.NewHTTPPusher(httpClient, endpoint, opts.PushAPIKey, log)
		if err != nil {
			return nil, fmt.Errorf("configure push gateway: %w", err)
		}
		pusher = p
	} else {
		log.Warn("push endpoint not set; push delivery disabled")
	}

	emitter := notify.NewEmitter(stores.Notifications, stores.Users, pusher, log)
	if opts.PushRatePerSecond > 0 {
		burst := opts.PushBurst
		if burst <= 0 {
			burst = int(opts.PushRatePerSecond)
		}
		emitter.WithRateLimit(opts.PushRatePerSecond, burst)
	}

	aggregator := rating.New(stores.Users, log)

	userService := users.New(stores.Users, log)
	jobService := jobs.New(stores.Jobs, stores.Users, log)
	appService := applications.New(stores.Applications, stores.Jobs, stores.Engagements, stores.Users, emitter, log)
	engService := engagements.New(stores.Engagements, stores.Jobs, aggregator, emitter, log)

	for _, name := range []string{"users", "jobs", "applications", "engagements"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	sweeper := notify.NewRetentionSweeper(stores.Notifications, opts.NotificationRetention, opts.RetentionSchedule, log)
	if err := manager.Register(sweeper); err != nil {
		return nil, fmt.Errorf("register %s: %w", sweeper.Name(), err)
	}

	return &Application{
		manager:       manager,
		log:           log,
		Users:         userService,
		Jobs:          jobService,
		Applications:  appService,
		Engagements:   engService,
		Notifications: emitter,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
