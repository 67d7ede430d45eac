// Package api exposes the provisioning, server, host, and infrastructure
// endpoints over HTTP.
package api

import (
	"database/sql"

	"github.com/go-chi/chi/v5"

	"github.com/cs2hvh/cryptocloud/internal/domain"
	"github.com/cs2hvh/cryptocloud/internal/provision"
	"github.com/cs2hvh/cryptocloud/internal/proxmox"
	"github.com/cs2hvh/cryptocloud/internal/repository"
)

// API holds repository dependencies for clean data access
type API struct {
	hostRepo     repository.HostRepository
	poolRepo     repository.IPPoolRepository
	templateRepo repository.TemplateRepository
	serverRepo   repository.ServerRepository
	provisioner  *provision.Provisioner
	newClient    provision.ClientFactory
}

// Option configures an API instance.
type Option func(*API)

// WithClientFactory replaces how hypervisor clients are built for the host
// health and inventory endpoints. Used by tests.
func WithClientFactory(f provision.ClientFactory) Option {
	return func(a *API) { a.newClient = f }
}

// NewAPI creates a new API instance with repositories initialized from the
// database handle.
func NewAPI(db *sql.DB, provisioner *provision.Provisioner, opts ...Option) *API {
	a := &API{
		hostRepo:     repository.NewHostRepository(db),
		poolRepo:     repository.NewIPPoolRepository(db),
		templateRepo: repository.NewTemplateRepository(db),
		serverRepo:   repository.NewServerRepository(db),
		provisioner:  provisioner,
		newClient: func(host domain.Host) *proxmox.Client {
			return proxmox.New(host.HostURL, host.AllowInsecureTLS)
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RegisterRoutes registers all API endpoints to the given chi router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v0/servers", func(r chi.Router) {
		r.Get("/", a.listServersHandler)
		r.Post("/", a.provisionServerHandler)
		r.Get("/{id}", a.getServerHandler)
		r.Delete("/{id}", a.deleteServerHandler)
		r.Post("/{id}/power", a.powerServerHandler)
	})

	r.Route("/api/v0/hosts", func(r chi.Router) {
		r.Get("/", a.listHostsHandler)
		r.Post("/", a.createHostHandler)
		r.Get("/{id}", a.getHostHandler)
		r.Put("/{id}", a.updateHostHandler)
		r.Delete("/{id}", a.deleteHostHandler)
		r.Get("/{id}/health", a.hostHealthHandler)
		r.Get("/{id}/vms", a.hostVMsHandler)

		r.Route("/{id}/pool", func(r chi.Router) {
			r.Get("/", a.listPoolEntriesHandler)
			r.Post("/", a.createPoolEntryHandler)
			r.Delete("/{entryID}", a.deletePoolEntryHandler)
		})

		r.Route("/{id}/templates", func(r chi.Router) {
			r.Get("/", a.listTemplatesHandler)
			r.Post("/", a.createTemplateHandler)
			r.Delete("/{templateID}", a.deleteTemplateHandler)
		})
	})

	r.Get("/api/v0/infra/options", a.infraOptionsHandler)
}
