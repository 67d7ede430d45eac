package cmd

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/cs2hvh/cryptocloud/internal/api"
	"github.com/cs2hvh/cryptocloud/internal/metrics"
	"github.com/cs2hvh/cryptocloud/internal/provision"
	"github.com/cs2hvh/cryptocloud/internal/repository"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the provisioning HTTP service",
	RunE: func(_ *cobra.Command, _ []string) error {
		return serve()
	},
}

func serve() error {
	db, err := conf.InitializeDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer db.Close()

	mx := metrics.New()

	hosts := repository.NewHostRepository(db)
	pool := repository.NewIPPoolRepository(db)
	templates := repository.NewTemplateRepository(db)
	servers := repository.NewServerRepository(db)

	provisioner := provision.NewProvisioner(
		hosts,
		servers,
		provision.NewAllocator(servers, pool),
		provision.NewResolver(templates),
		mx,
		provision.WithTaskTimeouts(
			time.Duration(conf.CloneTimeoutSeconds)*time.Second,
			time.Duration(conf.StartTimeoutSeconds)*time.Second,
		),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	api.NewAPI(db, provisioner).RegisterRoutes(r)

	r.Handle("/metrics", mx.Handler())
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		if _, err := fmt.Fprintln(w, "Cryptocloud provisioning service is running!"); err != nil {
			log.Printf("failed to write response: %v", err)
		}
	})

	fmt.Printf("Starting cryptocloud provisioning service on %s...\n", conf.Listen)
	return http.ListenAndServe(conf.Listen, r)
}
