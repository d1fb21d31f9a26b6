package daemon

import (
	"fmt"
	"net/http"
	"time"
)

// newMetricsServer builds the scrape endpoint. Scrapes read the
// snapshot through the registry and are never held up by an in-flight
// cycle beyond one merge batch.
func (d *Daemon) newMetricsServer() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.agg.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Point stray scrapers at the right path.
		http.Redirect(w, r, "/metrics", http.StatusMovedPermanently)
	})

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", d.cfg.Daemon.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}
