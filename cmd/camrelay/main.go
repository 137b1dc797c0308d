package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"camrelay/internal/obs"
	"camrelay/internal/relay"
)

func main() {
	flag.Parse()
	if cfg.Debug {
		obs.EnableDebug(true)
	}
	specs := cfg.Sources.specs
	if len(specs) == 0 {
		obs.Error("config.source_missing", obs.Fields{"hint": "pass -source url or -source name=url"})
		os.Exit(1)
	}
	seen := map[string]bool{}
	for i := range specs {
		if specs[i].Name == "" {
			if len(specs) > 1 {
				obs.Error("config.source_unnamed", obs.Fields{"url": specs[i].URL, "hint": "name=url is required with multiple sources"})
				os.Exit(1)
			}
			specs[i].Name = "stream"
		}
		if seen[specs[i].Name] {
			obs.Error("config.source_duplicate", obs.Fields{"name": specs[i].Name})
			os.Exit(1)
		}
		seen[specs[i].Name] = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	names := make([]string, 0, len(specs))
	for _, sp := range specs {
		names = append(names, sp.Name)
	}
	state, err := newStatusStore(ctx, names)
	if err != nil {
		obs.Error("status.init", obs.Fields{"err": err.Error()})
		os.Exit(1)
	}

	mux := http.NewServeMux()
	for _, sp := range specs {
		p, err := relay.New(relay.Options{Name: sp.Name, Source: sp.URL, Reporter: state})
		if err != nil {
			obs.Error("relay.init", obs.Fields{"err": err.Error(), "source": sp.Name})
			os.Exit(1)
		}
		path := "/streams/" + sp.Name
		if len(specs) == 1 {
			// A single stream answers on any path; any request means
			// "attach a viewer".
			path = "/"
		}
		mux.HandleFunc(path, p.Handle)
		obs.Info("relay.mounted", obs.Fields{"source": sp.Name, "path": path})
	}

	go startMetricsServer(cfg.MetricsAddr, state)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		// No write timeout: viewer responses are open-ended streams.
	}
	errCh := make(chan error, 1)
	go func() {
		if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
			errCh <- srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()
	state.setReady(true)
	obs.Info("server.ready", obs.Fields{"listen": cfg.ListenAddr, "metrics": cfg.MetricsAddr, "sources": len(names)})

	select {
	case <-ctx.Done():
		obs.Info("server.shutdown.signal", obs.Fields{})
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			obs.Error("server.listen", obs.Fields{"err": err.Error(), "addr": cfg.ListenAddr})
			os.Exit(1)
		}
	}
	state.setClosing(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	obs.Info("server.shutdown.complete", obs.Fields{})
}
