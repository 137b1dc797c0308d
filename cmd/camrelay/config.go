package main

import (
	"flag"
	"fmt"
	"strings"
	"time"
)

// Config holds all runtime configuration derived from flags (future: env vars / file).
type Config struct {
	ListenAddr    string
	MetricsAddr   string
	Sources       sourceFlag
	Debug         bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// TLS for the viewer listener
	TLSCertFile   string
	TLSKeyFile    string
	ShutdownGrace time.Duration
}

var cfg Config

func init() {
	flag.StringVar(&cfg.ListenAddr, "listen", ":8080", "viewer listener address")
	flag.StringVar(&cfg.MetricsAddr, "metrics", ":9100", "metrics, health and dashboard listen address")
	flag.Var(&cfg.Sources, "source", "MJPEG source as url or name=url; repeatable, at least one required")
	flag.BoolVar(&cfg.Debug, "debug", false, "enable debug logs")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", "", "optional Redis address for status publishing")
	flag.StringVar(&cfg.RedisPassword, "redis-password", "", "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", 0, "Redis database")
	flag.StringVar(&cfg.TLSCertFile, "tls-cert", "", "TLS certificate file for the viewer listener")
	flag.StringVar(&cfg.TLSKeyFile, "tls-key", "", "TLS key file for the viewer listener")
	flag.DurationVar(&cfg.ShutdownGrace, "shutdown-grace", 5*time.Second, "graceful shutdown window")
}

type sourceSpec struct {
	Name string
	URL  string
}

// sourceFlag collects repeatable -source values. A value is either a bare URL
// (a single stream, served at /) or name=url (served at /streams/<name>).
type sourceFlag struct {
	specs []sourceSpec
}

func (s *sourceFlag) String() string {
	parts := make([]string, 0, len(s.specs))
	for _, sp := range s.specs {
		if sp.Name == "" {
			parts = append(parts, sp.URL)
		} else {
			parts = append(parts, sp.Name+"="+sp.URL)
		}
	}
	return strings.Join(parts, ",")
}

func (s *sourceFlag) Set(v string) error {
	if v == "" {
		return fmt.Errorf("empty source")
	}
	// name=url, where a name never contains '/' or ':' (a URL before the
	// first '=' means the whole value is a bare URL).
	if i := strings.Index(v, "="); i > 0 && !strings.ContainsAny(v[:i], "/:") {
		if v[i+1:] == "" {
			return fmt.Errorf("source %q: empty URL", v[:i])
		}
		s.specs = append(s.specs, sourceSpec{Name: v[:i], URL: v[i+1:]})
		return nil
	}
	s.specs = append(s.specs, sourceSpec{URL: v})
	return nil
}
