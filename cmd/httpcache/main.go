// Command httpcache runs a small caching forward proxy in front of a single
// origin, mostly useful for trying the cache out against a real server.
package main

import (
	"context"
	"flag"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/stalefree/httpcache"
	"github.com/stalefree/httpcache/header"
	"github.com/stalefree/httpcache/payload"
	"github.com/stalefree/httpcache/storage"
)

type config struct {
	Origin   string `yaml:"origin"`
	Listen   string `yaml:"listen"`
	Provider string `yaml:"provider"`
	Dir      string `yaml:"dir"`
	Capacity int    `yaml:"capacity"`
}

var (
	configFlag   string
	originFlag   string
	listenFlag   string
	providerFlag string
	dirFlag      string
	capacityFlag int
	traceFlag    bool
)

func init() {
	flag.StringVar(&configFlag, "config", "", "Path to config file")
	flag.StringVar(&originFlag, "origin", "", "Origin to proxy to (overrides config)")
	flag.StringVar(&listenFlag, "listen", ":8080", "Address to listen on")
	flag.StringVar(&providerFlag, "provider", "memory", "Storage to use: memory, persistent or sqlite")
	flag.StringVar(&dirFlag, "dir", "./cache", "Directory for persistent storage")
	flag.IntVar(&capacityFlag, "capacity", storage.DefaultCapacity, "Maximum number of cached items")
	flag.BoolVar(&traceFlag, "vv", false, "Verbosity: trace logging")
}

func main() {
	flag.Parse()

	logLevel := zerolog.DebugLevel
	if traceFlag {
		logLevel = zerolog.TraceLevel
	}
	log.Logger = log.Level(logLevel).Output(zerolog.ConsoleWriter{Out: os.Stdout})

	cfg := config{
		Origin:   originFlag,
		Listen:   listenFlag,
		Provider: providerFlag,
		Dir:      dirFlag,
		Capacity: capacityFlag,
	}
	if configFlag != "" {
		fileCfg, err := getConfig(configFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not read config")
		}
		if originFlag == "" {
			cfg.Origin = fileCfg.Origin
		}
		if fileCfg.Listen != "" {
			cfg.Listen = fileCfg.Listen
		}
		if fileCfg.Provider != "" {
			cfg.Provider = fileCfg.Provider
		}
		if fileCfg.Dir != "" {
			cfg.Dir = fileCfg.Dir
		}
		if fileCfg.Capacity > 0 {
			cfg.Capacity = fileCfg.Capacity
		}
	}
	if cfg.Origin == "" {
		log.Fatal().Msg("Please specify origin")
	}
	origin, err := url.Parse(cfg.Origin)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid origin URL")
	}

	var store httpcache.Storage
	var closeStore func() error
	switch cfg.Provider {
	case "memory":
		store = storage.NewMemoryStorage(cfg.Capacity)
	case "persistent":
		persistent, err := storage.NewPersistentStorage(storage.PersistentConfig{
			Root:     cfg.Dir,
			Capacity: cfg.Capacity,
			Logger:   &log.Logger,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Could not open persistent storage")
		}
		store = persistent
		closeStore = persistent.Close
	case "sqlite":
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			log.Fatal().Err(err).Msg("Could not create storage directory")
		}
		sqlite, err := storage.NewSQLiteStorage(cfg.Dir + "/cache.db")
		if err != nil {
			log.Fatal().Err(err).Msg("Could not open sqlite storage")
		}
		store = sqlite
		closeStore = sqlite.Close
	default:
		log.Fatal().Msgf("Unsupported storage provider: %s", cfg.Provider)
	}

	cache := httpcache.New(httpcache.Config{
		Storage:  store,
		Resolver: httpcache.NewTransportResolver(nil),
		Logger:   &log.Logger,
	})
	prometheus.MustRegister(httpcache.NewStatisticsCollector(cache.Statistics()))

	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.Handle("/*", proxyHandler(cache, origin))

	server := &http.Server{Addr: cfg.Listen, Handler: router}
	go func() {
		log.Info().Str("listen", cfg.Listen).Str("origin", origin.String()).Msg("Starting caching proxy")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(ctx)
	if closeStore != nil {
		if err := closeStore(); err != nil {
			log.Error().Err(err).Msg("Could not close storage")
		}
	}
}

func getConfig(filename string) (config, error) {
	var cfg config
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return cfg, err
	}
	err = yaml.Unmarshal(configBytes, &cfg)
	return cfg, err
}

// proxyHandler maps incoming requests onto the origin through the cache.
func proxyHandler(cache *httpcache.Cache, origin *url.URL) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := *origin
		target.Path = r.URL.Path
		target.RawQuery = r.URL.RawQuery

		req := &httpcache.Request{
			Method: httpcache.MethodOf(r.Method),
			URL:    &target,
		}
		headers := header.Headers{}
		for name, values := range r.Header {
			if name == "Connection" {
				continue
			}
			for _, value := range values {
				headers = headers.Add(name, value)
			}
		}
		req.Headers = headers
		if r.Body != nil && r.ContentLength != 0 {
			req.Payload = payload.NewStream(r.Header.Get(header.ContentTypeHeader), r.Body)
		}

		res, err := cache.Resolve(req, false)
		if err != nil {
			log.Error().Err(err).Str("uri", req.URI()).Msg("Could not resolve")
			http.Error(w, "Error contacting origin", http.StatusBadGateway)
			return
		}
		res.Headers.Each(func(h header.Header) bool {
			w.Header().Add(h.Name, h.Value)
			return true
		})
		w.WriteHeader(res.Status)
		if res.Payload != nil && res.Payload.HasPayload() {
			body, err := res.Payload.NewReader()
			if err != nil {
				log.Error().Err(err).Msg("Could not read cached payload")
				return
			}
			defer body.Close()
			if _, err := io.Copy(w, body); err != nil {
				log.Error().Err(err).Msg("Could not write response body to client")
			}
		}
	}
}
