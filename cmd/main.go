package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"os"
	"reflect"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/quadtree/featureflag"
	qhttp "github.com/aukilabs/quadtree/http"
	"github.com/aukilabs/quadtree/models"
	"github.com/aukilabs/quadtree/quadtree"
	"github.com/aukilabs/quadtree/smoketest"
	qwebsocket "github.com/aukilabs/quadtree/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The server version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "quadtree_info",
		Help:        "Quadtree server information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string        `cli:""        env:"QUADTREE_ADDR"                 help:"Listening address for client connections."`
	AdminAddr          string        `cli:""        env:"QUADTREE_ADMIN_ADDR"           help:"Admin listening address."`
	LogLevel           string        `cli:""        env:"QUADTREE_LOG_LEVEL"            help:"Log level (debug|info|warning|error)."`
	LogIndent          bool          `cli:""        env:"QUADTREE_LOG_INDENT"           help:"Indent logs."`
	PresetsFile        string        `cli:""        env:"QUADTREE_PRESETS_FILE"         help:"YAML file that declares the spaces created at startup."`
	ClientIdleTimeout  time.Duration `cli:",hidden" env:"QUADTREE_CLIENT_IDLE_TIMEOUT"  help:"Time until an idle client will be disconnected."`
	FrameDuration      time.Duration `cli:",hidden" env:"QUADTREE_FRAME_DURATION"       help:"The duration of a space frame."`
	LogSummaryInterval time.Duration `cli:",hidden" env:"QUADTREE_LOG_SUMMARY_INTERVAL" help:"The duration between each log summary by connection."`
	Index              indexConfig   `cli:",hidden" env:"-"                             help:"Default spatial index configuration."`
	FeatureFlags       []string      `cli:",hidden" env:"QUADTREE_FEATURE_FLAGS"        help:"Comma separated feature flags"`
	Version            bool          `cli:""        env:"-"                             help:"Show version."`
	Help               bool          `cli:""        env:"-"                             help:"Show help."`
}

type indexConfig struct {
	BoundsSize         int `cli:",hidden" env:"QUADTREE_INDEX_BOUNDS_SIZE"           help:"The side of the square initially covered by a space, centered on the origin."`
	MaxEntitiesPerNode int `cli:",hidden" env:"QUADTREE_INDEX_MAX_ENTITIES_PER_NODE" help:"The number of entities a node holds before being subdivided."`
	MaxDepth           int `cli:",hidden" env:"QUADTREE_INDEX_MAX_DEPTH"             help:"The maximum depth of the spatial index."`
	PoolCapacity       int `cli:",hidden" env:"QUADTREE_INDEX_POOL_CAPACITY"         help:"The maximum number of nodes of a space. 0 allocates nodes on demand."`
}

func main() {
	conf := config{
		Addr:               ":4000",
		AdminAddr:          ":18190",
		LogLevel:           logs.InfoLevel.String(),
		ClientIdleTimeout:  time.Minute * 5,
		FrameDuration:      time.Millisecond * 15,
		LogSummaryInterval: time.Minute,
		Index: indexConfig{
			BoundsSize:         1024,
			MaxEntitiesPerNode: 8,
			MaxDepth:           8,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts a quadtree server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	flags := featureflag.New(conf.FeatureFlags)
	defaults := spaceOptions(conf)

	var spaces models.SpaceStore
	defer spaces.Close(context.Background())

	api := qhttp.API{
		Spaces:       &spaces,
		Defaults:     defaults,
		FeatureFlags: flags,
	}

	var ready atomic.Bool
	readinessCheck := ready.Load

	if conf.PresetsFile != "" {
		presets, err := models.LoadPresets(conf.PresetsFile)
		if err != nil {
			logs.Fatal(err)
		}

		for _, p := range presets {
			space, err := api.CreateSpace(ctx, p)
			if err != nil {
				logs.Fatal(errors.New("creating preset space failed").
					WithTag("name", p.Name).
					Wrap(err))
			}

			logs.WithTag("space_id", space.ID).
				WithTag("name", space.Name).
				Info("preset space created")
		}
	}

	var service http.ServeMux
	api.Register(&service)

	service.HandleFunc("/health", qhttp.HandleHealthCheck)
	service.HandleFunc("/version", qhttp.HandleVersion(version))
	service.HandleFunc("/ready", qhttp.HandleReadyCheck(readinessCheck))
	service.HandleFunc("POST /smoke-test", smoketest.HandleSmokeTest(ctx, smoketest.Options{
		Defaults: defaults,
	}))

	flags.IfNotSet(featureflag.FlagDisableWebsocket, func() {
		service.HandleFunc("GET /spaces/{id}/stream", qwebsocket.HandleStream(ctx, &spaces, func(space *models.Space) qwebsocket.Handler {
			var h qwebsocket.Handler = &qwebsocket.StreamHandler{
				ClientIdleTimeout: conf.ClientIdleTimeout,
				Space:             space,
			}
			h = qwebsocket.HandlerWithLogs(h, conf.LogSummaryInterval)
			h = qwebsocket.HandlerWithMetrics(h)
			return h
		}))
	})

	service.Handle("/ping", websocket.Server{
		Handler: func(ws *websocket.Conn) {
			defer ws.Close()
			io.Copy(ws, ws)
		},
	})

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", qhttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.HandleFunc("/ready", qhttp.HandleReadyCheck(readinessCheck))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("spaces", len(spaces.List())).
		WithTag("feature_flags", flags.List()).
		Info("starting quadtree server")

	ready.Store(true)

	qhttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(qhttp.HandleWithCORS(&service),
			qhttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)
}

func spaceOptions(conf config) models.SpaceOptions {
	half := float64(conf.Index.BoundsSize) / 2

	return models.SpaceOptions{
		Name: "default",
		Bounds: quadtree.Region{
			Min: quadtree.Vector2{X: -half, Y: -half},
			Max: quadtree.Vector2{X: half, Y: half},
		},
		MaxEntitiesPerNode: conf.Index.MaxEntitiesPerNode,
		MaxDepth:           conf.Index.MaxDepth,
		PoolCapacity:       conf.Index.PoolCapacity,
		FrameDuration:      conf.FrameDuration,
	}
}

func validateConfig(conf config) error {
	if conf.Index.BoundsSize <= 0 {
		return errors.New("index bounds size must be positive").
			WithTag("bounds_size", conf.Index.BoundsSize)
	}

	if conf.Index.MaxEntitiesPerNode < 1 {
		return errors.New("index max entities per node must be at least 1").
			WithTag("max_entities_per_node", conf.Index.MaxEntitiesPerNode)
	}

	if conf.Index.MaxDepth < 0 {
		return errors.New("index max depth must not be negative").
			WithTag("max_depth", conf.Index.MaxDepth)
	}

	if conf.Index.PoolCapacity < 0 {
		return errors.New("index pool capacity must not be negative").
			WithTag("pool_capacity", conf.Index.PoolCapacity)
	}

	if conf.FrameDuration <= 0 {
		return errors.New("frame duration must be positive").
			WithTag("frame_duration", conf.FrameDuration)
	}

	if conf.ClientIdleTimeout <= 0 {
		return errors.New("client idle timeout must be positive").
			WithTag("client_idle_timeout", conf.ClientIdleTimeout)
	}

	return nil
}
