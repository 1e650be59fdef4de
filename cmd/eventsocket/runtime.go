package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"github.com/yanun0323/eventsocket/internal/config"
	"github.com/yanun0323/eventsocket/internal/obs"
	"github.com/yanun0323/eventsocket/internal/recorder"
	"github.com/yanun0323/eventsocket/pkg/conn"
	"github.com/yanun0323/eventsocket/pkg/websocket"
)

const metricsNamespace = "eventsocket"

// runtime carries the resolved configuration and the components a command
// opens. close releases them in reverse order.
type runtime struct {
	v          *viper.Viper
	configFile string
	cfg        config.Config

	closers []func()
}

func newRuntime() *runtime {
	return &runtime{v: viper.New()}
}

func (rt *runtime) onClose(fn func()) {
	rt.closers = append(rt.closers, fn)
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// shutdown is closed when ctx ends or the process receives a shutdown signal.
func shutdown(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
		case <-sys.Shutdown():
		}
	}()
	return done
}

// client builds the websocket client and the observability around it.
func (rt *runtime) client(ctx context.Context) (*websocket.Client, *obs.Metrics, error) {
	if err := rt.cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if err := rt.startProfiler(); err != nil {
		return nil, nil, err
	}

	metrics := obs.NewMetrics()
	if err := rt.serveMetrics(metrics); err != nil {
		return nil, nil, err
	}

	opt := rt.cfg.ClientOption()
	opt.Observer = metrics
	c, err := websocket.New(rt.cfg.Endpoint, opt)
	if err != nil {
		return nil, nil, err
	}
	rt.onClose(func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), rt.cfg.Client.CloseTimeout+time.Second)
		defer cancel()
		if err := c.Disconnect(closeCtx, true); err != nil && c.State() != websocket.StateClosed {
			logs.Warnf("disconnect, err: %+v", err)
		}
	})

	go watchConnection(ctx, c)
	return c, metrics, nil
}

func watchConnection(ctx context.Context, c *websocket.Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.Events():
			switch ev.Kind {
			case websocket.EventConnected:
				logs.Infof("connected to %s", c.Endpoint())
			case websocket.EventDisconnected:
				logs.Infof("disconnected, code: %d, reason: %s", ev.Code, ev.Reason)
			case websocket.EventError:
				logs.Errorf("connection error, err: %+v", ev.Err)
			}
		}
	}
}

func (rt *runtime) startProfiler() error {
	p := rt.cfg.Profile
	if p.ServerAddress == "" {
		return nil
	}
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: p.ApplicationName,
		ServerAddress:   p.ServerAddress,
		Tags: map[string]string{
			"endpoint": rt.cfg.Endpoint,
		},
		Logger: profileLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	})
	if err != nil {
		return err
	}
	rt.onClose(func() {
		_ = profiler.Stop()
	})
	return nil
}

func (rt *runtime) serveMetrics(metrics *obs.Metrics) error {
	m := rt.cfg.Metrics
	if m.Addr == "" {
		return nil
	}

	reg := prometheus.NewRegistry()
	if err := reg.Register(obs.NewCollector(metrics, metricsNamespace)); err != nil {
		return err
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle(m.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: m.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logs.Errorf("serve metrics on %s, err: %+v", m.Addr, err)
		}
	}()
	logs.Infof("metrics on %s%s", m.Addr, m.Path)

	rt.onClose(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return nil
}

// openStore opens the PostgreSQL event store and migrates its table.
func (rt *runtime) openStore(ctx context.Context) (*recorder.GormStore, error) {
	db, err := conn.New(ctx, conn.Option{ConnString: rt.cfg.Recorder.DSN})
	if err != nil {
		return nil, err
	}
	rt.onClose(func() {
		_ = db.Close()
	})

	store := recorder.NewGormStore(db.DB())
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// startRecorder starts an event writer when recording is enabled. It returns nil
// otherwise.
func (rt *runtime) startRecorder(ctx context.Context) (*recorder.Writer, error) {
	if !rt.cfg.Recorder.Enabled {
		return nil, nil
	}
	store, err := rt.openStore(ctx)
	if err != nil {
		return nil, err
	}
	w, err := recorder.NewWriter(store, rt.cfg.Recorder.WriterConfig())
	if err != nil {
		return nil, err
	}
	// the writer drains on Close, not on ctx
	if err := w.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, err
	}
	rt.onClose(func() {
		if err := w.Close(); err != nil {
			logs.Errorf("close recorder, err: %+v", err)
		}
		logs.Infof("recorder saved %d events, failed %d", w.Saved(), w.Failed())
	})
	return w, nil
}

type profileLogger struct{}

func (profileLogger) Infof(format string, args ...interface{})  {}
func (profileLogger) Debugf(format string, args ...interface{}) {}
func (profileLogger) Errorf(format string, args ...interface{}) {
	logs.Errorf("pyroscope: "+format, args...)
}
