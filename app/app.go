// Package app wires configuration, the credential-store pool, the
// inference model and the engine into a runnable server.
package app

import (
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/sheep-cloud12138/MyWebServer/backend"
	"github.com/sheep-cloud12138/MyWebServer/config"
	"github.com/sheep-cloud12138/MyWebServer/core"
	"github.com/sheep-cloud12138/MyWebServer/core/pools"
	"github.com/sheep-cloud12138/MyWebServer/inference"
)

// App is the application instance.
type App struct {
	cfg     *config.Config
	engine  *core.Engine
	sqlPool *pools.ResourcePool
	model   inference.Predictor
}

// New creates an application instance. The credential-store pool is
// eagerly established here so a misconfigured store fails at startup,
// not on the first login.
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg}

	if cfg.SQLPoolSize > 0 {
		storeCfg := backend.Config{
			Host:     cfg.SQLHost,
			Port:     cfg.SQLPort,
			User:     cfg.SQLUser,
			Password: cfg.SQLPassword,
			Database: cfg.SQLDatabase,
		}
		pool, err := pools.NewResourcePool(func() (io.Closer, error) {
			return backend.Dial(storeCfg)
		}, cfg.SQLPoolSize)
		if err != nil {
			return nil, err
		}
		a.sqlPool = pool
	}

	if cfg.ModelPath != "" {
		model, err := inference.LoadModel(cfg.ModelPath)
		if err != nil {
			a.closePool()
			return nil, err
		}
		a.model = model
	} else {
		a.model = inference.DefaultModel()
	}

	a.engine = core.NewEngine(core.Options{
		Port:        cfg.Port,
		RootDir:     cfg.RootDir,
		Workers:     cfg.Workers,
		BodyHandler: a,
		AccessLog:   cfg.AccessLog,
	})
	return a, nil
}

// Engine exposes the underlying engine, mainly for tests.
func (a *App) Engine() *core.Engine {
	return a.engine
}

// Run starts the server and blocks until a termination signal.
func (a *App) Run() error {
	go a.awaitSignal()

	log.Printf("🚀 serving %s on port %d (%d workers)", a.cfg.RootDir, a.cfg.Port, a.cfg.Workers)
	err := a.engine.Run()

	a.closePool()
	return err
}

func (a *App) awaitSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("signal received: %v, shutting down", sig)
	a.engine.Shutdown()
}

func (a *App) closePool() {
	if a.sqlPool == nil {
		return
	}
	if err := a.sqlPool.Close(); err != nil {
		log.Printf("store pool close: %v", err)
	}
}

// HandleBody dispatches dynamic request bodies. Static file serving never
// reaches here; only requests carrying a body do. Failures are logged and
// swallowed: the HTTP response for the path has already been decided, and
// the store or model being unhappy must not take the connection down.
func (a *App) HandleBody(method, path, body string) {
	if method != "POST" {
		return
	}
	switch strings.TrimSuffix(path, ".html") {
	case "/login":
		a.handleLogin(body, false)
	case "/register":
		a.handleLogin(body, true)
	case "/predict":
		a.handlePredict(body)
	}
}

// handleLogin parses a user=...&password=... form body and checks it
// against the credential store through a pooled lease.
func (a *App) handleLogin(body string, register bool) {
	user, password, ok := parseForm(body)
	if !ok {
		log.Printf("login: malformed form body")
		return
	}
	if a.sqlPool == nil {
		log.Printf("login: credential store disabled")
		return
	}

	lease := a.sqlPool.Acquire()
	defer lease.Release()

	conn := lease.Resource().(*backend.Conn)
	if register {
		if err := conn.Register(user, password); err != nil {
			log.Printf("register %s: %v", user, err)
			return
		}
		log.Printf("register %s: ok", user)
		return
	}

	authed, err := conn.Authenticate(user, password)
	if err != nil {
		log.Printf("login %s: %v", user, err)
		return
	}
	log.Printf("login %s: authenticated=%v", user, authed)
}

// handlePredict parses a comma-separated feature vector and runs it
// through the model.
func (a *App) handlePredict(body string) {
	fields := strings.Split(strings.TrimSpace(body), ",")
	in := make([]float32, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
		if err != nil {
			log.Printf("predict: bad input %q: %v", f, err)
			return
		}
		in = append(in, float32(v))
	}

	out, err := a.model.Predict(in)
	if err != nil {
		if errors.Is(err, inference.ErrDimensionMismatch) {
			log.Printf("predict: %v", err)
			return
		}
		log.Printf("predict failed: %v", err)
		return
	}
	log.Printf("predict %v -> %v", in, out)
}

// parseForm pulls user and password out of a urlencoded form body.
func parseForm(body string) (user, password string, ok bool) {
	for _, pair := range strings.Split(body, "&") {
		k, v, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		switch k {
		case "user", "username":
			user = v
		case "password", "passwd":
			password = v
		}
	}
	return user, password, user != ""
}
