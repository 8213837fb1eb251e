package infra

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/grand-thief-cash/yggdrasil/infra/autowire"
	"github.com/grand-thief-cash/yggdrasil/infra/config"
	"github.com/grand-thief-cash/yggdrasil/infra/consts"
	"github.com/grand-thief-cash/yggdrasil/infra/core"
	"github.com/grand-thief-cash/yggdrasil/infra/hooks"
	"github.com/grand-thief-cash/yggdrasil/infra/registry"
)

// App ties together config loading, component building and lifecycle.
// Projects usually interact with the process-wide instance from GetApp,
// wiring their biz config pointer in an init() before Run is called.
type App struct {
	container        *core.Container
	lifecycleManager *core.LifecycleManager
	configManager    *config.ConfigManager

	bootOnce  sync.Once
	bootErr   error
	booted    bool
	bizConfig any

	shutdownTimeout time.Duration
}

func NewApp(env string, configPath string) *App {
	abs := configPath
	if p, err := filepath.Abs(configPath); err == nil {
		abs = p
	}
	container := core.NewContainer()
	return &App{
		configManager:    config.NewConfigManager(env, abs),
		container:        container,
		lifecycleManager: core.NewLifecycleManager(container),
		shutdownTimeout:  30 * time.Second,
	}
}

var (
	globalApp   *App
	globalAppMu sync.Mutex
)

// GetApp returns the process-wide app, creating it on first use from the
// APP_ENV and APP_CONFIG environment variables. Flags parsed in main can
// still re-point the config source via SetConfigSource before Run.
func GetApp() *App {
	globalAppMu.Lock()
	defer globalAppMu.Unlock()
	if globalApp == nil {
		env := os.Getenv("APP_ENV")
		if env == "" {
			env = consts.ENV_DEVELOPMENT
		}
		cfgPath := os.Getenv("APP_CONFIG")
		if cfgPath == "" {
			cfgPath = consts.DEFAULT_CONFIG_PATH
		}
		globalApp = NewApp(env, cfgPath)
	}
	return globalApp
}

// SetBizConfig registers the project config pointer the loader decodes the
// biz_config subtree into. Must be called before boot.
func (app *App) SetBizConfig(b any) {
	app.bizConfig = b
	app.configManager.SetBizConfig(b)
}

// SetConfigSource re-points env and config path before boot (typically from
// flags parsed in main, after init-time GetApp already ran). No-op once booted.
func (app *App) SetConfigSource(env, configPath string) {
	if app.booted {
		return
	}
	abs := configPath
	if p, err := filepath.Abs(configPath); err == nil {
		abs = p
	}
	app.configManager = config.NewConfigManager(env, abs)
	if app.bizConfig != nil {
		app.configManager.SetBizConfig(app.bizConfig)
	}
}

// SetShutdownTimeout allows customizing graceful shutdown timeout.
func (app *App) SetShutdownTimeout(d time.Duration) { app.shutdownTimeout = d }

func (app *App) boot() error {
	app.bootOnce.Do(func() {
		if err := app.configManager.LoadConfig(); err != nil {
			app.bootErr = fmt.Errorf("load config failed: %w", err)
			return
		}
		if err := app.registerComponents(); err != nil {
			app.bootErr = fmt.Errorf("register components failed: %w", err)
			return
		}
		app.booted = true
	})
	return app.bootErr
}

func (app *App) registerComponents() error {
	cfg := app.configManager.GetConfig()
	if cfg == nil {
		return fmt.Errorf("config not loaded")
	}

	// Each component self-registers its builder in a registry/*.go or
	// registry_ext init(). Build, then inject tagged cross-references.
	if err := registry.BuildAndRegisterAll(cfg, app.container); err != nil {
		return err
	}
	if err := autowire.InjectAll(app.container); err != nil {
		return err
	}
	return nil
}

func (app *App) GetComponent(name string) (core.Component, error) {
	return app.container.Resolve(name)
}

func (app *App) Container() *core.Container { return app.container }

func (app *App) GetConfig() *config.AppConfig {
	if app.configManager == nil {
		return nil
	}
	return app.configManager.GetConfig()
}

func (app *App) AddHook(name string, phase hooks.Phase, fn hooks.HookFunc, priority int) error {
	return app.lifecycleManager.AddHook(name, phase, fn, priority)
}

// Run boots the app, starts all components and blocks until SIGINT/SIGTERM.
// A second signal, or a graceful shutdown overrunning the timeout, forces
// the process to exit.
func (app *App) Run() error {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- app.RunWithContext(ctx) }()

	for {
		select {
		case sig := <-sigCh:
			log.Printf("Received signal %s, initiating graceful shutdown (timeout %s)...", sig, app.shutdownTimeout)
			go func() {
				<-time.After(app.shutdownTimeout)
				log.Printf("[graceful] shutdown timed out, forcing exit")
				os.Exit(1)
			}()
			go func() {
				if second := <-sigCh; second != nil {
					log.Printf("[graceful] second signal %s, forcing exit", second)
					os.Exit(1)
				}
			}()
			cancel()
		case err := <-errCh:
			return err
		}
	}
}

// RunWithContext starts components and blocks until context done,
// then performs graceful shutdown.
func (app *App) RunWithContext(ctx context.Context) error {
	if err := app.boot(); err != nil {
		return err
	}

	if err := app.lifecycleManager.StartAll(ctx); err != nil {
		return err
	}

	// Block until context canceled.
	<-ctx.Done()

	// Graceful shutdown.
	app.lifecycleManager.StopAll(context.Background())
	return nil
}

func (app *App) Shutdown(ctx context.Context) {
	app.lifecycleManager.StopAll(ctx)
}
