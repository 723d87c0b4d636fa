package host

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/reglet-dev/exthost/domain/entities"
	"github.com/reglet-dev/exthost/domain/ports"
	"github.com/reglet-dev/exthost/hostfuncs"
)

// hostConfig holds configuration for a WasmHost.
type hostConfig struct {
	engine        *Engine
	logger        *slog.Logger
	grants        ports.GrantStore
	app           ports.AppContext
	callObserver  CallObserver
	denialHandler ports.DenialHandler
	policy        ports.Policy
	services      hostfuncs.Services
	bundles       []hostfuncs.HostFuncBundle
	middleware    []hostfuncs.Middleware
	workDir       string
	supported     entities.VersionRange
}

func defaultHostConfig() hostConfig {
	return hostConfig{
		logger:       slog.Default(),
		callObserver: nopCallObserver{},
		workDir:      filepath.Join(os.TempDir(), "exthost", "work"),
		supported:    DefaultSupportedVersions,
	}
}

// HostOption configures a WasmHost.
type HostOption func(*hostConfig)

// WithEngine runs extensions on e instead of DefaultEngine.
func WithEngine(e *Engine) HostOption {
	return func(c *hostConfig) {
		c.engine = e
	}
}

// WithLogger sets the host logger.
func WithLogger(l *slog.Logger) HostOption {
	return func(c *hostConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithGrantStore loads the granted capability set from s.
//
// Without a store the host uses entities.DefaultGrantedCapabilities, which
// grants every kind with wildcards: an extension may then do anything its
// manifest declares. Only undeclared operations are denied.
func WithGrantStore(s ports.GrantStore) HostOption {
	return func(c *hostConfig) {
		c.grants = s
	}
}

// WithAppContext sets the application context owned by the main-context
// relay. It also enables the get_settings host function.
func WithAppContext(app ports.AppContext) HostOption {
	return func(c *hostConfig) {
		c.app = app
	}
}

// WithWorkDir sets the directory extension work directories are created under.
func WithWorkDir(dir string) HostOption {
	return func(c *hostConfig) {
		if dir != "" {
			c.workDir = dir
		}
	}
}

// WithSupportedVersions sets the accepted interface version range.
func WithSupportedVersions(r entities.VersionRange) HostOption {
	return func(c *hostConfig) {
		c.supported = r
	}
}

// WithServices sets the shared services behind the standard host functions.
func WithServices(s hostfuncs.Services) HostOption {
	return func(c *hostConfig) {
		c.services = s
	}
}

// WithBundles adds host function bundles. They override standard handlers
// of the same name.
func WithBundles(bundles ...hostfuncs.HostFuncBundle) HostOption {
	return func(c *hostConfig) {
		c.bundles = append(c.bundles, bundles...)
	}
}

// WithMiddleware wraps every host function, inside panic recovery and logging.
func WithMiddleware(mw ...hostfuncs.Middleware) HostOption {
	return func(c *hostConfig) {
		c.middleware = append(c.middleware, mw...)
	}
}

// WithDenialHandler is notified of every capability denial.
func WithDenialHandler(h ports.DenialHandler) HostOption {
	return func(c *hostConfig) {
		c.denialHandler = h
	}
}

// WithPolicy replaces the capability matching policy.
func WithPolicy(p ports.Policy) HostOption {
	return func(c *hostConfig) {
		c.policy = p
	}
}

// WithCallObserver receives the outcome of every extension call.
func WithCallObserver(o CallObserver) HostOption {
	return func(c *hostConfig) {
		if o != nil {
			c.callObserver = o
		}
	}
}
