package waku

// LifespanFunc runs once during startup (in declaration order) and once in mirror order during
// shutdown, bracketing the container's own scope lifetime — the same nested-resource semantics
// as module init/destroy hooks, but for application-wide resources that aren't modules.
type LifespanFunc interface {
	Enter(app *Application) error
	Exit(app *Application) error
}

// Factory builds an Application from a root module, following the functional-options pattern
// the teacher's ApplicationBuilder established.
type Factory struct {
	root           Module
	appContext     map[string]any
	lifespans      []LifespanFunc
	extensions     []any
	containerCfg   ContainerConfig
	logger         Logger
	validationMode ValidationMode
	publisher      EventPublisher
}

// FactoryOption configures a Factory before Create is called.
type FactoryOption func(*Factory)

func WithAppContext(ctx map[string]any) FactoryOption {
	return func(f *Factory) { f.appContext = ctx }
}

func WithLifespan(fns ...LifespanFunc) FactoryOption {
	return func(f *Factory) { f.lifespans = append(f.lifespans, fns...) }
}

func WithExtensions(extensions ...any) FactoryOption {
	return func(f *Factory) { f.extensions = append(f.extensions, extensions...) }
}

func WithContainerConfig(cfg ContainerConfig) FactoryOption {
	return func(f *Factory) { f.containerCfg = cfg }
}

func WithLogger(logger Logger) FactoryOption {
	return func(f *Factory) { f.logger = logger }
}

func WithValidationMode(mode ValidationMode) FactoryOption {
	return func(f *Factory) { f.validationMode = mode }
}

func WithEventPublisher(p EventPublisher) FactoryOption {
	return func(f *Factory) { f.publisher = p }
}

// NewFactory constructs a Factory for root. Defaults: strict validation, a no-op Logger, and a
// SequentialPublisher — callers override any of these with FactoryOptions.
func NewFactory(root Module, opts ...FactoryOption) *Factory {
	f := &Factory{
		root:           root,
		logger:         noopLogger{},
		validationMode: Strict,
		publisher:      SequentialPublisher{},
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.containerCfg.AppContext == nil {
		f.containerCfg.AppContext = f.appContext
	}
	return f
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Debug(string, ...any) {}
