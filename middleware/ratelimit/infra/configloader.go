package infra

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"accessrl/middleware/ratelimit/application"
	"accessrl/middleware/ratelimit/domain"
)

// policyFile is the YAML shape a policy file is unmarshaled into via
// viper/mapstructure. It is deliberately flatter than domain.Policy:
// function-valued fields (Resolver, Exempt, CostResolver,
// AuthenticatedWhen) have no file representation and are left for
// callers to attach in code after LoadAndWatch returns.
type policyFile struct {
	Default  string                 `mapstructure:"default"`
	Policies map[string]policyEntry `mapstructure:"policies"`
}

type policyEntry struct {
	// Limit/Window and LimitPerSecond/Minute/Hour are alternatives: a
	// policy sets either Limit+Window directly or exactly one of the
	// per-period convenience fields, which PolicyProvider.normalize
	// materializes into Limit+Window. Neither is "required" at the
	// struct-tag level because which one is present is a cross-field
	// condition; domain.Policy.ValidateInvariants (run after
	// normalization) is what actually rejects a policy with no
	// capacity configured at all.
	Limit                int64         `mapstructure:"limit" validate:"gte=0"`
	Window               string        `mapstructure:"window"`
	LimitPerSecond       int64         `mapstructure:"limit_per_second" validate:"gte=0"`
	LimitPerMinute       int64         `mapstructure:"limit_per_minute" validate:"gte=0"`
	LimitPerHour         int64         `mapstructure:"limit_per_hour" validate:"gte=0"`
	Cost                 int64         `mapstructure:"cost"`
	AuthenticatedLimit   int64         `mapstructure:"authenticated_limit"`
	AnonymousLimit       int64         `mapstructure:"anonymous_limit"`
	AuthenticatedHeaders []string      `mapstructure:"authenticated_headers"`
	SharedBucket         string        `mapstructure:"shared_bucket"`
	KeyResolvers         []string      `mapstructure:"key_resolvers"`
	Enabled              *bool         `mapstructure:"enabled"`
	FailClosed           bool          `mapstructure:"fail_closed"`
	Penalty              *penaltyEntry `mapstructure:"penalty"`
}

type penaltyEntry struct {
	Enabled         bool     `mapstructure:"enabled"`
	ViolationWindow string   `mapstructure:"violation_window"`
	Durations       []string `mapstructure:"durations"`
}

// ConfigLoader loads policy YAML via viper, validates the raw shape
// with go-playground/validator, translates it into domain.Policy
// values, and publishes them into a PolicyProvider. It optionally
// watches the file with fsnotify and republishes on every write,
// debounced so a burst of filesystem events collapses into a single
// reload (spec §4.A: "reconfiguration is whatever the Policy Provider
// is told to publish next").
type ConfigLoader struct {
	provider  *application.PolicyProvider
	validate  *validator.Validate
	logger    *zap.Logger
	debounce  time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewConfigLoader builds a loader publishing into provider. A nil
// logger falls back to zap.NewNop().
func NewConfigLoader(provider *application.PolicyProvider, logger *zap.Logger) *ConfigLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigLoader{
		provider: provider,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		debounce: 200 * time.Millisecond,
	}
}

// Load reads path once and publishes it, without watching.
func (l *ConfigLoader) Load(path string) error {
	_, err := l.loadAndPublish(path)
	return err
}

// LoadAndWatch loads path, publishes it, and starts an fsnotify watch
// that republishes on every write event until stop is closed. Closing
// stop (or the loader's Close) stops the watcher goroutine.
func (l *ConfigLoader) LoadAndWatch(path string, stop <-chan struct{}) error {
	if _, err := l.loadAndPublish(path); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("accessrl: config watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("accessrl: config watcher add %s: %w", path, err)
	}

	l.mu.Lock()
	l.watcher = watcher
	l.mu.Unlock()

	go l.watch(path, watcher, stop)
	return nil
}

func (l *ConfigLoader) watch(path string, watcher *fsnotify.Watcher, stop <-chan struct{}) {
	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-stop:
			watcher.Close()
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(l.debounce)
			pending = timer.C
		case <-pending:
			pending = nil
			if _, err := l.loadAndPublish(path); err != nil {
				l.logger.Error("config reload failed, keeping previous snapshot",
					zap.String("path", path), zap.Error(err))
			} else {
				l.logger.Info("policy configuration reloaded", zap.String("path", path))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error("config watcher error", zap.Error(err))
		}
	}
}

// Close stops any active watch.
func (l *ConfigLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watcher == nil {
		return nil
	}
	return l.watcher.Close()
}

func (l *ConfigLoader) loadAndPublish(path string) (*policyFile, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("accessrl: read config %s: %w", path, err)
	}

	var file policyFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("accessrl: unmarshal config %s: %w", path, err)
	}

	for name, entry := range file.Policies {
		if err := l.validate.Struct(entry); err != nil {
			return nil, fmt.Errorf("accessrl: policy %q: %w", name, err)
		}
	}

	policies, err := translatePolicies(file.Policies)
	if err != nil {
		return nil, err
	}

	if err := l.provider.Publish(policies, file.Default); err != nil {
		return nil, err
	}

	return &file, nil
}

func translatePolicies(entries map[string]policyEntry) (map[string]*domain.Policy, error) {
	out := make(map[string]*domain.Policy, len(entries))
	for name, e := range entries {
		// Window is only required when the policy sets Limit directly;
		// a policy using LimitPerSecond/Minute/Hour instead leaves it
		// empty and PolicyProvider.normalize fills it in.
		var window time.Duration
		if e.Window != "" {
			w, err := time.ParseDuration(e.Window)
			if err != nil {
				return nil, fmt.Errorf("accessrl: policy %q: field %q: %s", name, "Window", err)
			}
			window = w
		}

		enabled := true
		if e.Enabled != nil {
			enabled = *e.Enabled
		}

		policy := &domain.Policy{
			Name:                 name,
			Limit:                e.Limit,
			Window:               window,
			LimitPerSecond:       e.LimitPerSecond,
			LimitPerMinute:       e.LimitPerMinute,
			LimitPerHour:         e.LimitPerHour,
			Cost:                 e.Cost,
			AuthenticatedLimit:   e.AuthenticatedLimit,
			AnonymousLimit:       e.AnonymousLimit,
			AuthenticatedHeaders: e.AuthenticatedHeaders,
			SharedBucket:         e.SharedBucket,
			ResolverSpecs:        e.KeyResolvers,
			Enabled:              enabled,
			FailClosed:           e.FailClosed,
		}

		if e.Penalty != nil {
			penalty, err := translatePenalty(name, e.Penalty)
			if err != nil {
				return nil, err
			}
			policy.Penalty = *penalty
		}

		out[name] = policy
	}
	return out, nil
}

func translatePenalty(policyName string, e *penaltyEntry) (*domain.PenaltyConfig, error) {
	var violationWindow time.Duration
	if e.ViolationWindow != "" {
		d, err := time.ParseDuration(e.ViolationWindow)
		if err != nil {
			return nil, fmt.Errorf("accessrl: policy %q: field %q: %s", policyName, "Penalty.ViolationWindow", err)
		}
		violationWindow = d
	}

	durations := make([]time.Duration, 0, len(e.Durations))
	for i, raw := range e.Durations {
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("accessrl: policy %q: field %q: %s", policyName, fmt.Sprintf("Penalty.Durations[%d]", i), err)
		}
		durations = append(durations, d)
	}

	return &domain.PenaltyConfig{
		Enabled:         e.Enabled,
		ViolationWindow: violationWindow,
		Durations:       durations,
	}, nil
}
