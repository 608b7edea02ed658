package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/hydrostack/hydrostack/pkg/types"
	"github.com/hydrostack/hydrostack/server/internal/config"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	Station    string     `json:"station"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"`
}

// Engine evaluates alert rules against incoming station statuses and
// delivers webhook notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []config.AlertRule
	webhooks []config.WebhookConfig

	// OnChange, if set, is called with a copy of every fired or resolved alert.
	OnChange func(Alert)

	mu        sync.Mutex
	active    map[string]*Alert    // key: "ruleName:station"
	lastFire  map[string]time.Time // last fire time per key (for cooldown)
	history   []*Alert             // recently resolved alerts
	client    *http.Client
	now       func() time.Time
	deliverFn func(Alert)
}

// New creates an Engine from the server alert configuration.
// An Engine with no rules is valid; Evaluate becomes a no-op.
func New(cfg config.AlertsConfig) *Engine {
	e := &Engine{
		rules:    cfg.Rules,
		webhooks: cfg.Webhooks,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
	e.deliverFn = func(a Alert) { go e.deliver(&a) }
	return e
}

// Evaluate tests all configured rules against st.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// Alerts that were firing but whose condition is now false are resolved.
func (e *Engine) Evaluate(st types.StationStatus) {
	if len(e.rules) == 0 {
		return
	}

	now := e.now()
	for _, rule := range e.rules {
		if len(rule.Stations) > 0 && !slices.Contains(rule.Stations, st.Station) {
			continue
		}
		key := rule.Name + ":" + st.Station
		fires, value := evalCondition(rule.Condition, &st)

		var changed *Alert
		e.mu.Lock()
		if fires {
			changed = e.fire(key, rule, st.Station, value, now)
		} else {
			changed = e.resolve(key, now)
		}
		e.mu.Unlock()

		if changed == nil {
			continue
		}
		if changed.State == StateFiring {
			slog.Warn("alert fired",
				"rule", rule.Name,
				"station", st.Station,
				"value", value,
				"severity", changed.Severity,
			)
		} else {
			slog.Info("alert resolved", "rule", rule.Name, "station", st.Station)
		}
		if e.OnChange != nil {
			e.OnChange(*changed)
		}
		e.deliverFn(*changed)
	}
}

// fire records a firing alert unless key is still cooling down. A condition
// that stays true re-fires once per cooldown. It returns a copy of the new
// alert, or nil. Callers hold e.mu.
func (e *Engine) fire(key string, rule config.AlertRule, station string, value float64, now time.Time) *Alert {
	cooldown := rule.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	if last, ok := e.lastFire[key]; ok && now.Sub(last) <= cooldown {
		return nil
	}
	sev := rule.Severity
	if sev == "" {
		sev = "warning"
	}
	a := &Alert{
		ID:       fmt.Sprintf("%s:%s:%d", rule.Name, station, now.UnixNano()),
		RuleName: rule.Name,
		Station:  station,
		Severity: sev,
		Value:    value,
		Message: fmt.Sprintf("[%s] %s fired on %s: %s (value %.2f)",
			sev, rule.Name, station, rule.Condition, value),
		FiredAt: now,
		State:   StateFiring,
	}
	e.active[key] = a
	e.lastFire[key] = now
	cp := *a
	return &cp
}

// resolve moves a firing alert for key to history. Callers hold e.mu.
func (e *Engine) resolve(key string, now time.Time) *Alert {
	a, ok := e.active[key]
	if !ok {
		return nil
	}
	resolved := now
	a.State = StateResolved
	a.ResolvedAt = &resolved
	delete(e.active, key)

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
	cp := *a
	return &cp
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, sorted newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}
