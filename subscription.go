package webhooks

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidTarget is returned when registering a subscription whose target
// is not a well-formed absolute http(s) URL.
var ErrInvalidTarget = errors.New("invalid target url")

// Subscription is a registered interest in one or more event kinds, bound to
// a delivery target. The registry owns the canonical copy; values handed out
// by Match and List are snapshots.
type Subscription struct {
	ID             string
	TargetURL      string
	Kinds          []EventKind
	Active         bool
	CreatedAt      time.Time
	Secret         string
	MaxAttempts    int
	AttemptTimeout time.Duration
}

// WantsKind reports whether the subscription is interested in the given kind.
func (s Subscription) WantsKind(kind EventKind) bool {
	for _, k := range s.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Registry holds the active webhook subscriptions. Match is called once per
// triggered event and runs concurrently with occasional Register/Unregister
// calls, so reads take the shared lock and writes the exclusive one.
type Registry struct {
	logger *zap.Logger

	mu    sync.RWMutex
	subs  map[string]*Subscription
	order []string
}

// NewRegistry creates an empty subscription registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		logger: zap.NewNop(),
		subs:   make(map[string]*Subscription),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates and stores a new active subscription. It fails with
// ErrInvalidTarget if targetURL is not absolute http(s), and with
// ErrUnknownEventKind if any requested kind is outside the enumeration.
// A signing secret is generated when none is supplied via WithSecret.
func (r *Registry) Register(targetURL string, kinds []EventKind, opts ...SubscriptionOption) (Subscription, error) {
	if err := validateTargetURL(targetURL); err != nil {
		return Subscription{}, err
	}
	for _, k := range kinds {
		if !k.Valid() {
			return Subscription{}, fmt.Errorf("%w: %q", ErrUnknownEventKind, string(k))
		}
	}

	sub := &Subscription{
		ID:             uuid.NewString(),
		TargetURL:      targetURL,
		Kinds:          append([]EventKind(nil), kinds...),
		Active:         true,
		CreatedAt:      time.Now().UTC(),
		MaxAttempts:    defaultMaxAttempts,
		AttemptTimeout: defaultAttemptTimeout,
	}
	for _, opt := range opts {
		opt(sub)
	}
	if sub.Secret == "" {
		sub.Secret = uuid.NewString()
	}
	if sub.MaxAttempts < 1 {
		sub.MaxAttempts = 1
	}

	r.mu.Lock()
	r.subs[sub.ID] = sub
	r.order = append(r.order, sub.ID)
	r.mu.Unlock()

	r.logger.Info("Subscription registered",
		zap.String("subscription_id", sub.ID),
		zap.String("target_url", sub.TargetURL),
		zap.Int("kind_count", len(sub.Kinds)))

	return *sub, nil
}

// Unregister removes a subscription. It returns false when the ID is unknown;
// removing an absent subscription is not an error.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[id]; !ok {
		return false
	}
	delete(r.subs, id)
	for i, sid := range r.order {
		if sid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.logger.Info("Subscription unregistered", zap.String("subscription_id", id))
	return true
}

// SetActive flips a subscription's active flag. Inactive subscriptions stay
// registered but stop matching events. Returns false when the ID is unknown.
func (r *Registry) SetActive(id string, active bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		return false
	}
	sub.Active = active
	return true
}

// Get returns a snapshot of the subscription with the given ID.
func (r *Registry) Get(id string) (Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subs[id]
	if !ok {
		return Subscription{}, false
	}
	return copySubscription(sub), true
}

// Match returns all active subscriptions interested in kind, in registration
// order. The order is deterministic; it carries no priority semantics.
func (r *Registry) Match(kind EventKind) []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []Subscription
	for _, id := range r.order {
		sub := r.subs[id]
		if !sub.Active || !sub.WantsKind(kind) {
			continue
		}
		matched = append(matched, copySubscription(sub))
	}
	return matched
}

// List returns subscriptions in registration order, optionally skipping
// inactive ones.
func (r *Registry) List(activeOnly bool) []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var subs []Subscription
	for _, id := range r.order {
		sub := r.subs[id]
		if activeOnly && !sub.Active {
			continue
		}
		subs = append(subs, copySubscription(sub))
	}
	return subs
}

func copySubscription(sub *Subscription) Subscription {
	out := *sub
	out.Kinds = append([]EventKind(nil), sub.Kinds...)
	return out
}

func validateTargetURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidTarget, raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidTarget, raw)
	}
	return nil
}
