package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"metric-alerts/internal/rule"
)

// Message is the channel-independent payload of one notification.
type Message struct {
	RuleName    string
	Severity    rule.Severity
	Body        string
	TriggeredAt time.Time
}

// Adapter performs the actual send for one channel kind. Implementations
// must honour ctx cancellation; the dispatcher bounds every send with a
// timeout.
type Adapter interface {
	Name() string
	Send(ctx context.Context, recipient string, msg Message) error
}

// Registry resolves channel identifiers to adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// Get returns the adapter for a channel id.
func (r *Registry) Get(channel string) (Adapter, error) {
	a, ok := r.adapters[channel]
	if !ok {
		return nil, fmt.Errorf("no adapter configured for channel %q", channel)
	}
	return a, nil
}

// Channels lists the configured channel ids.
func (r *Registry) Channels() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}

func renderMessage(msg Message) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[%s] %s\n", strings.ToUpper(string(msg.Severity)), msg.RuleName))
	builder.WriteString(fmt.Sprintf("Time: %s UTC\n", msg.TriggeredAt.UTC().Format(time.RFC3339)))
	builder.WriteString(msg.Body)
	return builder.String()
}
