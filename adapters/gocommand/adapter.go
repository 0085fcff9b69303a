package gocommand

import (
	"context"
	"fmt"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
)

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func registerCommand[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func registerQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// Registration subscribes one handler and registers it with the adapter.
type Registration func(adapter *RegistryAdapter) (commanddispatcher.Subscription, error)

func CommandRegistration[T any](cmd command.Commander[T], runnerOpts ...runner.Option) Registration {
	return func(adapter *RegistryAdapter) (commanddispatcher.Subscription, error) {
		return registerCommand(adapter, cmd, runnerOpts...)
	}
}

func QueryRegistration[T any, R any](qry command.Querier[T, R], runnerOpts ...runner.Option) Registration {
	return func(adapter *RegistryAdapter) (commanddispatcher.Subscription, error) {
		return registerQuery(adapter, qry, runnerOpts...)
	}
}

type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != nil {
			s[i].Unsubscribe()
		}
	}
}

// RegisterAll applies every registration in order. On failure the
// subscriptions made so far are removed, leaving the dispatcher unchanged.
func RegisterAll(adapter *RegistryAdapter, registrations ...Registration) (Subscriptions, error) {
	out := make(Subscriptions, 0, len(registrations))
	for idx, register := range registrations {
		if register == nil {
			continue
		}
		subscription, err := register(adapter)
		if err != nil {
			out.Unsubscribe()
			return nil, fmt.Errorf("gocommand: registration %d: %w", idx, err)
		}
		out = append(out, subscription)
	}
	return out, nil
}
