package gocommand

import (
	"context"
	"testing"

	"github.com/goliatone/go-command"
)

func TestRegisterAll_InitializesRegistry(t *testing.T) {
	adapter := NewRegistryAdapter(nil)
	subscriptions, err := RegisterAll(adapter, CommandRegistration[registeredMessage](command.CommandFunc[registeredMessage](func(context.Context, registeredMessage) error {
		return nil
	})))
	if err != nil {
		t.Fatalf("register all: %v", err)
	}
	defer subscriptions.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	var empty *RegistryAdapter
	if err := empty.Initialize(); err == nil {
		t.Fatalf("expected nil adapter to fail initialization")
	}
}

type registeredMessage struct{}

func (registeredMessage) Type() string { return "syndication.command.registered" }

type countQuery struct{}

func (countQuery) Type() string { return "syndication.query.count" }

func TestRegisterAll_SubscribesCommandsAndQueries(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	executed := 0
	subscriptions, err := RegisterAll(adapter,
		CommandRegistration[registeredMessage](command.CommandFunc[registeredMessage](func(context.Context, registeredMessage) error {
			executed++
			return nil
		})),
		QueryRegistration[countQuery, int](command.QueryFunc[countQuery, int](func(context.Context, countQuery) (int, error) {
			return 42, nil
		})),
	)
	if err != nil {
		t.Fatalf("register all: %v", err)
	}
	defer subscriptions.Unsubscribe()
	if len(subscriptions) != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", len(subscriptions))
	}

	if err := Dispatch(context.Background(), registeredMessage{}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if executed != 1 {
		t.Fatalf("expected one execution, got %d", executed)
	}
	count, err := Query[countQuery, int](context.Background(), countQuery{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 42 {
		t.Fatalf("expected 42, got %d", count)
	}
}

func TestRegisterAll_RejectsUnconfiguredAdapter(t *testing.T) {
	_, err := RegisterAll(nil, CommandRegistration[registeredMessage](command.CommandFunc[registeredMessage](func(context.Context, registeredMessage) error {
		return nil
	})))
	if err == nil {
		t.Fatalf("expected unconfigured adapter error")
	}
}
