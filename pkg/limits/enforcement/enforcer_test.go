package enforcement

import (
	"context"
	"testing"
	"time"
)

func TestNewEnforcer_Defaults(t *testing.T) {
	enforcer := NewEnforcer(Config{})

	config := enforcer.GetConfig()
	if config.DefaultAction != ActionBlock {
		t.Errorf("Expected default action Block, got %s", config.DefaultAction)
	}
	if config.QueueDepth != 100 {
		t.Errorf("Expected queue depth 100, got %d", config.QueueDepth)
	}
	if config.QueueTimeout != 30*time.Second {
		t.Errorf("Expected queue timeout 30s, got %v", config.QueueTimeout)
	}
}

func TestEnforcer_Allow(t *testing.T) {
	enforcer := NewEnforcer(Config{})
	ctx := context.Background()

	result, err := enforcer.Enforce(ctx, ActionAllow, "", 0)
	if err != nil {
		t.Fatalf("Enforce failed: %v", err)
	}

	if !result.Allowed {
		t.Error("Expected request to be allowed")
	}
	if result.Action != ActionAllow {
		t.Errorf("Expected action Allow, got %s", result.Action)
	}
}

func TestEnforcer_Block(t *testing.T) {
	enforcer := NewEnforcer(Config{})
	ctx := context.Background()

	result, err := enforcer.Enforce(ctx, ActionBlock, "rate limit exceeded", 30*time.Second)
	if err != nil {
		t.Fatalf("Enforce failed: %v", err)
	}

	if result.Allowed {
		t.Error("Expected request to be blocked")
	}
	if result.Action != ActionBlock {
		t.Errorf("Expected action Block, got %s", result.Action)
	}
	if result.Reason != "rate limit exceeded" {
		t.Errorf("Expected reason 'rate limit exceeded', got %s", result.Reason)
	}
	if result.RetryAfter != 30*time.Second {
		t.Errorf("Expected retry after 30s, got %v", result.RetryAfter)
	}
}

func TestEnforcer_Queue(t *testing.T) {
	enforcer := NewEnforcer(Config{
		QueueDepth:   50,
		QueueTimeout: 10 * time.Second,
	})
	ctx := context.Background()

	result, err := enforcer.Enforce(ctx, ActionQueue, "rate limit exceeded", 5*time.Second)
	if err != nil {
		t.Fatalf("Enforce failed: %v", err)
	}

	if result.Action != ActionQueue {
		t.Errorf("Expected action Queue, got %s", result.Action)
	}
	if result.Allowed {
		t.Error("Expected queue action to indicate not immediately allowed")
	}
}

func TestEnforcer_Alert(t *testing.T) {
	enforcer := NewEnforcer(Config{})
	ctx := context.Background()

	result, err := enforcer.Enforce(ctx, ActionAlert, "80% budget used", 0)
	if err != nil {
		t.Fatalf("Enforce failed: %v", err)
	}

	if !result.Allowed {
		t.Error("Expected request to be allowed with alert")
	}
	if result.Action != ActionAlert {
		t.Errorf("Expected action Alert, got %s", result.Action)
	}
	if result.AlertMessage != "80% budget used" {
		t.Errorf("Expected alert message '80%% budget used', got %s", result.AlertMessage)
	}
}

func TestEnforcer_DefaultAction(t *testing.T) {
	enforcer := NewEnforcer(Config{
		DefaultAction: ActionAlert,
	})
	ctx := context.Background()

	// Enforce with empty action - should use default
	result, err := enforcer.Enforce(ctx, "", "some reason", 0)
	if err != nil {
		t.Fatalf("Enforce failed: %v", err)
	}

	if result.Action != ActionAlert {
		t.Errorf("Expected default action Alert, got %s", result.Action)
	}
}

func TestEnforcer_InvalidAction(t *testing.T) {
	enforcer := NewEnforcer(Config{})
	ctx := context.Background()

	// Invalid action should fall back to default (Block)
	result, err := enforcer.Enforce(ctx, Action("invalid"), "some reason", 0)
	if err != nil {
		t.Fatalf("Enforce failed: %v", err)
	}

	if result.Action != ActionBlock {
		t.Errorf("Expected fallback to Block action, got %s", result.Action)
	}
}
