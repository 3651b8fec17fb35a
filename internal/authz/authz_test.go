package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/conferia/roombook/internal/booking"
)

func TestActorFromContext(t *testing.T) {
	if ActorFromContext(context.Background()) != nil {
		t.Fatal("expected nil actor from empty context")
	}

	actor := &Actor{UserID: 3}
	ctx := ContextWithActor(context.Background(), actor)
	got := ActorFromContext(ctx)
	if got == nil || got.UserID != 3 {
		t.Fatalf("actor: %+v", got)
	}
}

func TestRequireActor(t *testing.T) {
	if _, err := RequireActor(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}

	ctx := ContextWithActor(context.Background(), &Actor{UserID: 5})
	actor, err := RequireActor(ctx)
	if err != nil {
		t.Fatalf("require actor: %v", err)
	}
	if actor.UserID != 5 {
		t.Fatalf("actor: %+v", actor)
	}
}

func TestRequireAdmin(t *testing.T) {
	if err := RequireAdmin(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}

	ctx := ContextWithActor(context.Background(), &Actor{UserID: 5})
	if err := RequireAdmin(ctx); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	ctx = ContextWithActor(context.Background(), &Actor{UserID: 5, IsAdmin: true})
	if err := RequireAdmin(ctx); err != nil {
		t.Fatalf("admin should pass: %v", err)
	}
}

func TestCanManage(t *testing.T) {
	room := booking.Room{ID: 1, OwnerID: 10}

	tests := []struct {
		name  string
		actor Actor
		want  bool
	}{
		{"owner", Actor{UserID: 10}, true},
		{"admin", Actor{UserID: 99, IsAdmin: true}, true},
		{"other user", Actor{UserID: 11}, false},
		{"anonymous", Actor{}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.actor.CanManage(room); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}
