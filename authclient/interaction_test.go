package authclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/welkome/identity"
)

func TestInteraction_BeginEnd(t *testing.T) {
	i := NewInteraction()
	if i.Status() != identity.InteractionNone {
		t.Fatalf("initial status = %s", i.Status())
	}

	if err := i.Begin(identity.InteractionLogin); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := i.Begin(identity.InteractionLogout); !errors.Is(err, identity.ErrInteractionInProgress) {
		t.Fatalf("second Begin() error = %v, want ErrInteractionInProgress", err)
	}
	if i.Status() != identity.InteractionLogin {
		t.Errorf("status changed by a rejected Begin: %s", i.Status())
	}

	// Ending a flow that is not running is a no-op.
	i.End(identity.InteractionLogout)
	if i.Status() != identity.InteractionLogin {
		t.Errorf("End() of another flow changed status to %s", i.Status())
	}

	i.End(identity.InteractionLogin)
	if i.Status() != identity.InteractionNone {
		t.Errorf("status after End() = %s", i.Status())
	}
}

func TestInteraction_Transition(t *testing.T) {
	i := NewInteraction()
	_ = i.Begin(identity.InteractionLogin)

	if err := i.Transition(identity.InteractionHandleRedirect, identity.InteractionLogin, identity.InteractionNone); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if err := i.Transition(identity.InteractionHandleRedirect, identity.InteractionLogin, identity.InteractionNone); !errors.Is(err, identity.ErrInteractionInProgress) {
		t.Errorf("Transition() from handleRedirect error = %v", err)
	}
}

func TestInteraction_WaitIdle(t *testing.T) {
	i := NewInteraction()
	if err := i.WaitIdle(context.Background()); err != nil {
		t.Fatalf("WaitIdle() on idle holder error = %v", err)
	}

	_ = i.Begin(identity.InteractionStartup)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := i.WaitIdle(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitIdle() while busy error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- i.WaitIdle(context.Background()) }()
	i.End(identity.InteractionStartup)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WaitIdle() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitIdle() did not return after End()")
	}
}

func TestInteraction_ConcurrentBegin(t *testing.T) {
	i := NewInteraction()

	var winners atomic.Int32
	var wg sync.WaitGroup
	for n := 0; n < 50; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := i.Begin(identity.InteractionLogin); err == nil {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	if winners.Load() != 1 {
		t.Errorf("%d goroutines entered the login flow, want exactly 1", winners.Load())
	}
}

// The holder behaves like a single-slot state machine: Begin succeeds iff the
// model is idle, End only clears the matching flow.
func TestInteraction_StateMachineProperty(t *testing.T) {
	flows := []identity.InteractionStatus{
		identity.InteractionStartup,
		identity.InteractionLogin,
		identity.InteractionLogout,
		identity.InteractionHandleRedirect,
		identity.InteractionAcquireToken,
	}

	rapid.Check(t, func(t *rapid.T) {
		i := NewInteraction()
		model := identity.InteractionNone

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for s := 0; s < steps; s++ {
			flow := rapid.SampledFrom(flows).Draw(t, "flow")
			if rapid.Bool().Draw(t, "begin") {
				err := i.Begin(flow)
				if model == identity.InteractionNone {
					if err != nil {
						t.Fatalf("Begin(%s) from none failed: %v", flow, err)
					}
					model = flow
				} else if !errors.Is(err, identity.ErrInteractionInProgress) {
					t.Fatalf("Begin(%s) during %s error = %v", flow, model, err)
				}
			} else {
				i.End(flow)
				if model == flow {
					model = identity.InteractionNone
				}
			}

			if got := i.Status(); got != model {
				t.Fatalf("status = %s, model = %s", got, model)
			}
		}
	})
}
