package authclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/welkome/identity"
)

// Interaction holds the interaction status of one client. Exactly one value
// is held at any time; entering a flow from any state other than
// InteractionNone fails with identity.ErrInteractionInProgress.
type Interaction struct {
	mu     sync.Mutex
	status identity.InteractionStatus
	idle   chan struct{} // closed while status is none
}

// NewInteraction returns a holder in InteractionNone.
func NewInteraction() *Interaction {
	idle := make(chan struct{})
	close(idle)
	return &Interaction{status: identity.InteractionNone, idle: idle}
}

// Status returns the current status.
func (i *Interaction) Status() identity.InteractionStatus {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

// Begin moves none to status.
func (i *Interaction) Begin(status identity.InteractionStatus) error {
	return i.Transition(status, identity.InteractionNone)
}

// Transition moves to status if the current status is one of from.
func (i *Interaction) Transition(status identity.InteractionStatus, from ...identity.InteractionStatus) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, f := range from {
		if i.status == f {
			i.setLocked(status)
			return nil
		}
	}
	return fmt.Errorf("%w: cannot start %s while %s is running", identity.ErrInteractionInProgress, status, i.status)
}

// End returns to none if status is still the current one.
func (i *Interaction) End(status identity.InteractionStatus) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.status == status {
		i.setLocked(identity.InteractionNone)
	}
}

// WaitIdle blocks until the status is none or ctx is done.
func (i *Interaction) WaitIdle(ctx context.Context) error {
	i.mu.Lock()
	idle := i.idle
	i.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (i *Interaction) setLocked(status identity.InteractionStatus) {
	wasIdle := i.status == identity.InteractionNone
	i.status = status

	switch {
	case wasIdle && status != identity.InteractionNone:
		i.idle = make(chan struct{})
	case !wasIdle && status == identity.InteractionNone:
		close(i.idle)
	}
}
