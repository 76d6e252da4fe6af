package bridge

import (
	"fmt"
	"sync"

	"devtools-bridge/internal/domain"
)

// Registry mirrors the element table held by the capability library in the
// remote page. It only tracks how many entries exist and which generation
// they belong to; the nodes themselves never leave the page.
type Registry struct {
	mu    sync.Mutex
	count int
	epoch uint64
}

// Invalidate empties the registry and starts a new generation, returning
// its epoch. Every handle issued before the call becomes stale.
func (r *Registry) Invalidate() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.epoch++
	r.count = 0
	return r.epoch
}

// Expire invalidates the registry only if it is still at epoch.
func (r *Registry) Expire(epoch uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.epoch == epoch {
		r.epoch++
		r.count = 0
	}
}

// Extend appends n entries to generation epoch and returns their handles,
// numbered after the existing ones.
func (r *Registry) Extend(epoch uint64, n int) ([]domain.ElementHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.extend("Registry.Extend", epoch, r.count, n)
}

// Append is Extend for entries the page appended at remote index start.
// When start disagrees with the local count the two tables have drifted
// apart, for example after a lost reply; the generation is expired so no
// handle can address the wrong element.
func (r *Registry) Append(epoch uint64, start, n int) ([]domain.ElementHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if epoch == r.epoch && start != r.count {
		expected := r.count
		r.epoch++
		r.count = 0
		return nil, domain.NewDomainError("Registry.Append", domain.ErrNotFound,
			fmt.Sprintf("page appended at %d, expected %d; generation %d expired", start, expected, epoch))
	}
	return r.extend("Registry.Append", epoch, start, n)
}

func (r *Registry) extend(op string, epoch uint64, start, n int) ([]domain.ElementHandle, error) {
	if epoch != r.epoch {
		return nil, domain.NewDomainError(op, domain.ErrNotFound,
			fmt.Sprintf("generation %d replaced by %d", epoch, r.epoch))
	}
	out := make([]domain.ElementHandle, n)
	for i := range out {
		out[i] = domain.ElementHandle{Index: start + i, Epoch: epoch}
	}
	r.count = start + n
	return out, nil
}

// Resolve returns the remote table index for h, or an error wrapping
// domain.ErrNotFound when h is stale or out of range.
func (r *Registry) Resolve(h domain.ElementHandle) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h.Epoch != r.epoch {
		return 0, domain.NewDomainError("Registry.Resolve", domain.ErrNotFound, h.String()+" is stale")
	}
	if h.Index < 0 || h.Index >= r.count {
		return 0, domain.NewDomainError("Registry.Resolve", domain.ErrNotFound, h.String()+" is out of range")
	}
	return h.Index, nil
}

// Epoch returns the current generation.
func (r *Registry) Epoch() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
