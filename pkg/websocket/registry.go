package websocket

// operation is the delivery target of the frames correlated to one id.
type operation interface {
	// deliver handles a frame addressed to the operation. It runs on the
	// reader goroutine and must not block.
	deliver(f Frame)
	// fail terminates the operation with err. It is called at most once per
	// registration, after the entry was removed.
	fail(err error)
}

// registry maps operation ids to their delivery targets.
// It has no lock of its own: every call happens under Client.mu, which also
// guards the connection state.
type registry struct {
	ops map[string]operation
}

func newRegistry() *registry {
	return &registry{ops: make(map[string]operation)}
}

// add registers op under id. It returns false if the id is taken.
func (r *registry) add(id string, op operation) bool {
	if _, exists := r.ops[id]; exists {
		return false
	}
	r.ops[id] = op
	return true
}

// get returns the operation registered under id.
func (r *registry) get(id string) (operation, bool) {
	op, ok := r.ops[id]
	return op, ok
}

// removeIf deletes id only while it still maps to op.
func (r *registry) removeIf(id string, op operation) bool {
	current, ok := r.ops[id]
	if !ok || current != op {
		return false
	}
	delete(r.ops, id)
	return true
}

// drain removes every entry and returns the removed operations.
func (r *registry) drain() []operation {
	if len(r.ops) == 0 {
		return nil
	}
	ops := make([]operation, 0, len(r.ops))
	for id, op := range r.ops {
		ops = append(ops, op)
		delete(r.ops, id)
	}
	return ops
}

// count returns the number of registered operations.
func (r *registry) count() int {
	return len(r.ops)
}
