package capture

import "context"

// Actor identifies who performed an audited operation.
type Actor struct {
	ID *int64
	IP *string
}

// ActorResolver derives the Actor of an execution context.
type ActorResolver struct {
	consoleID int64
	consoleFn func(context.Context) *int64
}

type ActorOption func(*ActorResolver)

// ConsoleActorID sets the constant identity recorded for non-interactive work.
func ConsoleActorID(id int64) ActorOption {
	return func(r *ActorResolver) {
		r.consoleID = id
		r.consoleFn = nil
	}
}

// ConsoleActorFunc computes the identity recorded for non-interactive work.
// Returning nil records no actor.
func ConsoleActorFunc(fn func(context.Context) *int64) ActorOption {
	return func(r *ActorResolver) {
		r.consoleFn = fn
	}
}

// NewActorResolver returns a resolver whose console identity defaults to 0.
func NewActorResolver(opts ...ActorOption) *ActorResolver {
	r := &ActorResolver{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *ActorResolver) Resolve(ctx context.Context, ec ExecutionContext) Actor {
	if !ec.Interactive() {
		if r.consoleFn != nil {
			return Actor{ID: r.consoleFn(ctx)}
		}
		id := r.consoleID
		return Actor{ID: &id}
	}

	id, ok := ec.ActorIdentity()
	if !ok {
		return Actor{}
	}

	actor := Actor{ID: &id}
	if ip := ec.ActorIP(); ip != "" {
		actor.IP = &ip
	}
	return actor
}
