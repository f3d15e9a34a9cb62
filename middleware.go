package xsurface

// Middleware composes concerns around a Listener.
type Middleware func(next Listener) Listener

// TypeFilter only forwards events whose type is in types.
func TypeFilter(types ...EventType) Middleware {
	return func(next Listener) Listener {
		return ListenerFunc(func(e Event) bool {
			t := e.Type()
			for _, want := range types {
				if t == want {
					return next.OnEvent(e)
				}
			}
			return false
		})
	}
}

// CategoryFilter only forwards events of category c.
func CategoryFilter(c Category) Middleware {
	return func(next Listener) Listener {
		return ListenerFunc(func(e Event) bool {
			if e.Category() != c {
				return false
			}
			return next.OnEvent(e)
		})
	}
}

// StopAfterHandled turns "handled" into "handled and stop", for listeners
// that want first-match-wins behaviour.
func StopAfterHandled() Middleware {
	return func(next Listener) Listener {
		return ListenerFunc(func(e Event) bool {
			if next.OnEvent(e) {
				e.StopPropagation()
				return true
			}
			return false
		})
	}
}

// Chain composes middlewares around a listener in order.
func Chain(l Listener, mws ...Middleware) Listener {
	if len(mws) == 0 {
		return l
	}
	wrapped := l
	// Apply in reverse so that first middleware wraps last.
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		wrapped = mws[i](wrapped)
	}
	return wrapped
}
