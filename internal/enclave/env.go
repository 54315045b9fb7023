package enclave

// binding is one declared name. Constants reject reassignment.
type binding struct {
	value    any
	constant bool
}

// Env is one lexical scope. The chain root holds the sandbox globals,
// all declared constant.
type Env struct {
	parent *Env
	vars   map[string]binding
}

func newEnv(parent *Env) *Env {
	return &Env{parent: parent, vars: make(map[string]binding)}
}

func (e *Env) define(name string, v any, constant bool) error {
	if _, ok := e.vars[name]; ok {
		return scriptErrf("identifier %q has already been declared", name)
	}
	e.vars[name] = binding{value: v, constant: constant}
	return nil
}

func (e *Env) get(name string) (any, bool) {
	for s := e; s != nil; s = s.parent {
		if b, ok := s.vars[name]; ok {
			return b.value, true
		}
	}
	return nil, false
}

func (e *Env) set(name string, v any) error {
	for s := e; s != nil; s = s.parent {
		if b, ok := s.vars[name]; ok {
			if b.constant {
				return scriptErrf("assignment to constant %q", name)
			}
			s.vars[name] = binding{value: v}
			return nil
		}
	}
	return scriptErrf("%s is not defined", name)
}
