package stubs

import (
	"jsjit/pkg/jit"
	"jsjit/pkg/value"
)

type envKind uint8

const (
	envDeclarative envKind = iota
	envObject
)

// Env is one link of a scope chain. Declarative environments hold named
// bindings and the heap slots allocated by BUILD_ENV; object environments
// (the global scope and with blocks) resolve names as properties.
type Env struct {
	kind   envKind
	parent *Env
	depth  int
	handle uint64

	bindings map[string]*binding
	slots    []binding
	object   *Object
}

type binding struct {
	value     value.Value
	name      string
	mutable   bool
	deletable bool
}

func (r *Realm) newEnv(kind envKind, parent *Env) *Env {
	e := &Env{kind: kind, parent: parent, handle: uint64(len(r.envs))}
	if parent != nil {
		e.depth = parent.depth + 1
	}
	if kind == envDeclarative {
		e.bindings = make(map[string]*binding)
	}
	r.envs = append(r.envs, e)
	return e
}

func (r *Realm) env(handle uint64) *Env { return r.envs[handle] }

// closureEnv is the environment a frame's code was created in: the
// callee's scope, or the global scope for top-level code.
func (r *Realm) closureEnv(frame jit.Frame) *Env {
	if fn := r.Object(frame.Callee()); fn != nil && fn.Function != nil && fn.Function.Env != nil {
		return fn.Function.Env
	}
	return r.global
}

// reference is the result of resolving a name.
type reference struct {
	env     *Env
	binding *binding
}

func (r *Realm) resolve(e *Env, name string) (reference, bool) {
	for ; e != nil; e = e.parent {
		switch e.kind {
		case envDeclarative:
			if b := e.bindings[name]; b != nil {
				return reference{env: e, binding: b}, true
			}
			for i := range e.slots {
				if e.slots[i].name == name {
					return reference{env: e, binding: &e.slots[i]}, true
				}
			}
		case envObject:
			if r.hasProperty(e.object, name) {
				return reference{env: e}, true
			}
		}
	}
	return reference{}, false
}

func (r *Realm) getReference(m *jit.Machine, ref reference, name string) (value.Value, error) {
	if ref.binding == nil {
		return r.get(m, ref.env.object, name, ref.env.object.Value())
	}
	if ref.binding.value == value.Empty {
		return 0, r.referenceError("cannot access '%s' before initialization", name)
	}
	return ref.binding.value, nil
}

func (r *Realm) setReference(m *jit.Machine, ref reference, name string, v value.Value, strict bool) error {
	if ref.binding == nil {
		return r.putProperty(m, ref.env.object.Value(), name, v, strict)
	}
	if !ref.binding.mutable && ref.binding.value != value.Empty {
		if strict {
			return r.typeError("assignment to constant variable '%s'", name)
		}
		return nil
	}
	ref.binding.value = v
	return nil
}

func (r *Realm) loadName(m *jit.Machine, frame jit.Frame, name string) (value.Value, error) {
	ref, ok := r.resolve(r.env(frame.LexicalEnv()), name)
	if !ok {
		return 0, r.referenceError("%s is not defined", name)
	}
	return r.getReference(m, ref, name)
}

func (r *Realm) storeName(m *jit.Machine, frame jit.Frame, name string, v value.Value, strict bool) error {
	ref, ok := r.resolve(r.env(frame.LexicalEnv()), name)
	if !ok {
		if strict {
			return r.referenceError("%s is not defined", name)
		}
		return r.putProperty(m, r.globalObject.Value(), name, v, false)
	}
	return r.setReference(m, ref, name, v, strict)
}

func (r *Realm) deleteName(frame jit.Frame, name string) (bool, error) {
	ref, ok := r.resolve(r.env(frame.LexicalEnv()), name)
	switch {
	case !ok:
		return true, nil
	case ref.binding == nil:
		return r.deleteProperty(ref.env.object.Value(), name, false)
	case ref.binding.deletable:
		delete(ref.env.bindings, name)
		return true, nil
	}
	return false, nil
}

func (r *Realm) typeofName(m *jit.Machine, frame jit.Frame, name string) (value.Value, error) {
	ref, ok := r.resolve(r.env(frame.LexicalEnv()), name)
	if !ok {
		return r.String("undefined"), nil
	}
	v, err := r.getReference(m, ref, name)
	if err != nil {
		return 0, err
	}
	return r.String(r.Typeof(v)), nil
}

// increment applies an *Increment* stub mode to old and returns the new
// value to store and the value of the expression.
func (r *Realm) increment(m *jit.Machine, old value.Value, mode uint64) (store, result value.Value, err error) {
	n, err := r.ToNumber(m, old)
	if err != nil {
		return 0, 0, err
	}
	next := n + 1
	if mode&jit.IncrementDecrement != 0 {
		next = n - 1
	}
	store = Number(next)
	if mode&jit.IncrementPostfix != 0 {
		return store, Number(n), nil
	}
	return store, store, nil
}

func (r *Realm) incrementName(m *jit.Machine, frame jit.Frame, name string, mode uint64) (value.Value, error) {
	strict := mode&jit.IncrementStrict != 0
	ref, ok := r.resolve(r.env(frame.LexicalEnv()), name)
	if !ok {
		return 0, r.referenceError("%s is not defined", name)
	}
	old, err := r.getReference(m, ref, name)
	if err != nil {
		return 0, err
	}
	store, result, err := r.increment(m, old, mode)
	if err != nil {
		return 0, err
	}
	return result, r.setReference(m, ref, name, store, strict)
}

// Globals are properties of the global object.

func (r *Realm) loadGlobal(m *jit.Machine, name string) (value.Value, error) {
	if !r.hasProperty(r.globalObject, name) {
		return 0, r.referenceError("%s is not defined", name)
	}
	return r.get(m, r.globalObject, name, r.globalObject.Value())
}

func (r *Realm) storeGlobal(m *jit.Machine, name string, v value.Value, strict bool) error {
	if strict && !r.hasProperty(r.globalObject, name) {
		return r.referenceError("%s is not defined", name)
	}
	return r.putProperty(m, r.globalObject.Value(), name, v, strict)
}

func (r *Realm) incrementGlobal(m *jit.Machine, name string, mode uint64) (value.Value, error) {
	old, err := r.loadGlobal(m, name)
	if err != nil {
		return 0, err
	}
	store, result, err := r.increment(m, old, mode)
	if err != nil {
		return 0, err
	}
	return result, r.putProperty(m, r.globalObject.Value(), name, store, mode&jit.IncrementStrict != 0)
}

// heapEnv walks nest environments up from the frame's lexical
// environment.
func (r *Realm) heapEnv(frame jit.Frame, offset, nest uint64) (*Env, error) {
	e := r.env(frame.LexicalEnv())
	for i := uint64(0); i < nest && e != nil; i++ {
		e = e.parent
	}
	if e == nil || e.kind != envDeclarative || offset >= uint64(len(e.slots)) {
		return nil, r.internalError("heap slot %d at depth %d does not exist", offset, nest)
	}
	return e, nil
}

func (r *Realm) loadHeap(frame jit.Frame, name string, offset, nest uint64) (value.Value, error) {
	e, err := r.heapEnv(frame, offset, nest)
	if err != nil {
		return 0, err
	}
	slot := &e.slots[offset]
	if slot.name == "" {
		slot.name = name
	}
	if slot.value == value.Empty {
		return 0, r.referenceError("cannot access '%s' before initialization", name)
	}
	return slot.value, nil
}

func (r *Realm) storeHeap(frame jit.Frame, v value.Value, offset, nest uint64, strict bool) error {
	e, err := r.heapEnv(frame, offset, nest)
	if err != nil {
		return err
	}
	slot := &e.slots[offset]
	if !slot.mutable && slot.value != value.Empty {
		if strict {
			return r.typeError("assignment to constant variable '%s'", slot.name)
		}
		return nil
	}
	slot.value = v
	return nil
}

func (r *Realm) incrementHeap(m *jit.Machine, frame jit.Frame, mode, offset, nest uint64) (value.Value, error) {
	e, err := r.heapEnv(frame, offset, nest)
	if err != nil {
		return 0, err
	}
	slot := &e.slots[offset]
	if slot.value == value.Empty {
		return 0, r.referenceError("cannot access '%s' before initialization", slot.name)
	}
	store, result, err := r.increment(m, slot.value, mode)
	if err != nil {
		return 0, err
	}
	if !slot.mutable {
		if mode&jit.IncrementStrict != 0 {
			return 0, r.typeError("assignment to constant variable '%s'", slot.name)
		}
		return result, nil
	}
	slot.value = store
	return result, nil
}

// buildEnv pushes a declarative environment with size heap slots. Slots
// below mutableStart are immutable and start uninitialized.
func (r *Realm) buildEnv(frame jit.Frame, size, mutableStart uint64) {
	outer := r.env(frame.LexicalEnv())
	e := r.newEnv(envDeclarative, outer)
	e.slots = make([]binding, size)
	for i := range e.slots {
		if i >= int(mutableStart) {
			e.slots[i] = binding{value: value.Undefined, mutable: true}
		}
	}
	// Function code moves its variable scope into its first environment;
	// top-level code keeps declaring on the global object.
	if r.Object(frame.Callee()) != nil && frame.VariableEnv() == r.closureEnv(frame).handle {
		frame.SetVariableEnv(e.handle)
	}
	frame.SetLexicalEnv(e.handle)
}

func (r *Realm) initializeHeapImmutable(frame jit.Frame, v value.Value, offset uint64) error {
	e, err := r.heapEnv(frame, offset, 0)
	if err != nil {
		return err
	}
	e.slots[offset].value = v
	return nil
}

// instantiate declares name in the frame's variable environment. Function
// declarations overwrite an existing binding; variables keep it.
func (r *Realm) instantiate(frame jit.Frame, name string, function, configurable bool) {
	e := r.env(frame.VariableEnv())
	if e.kind == envObject {
		if p := e.object.own(name); p != nil {
			if function && !p.Accessor {
				p.Value = value.Undefined
			}
			return
		}
		e.object.define(name, &Property{
			Value: value.Undefined, Writable: true, Enumerable: true, Configurable: configurable,
		})
		return
	}
	if b, ok := e.bindings[name]; ok {
		if function {
			b.value = value.Undefined
		}
		return
	}
	e.bindings[name] = &binding{value: value.Undefined, name: name, mutable: true, deletable: configurable}
}

func (r *Realm) withSetup(frame jit.Frame, v value.Value) error {
	o, err := r.ToObject(v)
	if err != nil {
		return err
	}
	e := r.newEnv(envObject, r.env(frame.LexicalEnv()))
	e.object = o
	frame.SetLexicalEnv(e.handle)
	return nil
}

func (r *Realm) popEnv(frame jit.Frame) {
	e := r.env(frame.LexicalEnv())
	if e.parent != nil {
		frame.SetLexicalEnv(e.parent.handle)
	}
}

// tryCatchSetup binds the pending exception to name in a new catch scope.
func (r *Realm) tryCatchSetup(m *jit.Machine, frame jit.Frame, name string) value.Value {
	exc := m.Exception()
	e := r.newEnv(envDeclarative, r.env(frame.LexicalEnv()))
	e.bindings[name] = &binding{value: exc, name: name, mutable: true}
	frame.SetLexicalEnv(e.handle)
	return exc
}

// unwindEnv drops the environments pushed inside a protected region
// before its handler runs.
func (r *Realm) unwindEnv(frame jit.Frame, level uint32) {
	target := r.closureEnv(frame).depth + int(level)
	e := r.env(frame.LexicalEnv())
	for e.depth > target && e.parent != nil {
		e = e.parent
	}
	frame.SetLexicalEnv(e.handle)
}
