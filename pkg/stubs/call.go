package stubs

import (
	stderrors "errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"jsjit/pkg/bytecode"
	"jsjit/pkg/jit"
	"jsjit/pkg/value"
)

// NativeFunc implements a built-in function.
type NativeFunc func(r *Realm, m *jit.Machine, this value.Value, args []value.Value) (value.Value, error)

// Function is the callable part of a function object: either compiled code
// closed over Env, or a Go implementation.
type Function struct {
	Name   string
	Code   *bytecode.Code
	Env    *Env
	Native NativeFunc
}

func (r *Realm) isCallable(v value.Value) bool {
	return v.IsObject() && r.object(v).Function != nil
}

// newFunction creates a closure over code in env.
func (r *Realm) newFunction(code *bytecode.Code, env *Env) *Object {
	fn := r.newObject(ClassFunction, r.functionProto)
	fn.Function = &Function{Name: code.Name, Code: code, Env: env}
	proto := r.NewObject()
	proto.define("constructor", &Property{Value: fn.Value(), Writable: true, Configurable: true})
	fn.define("prototype", &Property{Value: proto.Value(), Writable: true})
	fn.define("length", &Property{Value: value.Int32(int32(code.Params))})
	fn.define("name", &Property{Value: r.String(code.Name)})
	return fn
}

// NewNative creates a built-in function object.
func (r *Realm) NewNative(name string, arity int, impl NativeFunc) *Object {
	fn := r.newObject(ClassFunction, r.functionProto)
	fn.Function = &Function{Name: name, Native: impl}
	fn.define("length", &Property{Value: value.Int32(int32(arity))})
	fn.define("name", &Property{Value: r.String(name)})
	return fn
}

func (r *Realm) defineNative(o *Object, name string, arity int, impl NativeFunc) *Object {
	fn := r.NewNative(name, arity, impl)
	o.define(name, &Property{Value: fn.Value(), Writable: true, Configurable: true})
	return fn
}

// call invokes fn from Go. Compiled functions run in a nested machine
// entry.
func (r *Realm) call(m *jit.Machine, fn, this value.Value, args []value.Value) (value.Value, error) {
	if !r.isCallable(fn) {
		return 0, r.typeError("%s is not a function", r.Display(fn))
	}
	f := r.object(fn).Function
	if f.Native != nil {
		return f.Native(r, m, this, args)
	}
	if m == nil {
		return 0, r.internalError("cannot call %s outside a running machine", f.Name)
	}
	res, err := m.Invoke(jit.Call{
		Code:   f.Code,
		Callee: fn,
		This:   r.receiver(f.Code, this),
		Args:   args,
		Env:    f.Env.handle,
	})
	if stderrors.Is(err, jit.ErrStackOverflow) {
		return 0, r.rangeError("maximum call stack size exceeded")
	}
	return res, err
}

// Call invokes a function value from Go code.
func (r *Realm) Call(m *jit.Machine, fn, this value.Value, args ...value.Value) (value.Value, error) {
	return r.call(m, fn, this, args)
}

// receiver replaces a missing this with the global object for sloppy code.
func (r *Realm) receiver(code *bytecode.Code, this value.Value) value.Value {
	if !code.Strict && (this.IsNullOrUndefined() || this.IsEmpty()) {
		return r.globalObject.Value()
	}
	return this
}

// callStub implements CALL, CONSTRUCT and EVAL. Natives complete here and
// hand the result back with the current frame; compiled callees get a
// fresh frame that compiled code then enters.
func (r *Realm) callStub(m *jit.Machine, id jit.StubID, args *[5]uint64) (uint64, uint64, error) {
	frame := m.Frame()
	callee := value.Value(args[0])
	thisAddr := uintptr(args[1])
	window := jit.Window(thisAddr, int(args[2])+1)
	this, callArgs := window[0], window[1:]

	if !r.isCallable(callee) {
		return 0, 0, r.typeError("%s is not a function (%s)", r.Display(callee), r.site(m, args[4]))
	}
	fnObj := r.object(callee)
	f := fnObj.Function

	if id == jit.StubEval && fnObj == r.evalFunction {
		res, err := r.directEval(callArgs)
		return uint64(frame), uint64(res), err
	}
	construct := id == jit.StubConstruct
	if construct {
		proto, err := r.get(m, fnObj, "prototype", callee)
		if err != nil {
			return 0, 0, err
		}
		base := r.objectProto
		if proto.IsObject() {
			base = r.object(proto)
		}
		this = r.newObject(ClassObject, base).Value()
		jit.Store(thisAddr, this)
	}

	if f.Native != nil {
		res, err := f.Native(r, m, this, callArgs)
		if err != nil {
			return 0, 0, err
		}
		if construct && !res.IsObject() {
			res = this
		}
		return uint64(frame), uint64(res), nil
	}

	if !m.NativeStackAvailable(uintptr(args[3])) {
		return 0, 0, r.rangeError("maximum call stack size exceeded")
	}
	if !construct {
		this = r.receiver(f.Code, this)
	}
	next, err := m.PushFrame(frame, jit.Call{
		Code:      f.Code,
		Callee:    callee,
		This:      this,
		Args:      callArgs,
		Env:       f.Env.handle,
		Construct: construct,
	})
	if stderrors.Is(err, jit.ErrStackOverflow) {
		return 0, 0, r.rangeError("maximum call stack size exceeded")
	}
	if err != nil {
		return 0, 0, err
	}
	return uint64(next), 0, nil
}

// directEval handles eval(x). Only non-string arguments can be evaluated
// without a source parser.
func (r *Realm) directEval(args []value.Value) (value.Value, error) {
	if len(args) == 0 {
		return value.Undefined, nil
	}
	if !args[0].IsString() {
		return args[0], nil
	}
	return 0, r.evalError("eval of source text is not supported")
}

// prepareDynamicCall resolves a callee by name and stores its base object
// (set only inside with blocks) in the this slot.
func (r *Realm) prepareDynamicCall(m *jit.Machine, frame jit.Frame, name string, thisAddr uintptr) (value.Value, error) {
	ref, ok := r.resolve(r.env(frame.LexicalEnv()), name)
	if !ok {
		return 0, r.referenceError("%s is not defined", name)
	}
	fn, err := r.getReference(m, ref, name)
	if err != nil {
		return 0, err
	}
	this := value.Undefined
	if ref.binding == nil && ref.env.object != r.globalObject {
		this = ref.env.object.Value()
	}
	jit.Store(thisAddr, this)
	return fn, nil
}

// Errors thrown by the runtime are ordinary error objects carried in a
// *jit.Exception.

func (r *Realm) throwError(ctor *Object, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	proto := r.objectProto
	if p, ok := ctor.own("prototype").valueObject(r); ok {
		proto = p
	}
	obj := r.newError(proto, msg)
	return &jit.Exception{Value: obj.Value(), Message: r.defaultString(nil, obj)}
}

func (p *Property) valueObject(r *Realm) (*Object, bool) {
	if p == nil || !p.Value.IsObject() {
		return nil, false
	}
	return r.object(p.Value), true
}

func (r *Realm) newError(proto *Object, msg string) *Object {
	obj := r.newObject(ClassError, proto)
	if msg != "" {
		obj.define("message", &Property{Value: r.String(msg), Writable: true, Configurable: true})
	}
	return obj
}

func (r *Realm) typeError(format string, args ...any) error {
	return r.throwError(r.errorCtors["TypeError"], format, args...)
}

func (r *Realm) referenceError(format string, args ...any) error {
	return r.throwError(r.errorCtors["ReferenceError"], format, args...)
}

func (r *Realm) rangeError(format string, args ...any) error {
	return r.throwError(r.errorCtors["RangeError"], format, args...)
}

func (r *Realm) evalError(format string, args ...any) error {
	return r.throwError(r.errorCtors["EvalError"], format, args...)
}

func (r *Realm) syntaxError(format string, args ...any) error {
	return r.throwError(r.errorCtors["SyntaxError"], format, args...)
}

// internalError aborts the run: the program broke a runtime contract no
// script can observe.
func (r *Realm) internalError(format string, args ...any) error {
	return fmt.Errorf("internal: "+format, args...)
}

// errorConstructor builds the native behind Error and its subclasses.
func errorConstructor(proto *Object) NativeFunc {
	return func(r *Realm, m *jit.Machine, this value.Value, args []value.Value) (value.Value, error) {
		msg := ""
		if len(args) > 0 && !args[0].IsUndefined() {
			s, err := r.ToString(m, args[0])
			if err != nil {
				return 0, err
			}
			msg = s
		}
		return r.newError(proto, msg).Value(), nil
	}
}

// installGlobals populates the prototypes and the global object.
func (r *Realm) installGlobals() {
	g := r.globalObject

	r.defineNative(r.objectProto, "toString", 0, func(r *Realm, m *jit.Machine, this value.Value, args []value.Value) (value.Value, error) {
		if o := r.Object(this); o != nil {
			return r.String(r.defaultString(m, o)), nil
		}
		t := r.Typeof(this)
		return r.String("[object " + strings.ToUpper(t[:1]) + t[1:] + "]"), nil
	})
	r.defineNative(r.objectProto, "valueOf", 0, func(r *Realm, m *jit.Machine, this value.Value, args []value.Value) (value.Value, error) {
		if o := r.Object(this); o != nil && o.Primitive != value.Empty {
			return o.Primitive, nil
		}
		return this, nil
	})
	r.defineNative(r.objectProto, "hasOwnProperty", 1, func(r *Realm, m *jit.Machine, this value.Value, args []value.Value) (value.Value, error) {
		o, err := r.ToObject(this)
		if err != nil {
			return 0, err
		}
		key, err := r.propertyKey(m, argument(args, 0))
		if err != nil {
			return 0, err
		}
		return value.Bool(o.hasOwn(key)), nil
	})

	r.defineNative(r.functionProto, "call", 1, func(r *Realm, m *jit.Machine, this value.Value, args []value.Value) (value.Value, error) {
		var rest []value.Value
		if len(args) > 1 {
			rest = args[1:]
		}
		return r.call(m, this, argument(args, 0), rest)
	})
	r.defineNative(r.functionProto, "apply", 2, func(r *Realm, m *jit.Machine, this value.Value, args []value.Value) (value.Value, error) {
		var rest []value.Value
		if list := r.Object(argument(args, 1)); list != nil {
			n, err := r.get(m, list, "length", list.Value())
			if err != nil {
				return 0, err
			}
			count, err := r.ToNumber(m, n)
			if err != nil {
				return 0, err
			}
			for i := 0; i < int(count); i++ {
				v, err := r.getProperty(m, list.Value(), strconv.Itoa(i))
				if err != nil {
					return 0, err
				}
				rest = append(rest, v)
			}
		}
		return r.call(m, this, argument(args, 0), rest)
	})

	r.defineNative(r.arrayProto, "push", 1, func(r *Realm, m *jit.Machine, this value.Value, args []value.Value) (value.Value, error) {
		a := r.Object(this)
		if a == nil || a.Class != ClassArray {
			return 0, r.typeError("Array.prototype.push called on non-array")
		}
		a.Elements = append(a.Elements, args...)
		return value.Int32(int32(len(a.Elements))), nil
	})
	r.defineNative(r.arrayProto, "pop", 0, func(r *Realm, m *jit.Machine, this value.Value, args []value.Value) (value.Value, error) {
		a := r.Object(this)
		if a == nil || a.Class != ClassArray {
			return 0, r.typeError("Array.prototype.pop called on non-array")
		}
		if len(a.Elements) == 0 {
			return value.Undefined, nil
		}
		v := a.Elements[len(a.Elements)-1]
		a.setLength(len(a.Elements) - 1)
		if v == value.Empty {
			v = value.Undefined
		}
		return v, nil
	})
	r.defineNative(r.arrayProto, "join", 1, func(r *Realm, m *jit.Machine, this value.Value, args []value.Value) (value.Value, error) {
		a := r.Object(this)
		if a == nil || a.Class != ClassArray {
			return 0, r.typeError("Array.prototype.join called on non-array")
		}
		sep := ","
		if len(args) > 0 && !args[0].IsUndefined() {
			s, err := r.ToString(m, args[0])
			if err != nil {
				return 0, err
			}
			sep = s
		}
		s, err := r.join(m, a, sep)
		if err != nil {
			return 0, err
		}
		return r.String(s), nil
	})

	r.errorProto.define("name", &Property{Value: r.String("Error"), Writable: true, Configurable: true})
	r.errorProto.define("message", &Property{Value: r.String(""), Writable: true, Configurable: true})
	r.defineNative(r.errorProto, "toString", 0, func(r *Realm, m *jit.Machine, this value.Value, args []value.Value) (value.Value, error) {
		o := r.Object(this)
		if o == nil {
			return 0, r.typeError("Error.prototype.toString called on non-object")
		}
		name, _ := o.findPropertyString(r, "name")
		msg, _ := o.findPropertyString(r, "message")
		switch {
		case msg == "":
			return r.String(name), nil
		case name == "":
			return r.String(msg), nil
		}
		return r.String(name + ": " + msg), nil
	})
	for _, name := range []string{"Error", "TypeError", "ReferenceError", "RangeError", "EvalError", "SyntaxError"} {
		proto := r.errorProto
		if name != "Error" {
			proto = r.newObject(ClassObject, r.errorProto)
			proto.define("name", &Property{Value: r.String(name), Writable: true, Configurable: true})
		}
		ctor := r.defineNative(g, name, 1, errorConstructor(proto))
		ctor.define("prototype", &Property{Value: proto.Value()})
		proto.define("constructor", &Property{Value: ctor.Value(), Writable: true, Configurable: true})
		r.errorCtors[name] = ctor
	}

	r.defineNative(g, "print", 1, func(r *Realm, m *jit.Machine, this value.Value, args []value.Value) (value.Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			s, err := r.ToString(m, a)
			if err != nil {
				return 0, err
			}
			parts[i] = s
		}
		fmt.Fprintln(r.out, strings.Join(parts, " "))
		return value.Undefined, nil
	})
	r.evalFunction = r.defineNative(g, "eval", 1, func(r *Realm, m *jit.Machine, this value.Value, args []value.Value) (value.Value, error) {
		return r.directEval(args)
	})
	r.defineNative(g, "isNaN", 1, func(r *Realm, m *jit.Machine, this value.Value, args []value.Value) (value.Value, error) {
		n, err := r.ToNumber(m, argument(args, 0))
		return value.Bool(n != n), err
	})
	r.defineNative(g, "String", 1, func(r *Realm, m *jit.Machine, this value.Value, args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return r.String(""), nil
		}
		s, err := r.ToString(m, args[0])
		return r.String(s), err
	})
	r.defineNative(g, "Number", 1, func(r *Realm, m *jit.Machine, this value.Value, args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.Int32(0), nil
		}
		n, err := r.ToNumber(m, args[0])
		return Number(n), err
	})
	r.defineNative(g, "Array", 1, func(r *Realm, m *jit.Machine, this value.Value, args []value.Value) (value.Value, error) {
		if len(args) == 1 && args[0].IsNumber() {
			n := args[0].Number()
			if n < 0 || n != float64(uint32(n)) {
				return 0, r.rangeError("invalid array length")
			}
			return r.NewArray(int(n)).Value(), nil
		}
		a := r.NewArray(0)
		a.Elements = append(a.Elements, args...)
		return a.Value(), nil
	}).define("prototype", &Property{Value: r.arrayProto.Value()})
	r.defineNative(g, "Object", 1, func(r *Realm, m *jit.Machine, this value.Value, args []value.Value) (value.Value, error) {
		v := argument(args, 0)
		if v.IsNullOrUndefined() {
			return r.NewObject().Value(), nil
		}
		o, err := r.ToObject(v)
		if err != nil {
			return 0, err
		}
		return o.Value(), nil
	}).define("prototype", &Property{Value: r.objectProto.Value()})

	g.define("undefined", &Property{Value: value.Undefined})
	g.define("NaN", &Property{Value: value.Double(math.NaN())})
	g.define("Infinity", &Property{Value: value.Double(math.Inf(1))})
	g.define("globalThis", &Property{Value: g.Value(), Writable: true, Configurable: true})
}

func argument(args []value.Value, i int) value.Value {
	if i < len(args) {
		return args[i]
	}
	return value.Undefined
}
