// Package stubs implements the runtime behind compiled code: values that
// live outside registers (strings, objects, environments) and every slow
// path the code generator calls through the stub thunk.
package stubs

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"jsjit/pkg/bytecode"
	"jsjit/pkg/jit"
	"jsjit/pkg/value"
)

// Options configures a Realm. Zero fields take defaults.
type Options struct {
	Out    io.Writer // print output, os.Stdout by default
	Logger *slog.Logger
}

// Realm is a complete script heap. It implements jit.StubHandler and must
// be used with a single Machine.
type Realm struct {
	out io.Writer
	log *slog.Logger

	strings *stringTable
	objects []*Object
	envs    []*Env

	global       *Env
	globalObject *Object

	objectProto   *Object
	functionProto *Object
	arrayProto    *Object
	errorProto    *Object
	errorCtors    map[string]*Object
	evalFunction  *Object
}

var _ jit.StubHandler = (*Realm)(nil)

// NewRealm creates a heap with the built-in objects installed.
func NewRealm(opts Options) *Realm {
	r := &Realm{
		out:        opts.Out,
		log:        opts.Logger,
		strings:    newStringTable(),
		objects:    []*Object{nil}, // Object(0) would be Empty
		errorCtors: make(map[string]*Object),
	}
	if r.out == nil {
		r.out = os.Stdout
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	r.objectProto = r.newObject(ClassObject, nil)
	r.functionProto = r.newObject(ClassObject, r.objectProto)
	r.arrayProto = r.newObject(ClassObject, r.objectProto)
	r.errorProto = r.newObject(ClassObject, r.objectProto)
	r.globalObject = r.newObject(ClassObject, r.objectProto)
	r.global = r.newEnv(envObject, nil)
	r.global.object = r.globalObject
	r.installGlobals()
	return r
}

// GlobalThis is the global object.
func (r *Realm) GlobalThis() value.Value { return r.globalObject.Value() }

// Global reads a global variable, undefined when it does not exist.
func (r *Realm) Global(name string) value.Value {
	if p := r.globalObject.own(name); p != nil && !p.Accessor {
		return p.Value
	}
	return value.Undefined
}

// Prepare boxes the constant table of code.
func (r *Realm) Prepare(m *jit.Machine, code *bytecode.Code) error {
	code.Pool = make([]value.Value, len(code.Constants))
	for i, k := range code.Constants {
		switch k.Kind {
		case bytecode.ConstantNumber:
			code.Pool[i] = Number(k.Number)
		case bytecode.ConstantString:
			code.Pool[i] = r.String(k.Text)
		case bytecode.ConstantUndefined:
			code.Pool[i] = value.Undefined
		case bytecode.ConstantNull:
			code.Pool[i] = value.Null
		case bytecode.ConstantBool:
			code.Pool[i] = value.Bool(k.Number != 0)
		default:
			return fmt.Errorf("constant %d: unknown kind %d", i, k.Kind)
		}
	}
	return nil
}

// Unwind drops the environments pushed inside the protected region.
func (r *Realm) Unwind(m *jit.Machine, frame jit.Frame, h *bytecode.Handler) {
	r.unwindEnv(frame, h.DynamicEnvLevel)
}

// symbol resolves a SymbolRef to its name.
func (r *Realm) symbol(m *jit.Machine, ref uint64) string {
	id, index := jit.SplitRef(ref)
	return m.Code(id).Names[index]
}

// site formats an InstructionPointer for messages.
func (r *Realm) site(m *jit.Machine, ip uint64) string {
	id, offset := jit.SplitRef(ip)
	code := m.Code(id)
	if code == nil {
		return "?"
	}
	return code.Name + "@" + strconv.Itoa(int(offset))
}

func (r *Realm) strict(m *jit.Machine, frame jit.Frame) bool {
	return m.Code(frame.CodeID()).Strict
}

func boolWord(b bool) uint64 { return uint64(value.Bool(b)) }

// Stub dispatches one stub exit.
func (r *Realm) Stub(m *jit.Machine, id jit.StubID, args *[5]uint64) (uint64, uint64, error) {
	arg := func(i int) value.Value { return value.Value(args[i]) }
	frame := jit.Frame(args[0])
	result := func(v value.Value, err error) (uint64, uint64, error) {
		return uint64(v), 0, err
	}
	done := func(err error) (uint64, uint64, error) { return 0, 0, err }

	switch {
	case id >= jit.StubBinaryAdd && id <= jit.StubBinaryBitOr:
		return result(r.Binary(m, id, arg(0), arg(1)))
	case id >= jit.StubUnaryPositive && id <= jit.StubToBoolean:
		return result(r.Unary(m, id, arg(0)))
	}

	switch id {
	case jit.StubConcat:
		return result(r.concat(m, jit.Window(uintptr(args[0]), int(args[1]))))

	case jit.StubLoadFunction:
		codeID, index := jit.SplitRef(args[1])
		code := m.Code(codeID).Codes[index]
		return result(r.newFunction(code, r.env(frame.LexicalEnv())).Value(), nil)
	case jit.StubLoadRegExp:
		return result(r.newRegExp(arg(0), arg(1)))
	case jit.StubLoadArguments:
		return result(r.newArguments(frame).Value(), nil)

	case jit.StubLoadArray:
		return result(r.NewArray(int(args[0])).Value(), nil)
	case jit.StubInitVectorArrayElement:
		a := r.object(arg(0))
		index := int(args[2])
		values := jit.Window(uintptr(args[1]), int(args[3]))
		if need := index + len(values); need > len(a.Elements) {
			a.setLength(need)
		}
		copy(a.Elements[index:], values)
		return done(nil)
	case jit.StubInitSparseArrayElement:
		a := r.object(arg(0))
		index := int(args[1])
		if index >= len(a.Elements) {
			a.setLength(index + 1)
		}
		a.Elements[index] = arg(2)
		return done(nil)
	case jit.StubLoadObject:
		return result(r.NewObject().Value(), nil)
	case jit.StubStoreObjectData, jit.StubStoreObjectGet, jit.StubStoreObjectSet:
		r.storeObject(id, r.object(arg(0)), r.symbol(m, args[1]), arg(2), args[3] != 0)
		return done(nil)

	case jit.StubLoadGlobal:
		return result(r.loadGlobal(m, r.symbol(m, args[0])))
	case jit.StubStoreGlobal, jit.StubStoreGlobalStrict:
		return done(r.storeGlobal(m, r.symbol(m, args[0]), arg(1), id == jit.StubStoreGlobalStrict))
	case jit.StubDeleteGlobal:
		ok, err := r.deleteProperty(r.globalObject.Value(), r.symbol(m, args[0]), false)
		return boolWord(ok), 0, err
	case jit.StubTypeofGlobal:
		name := r.symbol(m, args[0])
		if !r.hasProperty(r.globalObject, name) {
			return result(r.String("undefined"), nil)
		}
		v, err := r.loadGlobal(m, name)
		if err != nil {
			return done(err)
		}
		return result(r.String(r.Typeof(v)), nil)
	case jit.StubIncrementGlobal:
		return result(r.incrementGlobal(m, r.symbol(m, args[0]), args[1]))

	case jit.StubLoadHeap:
		return result(r.loadHeap(frame, r.symbol(m, args[1]), args[2], args[3]))
	case jit.StubStoreHeap:
		return done(r.storeHeap(frame, arg(1), args[2], args[3], r.strict(m, frame)))
	case jit.StubTypeofHeap:
		v, err := r.loadHeap(frame, r.symbol(m, args[1]), args[2], args[3])
		if err != nil {
			return done(err)
		}
		return result(r.String(r.Typeof(v)), nil)
	case jit.StubIncrementHeap:
		return result(r.incrementHeap(m, frame, args[1], args[2], args[3]))

	case jit.StubLoadName:
		return result(r.loadName(m, frame, r.symbol(m, args[1])))
	case jit.StubStoreName, jit.StubStoreNameStrict:
		return done(r.storeName(m, frame, r.symbol(m, args[1]), arg(2), id == jit.StubStoreNameStrict))
	case jit.StubDeleteName:
		ok, err := r.deleteName(frame, r.symbol(m, args[1]))
		return boolWord(ok), 0, err
	case jit.StubTypeofName:
		return result(r.typeofName(m, frame, r.symbol(m, args[1])))
	case jit.StubIncrementName:
		return result(r.incrementName(m, frame, r.symbol(m, args[1]), args[2]))

	case jit.StubLoadProp:
		return result(r.getProperty(m, arg(0), r.symbol(m, args[1])))
	case jit.StubStoreProp, jit.StubStorePropStrict:
		return done(r.putProperty(m, arg(0), r.symbol(m, args[1]), arg(2), id == jit.StubStorePropStrict))
	case jit.StubDeleteProp, jit.StubDeletePropStrict:
		ok, err := r.deleteProperty(arg(0), r.symbol(m, args[1]), id == jit.StubDeletePropStrict)
		return boolWord(ok), 0, err
	case jit.StubIncrementProp:
		return result(r.incrementProperty(m, arg(0), r.symbol(m, args[1]), args[2]))

	case jit.StubLoadElement:
		return result(r.loadElement(m, arg(0), arg(1)))
	case jit.StubStoreElement, jit.StubStoreElementStrict:
		key, err := r.propertyKey(m, arg(1))
		if err != nil {
			return done(err)
		}
		return done(r.putProperty(m, arg(0), key, arg(2), id == jit.StubStoreElementStrict))
	case jit.StubDeleteElement, jit.StubDeleteElementStrict:
		key, err := r.propertyKey(m, arg(1))
		if err != nil {
			return done(err)
		}
		ok, err := r.deleteProperty(arg(0), key, id == jit.StubDeleteElementStrict)
		return boolWord(ok), 0, err
	case jit.StubIncrementElement:
		key, err := r.propertyKey(m, arg(1))
		if err != nil {
			return done(err)
		}
		return result(r.incrementProperty(m, arg(0), key, args[2]))

	case jit.StubRaiseNotCoercible:
		return done(r.typeError("cannot convert %s to object", r.Display(arg(0))))
	case jit.StubRaiseReference:
		return done(r.referenceError("invalid assignment target"))
	case jit.StubRaiseImmutable:
		return done(r.typeError("assignment to constant variable '%s'", r.symbol(m, args[0])))
	case jit.StubThrow:
		return done(&jit.Exception{Value: arg(0), Message: r.Display(arg(0))})
	case jit.StubDebugger:
		r.log.Debug("debugger statement", "code", m.Code(m.Frame().CodeID()).Name)
		return done(nil)

	case jit.StubTryCatchSetup:
		return result(r.tryCatchSetup(m, frame, r.symbol(m, args[1])), nil)
	case jit.StubBuildEnv:
		r.buildEnv(frame, args[1], args[2])
		return done(nil)
	case jit.StubInstantiateDeclarationBinding, jit.StubInstantiateDeclarationBindingConfigurable:
		r.instantiate(frame, r.symbol(m, args[1]), true, id == jit.StubInstantiateDeclarationBindingConfigurable)
		return done(nil)
	case jit.StubInstantiateVariableBinding, jit.StubInstantiateVariableBindingConfigurable:
		r.instantiate(frame, r.symbol(m, args[1]), false, id == jit.StubInstantiateVariableBindingConfigurable)
		return done(nil)
	case jit.StubInitializeHeapImmutable:
		return done(r.initializeHeapImmutable(frame, arg(1), args[2]))
	case jit.StubWithSetup:
		return done(r.withSetup(frame, arg(1)))
	case jit.StubPopEnv:
		r.popEnv(frame)
		return done(nil)

	case jit.StubForInSetup:
		return result(r.forInSetup(arg(0)))
	case jit.StubForInEnumerate:
		return result(r.forInNext(arg(0)), nil)
	case jit.StubForInLeave:
		if it := r.Object(arg(0)); it != nil {
			it.iter = nil
		}
		return done(nil)

	case jit.StubCall, jit.StubConstruct, jit.StubEval:
		return r.callStub(m, id, args)
	case jit.StubPrepareDynamicCall:
		return result(r.prepareDynamicCall(m, frame, r.symbol(m, args[1]), uintptr(args[2])))
	}
	return done(r.internalError("unknown stub %s", id))
}

// loadElement reads base[element], with a direct path for array indices.
func (r *Realm) loadElement(m *jit.Machine, base, element value.Value) (value.Value, error) {
	if base.IsObject() && element.IsInt32() {
		o := r.object(base)
		if i := int(element.Int32()); o.Class == ClassArray && i >= 0 && i < len(o.Elements) && o.Elements[i] != value.Empty {
			return o.Elements[i], nil
		}
	}
	key, err := r.propertyKey(m, element)
	if err != nil {
		return 0, err
	}
	return r.getProperty(m, base, key)
}

func (r *Realm) incrementProperty(m *jit.Machine, base value.Value, key string, mode uint64) (value.Value, error) {
	old, err := r.getProperty(m, base, key)
	if err != nil {
		return 0, err
	}
	store, res, err := r.increment(m, old, mode)
	if err != nil {
		return 0, err
	}
	return res, r.putProperty(m, base, key, store, mode&jit.IncrementStrict != 0)
}

// storeObject defines a literal property. Accessor halves merge with an
// existing accessor when the literal names both.
func (r *Realm) storeObject(id jit.StubID, o *Object, name string, v value.Value, merged bool) {
	if id == jit.StubStoreObjectData {
		o.define(name, dataProperty(v))
		return
	}
	p := o.own(name)
	if p == nil || !p.Accessor || !merged {
		p = &Property{Accessor: true, Enumerable: true, Configurable: true}
	}
	if id == jit.StubStoreObjectGet {
		p.Getter = v
	} else {
		p.Setter = v
	}
	o.define(name, p)
}

func (r *Realm) newArguments(frame jit.Frame) *Object {
	o := r.newObject(ClassArguments, r.objectProto)
	n := frame.Argc()
	for i := 0; i < n; i++ {
		o.define(strconv.Itoa(i), dataProperty(frame.Arg(i)))
	}
	o.define("length", &Property{Value: value.Int32(int32(n)), Writable: true, Configurable: true})
	o.define("callee", &Property{Value: frame.Callee(), Writable: true, Configurable: true})
	return o
}

func (r *Realm) newRegExp(pattern, flags value.Value) (value.Value, error) {
	src, fl := r.StringOf(pattern), r.StringOf(flags)
	seen := make(map[rune]bool)
	for _, f := range fl {
		if !strings.ContainsRune("gim", f) || seen[f] {
			return 0, r.syntaxError("invalid regular expression flags '%s'", fl)
		}
		seen[f] = true
	}
	o := r.newObject(ClassRegExp, r.objectProto)
	ro := func(v value.Value) *Property { return &Property{Value: v} }
	o.define("source", ro(pattern))
	o.define("flags", ro(flags))
	o.define("global", ro(value.Bool(seen['g'])))
	o.define("ignoreCase", ro(value.Bool(seen['i'])))
	o.define("multiline", ro(value.Bool(seen['m'])))
	o.define("lastIndex", &Property{Value: value.Int32(0), Writable: true})
	if src == "" {
		o.own("source").Value = r.String("(?:)")
	}
	return o.Value(), nil
}
