package stubs

import (
	"strconv"

	"jsjit/pkg/jit"
	"jsjit/pkg/value"
)

// Class is the internal kind of an object.
type Class uint8

const (
	ClassObject Class = iota
	ClassArray
	ClassFunction
	ClassArguments
	ClassError
	ClassRegExp
	ClassIterator
)

var classNames = [...]string{"Object", "Array", "Function", "Arguments", "Error", "RegExp", "Iterator"}

func (c Class) String() string { return classNames[c] }

// Property is an own property. Accessor properties keep Getter and Setter,
// Empty when a half is missing.
type Property struct {
	Value        value.Value
	Getter       value.Value
	Setter       value.Value
	Accessor     bool
	Writable     bool
	Enumerable   bool
	Configurable bool
}

func dataProperty(v value.Value) *Property {
	return &Property{Value: v, Writable: true, Enumerable: true, Configurable: true}
}

// Object is a heap object. Arrays keep their indexed elements in Elements,
// with Empty marking holes.
type Object struct {
	Class     Class
	Proto     *Object
	Primitive value.Value
	Function  *Function
	Elements  []value.Value

	handle uint32
	props  map[string]*Property
	keys   []string
	iter   *forInState
}

// Value returns the boxed reference to o.
func (o *Object) Value() value.Value { return value.Object(o.handle) }

func (o *Object) own(key string) *Property {
	return o.props[key]
}

func (o *Object) hasOwn(key string) bool {
	if o.Class == ClassArray {
		if key == "length" {
			return true
		}
		if i, ok := arrayIndex(key); ok && i < len(o.Elements) && o.Elements[i] != value.Empty {
			return true
		}
	}
	return o.own(key) != nil
}

func (o *Object) define(key string, p *Property) {
	if o.props == nil {
		o.props = make(map[string]*Property)
	}
	if _, ok := o.props[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.props[key] = p
}

func (o *Object) remove(key string) {
	if _, ok := o.props[key]; !ok {
		return
	}
	delete(o.props, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// ownKeys lists element indices in ascending order, then named keys in
// insertion order.
func (o *Object) ownKeys() []string {
	var keys []string
	for i, v := range o.Elements {
		if v != value.Empty {
			keys = append(keys, strconv.Itoa(i))
		}
	}
	return append(keys, o.keys...)
}

// arrayIndex parses a canonical array index.
func arrayIndex(key string) (int, bool) {
	if key == "" || len(key) > 10 || (key[0] == '0' && len(key) > 1) {
		return 0, false
	}
	n, err := strconv.ParseUint(key, 10, 32)
	if err != nil || n == 1<<32-1 {
		return 0, false
	}
	return int(n), true
}

// maxDenseGrowth bounds how far past the end an indexed store extends the
// element vector; stores further out become named properties.
const maxDenseGrowth = 1 << 16

func (r *Realm) newObject(class Class, proto *Object) *Object {
	o := &Object{Class: class, Proto: proto, handle: uint32(len(r.objects))}
	r.objects = append(r.objects, o)
	return o
}

// NewObject creates a plain object inheriting from Object.prototype.
func (r *Realm) NewObject() *Object { return r.newObject(ClassObject, r.objectProto) }

// NewArray creates an array of length n filled with holes.
func (r *Realm) NewArray(n int) *Object {
	a := r.newObject(ClassArray, r.arrayProto)
	a.Elements = make([]value.Value, n)
	return a
}

func (r *Realm) object(v value.Value) *Object { return r.objects[v.Handle()] }

// Object returns the object v refers to, or nil.
func (r *Realm) Object(v value.Value) *Object {
	if !v.IsObject() {
		return nil
	}
	return r.object(v)
}

// findProperty looks key up along the prototype chain. Elements are
// reported through the returned value with a nil property.
func (o *Object) findProperty(key string) (*Object, *Property, value.Value, bool) {
	for cur := o; cur != nil; cur = cur.Proto {
		if cur.Class == ClassArray {
			if key == "length" {
				return cur, nil, value.Float64(float64(len(cur.Elements))), true
			}
			if i, ok := arrayIndex(key); ok && i < len(cur.Elements) && cur.Elements[i] != value.Empty {
				return cur, nil, cur.Elements[i], true
			}
		}
		if p := cur.own(key); p != nil {
			return cur, p, p.Value, true
		}
	}
	return nil, nil, value.Undefined, false
}

func (r *Realm) hasProperty(o *Object, key string) bool {
	_, _, _, ok := o.findProperty(key)
	return ok
}

// getProperty implements base[key] for any base value.
func (r *Realm) getProperty(m *jit.Machine, base value.Value, key string) (value.Value, error) {
	switch {
	case base.IsObject():
		return r.get(m, r.object(base), key, base)
	case base.IsString():
		s := r.StringOf(base)
		if key == "length" {
			return value.Int32(int32(utf16Length(s))), nil
		}
		if i, ok := arrayIndex(key); ok {
			if ch, ok := utf16At(s, i); ok {
				return r.String(ch), nil
			}
		}
		return r.get(m, r.objectProto, key, base)
	case base.IsNullOrUndefined(), base.IsEmpty():
		return 0, r.typeError("cannot read property '%s' of %s", key, r.Display(base))
	}
	return r.get(m, r.objectProto, key, base)
}

func (r *Realm) get(m *jit.Machine, o *Object, key string, receiver value.Value) (value.Value, error) {
	_, p, v, ok := o.findProperty(key)
	if !ok {
		return value.Undefined, nil
	}
	if p != nil && p.Accessor {
		if p.Getter == value.Empty {
			return value.Undefined, nil
		}
		return r.call(m, p.Getter, receiver, nil)
	}
	return v, nil
}

// putProperty implements base[key] = v.
func (r *Realm) putProperty(m *jit.Machine, base value.Value, key string, v value.Value, strict bool) error {
	if base.IsNullOrUndefined() || base.IsEmpty() {
		return r.typeError("cannot set property '%s' of %s", key, r.Display(base))
	}
	if !base.IsObject() {
		// Primitives have no own properties to write.
		if strict {
			return r.typeError("cannot create property '%s' on %s", key, r.Typeof(base))
		}
		return nil
	}
	o := r.object(base)
	if o.Class == ClassArray {
		if key == "length" {
			n, err := r.ToNumber(m, v)
			if err != nil {
				return err
			}
			if n != float64(uint32(n)) {
				return r.rangeError("invalid array length")
			}
			o.setLength(int(n))
			return nil
		}
		if i, ok := arrayIndex(key); ok && i < len(o.Elements)+maxDenseGrowth {
			if i >= len(o.Elements) {
				o.setLength(i + 1)
			}
			o.Elements[i] = v
			return nil
		}
	}
	owner, p, _, found := o.findProperty(key)
	if found && p != nil {
		if p.Accessor {
			if p.Setter == value.Empty {
				if strict {
					return r.typeError("cannot set property '%s' which has only a getter", key)
				}
				return nil
			}
			_, err := r.call(m, p.Setter, base, []value.Value{v})
			return err
		}
		if !p.Writable {
			if strict {
				return r.typeError("cannot assign to read only property '%s'", key)
			}
			return nil
		}
		if owner == o {
			p.Value = v
			return nil
		}
	}
	o.define(key, dataProperty(v))
	return nil
}

func (o *Object) setLength(n int) {
	if n <= len(o.Elements) {
		clear(o.Elements[n:])
		o.Elements = o.Elements[:n]
		return
	}
	o.Elements = append(o.Elements, make([]value.Value, n-len(o.Elements))...)
}

// deleteProperty implements delete base[key].
func (r *Realm) deleteProperty(base value.Value, key string, strict bool) (bool, error) {
	if base.IsNullOrUndefined() || base.IsEmpty() {
		return false, r.typeError("cannot convert %s to object", r.Display(base))
	}
	if !base.IsObject() {
		return true, nil
	}
	o := r.object(base)
	if o.Class == ClassArray {
		if key == "length" {
			if strict {
				return false, r.typeError("cannot delete property 'length' of array")
			}
			return false, nil
		}
		if i, ok := arrayIndex(key); ok && i < len(o.Elements) {
			o.Elements[i] = value.Empty
			return true, nil
		}
	}
	p := o.own(key)
	if p == nil {
		return true, nil
	}
	if !p.Configurable {
		if strict {
			return false, r.typeError("cannot delete property '%s'", key)
		}
		return false, nil
	}
	o.remove(key)
	return true, nil
}

// propertyKey converts an element operand to a property key.
func (r *Realm) propertyKey(m *jit.Machine, v value.Value) (string, error) {
	if v.IsInt32() {
		return strconv.Itoa(int(v.Int32())), nil
	}
	return r.ToString(m, v)
}

// ToObject wraps primitives; null and undefined throw.
func (r *Realm) ToObject(v value.Value) (*Object, error) {
	switch {
	case v.IsObject():
		return r.object(v), nil
	case v.IsNullOrUndefined(), v.IsEmpty():
		return nil, r.typeError("cannot convert %s to object", r.Display(v))
	}
	o := r.NewObject()
	o.Primitive = v
	if v.IsString() {
		for i, ch := range []rune(r.StringOf(v)) {
			o.define(strconv.Itoa(i), &Property{Value: r.String(string(ch)), Enumerable: true})
		}
	}
	return o, nil
}

// defaultString is the string form of an object with no callable
// toString/valueOf.
func (r *Realm) defaultString(m *jit.Machine, o *Object) string {
	switch o.Class {
	case ClassArray:
		s, err := r.join(m, o, ",")
		if err == nil {
			return s
		}
	case ClassFunction:
		return "function " + o.Function.Name + "() { [native code] }"
	case ClassError:
		name, _ := o.findPropertyString(r, "name")
		msg, _ := o.findPropertyString(r, "message")
		if msg == "" {
			return name
		}
		return name + ": " + msg
	case ClassRegExp:
		src, _ := o.findPropertyString(r, "source")
		flags, _ := o.findPropertyString(r, "flags")
		return "/" + src + "/" + flags
	}
	if o.Primitive != value.Empty {
		return r.Display(o.Primitive)
	}
	return "[object " + o.Class.String() + "]"
}

func (o *Object) findPropertyString(r *Realm, key string) (string, bool) {
	_, p, v, ok := o.findProperty(key)
	if !ok || (p != nil && p.Accessor) || !v.IsString() {
		return "", false
	}
	return r.StringOf(v), true
}

func (r *Realm) join(m *jit.Machine, o *Object, sep string) (string, error) {
	out := make([]byte, 0, 8*len(o.Elements))
	for i, v := range o.Elements {
		if i > 0 {
			out = append(out, sep...)
		}
		if v == value.Empty || v.IsNullOrUndefined() {
			continue
		}
		s, err := r.ToString(m, v)
		if err != nil {
			return "", err
		}
		out = append(out, s...)
	}
	return string(out), nil
}

// forInState is the iterator behind FORIN_SETUP / FORIN_ENUMERATE.
type forInState struct {
	target *Object
	keys   []string
	pos    int
}

// enumerableKeys snapshots the enumerable keys of o and its prototypes,
// shadowed keys reported once.
func enumerableKeys(o *Object) []string {
	seen := make(map[string]bool)
	var keys []string
	for cur := o; cur != nil; cur = cur.Proto {
		for _, k := range cur.ownKeys() {
			if seen[k] {
				continue
			}
			seen[k] = true
			if p := cur.own(k); p != nil && !p.Enumerable {
				continue
			}
			keys = append(keys, k)
		}
	}
	return keys
}

func (r *Realm) forInSetup(v value.Value) (value.Value, error) {
	o, err := r.ToObject(v)
	if err != nil {
		return 0, err
	}
	it := r.newObject(ClassIterator, nil)
	it.iter = &forInState{target: o, keys: enumerableKeys(o)}
	return it.Value(), nil
}

// forInNext returns the next key still present on the target, or Empty.
func (r *Realm) forInNext(v value.Value) value.Value {
	it := r.object(v).iter
	for it.pos < len(it.keys) {
		k := it.keys[it.pos]
		it.pos++
		if r.hasProperty(it.target, k) {
			return r.String(k)
		}
	}
	return value.Empty
}
