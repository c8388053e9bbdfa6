package optimizing

import (
	"fmt"
	"strings"
)

// Opcode represents an Instruction kind.
type Opcode uint32

const (
	OpcodeInvalid Opcode = iota

	// OpcodeParameter is the u64-th argument of the method: `v = Parameter`.
	OpcodeParameter

	// OpcodeIntConstant is an integer constant: `v = IntConstant imm`.
	OpcodeIntConstant

	// OpcodeAdd performs an integer addition: `v = Add x, y`.
	OpcodeAdd

	// OpcodeSub performs an integer subtraction: `v = Sub x, y`.
	OpcodeSub

	// OpcodeMul performs an integer multiplication: `v = Mul x, y`.
	OpcodeMul

	// OpcodeAnd performs a bitwise and: `v = And x, y`.
	OpcodeAnd

	// OpcodeOr performs a bitwise or: `v = Or x, y`.
	OpcodeOr

	// OpcodeXor performs a bitwise xor: `v = Xor x, y`.
	OpcodeXor

	// OpcodeFieldGet loads the instance field at offset u64: `v = FieldGet obj`.
	OpcodeFieldGet

	// OpcodeFieldSet stores to the instance field at offset u64: `FieldSet obj, value`.
	OpcodeFieldSet

	// OpcodeArrayGet loads an array element: `v = ArrayGet array, index`.
	OpcodeArrayGet

	// OpcodeArraySet stores an array element: `ArraySet array, index, value`.
	OpcodeArraySet

	// OpcodeArrayLength loads the length of an array: `v = ArrayLength array`.
	OpcodeArrayLength

	// OpcodeClinitCheck makes sure a class is initialized: `v = ClinitCheck class`.
	OpcodeClinitCheck

	// OpcodeNewInstance allocates an object: `v = NewInstance class`.
	OpcodeNewInstance

	// OpcodeInvoke calls a method: `v = Invoke args...`.
	OpcodeInvoke

	// OpcodeSuspendCheck polls for a pending suspension request.
	OpcodeSuspendCheck

	// OpcodeGoto jumps to the only successor.
	OpcodeGoto

	// OpcodeIf branches to the first successor if cond is non-zero, to the second otherwise: `If cond`.
	OpcodeIf

	// OpcodeReturn returns a value: `Return v`.
	OpcodeReturn

	// OpcodeReturnVoid returns without a value.
	OpcodeReturnVoid

	// OpcodeExit terminates the exit block.
	OpcodeExit

	// opcodeEnd marks the end of the opcode list.
	opcodeEnd
)

type opcodeInfo struct {
	name        string
	movable     bool
	commutative bool
	controlFlow bool
}

var opcodeInfos = [opcodeEnd]opcodeInfo{
	OpcodeParameter:    {name: "Parameter"},
	OpcodeIntConstant:  {name: "IntConstant", movable: true},
	OpcodeAdd:          {name: "Add", movable: true, commutative: true},
	OpcodeSub:          {name: "Sub", movable: true},
	OpcodeMul:          {name: "Mul", movable: true, commutative: true},
	OpcodeAnd:          {name: "And", movable: true, commutative: true},
	OpcodeOr:           {name: "Or", movable: true, commutative: true},
	OpcodeXor:          {name: "Xor", movable: true, commutative: true},
	OpcodeFieldGet:     {name: "FieldGet", movable: true},
	OpcodeFieldSet:     {name: "FieldSet"},
	OpcodeArrayGet:     {name: "ArrayGet", movable: true},
	OpcodeArraySet:     {name: "ArraySet"},
	OpcodeArrayLength:  {name: "ArrayLength", movable: true},
	OpcodeClinitCheck:  {name: "ClinitCheck", movable: true},
	OpcodeNewInstance:  {name: "NewInstance"},
	OpcodeInvoke:       {name: "Invoke"},
	OpcodeSuspendCheck: {name: "SuspendCheck"},
	OpcodeGoto:         {name: "Goto", controlFlow: true},
	OpcodeIf:           {name: "If", controlFlow: true},
	OpcodeReturn:       {name: "Return", controlFlow: true},
	OpcodeReturnVoid:   {name: "ReturnVoid", controlFlow: true},
	OpcodeExit:         {name: "Exit", controlFlow: true},
}

func (o Opcode) info() *opcodeInfo {
	if o >= opcodeEnd || opcodeInfos[o].name == "" {
		panic(fmt.Sprintf("BUG: opcode %d is not registered", o))
	}
	return &opcodeInfos[o]
}

// String implements fmt.Stringer.
func (o Opcode) String() string {
	if o >= opcodeEnd || opcodeInfos[o].name == "" {
		return fmt.Sprintf("Opcode(%d)", o)
	}
	return opcodeInfos[o].name
}

// Instruction represents an instruction whose opcode is specified by
// Opcode. Since Go doesn't have union type, we use this flattened type
// for all instructions, and therefore each field has different meaning
// depending on Opcode.
type Instruction struct {
	id       int
	opcode   Opcode
	typ      Type
	u64      uint64
	volatile bool

	inputs    []*Instruction
	inputsBuf [3]*Instruction
	uses      []instructionUse

	sideEffects SideEffects
	block       *BasicBlock
	prev, next  *Instruction
}

// instructionUse is the index-th input of user.
type instructionUse struct {
	user  *Instruction
	index int
}

// ID returns the id of this instruction, unique within its Graph.
func (i *Instruction) ID() int { return i.id }

// Opcode returns the opcode of this instruction.
func (i *Instruction) Opcode() Opcode { return i.opcode }

// Type returns the type of the value this instruction produces.
func (i *Instruction) Type() Type { return i.typ }

// Block returns the block this instruction is in, or nil if it is not in a block.
func (i *Instruction) Block() *BasicBlock { return i.block }

// Next returns the next instruction in the block.
func (i *Instruction) Next() *Instruction { return i.next }

// Prev returns the previous instruction in the block.
func (i *Instruction) Prev() *Instruction { return i.prev }

// Inputs returns the inputs of this instruction. The returned slice must not be modified.
func (i *Instruction) Inputs() []*Instruction { return i.inputs }

// InputAt returns the index-th input.
func (i *Instruction) InputAt(index int) *Instruction { return i.inputs[index] }

// HasUses returns true if any instruction in a block uses this one.
func (i *Instruction) HasUses() bool { return len(i.uses) > 0 }

// Users returns the instructions using this one, once per use.
func (i *Instruction) Users() []*Instruction {
	ret := make([]*Instruction, len(i.uses))
	for k := range i.uses {
		ret[k] = i.uses[k].user
	}
	return ret
}

// SideEffects returns what this instruction changes and depends on.
func (i *Instruction) SideEffects() SideEffects { return i.sideEffects }

// FieldOffset returns the field offset of FieldGet and FieldSet.
func (i *Instruction) FieldOffset() uint32 { return uint32(i.u64) }

// ConstantValue returns the value of IntConstant.
func (i *Instruction) ConstantValue() int64 { return int64(i.u64) }

// IsVolatile returns true for volatile field accesses.
func (i *Instruction) IsVolatile() bool { return i.volatile }

// CanBeMoved returns true if this instruction may be eliminated in favour of an
// equal instruction that dominates it.
func (i *Instruction) CanBeMoved() bool {
	if i.volatile {
		return false
	}
	return i.opcode.info().movable
}

// IsCommutative returns true for binary operations whose inputs can be swapped.
func (i *Instruction) IsCommutative() bool { return i.opcode.info().commutative }

// IsControlFlow returns true if this instruction must end a block.
func (i *Instruction) IsControlFlow() bool { return i.opcode.info().controlFlow }

// IsConstant returns true for constants.
func (i *Instruction) IsConstant() bool { return i.opcode == OpcodeIntConstant }

func (i *Instruction) setInputs(inputs ...*Instruction) {
	for _, in := range inputs {
		if in == nil {
			panic(fmt.Sprintf("BUG: nil input for %s", i.opcode))
		}
	}
	i.inputs = append(i.inputsBuf[:0], inputs...)
}

func (i *Instruction) init(op Opcode, typ Type) *Instruction {
	if i.block != nil {
		panic("BUG: re-initializing an instruction already in a block")
	}
	i.opcode = op
	i.typ = typ
	i.sideEffects = SideEffectsNone()
	return i
}

// AsParameter initializes this instruction as the index-th parameter.
func (i *Instruction) AsParameter(index int, typ Type) *Instruction {
	i.init(OpcodeParameter, typ)
	i.u64 = uint64(index)
	return i
}

// AsIntConstant initializes this instruction as an integer constant.
func (i *Instruction) AsIntConstant(typ Type, v int64) *Instruction {
	i.init(OpcodeIntConstant, typ)
	i.u64 = uint64(v)
	return i
}

// AsAdd initializes this instruction as an integer addition.
func (i *Instruction) AsAdd(typ Type, x, y *Instruction) *Instruction {
	return i.asBinary(OpcodeAdd, typ, x, y)
}

// AsSub initializes this instruction as an integer subtraction.
func (i *Instruction) AsSub(typ Type, x, y *Instruction) *Instruction {
	return i.asBinary(OpcodeSub, typ, x, y)
}

// AsMul initializes this instruction as an integer multiplication.
func (i *Instruction) AsMul(typ Type, x, y *Instruction) *Instruction {
	return i.asBinary(OpcodeMul, typ, x, y)
}

// AsAnd initializes this instruction as a bitwise and.
func (i *Instruction) AsAnd(typ Type, x, y *Instruction) *Instruction {
	return i.asBinary(OpcodeAnd, typ, x, y)
}

// AsOr initializes this instruction as a bitwise or.
func (i *Instruction) AsOr(typ Type, x, y *Instruction) *Instruction {
	return i.asBinary(OpcodeOr, typ, x, y)
}

// AsXor initializes this instruction as a bitwise xor.
func (i *Instruction) AsXor(typ Type, x, y *Instruction) *Instruction {
	return i.asBinary(OpcodeXor, typ, x, y)
}

func (i *Instruction) asBinary(op Opcode, typ Type, x, y *Instruction) *Instruction {
	i.init(op, typ)
	i.setInputs(x, y)
	return i
}

// AsFieldGet initializes this instruction as a load of the field at offset in obj.
func (i *Instruction) AsFieldGet(obj *Instruction, typ Type, offset uint32, volatile bool) *Instruction {
	i.init(OpcodeFieldGet, typ)
	i.u64 = uint64(offset)
	i.volatile = volatile
	i.sideEffects = SideEffectsFieldReadOfType(typ, volatile)
	i.setInputs(obj)
	return i
}

// AsFieldSet initializes this instruction as a store of value to the field at offset in obj.
func (i *Instruction) AsFieldSet(obj, value *Instruction, typ Type, offset uint32, volatile bool) *Instruction {
	i.init(OpcodeFieldSet, TypeVoid)
	i.u64 = uint64(offset)
	i.volatile = volatile
	i.sideEffects = SideEffectsFieldWriteOfType(typ, volatile)
	i.setInputs(obj, value)
	return i
}

// AsArrayGet initializes this instruction as a load of array[index].
func (i *Instruction) AsArrayGet(array, index *Instruction, typ Type) *Instruction {
	i.init(OpcodeArrayGet, typ)
	i.sideEffects = SideEffectsArrayReadOfType(typ)
	i.setInputs(array, index)
	return i
}

// AsArraySet initializes this instruction as a store of value to array[index].
// Storing a reference needs a type check that may call into the runtime.
func (i *Instruction) AsArraySet(array, index, value *Instruction, typ Type) *Instruction {
	i.init(OpcodeArraySet, TypeVoid)
	i.sideEffects = SideEffectsArrayWriteOfType(typ)
	if typ == TypeReference {
		i.sideEffects.Add(SideEffectsCanTriggerGC())
	}
	i.setInputs(array, index, value)
	return i
}

// AsArrayLength initializes this instruction as the length of array.
func (i *Instruction) AsArrayLength(array *Instruction) *Instruction {
	i.init(OpcodeArrayLength, TypeInt32)
	i.setInputs(array)
	return i
}

// AsClinitCheck initializes this instruction as an initialization check of class.
func (i *Instruction) AsClinitCheck(class *Instruction) *Instruction {
	i.init(OpcodeClinitCheck, TypeReference)
	i.sideEffects = SideEffectsCanTriggerGC()
	i.setInputs(class)
	return i
}

// AsNewInstance initializes this instruction as an allocation of class.
func (i *Instruction) AsNewInstance(class *Instruction) *Instruction {
	i.init(OpcodeNewInstance, TypeReference)
	i.sideEffects = SideEffectsCanTriggerGC()
	i.setInputs(class)
	return i
}

// AsInvoke initializes this instruction as a call returning typ.
func (i *Instruction) AsInvoke(typ Type, args ...*Instruction) *Instruction {
	i.init(OpcodeInvoke, typ)
	i.sideEffects = SideEffectsAll()
	i.setInputs(args...)
	return i
}

// AsSuspendCheck initializes this instruction as a suspend check.
func (i *Instruction) AsSuspendCheck() *Instruction {
	i.init(OpcodeSuspendCheck, TypeVoid)
	i.sideEffects = SideEffectsCanTriggerGC()
	return i
}

// AsGoto initializes this instruction as an unconditional jump.
func (i *Instruction) AsGoto() *Instruction {
	return i.init(OpcodeGoto, TypeVoid)
}

// AsIf initializes this instruction as a conditional branch on cond.
func (i *Instruction) AsIf(cond *Instruction) *Instruction {
	i.init(OpcodeIf, TypeVoid)
	i.setInputs(cond)
	return i
}

// AsReturn initializes this instruction as a return of v.
func (i *Instruction) AsReturn(v *Instruction) *Instruction {
	i.init(OpcodeReturn, TypeVoid)
	i.setInputs(v)
	return i
}

// AsReturnVoid initializes this instruction as a return without a value.
func (i *Instruction) AsReturnVoid() *Instruction {
	return i.init(OpcodeReturnVoid, TypeVoid)
}

// AsExit initializes this instruction as the terminator of the exit block.
func (i *Instruction) AsExit() *Instruction {
	return i.init(OpcodeExit, TypeVoid)
}

// HashCode returns a hash of the opcode, the inputs and the data of this
// instruction. Equal instructions have equal hash codes.
func (i *Instruction) HashCode() uint64 {
	switch i.opcode {
	case OpcodeIntConstant:
		return i.u64
	case OpcodeFieldGet, OpcodeFieldSet:
		return i.baseHashCode()<<7 | i.u64
	default:
		return i.baseHashCode()
	}
}

func (i *Instruction) baseHashCode() uint64 {
	ret := uint64(i.opcode)
	for _, in := range i.inputs {
		ret = ret*31 + uint64(in.id)
	}
	return ret
}

// Equals returns true if other computes the same value as i: the same opcode,
// type and data over the same inputs.
func (i *Instruction) Equals(other *Instruction) bool {
	if i.opcode != other.opcode || i.typ != other.typ || !i.dataEquals(other) {
		return false
	}
	if len(i.inputs) != len(other.inputs) {
		return false
	}
	for k, in := range i.inputs {
		if in != other.inputs[k] {
			return false
		}
	}
	return true
}

func (i *Instruction) dataEquals(other *Instruction) bool {
	switch i.opcode {
	case OpcodeIntConstant:
		return i.u64 == other.u64
	case OpcodeFieldGet:
		return i.u64 == other.u64 && i.volatile == other.volatile
	case OpcodeAdd, OpcodeSub, OpcodeMul, OpcodeAnd, OpcodeOr, OpcodeXor,
		OpcodeArrayGet, OpcodeArrayLength, OpcodeClinitCheck:
		return true
	default:
		// Everything else produces a new value each time.
		return false
	}
}

// OrderInputs puts the inputs of a commutative operation in a canonical order
// so that `x op y` and `y op x` are Equals: a constant goes to the right,
// otherwise the input with the lower id goes first.
func (i *Instruction) OrderInputs() {
	if !i.IsCommutative() {
		panic(fmt.Sprintf("BUG: OrderInputs on non-commutative %s", i.opcode))
	}
	left, right := i.inputs[0], i.inputs[1]
	if left == right || (!left.IsConstant() && right.IsConstant()) {
		return
	}
	if (left.IsConstant() && !right.IsConstant()) || left.id > right.id {
		i.ReplaceInput(right, 0)
		i.ReplaceInput(left, 1)
	}
}

// ReplaceInput sets the index-th input to replacement, keeping use lists up to date.
func (i *Instruction) ReplaceInput(replacement *Instruction, index int) {
	old := i.inputs[index]
	if old == replacement {
		return
	}
	i.inputs[index] = replacement
	if i.block == nil {
		return
	}
	old.removeUse(i, index)
	replacement.uses = append(replacement.uses, instructionUse{user: i, index: index})
}

// ReplaceWith makes every user of i use other instead.
func (i *Instruction) ReplaceWith(other *Instruction) {
	if other == i {
		return
	}
	for _, u := range i.uses {
		u.user.inputs[u.index] = other
		other.uses = append(other.uses, u)
	}
	i.uses = i.uses[:0]
}

func (i *Instruction) removeUse(user *Instruction, index int) {
	for k := range i.uses {
		if u := i.uses[k]; u.user == user && u.index == index {
			i.uses = append(i.uses[:k], i.uses[k+1:]...)
			return
		}
	}
	panic(fmt.Sprintf("BUG: %s is not an input of %s", i.name(), user.name()))
}

func (i *Instruction) name() string {
	return fmt.Sprintf("v%d", i.id)
}

// Format returns a string representation of this instruction.
func (i *Instruction) Format() string {
	var b strings.Builder
	if i.typ != TypeVoid {
		fmt.Fprintf(&b, "%s:%s = ", i.name(), i.typ)
	}
	b.WriteString(i.opcode.String())
	switch i.opcode {
	case OpcodeParameter:
		fmt.Fprintf(&b, " #%d", i.u64)
		return b.String()
	case OpcodeIntConstant:
		fmt.Fprintf(&b, " %d", int64(i.u64))
		return b.String()
	}
	for k, in := range i.inputs {
		if k == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteString(", ")
		}
		b.WriteString(in.name())
	}
	switch i.opcode {
	case OpcodeFieldGet, OpcodeFieldSet:
		fmt.Fprintf(&b, ", +%d", i.u64)
		if i.volatile {
			b.WriteString(" volatile")
		}
	}
	return b.String()
}

// String implements fmt.Stringer.
func (i *Instruction) String() string { return i.Format() }
