package jnicompiler

import (
	"fmt"
	"runtime/debug"

	"golang.org/x/xerrors"

	"github.com/artquick/quick/internal/dwarf"
	"github.com/artquick/quick/internal/isa"
	"github.com/artquick/quick/internal/jni"
	jni_arm "github.com/artquick/quick/internal/jni/arm"
	jni_arm64 "github.com/artquick/quick/internal/jni/arm64"
	jni_x86 "github.com/artquick/quick/internal/jni/x86"
	jni_x86_64 "github.com/artquick/quick/internal/jni/x86_64"
	"github.com/artquick/quick/internal/quickapi"
)

// AccessFlags are the access flags of a method, with the dex encoding.
type AccessFlags uint32

const (
	AccStatic       AccessFlags = 0x0008
	AccSynchronized AccessFlags = 0x0020
	AccNative       AccessFlags = 0x0100
	// AccFastNative marks a @FastNative method, which stays runnable during the call.
	AccFastNative AccessFlags = 0x00080000
	// AccCriticalNative marks a @CriticalNative method, which gets neither a JNIEnv
	// nor a handle scope and cannot take or return references.
	AccCriticalNative AccessFlags = 0x00200000
)

// CompiledMethod is the stub of a native method.
type CompiledMethod struct {
	ISA           isa.InstructionSet
	Code          []byte
	FrameSize     int
	CoreSpillMask uint32
	FpSpillMask   uint32
	// CFI holds the DW_CFA opcodes describing the frame of the stub. It is empty when
	// call frame information is disabled.
	CFI []byte
	// Listing is the Go assembler text of Code, only set when enabled in Options.
	Listing []byte
}

func validateMethod(flags AccessFlags, shorty string) error {
	if flags&AccNative == 0 {
		return fmt.Errorf("method is not native")
	}
	if err := jni.ValidateShorty(shorty); err != nil {
		return err
	}
	if flags&AccCriticalNative == 0 {
		return nil
	}
	switch {
	case flags&AccFastNative != 0:
		return fmt.Errorf("method cannot be both @CriticalNative and @FastNative")
	case flags&AccStatic == 0:
		return fmt.Errorf("@CriticalNative method cannot be virtual")
	case flags&AccSynchronized != 0:
		return fmt.Errorf("@CriticalNative method cannot be synchronized")
	}
	for i := 0; i < len(shorty); i++ {
		if shorty[i] == 'L' {
			return fmt.Errorf("@CriticalNative method cannot take or return references: %q", shorty)
		}
	}
	return nil
}

// endShorty is the shorty of the JniMethodEnd entrypoint matching a method. It takes
// the local reference cookie, and the returned reference and the locked object when
// present.
func endShorty(referenceReturn, isSynchronized bool) string {
	switch {
	case referenceReturn && isSynchronized:
		return "ILL"
	case referenceReturn:
		return "IL"
	case isSynchronized:
		return "VL"
	default:
		return "V"
	}
}

// Compile generates the stub bridging managed code of set to the native method with
// the given access flags and shorty. opts may be nil.
func Compile(set isa.InstructionSet, flags AccessFlags, shorty string, opts *Options) (ret *CompiledMethod, err error) {
	if opts == nil {
		opts = NewOptions()
	}
	if _, err = kindOf(set); err != nil {
		return nil, err
	}
	if err = validateMethod(flags, shorty); err != nil {
		return nil, xerrors.Errorf("compiling JNI stub: %w", err)
	}

	defer func() {
		if v := recover(); v != nil {
			if quickapi.JNILoggingEnabled {
				debug.PrintStack()
			}
			if e, ok := v.(error); ok {
				err = xerrors.Errorf("compiling JNI stub for %q on %s: %w", shorty, set, e)
			} else {
				err = xerrors.Errorf("compiling JNI stub for %q on %s: %v", shorty, set, v)
			}
			ret = nil
		}
	}()

	isStatic := flags&AccStatic != 0
	isSynchronized := flags&AccSynchronized != 0
	isFastNative := flags&AccFastNative != 0
	isCriticalNative := flags&AccCriticalNative != 0
	if quickapi.JNILoggingEnabled {
		fmt.Printf("JniCompile: %s %q access_flags=%#x\n", set, shorty, uint32(flags))
	}

	mr, err := NewManagedRuntimeCallingConvention(set, isStatic, isSynchronized, shorty)
	if err != nil {
		return nil, err
	}
	mainConv, err := NewJniCallingConvention(set, isStatic, isSynchronized, isFastNative, isCriticalNative, shorty)
	if err != nil {
		return nil, err
	}
	endConv, err := NewJniCallingConvention(set, isStatic, isSynchronized, isFastNative, isCriticalNative,
		endShorty(mainConv.IsReturnAReference(), isSynchronized))
	if err != nil {
		return nil, err
	}

	ptr := isa.PointerSizeOf(set)
	m, err := NewMacroAssembler(set, opts.features, ptr, opts.cfg)
	if err != nil {
		return nil, err
	}
	m.CFI().SetEnabled(opts.cfi)

	g := stubGenerator{
		mr:               mr,
		main:             mainConv,
		end:              endConv,
		offsets:          quickapi.ThreadOffsets(ptr),
		ptr:              ptr,
		isStatic:         isStatic,
		isSynchronized:   isSynchronized,
		isFastNative:     isFastNative,
		isCriticalNative: isCriticalNative,
		readBarrier:      opts.cfg.ReadBarrier(),
	}
	switch m.Kind {
	case KindArm:
		err = generate[*jni_arm.Label](&g, m.Arm)
	case KindArm64:
		err = generate[*jni_arm64.Label](&g, m.Arm64)
	case KindX86:
		err = generate[*jni_x86.Label](&g, m.X86)
	case KindX86_64:
		err = generate[*jni_x86_64.Label](&g, m.X86_64)
	}
	if err != nil {
		return nil, err
	}

	ret = &CompiledMethod{
		ISA:           set,
		Code:          m.Code(),
		FrameSize:     mainConv.FrameSize(),
		CoreSpillMask: mainConv.CoreSpillMask(),
		FpSpillMask:   mainConv.FpSpillMask(),
		CFI:           append([]byte(nil), m.CFI().Data()...),
	}
	if opts.listing || quickapi.PrintJNIStubListing {
		ret.Listing, err = listing(m, shorty)
		if err != nil {
			return nil, err
		}
		if quickapi.PrintJNIStubListing {
			fmt.Printf("%s\n", ret.Listing)
		}
	}
	if quickapi.PrintJNIStubMachineCodeHex {
		fmt.Printf("JNI stub %q on %s: %x\n", shorty, set, ret.Code)
	}
	return ret, nil
}

// stubGenerator holds what the generation of one stub needs besides the macro-assembler.
type stubGenerator struct {
	mr        jni.ManagedRuntimeCallingConvention
	main, end jni.JniCallingConvention
	offsets   *quickapi.ThreadOffsetData
	ptr       isa.PointerSize

	isStatic, isSynchronized, isFastNative, isCriticalNative bool
	readBarrier                                              bool
}

func (g *stubGenerator) startEntrypoint() quickapi.QuickEntrypoint {
	switch {
	case g.isSynchronized:
		return quickapi.QuickJniMethodStartSynchronized
	case g.isFastNative:
		return quickapi.QuickJniMethodFastStart
	default:
		return quickapi.QuickJniMethodStart
	}
}

func (g *stubGenerator) endEntrypoint(referenceReturn bool) quickapi.QuickEntrypoint {
	if referenceReturn {
		switch {
		case g.isSynchronized:
			return quickapi.QuickJniMethodEndWithReferenceSynchronized
		case g.isFastNative:
			return quickapi.QuickJniMethodFastEndWithReference
		default:
			return quickapi.QuickJniMethodEndWithReference
		}
	}
	switch {
	case g.isSynchronized:
		return quickapi.QuickJniMethodEndSynchronized
	case g.isFastNative:
		return quickapi.QuickJniMethodFastEnd
	default:
		return quickapi.QuickJniMethodEnd
	}
}

// generate emits the whole stub with asm and finalizes it.
//
// The stub builds a frame holding the callee saves, the method pointer, a handle scope
// with every reference argument and the local reference cookie, then calls
// JniMethodStart, shuffles the arguments into the native convention, calls the native
// function and JniMethodEnd, and returns after polling for a pending exception.
// @CriticalNative stubs skip everything but the shuffle and the call.
func generate[L any](g *stubGenerator, asm jni.MacroAssembler[L]) error {
	mr, main, end := g.mr, g.main, g.end
	frameSize := main.FrameSize()
	calleeSaves := main.CalleeSaveRegisters()
	mrScratch := mr.InterproceduralScratchRegister()
	mainScratch := main.InterproceduralScratchRegister()
	referenceReturn := main.IsReturnAReference()

	asm.BuildFrame(frameSize, mr.MethodRegister(), calleeSaves, mr.EntrySpills())
	checkCFA(asm.CFI(), frameSize)

	if !g.isCriticalNative {
		// Link a handle scope holding every reference argument into the thread.
		mr.ResetIterator(quickapi.FrameOffset(frameSize))
		main.ResetIterator(0)
		asm.StoreImmediateToFrame(main.HandleScopeNumRefsOffset(), uint32(main.ReferenceCount()), mrScratch)
		asm.CopyRawPtrFromThread(main.HandleScopeLinkOffset(), g.offsets.TopHandleScope, mrScratch)
		asm.StoreStackOffsetToThread(g.offsets.TopHandleScope, main.HandleScopeOffset(), mrScratch)

		main.Next() // JNIEnv
		if g.isStatic {
			// The class of a static method comes from the method itself.
			hs := main.CurrentParamHandleScopeEntryOffset()
			checkInFrame(hs, frameSize)
			asm.LoadRefFromMember(mainScratch, mr.MethodRegister(), quickapi.ArtMethodDeclaringClassOffset, false)
			asm.VerifyObject(mainScratch, false)
			asm.StoreRef(hs, mainScratch)
			main.Next()
		}
		for mr.HasNext() {
			if !main.HasNext() {
				panic("BUG: native convention ran out of arguments")
			}
			if main.IsCurrentParamAReference() {
				if !mr.IsCurrentParamAReference() {
					panic("BUG: reference argument mismatch between conventions")
				}
				hs := main.CurrentParamHandleScopeEntryOffset()
				checkInFrame(hs, frameSize)
				if hs == main.SavedLocalReferenceCookieOffset() {
					panic("BUG: handle scope entry overlaps the local reference cookie")
				}
				if mr.IsCurrentParamInRegister() {
					in := mr.CurrentParamRegister()
					asm.VerifyObject(in, mr.IsCurrentArgPossiblyNull())
					asm.StoreRef(hs, in)
				} else {
					in := mr.CurrentParamStackOffset()
					asm.VerifyObjectInFrame(in, mr.IsCurrentArgPossiblyNull())
					asm.CopyRef(hs, in, mrScratch)
				}
			}
			mr.Next()
			main.Next()
		}

		asm.StoreStackPointerToThread(g.offsets.TopOfManagedStack)
	}

	mainOutArgSize := main.OutArgSize()
	currentOutArgSize := mainOutArgSize
	asm.IncreaseFrameSize(mainOutArgSize)

	if g.readBarrier && g.isStatic && !g.isCriticalNative {
		// Only while the GC is marking, let the runtime update the class reference.
		skip := asm.CreateLabel()
		asm.LoadFromThread(mainScratch, g.offsets.IsGcMarking, 4)
		asm.JumpIf(skip, jni.Zero, mainScratch)

		main.ResetIterator(quickapi.FrameOffset(mainOutArgSize))
		main.Next() // JNIEnv
		classHS := main.CurrentParamHandleScopeEntryOffset()
		main.ResetIterator(quickapi.FrameOffset(mainOutArgSize))
		passHandle(asm, main, classHS, mrScratch)
		main.Next()
		callWithThread(asm, main, g.offsets.QuickEntrypoint(quickapi.QuickReadBarrierJni))
		main.ResetIterator(quickapi.FrameOffset(mainOutArgSize))
		asm.Bind(skip)
	}

	var lockedHS, savedCookie quickapi.FrameOffset
	if !g.isCriticalNative {
		main.ResetIterator(quickapi.FrameOffset(mainOutArgSize))
		if g.isSynchronized {
			main.Next() // JNIEnv
			lockedHS = main.CurrentParamHandleScopeEntryOffset()
			main.ResetIterator(quickapi.FrameOffset(mainOutArgSize))
			passHandle(asm, main, lockedHS, mrScratch)
			main.Next()
		}
		callWithThread(asm, main, g.offsets.QuickEntrypoint(g.startEntrypoint()))
		if g.isSynchronized {
			// Monitor enter may throw.
			asm.ExceptionPoll(mainScratch, mainOutArgSize)
		}
		savedCookie = main.SavedLocalReferenceCookieOffset()
		asm.Store(savedCookie, main.IntReturnRegister(), 4)
	}

	// Shuffle the arguments backwards so that a register is read before it is overwritten.
	mr.ResetIterator(quickapi.FrameOffset(frameSize + mainOutArgSize))
	argsCount := 0
	for mr.HasNext() {
		argsCount++
		mr.Next()
	}
	for i := 0; i < argsCount; i++ {
		mr.ResetIterator(quickapi.FrameOffset(frameSize + mainOutArgSize))
		main.ResetIterator(quickapi.FrameOffset(mainOutArgSize))
		if !g.isCriticalNative {
			main.Next() // JNIEnv
			if g.isStatic {
				main.Next() // jclass, created below.
			}
		}
		for j := 0; j < argsCount-i-1; j++ {
			mr.Next()
			main.Next()
		}
		copyParameter(asm, mr, main, frameSize, mainOutArgSize)
	}
	if g.isStatic && !g.isCriticalNative {
		main.ResetIterator(quickapi.FrameOffset(mainOutArgSize))
		main.Next() // JNIEnv
		passHandle(asm, main, main.CurrentParamHandleScopeEntryOffset(), mrScratch)
	}

	main.ResetIterator(quickapi.FrameOffset(mainOutArgSize))
	if !g.isCriticalNative {
		if main.IsCurrentParamInRegister() {
			env := main.CurrentParamRegister()
			if env.Equals(mainScratch) {
				panic("BUG: JNIEnv register is the scratch register")
			}
			asm.LoadRawPtrFromThread(env, g.offsets.JniEnv)
		} else {
			asm.CopyRawPtrFromThread(main.CurrentParamStackOffset(), g.offsets.JniEnv, mainScratch)
		}
	}

	asm.CallFromFrame(main.MethodStackOffset(), quickapi.ArtMethodEntryPointFromJniOffset(g.ptr), mrScratch)

	if main.RequiresSmallResultTypeExtension() {
		switch t := main.ReturnType(); t {
		case jni.PrimByte, jni.PrimShort:
			asm.SignExtend(main.ReturnRegister(), t.ComponentSize())
		case jni.PrimBoolean, jni.PrimChar:
			asm.ZeroExtend(main.ReturnRegister(), t.ComponentSize())
		}
	}

	returnSave := main.ReturnValueSaveLocation()
	if main.SizeOfReturnValue() != 0 && !referenceReturn {
		if !g.isCriticalNative {
			// JniMethodEnd clobbers the return registers.
			if int(returnSave) >= frameSize+mainOutArgSize {
				panic(fmt.Sprintf("BUG: return value save location %d outside of the frame", returnSave))
			}
			asm.Store(returnSave, main.ReturnRegister(), main.SizeOfReturnValue())
		} else if jniRet, mrRet := main.ReturnRegister(), mr.ReturnRegister(); !jniRet.Equals(mrRet) {
			// Soft float native code on arm returns floating point values in core registers.
			asm.Move(mrRet, jniRet, main.SizeOfReturnValue())
		}
	}

	if endOutArgSize := end.OutArgSize(); endOutArgSize > currentOutArgSize {
		diff := endOutArgSize - currentOutArgSize
		currentOutArgSize = endOutArgSize
		asm.IncreaseFrameSize(diff)
		savedCookie = savedCookie.Add(diff)
		lockedHS = lockedHS.Add(diff)
		returnSave = returnSave.Add(diff)
	}
	end.ResetIterator(quickapi.FrameOffset(end.OutArgSize()))

	if !g.isCriticalNative {
		endScratch := end.InterproceduralScratchRegister()
		if referenceReturn {
			setNativeParameter(asm, end, end.ReturnRegister())
			end.Next()
		}
		if end.IsCurrentParamOnStack() {
			asm.Copy(end.CurrentParamStackOffset(), savedCookie, endScratch, 4)
		} else {
			asm.Load(end.CurrentParamRegister(), savedCookie, 4)
		}
		end.Next()
		if g.isSynchronized {
			passHandle(asm, end, lockedHS, endScratch)
			end.Next()
		}
		callWithThread(asm, end, g.offsets.QuickEntrypoint(g.endEntrypoint(referenceReturn)))

		if main.SizeOfReturnValue() != 0 && !referenceReturn {
			asm.Load(mr.ReturnRegister(), returnSave, mr.SizeOfReturnValue())
		}
	}

	asm.DecreaseFrameSize(currentOutArgSize)
	if !g.isCriticalNative {
		asm.ExceptionPoll(mainScratch, 0)
	}

	checkCFA(asm.CFI(), frameSize)
	asm.RemoveFrame(frameSize, calleeSaves, !g.isCriticalNative)
	checkCFA(asm.CFI(), frameSize)

	return asm.FinalizeCode()
}

func checkCFA(cfi *dwarf.DebugFrameOpCodeWriter, frameSize int) {
	if actual := cfi.CurrentCFAOffset(); actual != frameSize {
		panic(fmt.Sprintf("BUG: CFA offset %d does not match the frame size %d", actual, frameSize))
	}
}

func checkInFrame(off quickapi.FrameOffset, frameSize int) {
	if int(off) >= frameSize {
		panic(fmt.Sprintf("BUG: frame offset %d outside of the frame of %d bytes", off, frameSize))
	}
}

// passHandle passes the address of the handle scope entry at hs as the current
// argument of conv.
func passHandle[L any](asm jni.MacroAssembler[L], conv jni.JniCallingConvention, hs quickapi.FrameOffset, scratch jni.ManagedRegister) {
	if conv.IsCurrentParamOnStack() {
		asm.CreateHandleScopeEntryInFrame(conv.CurrentParamStackOffset(), hs, scratch, false)
	} else {
		asm.CreateHandleScopeEntry(conv.CurrentParamRegister(), hs, jni.NoRegister, false)
	}
}

// callWithThread passes the current thread as the current argument of conv and calls
// the entrypoint.
func callWithThread[L any](asm jni.MacroAssembler[L], conv jni.JniCallingConvention, entrypoint quickapi.ThreadOffset) {
	scratch := conv.InterproceduralScratchRegister()
	if conv.IsCurrentParamInRegister() {
		thread := conv.CurrentParamRegister()
		asm.GetCurrentThread(thread)
		asm.Call(thread, quickapi.Offset(entrypoint), scratch)
	} else {
		asm.GetCurrentThreadToFrame(conv.CurrentParamStackOffset(), scratch)
		asm.CallFromThread(entrypoint, scratch)
	}
}

// setNativeParameter passes in as the current argument of conv.
func setNativeParameter[L any](asm jni.MacroAssembler[L], conv jni.JniCallingConvention, in jni.ManagedRegister) {
	if conv.IsCurrentParamOnStack() {
		asm.StoreRawPtr(conv.CurrentParamStackOffset(), in)
	} else if out := conv.CurrentParamRegister(); !out.Equals(in) {
		asm.Move(out, in, conv.CurrentParamSize())
	}
}

// copyParameter moves the current argument of mr to the current argument of conv.
// A reference is replaced by the address of its handle scope entry, or null.
func copyParameter[L any](asm jni.MacroAssembler[L], mr jni.ManagedRuntimeCallingConvention, conv jni.JniCallingConvention, frameSize, outArgSize int) {
	inputInReg := mr.IsCurrentParamInRegister()
	outputInReg := conv.IsCurrentParamInRegister()
	refParam := conv.IsCurrentParamAReference()
	if refParam && !mr.IsCurrentParamAReference() {
		panic("BUG: reference argument mismatch between conventions")
	}
	if !inputInReg && !mr.IsCurrentParamOnStack() {
		panic("BUG: managed argument is neither in a register nor on the stack")
	}
	if outputInReg == conv.IsCurrentParamOnStack() {
		panic("BUG: native argument straddles a register and the stack")
	}

	var hs quickapi.FrameOffset
	nullAllowed := false
	if refParam {
		// A null reference is passed as null rather than as the address of its entry.
		nullAllowed = mr.IsCurrentArgPossiblyNull()
		hs = conv.CurrentParamHandleScopeEntryOffset()
		checkInFrame(hs, frameSize+outArgSize)
	}

	checkSize := func() int {
		size := mr.CurrentParamSize()
		if size != conv.CurrentParamSize() {
			panic(fmt.Sprintf("BUG: argument size %d does not match native size %d", size, conv.CurrentParamSize()))
		}
		return size
	}

	switch {
	case inputInReg && outputInReg:
		in, out := mr.CurrentParamRegister(), conv.CurrentParamRegister()
		if refParam {
			asm.CreateHandleScopeEntry(out, hs, in, nullAllowed)
		} else if !mr.IsCurrentParamOnStack() {
			asm.Move(out, in, mr.CurrentParamSize())
		} else {
			panic("BUG: straddling register argument moved to a register")
		}
	case !inputInReg && !outputInReg:
		out := conv.CurrentParamStackOffset()
		if refParam {
			asm.CreateHandleScopeEntryInFrame(out, hs, mr.InterproceduralScratchRegister(), nullAllowed)
		} else {
			asm.Copy(out, mr.CurrentParamStackOffset(), mr.InterproceduralScratchRegister(), checkSize())
		}
	case !inputInReg && outputInReg:
		in, out := mr.CurrentParamStackOffset(), conv.CurrentParamRegister()
		if int(in) <= frameSize {
			panic(fmt.Sprintf("BUG: incoming argument at %d inside the frame of %d bytes", in, frameSize))
		}
		if refParam {
			asm.CreateHandleScopeEntry(out, hs, jni.NoRegister, nullAllowed)
		} else {
			asm.Load(out, in, checkSize())
		}
	default:
		in, out := mr.CurrentParamRegister(), conv.CurrentParamStackOffset()
		checkInFrame(out, frameSize)
		if refParam {
			asm.CreateHandleScopeEntryInFrame(out, hs, mr.InterproceduralScratchRegister(), nullAllowed)
		} else if size := checkSize(); !mr.IsCurrentParamOnStack() {
			asm.Store(out, in, size)
		} else {
			if size != 8 {
				panic(fmt.Sprintf("BUG: straddling argument of %d bytes", size))
			}
			asm.StoreSpanning(out, in, mr.CurrentParamStackOffset(), mr.InterproceduralScratchRegister())
		}
	}
}
