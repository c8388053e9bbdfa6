package optimizing

import (
	"math/bits"

	"github.com/artquick/quick/internal/quickapi"
)

const valueSetMinimumNumberOfBuckets = 8

// valueSetArena holds the memory of every ValueSet of one GVN run. Nothing is
// freed individually; reset reclaims everything at once.
type valueSetArena struct {
	graph   *Graph
	sets    quickapi.Pool[ValueSet]
	nodes   quickapi.Pool[valueSetNode]
	buckets quickapi.SlicePool[*valueSetNode]
	words   quickapi.SlicePool[uint64]
}

func newValueSetArena(g *Graph) *valueSetArena {
	return &valueSetArena{
		graph:   g,
		sets:    quickapi.NewPool[ValueSet](),
		nodes:   quickapi.NewPool[valueSetNode](),
		buckets: quickapi.NewSlicePool[*valueSetNode](),
		words:   quickapi.NewSlicePool[uint64](),
	}
}

func (a *valueSetArena) reset() {
	a.sets.Reset()
	a.nodes.Reset()
	a.buckets.Reset()
	a.words.Reset()
}

func (a *valueSetArena) allocateNode(instr *Instruction, hash uint64, next *valueSetNode) *valueSetNode {
	n := a.nodes.Allocate()
	n.instr, n.hash, n.next = instr, hash, next
	return n
}

// valueSetNode is an entry of a bucket chain. A node reachable from a bucket
// that is not owned may be shared with other sets and must not be mutated.
type valueSetNode struct {
	instr *Instruction
	hash  uint64
	next  *valueSetNode
}

// ValueSet is a hash set of instructions available at a point of the graph,
// looked up by structural equality.
//
// Copies share bucket chains with their source until either side needs to
// change a bucket, which is then cloned. owned tells which buckets this set
// may mutate in place.
//
// Pure instructions, which no side effect can invalidate, hash to odd buckets
// so that Kill only needs to scan the even ones.
type ValueSet struct {
	arena      *valueSetArena
	buckets    []*valueSetNode
	owned      quickapi.BitVector
	numEntries int
}

// newValueSet returns an empty set which owns all its buckets.
func newValueSet(arena *valueSetArena) *ValueSet {
	s := arena.sets.Allocate()
	s.init(arena, valueSetMinimumNumberOfBuckets)
	s.owned.SetInitialBits(len(s.buckets))
	return s
}

// newValueSetCopy returns a copy of other sized for other's entries.
func newValueSetCopy(arena *valueSetArena, other *ValueSet) *ValueSet {
	s := arena.sets.Allocate()
	s.init(arena, other.idealBucketCount())
	s.populateFromInternal(other)
	return s
}

func (s *ValueSet) init(arena *valueSetArena, numBuckets int) {
	if numBuckets&(numBuckets-1) != 0 {
		panic("BUG: number of buckets must be a power of two")
	}
	s.arena = arena
	s.buckets = arena.buckets.Allocate(numBuckets)
	s.owned = quickapi.NewBitVector(numBuckets, arena.words.Allocate(quickapi.BitVectorWords(numBuckets)))
	s.numEntries = 0
}

// PopulateFrom replaces the content of s with the content of other.
// s must have enough buckets; see CanHoldCopyOf.
func (s *ValueSet) PopulateFrom(other *ValueSet) {
	if s == other {
		return
	}
	s.populateFromInternal(other)
}

// CanHoldCopyOf returns true if other can be copied into s without exceeding
// the target load factor. With exactMatch, s must have exactly the ideal
// number of buckets for other.
func (s *ValueSet) CanHoldCopyOf(other *ValueSet, exactMatch bool) bool {
	if exactMatch {
		return other.idealBucketCount() == len(s.buckets)
	}
	return other.idealBucketCount() <= len(s.buckets)
}

// Add inserts instr. No equal instruction may be in the set already.
func (s *ValueSet) Add(instr *Instruction) {
	if quickapi.GVNValidationEnabled && s.Lookup(instr) != nil {
		panic("BUG: adding " + instr.name() + " which is already available")
	}
	hash := s.hashCode(instr)
	index := s.bucketIndex(hash)
	if !s.owned.IsBitSet(index) {
		s.cloneBucket(index, nil)
	}
	s.buckets[index] = s.arena.allocateNode(instr, hash, s.buckets[index])
	s.numEntries++
}

// Lookup returns an instruction of the set which Equals instr, or nil.
func (s *ValueSet) Lookup(instr *Instruction) *Instruction {
	hash := s.hashCode(instr)
	for node := s.buckets[s.bucketIndex(hash)]; node != nil; node = node.next {
		if node.hash == hash && node.instr.Equals(instr) {
			return node.instr
		}
	}
	return nil
}

// Contains returns true if instr itself is in the set.
func (s *ValueSet) Contains(instr *Instruction) bool {
	hash := s.hashCode(instr)
	for node := s.buckets[s.bucketIndex(hash)]; node != nil; node = node.next {
		if node.instr == instr {
			return true
		}
	}
	return false
}

// Kill removes every instruction which may depend on effects.
func (s *ValueSet) Kill(effects SideEffects) {
	s.deleteAllImpureWhich(func(node *valueSetNode) bool {
		return node.instr.sideEffects.MayDependOn(effects)
	})
}

// Clear removes everything. The buckets are kept and owned.
func (s *ValueSet) Clear() {
	s.numEntries = 0
	for i := range s.buckets {
		s.buckets[i] = nil
	}
	s.owned.SetInitialBits(len(s.buckets))
}

// IntersectWith removes the impure instructions which are not in pred, the
// set at the end of a predecessor.
func (s *ValueSet) IntersectWith(pred *ValueSet) {
	switch {
	case s.IsEmpty():
	case pred.IsEmpty():
		s.Clear()
	default:
		// Pure instructions cannot have been killed on the way.
		s.deleteAllImpureWhich(func(node *valueSetNode) bool {
			return !pred.Contains(node.instr)
		})
	}
}

// IsEmpty returns true if the set has no entry.
func (s *ValueSet) IsEmpty() bool { return s.numEntries == 0 }

// Size returns the number of entries.
func (s *ValueSet) Size() int { return s.numEntries }

// NumBuckets returns the number of buckets.
func (s *ValueSet) NumBuckets() int { return len(s.buckets) }

func (s *ValueSet) populateFromInternal(other *ValueSet) {
	if s == other {
		panic("BUG: populating a set from itself")
	}
	if len(s.buckets) < other.idealBucketCount() {
		panic("BUG: value set too small for a copy")
	}

	if len(s.buckets) == len(other.buckets) {
		// Same size: share every chain. Neither side may mutate them from now on.
		copy(s.buckets, other.buckets)
		s.owned.ClearAllBits()
		other.owned.ClearAllBits()
	} else {
		// The hash table size changes, so every entry is rehashed into fresh nodes.
		for i := range s.buckets {
			s.buckets[i] = nil
		}
		for _, head := range other.buckets {
			for node := head; node != nil; node = node.next {
				index := s.bucketIndex(node.hash)
				s.buckets[index] = s.arena.allocateNode(node.instr, node.hash, s.buckets[index])
			}
		}
		s.owned.SetInitialBits(len(s.buckets))
	}
	s.numEntries = other.numEntries
}

// cloneBucket replaces the index-th chain with fresh nodes in the same order
// and takes ownership of it. It returns the clone of iterator, which must be in
// the chain or nil.
func (s *ValueSet) cloneBucket(index int, iterator *valueSetNode) *valueSetNode {
	if s.owned.IsBitSet(index) {
		panic("BUG: cloning an owned bucket")
	}
	var clonePrevious, cloneIterator *valueSetNode
	for node := s.buckets[index]; node != nil; node = node.next {
		clone := s.arena.allocateNode(node.instr, node.hash, nil)
		if node == iterator {
			cloneIterator = clone
		}
		if clonePrevious == nil {
			s.buckets[index] = clone
		} else {
			clonePrevious.next = clone
		}
		clonePrevious = clone
	}
	s.owned.SetBit(index)
	return cloneIterator
}

// deleteAllImpureWhich deletes the entries of the even buckets for which cond
// returns true. A shared bucket is cloned only when something in it is deleted.
func (s *ValueSet) deleteAllImpureWhich(cond func(*valueSetNode) bool) {
	for i := 0; i < len(s.buckets); i += 2 {
		node := s.buckets[i]
		if node == nil {
			continue
		}
		var previous *valueSetNode

		if !s.owned.IsBitSet(i) {
			for node != nil {
				if cond(node) {
					// Clone the chain and continue from the same position in the clone.
					previous = s.cloneBucket(i, previous)
					if previous == nil {
						node = s.buckets[i]
					} else {
						node = previous.next
					}
					break
				}
				previous = node
				node = node.next
			}
		}

		if node != nil && !s.owned.IsBitSet(i) {
			panic("BUG: deleting from a shared bucket")
		}

		for node != nil {
			next := node.next
			if cond(node) {
				if previous == nil {
					s.buckets[i] = next
				} else {
					previous.next = next
				}
				s.numEntries--
			} else {
				previous = node
			}
			node = next
		}
	}
}

// idealBucketCount returns about 1.5 times the number of entries rounded up to
// a power of two, and at least valueSetMinimumNumberOfBuckets.
func (s *ValueSet) idealBucketCount() int {
	n := s.numEntries + s.numEntries>>1
	if n <= valueSetMinimumNumberOfBuckets {
		return valueSetMinimumNumberOfBuckets
	}
	return 1 << bits.Len(uint(n-1))
}

// hashCode puts pure instructions in odd buckets. When the graph has an
// irreducible loop every instruction is treated as impure, since they all have
// to be removed when entering such a loop.
func (s *ValueSet) hashCode(instr *Instruction) uint64 {
	hash := instr.HashCode() << 1
	// A class is initialized only once, so ClinitCheck depends on nothing afterwards.
	pure := !instr.sideEffects.HasDependencies() || instr.opcode == OpcodeClinitCheck
	if pure && !s.arena.graph.hasIrreducibleLoops {
		hash |= 1
	}
	return hash
}

func (s *ValueSet) bucketIndex(hash uint64) int {
	return int(hash & uint64(len(s.buckets)-1))
}
