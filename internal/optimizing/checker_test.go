package optimizing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckGraph(t *testing.T) {
	for _, tc := range []struct {
		name   string
		setup  func(t *testing.T) *Graph
		expErr string
	}{
		{
			name: "valid",
			setup: func(t *testing.T) *Graph {
				g := constructGraphFromEdges(t, edgesCase{0: {1, 2}, 1: {3}, 2: {3}})
				g.BuildDominatorTree()
				return g
			},
		},
		{
			name:   "no entry",
			setup:  func(*testing.T) *Graph { return NewGraph() },
			expErr: "graph has no entry block",
		},
		{
			name: "entry with predecessor",
			setup: func(t *testing.T) *Graph {
				return constructGraphFromEdges(t, edgesCase{0: {1}, 1: {0}})
			},
			expErr: "entry block blk0 has predecessors",
		},
		{
			name: "control flow in the middle",
			setup: func(t *testing.T) *Graph {
				g := constructGraphFromEdges(t, edgesCase{0: {1}})
				insertBeforeTail(g.Block(1), g.AllocateInstruction().AsGoto())
				return g
			},
			expErr: "blk1: control flow Goto is not the last instruction",
		},
		{
			name: "wrong number of successors",
			setup: func(t *testing.T) *Graph {
				g := constructGraphFromEdges(t, edgesCase{0: {1}, 1: {2}})
				g.Block(0).AddSuccessor(g.Block(2))
				return g
			},
			expErr: "blk0: Goto needs 1 successor(s), has 2",
		},
		{
			name: "empty block",
			setup: func(t *testing.T) *Graph {
				g := constructGraphFromEdges(t, edgesCase{0: {1}})
				g.AllocateBasicBlock()
				return g
			},
			expErr: "blk2 is empty",
		},
		{
			name: "input not dominating",
			setup: func(t *testing.T) *Graph {
				g := constructGraphFromEdges(t, edgesCase{0: {1, 2}, 1: {3}, 2: {3}})
				cond := g.EntryBlock().Root()
				left := insertBeforeTail(g.Block(1), g.AllocateInstruction().AsAdd(TypeInt32, cond, cond))
				insertBeforeTail(g.Block(2), g.AllocateInstruction().AsAdd(TypeInt32, left, left))
				g.BuildDominatorTree()
				return g
			},
			expErr: "blk2: input v5 does not dominate v6",
		},
		{
			name: "input used before definition",
			setup: func(t *testing.T) *Graph {
				g := constructGraphFromEdges(t, edgesCase{0: {1}})
				blk := g.Block(1)
				def := g.AllocateInstruction().AsIntConstant(TypeInt32, 1)
				user := insertBeforeTail(blk, g.AllocateInstruction().AsAdd(TypeInt32, def, def))
				blk.InsertInstructionBefore(def, blk.Tail())
				require.Equal(t, user, def.Prev())
				g.BuildDominatorTree()
				return g
			},
			expErr: "blk1: input v3 does not dominate v4",
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := CheckGraph(tc.setup(t))
			if tc.expErr == "" {
				require.NoError(t, err)
			} else {
				require.ErrorContains(t, err, tc.expErr)
			}
		})
	}
}
