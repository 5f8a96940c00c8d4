package render

import (
	"fmt"

	"github.com/frel-dev/frel/pkg/ident"
)

// PatchKind is the kind of node-local change a patch applies.
type PatchKind uint8

const (
	PatchContent     PatchKind = 0x01 // Replace content (text or value)
	PatchStructure   PatchKind = 0x02 // Change the child list
	PatchInstruction PatchKind = 0x03 // Set an attribute or instruction
)

func (k PatchKind) String() string {
	switch k {
	case PatchContent:
		return "Content"
	case PatchStructure:
		return "Structure"
	case PatchInstruction:
		return "Instruction"
	default:
		return "Unknown"
	}
}

// Structural operations carried in Patch.Name for PatchStructure patches.
const (
	OpInsert = "insert"
	OpRemove = "remove"
	OpMove   = "move"
)

// Patch is one change for the platform adapter to apply to a fragment.
type Patch struct {
	Fragment ident.FragmentKey // Stamped by the generator
	Kind     PatchKind
	Name     string // Content slot, instruction name, or structural op
	Value    any
	Index    int // Child position for structural patches
}

func (p Patch) String() string {
	if p.Kind == PatchStructure {
		return fmt.Sprintf("%s %s %s[%d]=%v", p.Fragment, p.Kind, p.Name, p.Index, p.Value)
	}
	return fmt.Sprintf("%s %s %s=%v", p.Fragment, p.Kind, p.Name, p.Value)
}

// ContentPatch replaces the content slot name with v.
func ContentPatch(name string, v any) Patch {
	return Patch{Kind: PatchContent, Name: name, Value: v}
}

// InstructionPatch sets the attribute or instruction name to v.
func InstructionPatch(name string, v any) Patch {
	return Patch{Kind: PatchInstruction, Name: name, Value: v}
}

// StructurePatch applies op to the child list at index. Value identifies the
// child, usually its fragment key.
func StructurePatch(op string, index int, v any) Patch {
	return Patch{Kind: PatchStructure, Name: op, Index: index, Value: v}
}
