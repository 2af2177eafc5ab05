package visitors

import "github.com/daimatz/classpatch/pkg/classwriter"

// Binary names of the patched WorldEdit classes.
const (
	EditSessionClass                 = "com.sk89q.worldedit.EditSession"
	OperationsClass                  = "com.sk89q.worldedit.function.operation.Operations"
	ForwardExtentCopyClass           = "com.sk89q.worldedit.function.operation.ForwardExtentCopy"
	BlockArrayClipboardClass         = "com.sk89q.worldedit.extent.clipboard.BlockArrayClipboard"
	FlattenedClipboardTransformClass = "com.sk89q.worldedit.command.FlattenedClipboardTransform"
	SnapshotUtilCommandsClass        = "com.sk89q.worldedit.command.SnapshotUtilCommands"
)

const (
	hooksPackage = "org/primesoft/asyncworldedit/injector/hooks/"
	// HookField is the static field added to every class that delegates
	// to a hook.
	HookField = "awe$hook"

	operation   = "Lcom/sk89q/worldedit/function/operation/Operation;"
	blockVector = "Lcom/sk89q/worldedit/math/BlockVector3;"
)

// NewEditSession patches the edit session so block placement can be
// queued and flushed asynchronously.
func NewEditSession(w *classwriter.Writer, create classwriter.ClassCreator) *Visitor {
	return New(EditSessionClass, w, create,
		DelegateToHook{
			Name:       "flushSession",
			Descriptor: "()V",
			Hook:       hooksPackage + "IEditSessionHook",
			Field:      HookField,
		},
		StripFinal{
			Name:       "getChangeSet",
			Descriptor: "()Lcom/sk89q/worldedit/history/changeset/ChangeSet;",
		},
		InsertPrefixCall{
			Name:           "undo",
			Descriptor:     "(Lcom/sk89q/worldedit/EditSession;)V",
			Owner:          hooksPackage + "EditSessionHooks",
			Method:         "beforeUndo",
			HookDescriptor: "(Ljava/lang/Object;Ljava/lang/Object;)V",
			PassThis:       true,
			PassArgs:       true,
		},
	)
}

// NewOperations routes the blocking operation runners through a hook.
func NewOperations(w *classwriter.Writer, create classwriter.ClassCreator) *Visitor {
	hook := hooksPackage + "IOperationsHook"
	return New(OperationsClass, w, create,
		DelegateToHook{Name: "complete", Descriptor: "(" + operation + ")V", Hook: hook, Field: HookField},
		DelegateToHook{Name: "completeLegacy", Descriptor: "(" + operation + ")V", Hook: hook, Field: HookField},
		DelegateToHook{Name: "completeBlindly", Descriptor: "(" + operation + ")V", Hook: hook, Field: HookField},
	)
}

// NewForwardExtentCopy makes the copy operation report each resume step
// and run nested operations through the async-aware runner.
func NewForwardExtentCopy(w *classwriter.Writer, create classwriter.ClassCreator) *Visitor {
	resume := "(Lcom/sk89q/worldedit/function/operation/RunContext;)" + operation
	return New(ForwardExtentCopyClass, w, create,
		InsertPrefixCall{
			Name:           "resume",
			Descriptor:     resume,
			Owner:          hooksPackage + "OperationHooks",
			Method:         "beforeResume",
			HookDescriptor: "(Ljava/lang/Object;)V",
			PassThis:       true,
		},
		RedirectCall{
			Name:             "resume",
			Descriptor:       resume,
			Owner:            "com/sk89q/worldedit/function/operation/Operations",
			Method:           "completeBlindly",
			MethodDescriptor: "(" + operation + ")V",
			ToOwner:          hooksPackage + "OperationHooks",
			ToMethod:         "completeBlindly",
		},
	)
}

// NewBlockArrayClipboard opens the clipboard storage to a replacement
// implementation: the block array is stored as a plain object and the
// accessors consult the hook first.
func NewBlockArrayClipboard(w *classwriter.Writer, create classwriter.ClassCreator) *Visitor {
	hook := hooksPackage + "IBlockArrayClipboardHook"
	return New(BlockArrayClipboardClass, w, create,
		RetypeField{
			Name:          "blocks",
			Descriptor:    "[[[Lcom/sk89q/worldedit/world/block/BaseBlock;",
			NewDescriptor: "Ljava/lang/Object;",
		},
		DelegateToHook{
			Name:       "getBlock",
			Descriptor: "(" + blockVector + ")Lcom/sk89q/worldedit/world/block/BlockState;",
			Hook:       hook,
			Field:      HookField,
		},
		DelegateToHook{
			Name:       "setBlock",
			Descriptor: "(" + blockVector + "Lcom/sk89q/worldedit/world/block/BlockStateHolder;)Z",
			Hook:       hook,
			Field:      HookField,
		},
	)
}

// NewFlattenedClipboardTransform lets the transformed region be computed
// by a hook and the factory method be replaced.
func NewFlattenedClipboardTransform(w *classwriter.Writer, create classwriter.ClassCreator) *Visitor {
	return New(FlattenedClipboardTransformClass, w, create,
		DelegateToHook{
			Name:       "getTransformedRegion",
			Descriptor: "()Lcom/sk89q/worldedit/regions/Region;",
			Hook:       hooksPackage + "IFlattenedClipboardTransformHook",
			Field:      HookField,
		},
		StripFinal{
			Name: "transform",
			Descriptor: "(Lcom/sk89q/worldedit/extent/clipboard/Clipboard;" +
				"Lcom/sk89q/worldedit/math/transform/Transform;)" +
				"Lcom/sk89q/worldedit/command/FlattenedClipboardTransform;",
		},
	)
}

// NewSnapshotUtilCommands hands snapshot restores to a hook.
func NewSnapshotUtilCommands(w *classwriter.Writer, create classwriter.ClassCreator) *Visitor {
	return New(SnapshotUtilCommandsClass, w, create,
		DelegateToHook{
			Name: "restore",
			Descriptor: "(Lcom/sk89q/worldedit/entity/Player;Lcom/sk89q/worldedit/LocalSession;" +
				"Lcom/sk89q/worldedit/EditSession;Ljava/lang/String;)V",
			Hook:  hooksPackage + "ISnapshotUtilCommandsHook",
			Field: HookField,
		},
	)
}
