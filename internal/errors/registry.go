package errors

// Template defines a registered error code.
type Template struct {
	Code     string
	Category Category
	Message  string
	Detail   string
}

// registry maps kinds to their templates.
var registry = map[Kind]Template{
	// ============================================
	// Runtime Errors (R001-R099)
	// ============================================

	KindInvalidIdentity: {
		Code:     "R001",
		Category: CategoryRuntime,
		Message:  "invalid identity",
		Detail:   "The reactive identity is unknown or names a store of the wrong kind for this operation.",
	},
	KindInvalidKey: {
		Code:     "R002",
		Category: CategoryRuntime,
		Message:  "invalid fragment key",
		Detail:   "The fragment key does not name an arena slot, or the ownership change it requests would break the tree.",
	},
	KindUseAfterFree: {
		Code:     "R003",
		Category: CategoryRuntime,
		Message:  "use after free",
		Detail:   "The store was released or the fragment was destroyed. This usually indicates a lifecycle bug in the calling layer.",
	},
	KindCycleDetected: {
		Code:     "R004",
		Category: CategoryRuntime,
		Message:  "cycle detected",
		Detail:   "A computation depends on itself, directly or through other computations, or propagation did not settle.",
	},
	KindResourceExhausted: {
		Code:     "R005",
		Category: CategoryRuntime,
		Message:  "resource exhausted",
		Detail:   "The identity space or the fragment arena reached its configured limit.",
	},
	KindFrameAlreadyRunning: {
		Code:     "R006",
		Category: CategoryRuntime,
		Message:  "frame already running",
		Detail:   "Frames never nest or interleave. Submit the events instead; they run in the next frame.",
	},
	KindFrameAborted: {
		Code:     "R007",
		Category: CategoryRuntime,
		Message:  "runtime aborted",
		Detail:   "The previous frame aborted. Acknowledge its error before starting another frame.",
	},
	KindFrameClosed: {
		Code:     "R008",
		Category: CategoryRuntime,
		Message:  "frame closed",
		Detail:   "The frame handle was used after its frame ended.",
	},
	KindQueueFull: {
		Code:     "R009",
		Category: CategoryRuntime,
		Message:  "pending event queue full",
		Detail:   "The event was not accepted; the pending queue reached its limit.",
	},

	// ============================================
	// Config Errors (C001-C099)
	// ============================================

	KindConfig: {
		Code:     "C001",
		Category: CategoryConfig,
		Message:  "invalid configuration",
	},
}

// lookup returns the template for a kind.
func lookup(k Kind) Template {
	if t, ok := registry[k]; ok {
		return t
	}
	return Template{Category: CategoryRuntime, Message: "unknown error"}
}

// Lookup returns the registered template for a code, if any.
func Lookup(code string) (Template, bool) {
	for _, t := range registry {
		if t.Code == code {
			return t, true
		}
	}
	return Template{}, false
}
