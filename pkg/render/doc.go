// Package render turns the set of fragments dirtied during a frame into an
// ordered batch of patches.
//
// The package holds no UI knowledge. Each fragment carries a Descriptor that
// knows how to diff itself; the Queue records which fragments need a diff and
// in what order, and the Generator walks the queue and concatenates whatever
// patches the descriptors produce.
//
// # Ordering
//
// Enqueue is idempotent within a frame, so a fragment notified several times
// is diffed once, at the position of its first enqueue. Patches from one
// fragment keep the order its descriptor returned them in.
//
// # Descriptors
//
// A descriptor receives a DiffContext carrying the fragment key, whether this
// is the fragment's first render, and a Reader for committed store values:
//
//	desc := render.DescriptorFunc(func(dc *render.DiffContext) ([]render.Patch, error) {
//	    v, err := dc.Read(count)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return []render.Patch{render.ContentPatch("text", v)}, nil
//	})
package render
