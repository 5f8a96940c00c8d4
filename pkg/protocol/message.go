package protocol

import "github.com/frel-dev/frel/pkg/render"

// patchesOverhead is the worst-case size of the seq and count varints.
const patchesOverhead = 20

// EventMessage encodes ev as a complete FrameEvent.
func EventMessage(ev *EventFrame) ([]byte, error) {
	payload, err := EncodeEvent(ev)
	if err != nil {
		return nil, err
	}
	return NewFrame(FrameEvent, payload).Encode()
}

// PatchesMessages encodes pf as one or more FramePatches. A batch too large
// for one frame is split in order; every part carries pf.Seq and the last one
// is flagged FlagFinal. A single patch that cannot fit in a frame is an
// error.
func PatchesMessages(pf *PatchesFrame) ([][]byte, error) {
	var (
		out   [][]byte
		chunk []render.Patch
		size  int
	)
	flush := func(final bool) error {
		payload, err := EncodePatches(&PatchesFrame{Seq: pf.Seq, Patches: chunk})
		if err != nil {
			return err
		}
		f := NewFrame(FramePatches, payload)
		if final {
			f.Flags |= FlagFinal
		}
		data, err := f.Encode()
		if err != nil {
			return err
		}
		out = append(out, data)
		chunk, size = nil, 0
		return nil
	}

	e := NewEncoder()
	for i := range pf.Patches {
		e.Reset()
		if err := encodePatch(e, &pf.Patches[i]); err != nil {
			return nil, err
		}
		n := e.Len()
		if n+patchesOverhead > MaxPayloadSize {
			return nil, ErrFrameTooLarge
		}
		if len(chunk) > 0 && size+n+patchesOverhead > MaxPayloadSize {
			if err := flush(false); err != nil {
				return nil, err
			}
		}
		chunk = append(chunk, pf.Patches[i])
		size += n
	}
	if err := flush(true); err != nil {
		return nil, err
	}
	return out, nil
}

// ErrorMessage encodes ef as a complete FrameError.
func ErrorMessage(ef *ErrorFrame) ([]byte, error) {
	return NewFrame(FrameError, EncodeError(ef)).Encode()
}
