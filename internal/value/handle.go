package value

import "fmt"

// Handle addresses an arena record: slot index in the low 32 bits,
// generation in the next 16. It fits exactly in a Var payload.
type Handle uint64

const (
	handleIndexBits = 32
	handleGenMask   = 0xFFFF
)

func MakeHandle(index uint32, gen uint16) Handle {
	return Handle(uint64(gen)<<handleIndexBits | uint64(index))
}

func (h Handle) Index() uint32      { return uint32(h) }
func (h Handle) Generation() uint16 { return uint16((uint64(h) >> handleIndexBits) & handleGenMask) }

func (h Handle) String() string {
	return fmt.Sprintf("#%d.%d", h.Index(), h.Generation())
}
