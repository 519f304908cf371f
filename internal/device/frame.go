package device

import (
	"sync"

	"github.com/chase3718/lou-piano/internal/engine"
	"github.com/chase3718/lou-piano/internal/note"
)

const (
	CmdShowKeys = 0x20
	SOF0        = 0xAA
	SOF1        = 0x55
)

// Frame is a full-state snapshot of the twelve key LEDs sent to the board in
// one write.
type Frame struct {
	Colors     [note.NumKeys]byte // engine.Color per key
	ActiveMask uint16             // bit N set = key N is held down
	Seq        byte
}

// Encode builds the on-wire representation:
//
//	[SOF0][SOF1][LEN][CMD][color0..11][MaskLo][MaskHi][Seq][CKS]
func (f *Frame) Encode() []byte {
	payload := make([]byte, 0, note.NumKeys+3)
	payload = append(payload, f.Colors[:]...)
	payload = append(payload, byte(f.ActiveMask), byte(f.ActiveMask>>8), f.Seq)

	length := byte(len(payload) + 1) // +1 for CMD byte
	cks := length ^ CmdShowKeys
	for _, b := range payload {
		cks ^= b
	}

	out := []byte{SOF0, SOF1, length, CmdShowKeys}
	out = append(out, payload...)
	out = append(out, cks)
	return out
}

// FrameSender is satisfied by *Port.
type FrameSender interface {
	SendFrame(Frame) error
}

// FramePainter mirrors key colours and held keys onto the board's LEDs.
// It is an engine.Painter; the sender can be swapped when the port is
// reopened and may be nil while the board is away.
type FramePainter struct {
	mu     sync.Mutex
	sender FrameSender
	colors [note.NumKeys]byte
	active uint16
	seq    byte
	onErr  func(error)
}

func NewFramePainter(onErr func(error)) *FramePainter {
	return &FramePainter{onErr: onErr}
}

// Attach points the painter at a (re)opened port and resends the current state.
func (fp *FramePainter) Attach(s FrameSender) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.sender = s
	fp.sendLocked()
}

// Detach stops writing until the next Attach.
func (fp *FramePainter) Detach() {
	fp.mu.Lock()
	fp.sender = nil
	fp.mu.Unlock()
}

func (fp *FramePainter) Paint(keys engine.Keys) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	for i, c := range keys {
		fp.colors[i] = byte(c)
	}
	fp.sendLocked()
}

// SetActive updates the held-key overlay.
func (fp *FramePainter) SetActive(mask uint16) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	if fp.active == mask {
		return
	}
	fp.active = mask
	fp.sendLocked()
}

func (fp *FramePainter) sendLocked() {
	if fp.sender == nil {
		return
	}
	f := Frame{Colors: fp.colors, ActiveMask: fp.active, Seq: fp.seq}
	fp.seq++
	if err := fp.sender.SendFrame(f); err != nil && fp.onErr != nil {
		fp.onErr(err)
	}
}
