package engine

import (
	"github.com/padgrid/padgrid"
)

// Control calls never touch the render state directly. Each mutation is
// boxed into one of the small message types below and sent over the
// Engine's command channel; Process drains the channel at the start of
// every block and applies the messages before rendering, so a command takes
// effect at a block boundary and never races the mixer. Status flows the
// other way through atomics only.
type (
	msgTransport struct {
		playing bool
		bpm     int
		steps   int
	}

	msgBPM struct{ bpm int }

	// msgGrid replaces the render side's grid snapshot wholesale. Shipping
	// the full copy on every edit keeps the two sides trivially convergent:
	// a dropped update is healed by the next one.
	msgGrid struct{ grid *padgrid.Grid }

	msgBank struct {
		slot   int
		params padgrid.BankParams
	}

	// msgTrigger fires a manual voice with precomputed parameters.
	msgTrigger struct {
		slot  int
		gain  float64
		pitch float64
	}

	msgStopSlot struct{ slot int }

	msgStopAll struct{}

	// msgSlotChanged tells the mixer the published sample under the slot was
	// replaced or removed, so the voice playing the old one must wind down.
	msgSlotChanged struct{ slot int }

	msgMaster struct{ volume float64 }

	msgSmoothing struct {
		riseMs float64
		fallMs float64
	}

	msgRecStart struct{ rec *recording }

	msgRecStop struct{}
)

// processMessages applies all pending commands. Runs on the render
// goroutine at the start of every block; never blocks.
func (e *Engine) processMessages() {
loop:
	for {
		select {
		case msg := <-e.toRender:
			switch m := msg.(type) {
			case msgTransport:
				if m.playing {
					e.render.clock.start(m.bpm, m.steps)
					e.curStep.Store(0)
				} else {
					e.render.clock.stop()
				}
			case msgBPM:
				e.render.clock.setBPM(m.bpm)
			case msgGrid:
				e.render.grid = m.grid
			case msgBank:
				if m.slot >= 0 && m.slot < len(e.render.bank) {
					e.render.bank[m.slot] = m.params
				}
			case msgTrigger:
				e.trigger(m.slot, m.gain, m.pitch)
			case msgStopSlot:
				e.releaseVoice(m.slot)
			case msgStopAll:
				for i := range e.render.voices {
					e.releaseVoice(i)
				}
			case msgSlotChanged:
				e.releaseVoice(m.slot)
			case msgMaster:
				e.render.masterTarget = float32(m.volume)
			case msgSmoothing:
				e.render.setSmoothing(m.riseMs, m.fallMs)
			case msgRecStart:
				e.render.rec = m.rec
			case msgRecStop:
				e.render.rec = nil
			default:
				// ignore unknown messages
			}
		default:
			break loop
		}
	}
}

// trySend is a non-blocking send, for the render side: a full channel drops
// the value rather than stalling the audio callback. Returns whether the
// value was sent.
func trySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// getAudioBuffer borrows an empty buffer from the pool. Return it with
// putAudioBuffer once the receiving side is done with it.
func (e *Engine) getAudioBuffer() *padgrid.AudioBuffer {
	return e.bufferPool.Get().(*padgrid.AudioBuffer)
}

// putAudioBuffer resets the buffer's length, keeping its capacity, and
// returns it to the pool.
func (e *Engine) putAudioBuffer(buf *padgrid.AudioBuffer) {
	if len(*buf) > 0 {
		*buf = (*buf)[:0]
	}
	e.bufferPool.Put(buf)
}
