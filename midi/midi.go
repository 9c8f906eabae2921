// Package midi turns MIDI note input into pad triggers via the rtmidi
// driver. Notes map to slots chromatically from a base note; velocity maps
// to trigger volume. Events are dispatched on the driver's callback thread
// to the engine's control surface, so they take effect at the next block
// boundary.
package midi

import (
	"errors"
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// DefaultBaseNote is C3; with 26 slots the pads span C3..C#5.
const DefaultBaseNote = 48

// TriggerFunc receives decoded pad triggers. velocity is 0..1.
type TriggerFunc func(slot int, velocity float64)

type Context struct {
	driver    *rtmididrv.Driver
	currentIn drivers.In
	baseNote  int
	trigger   TriggerFunc
}

// NewContext opens the rtmidi driver. If no driver is available the context
// still works; it just has no devices.
func NewContext(baseNote int, trigger TriggerFunc) *Context {
	c := &Context{baseNote: baseNote, trigger: trigger}
	// there's not much we can do if this fails, so just use c.driver = nil
	// to indicate no driver available
	c.driver, _ = rtmididrv.New()
	return c
}

// InputNames lists the names of the available MIDI inputs.
func (c *Context) InputNames() []string {
	if c.driver == nil {
		return nil
	}
	ins, err := c.driver.Ins()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(ins))
	for _, in := range ins {
		names = append(names, in.String())
	}
	return names
}

// OpenByPrefix opens the first input whose name starts with namePrefix and
// starts listening on it, closing the previously open input if necessary.
// An empty prefix opens the first available input.
func (c *Context) OpenByPrefix(namePrefix string) error {
	if c.driver == nil {
		return errors.New("no MIDI driver available")
	}
	ins, err := c.driver.Ins()
	if err != nil {
		return fmt.Errorf("listing MIDI inputs failed: %w", err)
	}
	for _, in := range ins {
		if !strings.HasPrefix(in.String(), namePrefix) {
			continue
		}
		if c.HasDeviceOpen() {
			c.currentIn.Close()
		}
		c.currentIn = in
		if err := in.Open(); err != nil {
			c.currentIn = nil
			return fmt.Errorf("opening MIDI input failed: %w", err)
		}
		if _, err := midi.ListenTo(in, c.handleMessage); err != nil {
			in.Close()
			c.currentIn = nil
			return fmt.Errorf("listening to MIDI input failed: %w", err)
		}
		return nil
	}
	return fmt.Errorf("no MIDI input starting with %q", namePrefix)
}

func (c *Context) HasDeviceOpen() bool {
	return c.currentIn != nil && c.currentIn.IsOpen()
}

func (c *Context) Close() {
	if c.driver == nil {
		return
	}
	if c.HasDeviceOpen() {
		c.currentIn.Close()
	}
	c.driver.Close()
}

func (c *Context) handleMessage(msg midi.Message, timestampms int32) {
	var channel, key, velocity uint8
	if !msg.GetNoteOn(&channel, &key, &velocity) || velocity == 0 {
		return
	}
	slot := int(key) - c.baseNote
	if slot < 0 {
		return
	}
	c.trigger(slot, float64(velocity)/127)
}
