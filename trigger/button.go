// highlight-recorder - save the last few minutes of camera footage on demand
//  Copyright (C) 2026, The Cacophony Project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package trigger

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
)

const edgePollInterval = time.Second

// edgePin is the part of gpio.PinIO the button needs.
type edgePin interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	WaitForEdge(timeout time.Duration) bool
}

// Button fires a trigger on each falling edge of a pulled-up input pin,
// i.e. a push button wired between the pin and ground.
type Button struct {
	name string
	pin  edgePin
	ch   *Channel
}

// NewButton configures the named GPIO pin (e.g. "GPIO2") for edge
// detection. host.Init must have been called first.
func NewButton(pinName string, ch *Channel) (*Button, error) {
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, fmt.Errorf("unable to load button pin %s", pinName)
	}
	return newButton(pinName, pin, ch)
}

func newButton(name string, pin edgePin, ch *Channel) (*Button, error) {
	if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("failed to set up button pin %s: %v", name, err)
	}
	return &Button{name: name, pin: pin, ch: ch}, nil
}

// Run waits for button presses until ctx is cancelled.
func (b *Button) Run(ctx context.Context) {
	defer b.release()
	log.Printf("button ready on %s", b.name)
	for ctx.Err() == nil {
		if !b.pin.WaitForEdge(edgePollInterval) {
			continue
		}
		if b.ch.Fire("button") {
			log.Print("button pressed")
		}
	}
}

// release turns off edge detection; the pin stays a pulled-up input.
func (b *Button) release() {
	if err := b.pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		log.Printf("failed to release button pin %s: %v", b.name, err)
	}
}
