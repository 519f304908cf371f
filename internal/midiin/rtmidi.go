package midiin

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// rtmidiPorts is the cgo rtmidi backend. Names remembers the ports it saw
// so Open does not list them again.
type rtmidiPorts struct {
	drv  *rtmididrv.Driver
	seen map[string]drivers.In
}

func openRtmidi() (*rtmidiPorts, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	return &rtmidiPorts{drv: drv}, nil
}

func (p *rtmidiPorts) Names() ([]string, error) {
	ins, err := p.drv.Ins()
	if err != nil {
		return nil, err
	}
	p.seen = make(map[string]drivers.In, len(ins))
	names := make([]string, 0, len(ins))
	for _, in := range ins {
		p.seen[in.String()] = in
		names = append(names, in.String())
	}
	return names, nil
}

func (p *rtmidiPorts) Open(name string, onMsg func(midi.Message), onErr func(error)) (func(), error) {
	in, ok := p.seen[name]
	if !ok {
		return nil, fmt.Errorf("input %q not found", name)
	}
	if err := in.Open(); err != nil {
		return nil, err
	}
	stop, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
		onMsg(msg)
	}, midi.HandleError(onErr))
	if err != nil {
		_ = in.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}
	return func() {
		stop()
		_ = in.Close()
	}, nil
}

func (p *rtmidiPorts) Close() {
	p.drv.Close()
}
