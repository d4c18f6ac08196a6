package panel

import (
	"errors"

	appLog "panelseq/internal/log"
)

// Link is what the LS054B3SX01 requests of its host: four lanes of RGB888
// burst video with low-power command transmission.
var Link = LinkConfig{
	Lanes:  4,
	Format: FormatRGB888,
	Flags: LinkVideo | LinkVideoBurst | LinkLowPowerCommands | LinkNoEOTPacket |
		LinkClockNonContinuous | LinkVideoHSE | LinkVideoAutoVert,
}

// AttachConfig gathers everything Attach needs. Registry, Clock and Timings
// are optional.
type AttachConfig struct {
	Source   ConfigSource
	Channel  Commander
	Host     Host
	Registry Registry
	Clock    Clock
	Timings  Timings
}

// Attach resolves the panel's rails, reset line and orientation, registers
// it, and attaches it to the host link. Failing to resolve a resource is a
// ResourceUnavailable error; a host attach failure unregisters the panel and
// returns AttachFailure.
func Attach(cfg AttachConfig) (*Panel, error) {
	if cfg.Source == nil {
		return nil, newError(ResourceUnavailable, "config", errors.New("no config source"))
	}
	if cfg.Host == nil {
		return nil, newError(AttachFailure, "host", errors.New("no host"))
	}

	var res Resources
	rails := []*Rail{&res.IOVCC, &res.VSP, &res.VSN}
	for i, name := range RailOrder {
		r, err := cfg.Source.Rail(name)
		if err != nil {
			appLog.Error("failed to get supply", err, "rail", name)
			return nil, newError(ResourceUnavailable, name, err)
		}
		*rails[i] = r
	}

	reset, err := cfg.Source.ResetLine(ResetName)
	if err != nil {
		appLog.Error("failed to get reset line", err)
		return nil, newError(ResourceUnavailable, ResetName, err)
	}
	res.Reset = reset

	o, err := cfg.Source.Orientation()
	if err != nil {
		appLog.Error("failed to get orientation", err)
		return nil, newError(ResourceUnavailable, "orientation", err)
	}
	res.Orientation = o

	p, err := New(res, cfg.Channel, cfg.Clock, cfg.Timings)
	if err != nil {
		return nil, err
	}
	p.host = cfg.Host
	p.registry = cfg.Registry

	if p.registry != nil {
		p.registry.Add(p)
	}
	if err := p.host.Attach(Link); err != nil {
		appLog.Error("failed to attach to host", err)
		if p.registry != nil {
			p.registry.Remove(p)
		}
		return nil, newError(AttachFailure, "host attach", err)
	}

	appLog.Info("panel attached",
		"compatible", Compatible,
		"orientation", o.String(),
		"lanes", Link.Lanes,
		"format", Link.Format.String(),
	)
	return p, nil
}

// Detach powers the panel down if needed, detaches it from the host and
// unregisters it. If the orderly unprepare fails the rails are dropped
// anyway since the panel is going away. A host detach failure is logged and
// returned after the panel has been unregistered.
func (p *Panel) Detach() error {
	if p.state == Prepared {
		if err := p.Unprepare(); err != nil {
			appLog.Error("unprepare on detach failed; forcing power off", err)
			p.powerOff()
			p.state = Unprepared
		}
	}

	var detachErr error
	if p.host != nil {
		if err := p.host.Detach(); err != nil {
			appLog.Error("failed to detach from host", err)
			detachErr = newError(AttachFailure, "host detach", err)
		}
	}
	if p.registry != nil {
		p.registry.Remove(p)
	}
	appLog.Info("panel detached", "compatible", Compatible)
	return detachErr
}
