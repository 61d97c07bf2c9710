package enginemgr

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
)

// ControlChannel polls a command source on a fixed schedule and maps
// reload directives onto Manager.Create.
type ControlChannel struct {
	mu      sync.Mutex
	cron    *cron.Cron
	mgr     *Manager
	poll    func() (configPath string, reload bool)
	logger  Logger
	running bool
}

// NewControlChannel builds a control channel that calls poll on the
// given cron schedule (e.g. "@every 30s"). poll returns the config path
// to load and whether a reload has been requested since the last tick.
func NewControlChannel(mgr *Manager, schedule string, poll func() (string, bool), logger Logger) (*ControlChannel, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("enginemgr: invalid control channel schedule %q: %w", schedule, err)
	}
	cc := &ControlChannel{cron: cron.New(), mgr: mgr, poll: poll, logger: logger}
	if _, err := cc.cron.AddFunc(schedule, cc.tick); err != nil {
		return nil, fmt.Errorf("enginemgr: schedule control channel: %w", err)
	}
	return cc, nil
}

func (cc *ControlChannel) tick() {
	path, reload := cc.poll()
	if !reload {
		return
	}
	if err := cc.mgr.Create(path); err != nil {
		if cc.logger != nil {
			cc.logger.Errorf("enginemgr: control channel reload of %s failed: %v", path, err)
		}
		return
	}
	cc.mgr.Cleanup()
	if cc.logger != nil {
		cc.logger.Infof("enginemgr: control channel reloaded engine from %s", path)
	}
}

// Start begins polling in the background.
func (cc *ControlChannel) Start() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cron.Start()
	cc.running = true
}

// Stop halts polling and waits for any in-flight tick to finish.
func (cc *ControlChannel) Stop() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if !cc.running {
		return
	}
	<-cc.cron.Stop().Done()
	cc.running = false
}
