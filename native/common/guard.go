package common

import "errors"

var (
	ErrModulePaused = errors.New("module paused")
	// ErrReentry is returned when a market operation is invoked while another
	// settlement on the same engine is still in flight.
	ErrReentry = errors.New("settlement in progress")
)

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// SettleGuard rejects nested entry into an engine while a settlement is in
// flight. Operations run single-threaded and atomically, so a plain flag is
// sufficient; the guard exists to stop event or transfer hooks from calling
// back into the engine mid-settlement.
type SettleGuard struct {
	busy bool
}

// Enter marks the guard busy, failing when a settlement is already running.
func (g *SettleGuard) Enter() error {
	if g == nil {
		return nil
	}
	if g.busy {
		return ErrReentry
	}
	g.busy = true
	return nil
}

// Exit releases the guard.
func (g *SettleGuard) Exit() {
	if g == nil {
		return
	}
	g.busy = false
}
