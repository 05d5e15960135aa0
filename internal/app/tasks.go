// internal/app/tasks.go
package app

import (
	"github.com/tamzrod/surplus-charger/internal/config"
	"github.com/tamzrod/surplus-charger/internal/scheduler"
	"github.com/tamzrod/surplus-charger/internal/status"
)

// Task names.
const (
	TaskFast    = "inverter_fast"
	TaskSlow    = "inverter_slow"
	TaskControl = "control"
	TaskWallbox = "wallbox_power"
)

// Tasks returns the periodic tasks with one health tracker each.
// A task is stale once it has not succeeded for three intervals.
func (a *App) Tasks(s config.ScheduleConfig) ([]scheduler.Task, map[string]*status.Tracker) {
	timeout := config.Ms(s.CycleTimeoutMs)

	tasks := []scheduler.Task{
		{Name: TaskFast, Interval: config.Ms(s.FastIntervalMs), Run: a.FastCycle},
		{Name: TaskSlow, Interval: config.Ms(s.SlowIntervalMs), Run: a.SlowCycle},
		{Name: TaskControl, Interval: config.Ms(s.ControlIntervalMs), Run: a.ControlCycle},
		{Name: TaskWallbox, Interval: config.Ms(s.WallboxIntervalMs), Run: a.WallboxPowerCycle},
	}

	health := make(map[string]*status.Tracker, len(tasks))
	for i := range tasks {
		t := &tasks[i]
		t.Timeout = min(timeout, t.Interval)
		t.Health = status.NewTracker(3 * t.Interval)
		health[t.Name] = t.Health
	}
	return tasks, health
}

