package game

import "time"

// waitCountdown blocks for d, calling tick every interval. Both timers are
// stopped on return. It reports false if stop closed first.
func waitCountdown(d, interval time.Duration, stop <-chan struct{}, tick func()) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tick()
		case <-timer.C:
			return true
		case <-stop:
			return false
		}
	}
}

// sleep waits d unless stop closes first.
func sleep(d time.Duration, stop <-chan struct{}) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-stop:
		return false
	}
}
