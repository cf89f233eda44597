package episode

// ClockSource tells which clock a timestamp was taken from. Device and
// host clocks drift independently, so windows are tracked per source.
type ClockSource string

const (
	ClockHost   ClockSource = "host"
	ClockDevice ClockSource = "device"
)

// TimeWindow anchors an episode to a clock interval. All values are
// epoch milliseconds; SlackMS widens the interval symmetrically to
// absorb clock skew and capture latency.
type TimeWindow struct {
	StartMS int64 `json:"start_ms"`
	EndMS   int64 `json:"end_ms"`
	SlackMS int64 `json:"slack_ms"`
}

// Contains reports whether ts falls inside the slack-widened window.
// Evidence timestamped outside the window must not influence a verdict.
func (w TimeWindow) Contains(ts int64) bool {
	return ts >= w.StartMS-w.SlackMS && ts <= w.EndMS+w.SlackMS
}

// Defined reports whether the window carries real bounds.
func (w TimeWindow) Defined() bool {
	return w.StartMS != 0 || w.EndMS != 0
}

// Time holds the episode's windows for both clock sources.
type Time struct {
	Host   TimeWindow `json:"host"`
	Device TimeWindow `json:"device"`
}

// For selects the window matching the clock an evidence source uses.
// Unknown sources fall back to the host window.
func (t Time) For(src ClockSource) TimeWindow {
	if src == ClockDevice && t.Device.Defined() {
		return t.Device
	}
	return t.Host
}
