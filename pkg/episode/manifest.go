package episode

// RunManifest is the harness-written identity record for one run.
type RunManifest struct {
	RunID          string      `json:"run_id"`
	CaseID         string      `json:"case_id,omitempty"`
	TaskID         string      `json:"task_id,omitempty"`
	HarnessVersion string      `json:"harness_version"`
	DeviceSerial   string      `json:"device_serial,omitempty"`
	HostWindow     *TimeWindow `json:"host_window,omitempty"`
	DeviceWindow   *TimeWindow `json:"device_window,omitempty"`
	TraceFiles     []string    `json:"trace_files,omitempty"`
}

// Windows assembles the episode clock windows the manifest declares.
func (m *RunManifest) Windows() Time {
	var t Time
	if m.HostWindow != nil {
		t.Host = *m.HostWindow
	}
	if m.DeviceWindow != nil {
		t.Device = *m.DeviceWindow
	}
	return t
}

// ReadManifest loads run_manifest.json.
func (b *Bundle) ReadManifest() (*RunManifest, error) {
	var m RunManifest
	if err := b.ReadJSON(ManifestFile, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Capabilities is the harness-probed capability map for the episode's
// environment. Oracles gate on it instead of guessing what the device
// could answer.
type Capabilities struct {
	Capabilities map[string]bool `json:"capabilities"`
}

// Has reports whether the named capability was probed as available.
func (c *Capabilities) Has(name string) bool {
	if c == nil {
		return false
	}
	return c.Capabilities[name]
}

// Missing returns the subset of required capabilities that are absent,
// in input order.
func (c *Capabilities) Missing(required []string) []string {
	var missing []string
	for _, name := range required {
		if !c.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// ReadCapabilities loads env_capabilities.json.
func (b *Bundle) ReadCapabilities() (*Capabilities, error) {
	var c Capabilities
	if err := b.ReadJSON(CapabilitiesFile, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
