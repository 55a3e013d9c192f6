package config

import "reflect"

// ConfigDiff describes what changed between two configs. Hot fields can be
// applied to a running trigger mic; everything else is listed in
// RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	TriggerWordChanged   bool
	SensitivityChanged   bool
	SilenceFramesChanged bool
	FlushOnEndChanged    bool

	// RestartRequired names the changed sections that only take effect after
	// a restart (e.g., "trigger.source", "providers.stt").
	RestartRequired []string
}

// HotChanged reports whether any hot-reloadable trigger field changed.
func (d ConfigDiff) HotChanged() bool {
	return d.TriggerWordChanged || d.SensitivityChanged || d.SilenceFramesChanged || d.FlushOnEndChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	ot, nt := old.Trigger, new.Trigger
	d.TriggerWordChanged = ot.TriggerWord != nt.TriggerWord
	d.SensitivityChanged = ot.Sensitivity() != nt.Sensitivity()
	d.SilenceFramesChanged = ot.SilenceFrames != nt.SilenceFrames
	d.FlushOnEndChanged = ot.FlushOnEnd != nt.FlushOnEnd

	restart := func(changed bool, name string) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, name)
		}
	}
	restart(old.Server.ListenAddr != new.Server.ListenAddr || !reflect.DeepEqual(old.Server.TLS, new.Server.TLS), "server")
	restart(ot.Source != nt.Source, "trigger.source")
	restart(ot.SampleRate != nt.SampleRate || ot.FrameMs != nt.FrameMs, "trigger.format")
	restart(ot.MaxSegmentBytes != nt.MaxSegmentBytes, "trigger.max_segment_bytes")
	restart(!reflect.DeepEqual(old.Providers.VAD, new.Providers.VAD), "providers.vad")
	restart(!reflect.DeepEqual(old.Providers.STT, new.Providers.STT) ||
		!reflect.DeepEqual(old.Providers.STTFallbacks, new.Providers.STTFallbacks) ||
		old.Providers.STTBreaker != new.Providers.STTBreaker, "providers.stt")
	restart(!reflect.DeepEqual(old.Sources, new.Sources), "sources")
	restart(old.Output != new.Output, "output")

	return d
}
