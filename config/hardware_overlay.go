package config

const hardwareModulePath = "cue.mod/module.cue"
const hardwareOverlayPath = "cue.mod/pkg/tactus.dev/tactus/hardware/hardware.cue"

const hardwareModuleContent = `module: "tactus.dev/tactus"
language: {
    version: "v0.8.0"
}
`

const hardwareOverlayContent = `package hardware

#Hardware: {
    name?: string
    logging?: #Logging
    telemetry?: #Telemetry
    modules: {[string]: #Module}
    ...
}

#Logging: {
    level?: string
    format?: "json" | "text"
    loki?: {
        enabled?: bool
        url?: string
        labels?: {[string]: string}
        ...
    }
    ...
}

#Telemetry: {
    enabled?: bool
    listen?: string
    ...
}

#Module: {
    instrument_type: "QCM" | "QRM" | "QCM_RF" | "QRM_RF"
    channels: {[string]: #Channel}
    ...
}

#Channel: {
    lo_freq?: number
    output_att?: int & >=0 & <=60
    input_att?: int & >=0 & <=30
    dc_mixer_offset_i?: number
    dc_mixer_offset_q?: number
    input_gain_i?: int
    input_gain_q?: int
    portclock_configs: [...#PortClock]
    ...
}

#PortClock: {
    port: string & !=""
    clock: string & !=""
    interm_freq?: number
    mixer_amp_ratio?: number & >=0.5 & <=2.0
    mixer_phase_error_deg?: number & >=-45 & <=45
    init_offset_awg_path_0?: number & >=-1.0 & <=1.0
    init_offset_awg_path_1?: number & >=-1.0 & <=1.0
    init_gain_awg_path_0?: number & >=-1.0 & <=1.0
    init_gain_awg_path_1?: number & >=-1.0 & <=1.0
    options?: #SequencerOptions
    ...
}

#SequencerOptions: {
    instruction_generated_pulses_enabled?: bool
    ttl_acq_threshold?: number
    ...
}
`

func init() {
	RegisterDefaultOverlay(func() error {
		if err := RegisterOverlayString(hardwareModulePath, hardwareModuleContent); err != nil {
			return err
		}
		return RegisterOverlayString(hardwareOverlayPath, hardwareOverlayContent)
	})
}
