package causallog

// cfg holds every tunable recognized by this core (spec §6.3), applied via
// functional Opts in the same style as the teacher's Offset builder
// (AtStart/AtEnd/WithEpoch).
type cfg struct {
	logger Logger

	sharingDepth int

	maxSegmentsPerPool int64

	// inflight carries the in-flight record logger's config keys
	// (spec §6.3's inflight.* rows) as opaque passthrough: this core
	// doesn't implement that collaborator, it only gives a host wiring
	// both together a single config surface.
	inflight map[string]string
}

func defaultCfg() *cfg {
	return &cfg{
		logger:       NopLogger{},
		sharingDepth: 1,
		inflight: map[string]string{
			"inflight.type":                       "spillable",
			"inflight.spill.policy":               "eager",
			"inflight.spill.availability_trigger": "0.3",
			"inflight.spill.num_recovery_buffers": "50",
			"inflight.spill.sleep_ms":             "50",
		},
	}
}

// Opt configures a JobCausalLog at construction.
type Opt func(*cfg)

// WithLogger plugs in a Logger; defaults to NopLogger.
func WithLogger(l Logger) Opt {
	return func(c *cfg) { c.logger = l }
}

// WithSharingDepth sets causal.sharing_depth (spec §3 invariant 6). -1
// means unbounded; the default is 1.
func WithSharingDepth(depth int) Opt {
	return func(c *cfg) { c.sharingDepth = depth }
}

// WithMaxSegmentsPerPool bounds how many pooled segments may be on loan
// concurrently before CapacityError is returned. Zero/negative means the
// package default.
func WithMaxSegmentsPerPool(n int64) Opt {
	return func(c *cfg) { c.maxSegmentsPerPool = n }
}

// WithInflightOption sets one of the inflight.* passthrough keys
// (spec §6.3) for a host that wires this core alongside the in-flight
// record logger collaborator.
func WithInflightOption(key, value string) Opt {
	return func(c *cfg) { c.inflight[key] = value }
}
