package projector

// EffectKind classifies a side effect requested by the reducer. The reducer
// itself is pure: it returns effects for the caller to execute instead of
// reaching into the channel or UI directly.
type EffectKind int

const (
	// EffectChannelTeardown asks the owner to disconnect the push channel.
	EffectChannelTeardown EffectKind = iota
	// EffectSessionEnded carries the resolved end reason and notice text.
	EffectSessionEnded
	// EffectDisplayModeChanged notifies display-mode observers.
	EffectDisplayModeChanged
	// EffectSurfaceError passes an error event through for surfacing.
	EffectSurfaceError
)

// Effect is one side effect requested by a reduction.
type Effect struct {
	Kind    EffectKind
	Mode    string // display mode, for EffectDisplayModeChanged
	Reason  string // raw end reason, for EffectSessionEnded
	Notice  string // human-readable notice, for EffectSessionEnded
	Message string // surfaced message, for EffectSurfaceError
}
