package profile

// Actuation is the per-key actuation configuration carried by a profile.
// It mirrors matrix.Actuation field-for-field; the two stay separate types
// so the matrix engine never needs to import the profile model — the glue
// layer that loads a profile into the engine does the (trivial) copy.
type Actuation struct {
	Point      uint8
	RTDown     uint8
	RTUp       uint8
	Continuous bool
}

// AdvancedKeyType discriminates the AdvancedKey tagged union.
type AdvancedKeyType uint8

const (
	AKNone AdvancedKeyType = iota
	AKNullBind
	AKDynamicKeystroke
	AKTapHold
	AKToggle
	AKCombo
	AKMacro
)

func (t AdvancedKeyType) String() string {
	switch t {
	case AKNullBind:
		return "null_bind"
	case AKDynamicKeystroke:
		return "dynamic_keystroke"
	case AKTapHold:
		return "tap_hold"
	case AKToggle:
		return "toggle"
	case AKCombo:
		return "combo"
	case AKMacro:
		return "macro"
	default:
		return "none"
	}
}

// TapHoldFlavor selects which rule resolves a TAP-stage slot to HOLD.
type TapHoldFlavor uint8

const (
	FlavorHoldPreferred TapHoldFlavor = iota
	FlavorBalanced
	FlavorTapPreferred
	FlavorTapUnlessInterrupted
)

// TapHoldConfig is the Tap-Hold variant payload (§4.3.1).
type TapHoldConfig struct {
	TapKeycode          Keycode
	HoldKeycode         Keycode
	TappingTermMS       uint32
	Flavor              TapHoldFlavor
	HoldOnOtherKeyPress bool // "hold_while_undecided" flag
	PermissiveHold      bool
	RetroTapping        bool
	QuickTapMS          uint32
	RequirePriorIdleMS  uint32
	DoubleTapKeycode    Keycode
}

// ToggleConfig is the Toggle variant payload (§4.3.2).
type ToggleConfig struct {
	Keycode       Keycode
	TappingTermMS uint32
}

// DKSAction is the 2-bit remapped action a Dynamic Keystroke sub-binding
// performs for a given physical event.
type DKSAction uint8

const (
	DKSHold DKSAction = iota
	DKSPress
	DKSRelease
	DKSTap
)

// DKSBinding is one of the four independent sub-bindings in a Dynamic
// Keystroke slot.
type DKSBinding struct {
	Keycode Keycode
	// ActionBitmap packs four 2-bit DKSAction values, one per physical
	// event kind (PRESS, BOTTOM_OUT, RELEASE_FROM_BOTTOM_OUT, RELEASE),
	// extracted as (bitmap >> (eventKind*2)) & 3.
	ActionBitmap uint8
}

// Action returns the DKSAction this binding performs for the given
// physical event kind (0..3).
func (b DKSBinding) Action(eventKind int) DKSAction {
	return DKSAction((b.ActionBitmap >> uint(eventKind*2)) & 3)
}

// DKSConfig is the Dynamic Keystroke variant payload (§4.3.3).
type DKSConfig struct {
	Bindings        [4]DKSBinding
	BottomOutPoint  uint8
}

// NBBehavior is the SOCD reconciliation policy for a Null Bind pair.
type NBBehavior uint8

const (
	NBDistance NBBehavior = iota
	NBLast
	NBPrimary
	NBSecondary
	NBNeutral
)

// NullBindConfig is the Null Bind variant payload (§4.3.4).
type NullBindConfig struct {
	PrimaryKey     int
	SecondaryKey   int
	Keycodes       [2]Keycode
	Behavior       NBBehavior
	BottomOutPoint uint8
}

// ComboConfig is the Combo variant payload (§4.3.5). Combo advanced keys
// are not installed into advanced_key_indices; they are matched against
// the flat advanced-key list by the combo engine instead.
type ComboConfig struct {
	Keys          []int // required physical keys, up to the combo key cap
	TermMS        uint32
	OutputKeycode Keycode
	Layer         int
}

// MacroActionType is one step kind in a macro sequence.
type MacroActionType uint8

const (
	MacroEnd MacroActionType = iota
	MacroTap
	MacroPress
	MacroRelease
	MacroDelay
)

// MacroEvent is one step of a macro sequence (§4.3.6). For MacroDelay,
// Keycode holds the delay multiplier (delay = Keycode * 10ms).
type MacroEvent struct {
	Action  MacroActionType
	Keycode Keycode
}

const MaxMacroEvents = 16

// MacroConfig is the Macro variant payload.
type MacroConfig struct {
	Events [MaxMacroEvents]MacroEvent
}

// AdvancedKey is the tagged-union advanced-key binding (§3). Only the
// field matching Type is meaningful; the others are the union's unused
// arms, kept zero. This mirrors the source's packed C union as a flat,
// fixed-size Go struct rather than an interface, so the whole table stays
// a single contiguous, allocation-free array.
type AdvancedKey struct {
	Type  AdvancedKeyType
	Layer int
	Key   int // primary physical key this binding is attached to

	TapHold  TapHoldConfig
	Toggle   ToggleConfig
	DKS      DKSConfig
	NullBind NullBindConfig
	Combo    ComboConfig
	Macro    MacroConfig
}

// LayerMask is the 8-bit active-layer bitmap plus the fallback default
// layer (§3). Bit i set means layer i is active via a held Momentary-Layer
// key; Layer-Lock sets DefaultLayer rather than a bit.
type LayerMask struct {
	Mask         uint8
	DefaultLayer int
}

// Current returns the highest active layer, or DefaultLayer if no layer
// bit is set.
func (m LayerMask) Current() int {
	if m.Mask == 0 {
		return m.DefaultLayer
	}
	highest := 0
	for i := 7; i >= 0; i-- {
		if m.Mask&(1<<uint(i)) != 0 {
			highest = i
			break
		}
	}
	return highest
}

// SetLayer sets or clears layer i's bit.
func (m *LayerMask) SetLayer(layer int, active bool) {
	if layer < 0 || layer > 7 {
		return
	}
	if active {
		m.Mask |= 1 << uint(layer)
	} else {
		m.Mask &^= 1 << uint(layer)
	}
}

// GamepadButton is one key's XInput mapping.
type GamepadButton struct {
	Button   uint16
	Override bool // gamepad_override: don't deliver this key to the keyboard path
}

// GamepadOptions are the global gamepad_options bits.
type GamepadOptions struct {
	XInputEnabled   bool
	KeyboardEnabled bool
}

// ActiveProfile is one of NUM_PROFILES configuration images (§3). It is
// read-only to runtime code; mutation paths must call AdvancedKeyClearer
// (advancedkey.Engine.Clear) then layout.Engine.LoadAdvancedKeys before the
// next tick, per the invariant in §3 and §6.
type ActiveProfile struct {
	NumLayers      int
	Keymap         [][]Keycode // [layer][key]
	Actuation      []Actuation // [key]
	AdvancedKeys   []AdvancedKey
	GamepadButtons []GamepadButton // [key]
	GamepadOptions GamepadOptions
	Layers         LayerMask
}

// NewActiveProfile allocates a profile image for numLayers layers and
// numKeys keys, with every keymap cell set to KCTransparent except layer 0
// which starts at KCNone (so an unconfigured profile keeps every key
// leaf-level no-op rather than noisy).
func NewActiveProfile(numLayers, numKeys int) *ActiveProfile {
	p := &ActiveProfile{
		NumLayers:      numLayers,
		Keymap:         make([][]Keycode, numLayers),
		Actuation:      make([]Actuation, numKeys),
		GamepadButtons: make([]GamepadButton, numKeys),
	}
	for l := 0; l < numLayers; l++ {
		p.Keymap[l] = make([]Keycode, numKeys)
		if l > 0 {
			for k := range p.Keymap[l] {
				p.Keymap[l][k] = KCTransparent
			}
		}
	}
	for k := range p.Actuation {
		p.Actuation[k] = Actuation{Point: 40}
	}
	return p
}
