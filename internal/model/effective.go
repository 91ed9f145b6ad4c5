package model

// FieldOrigin names the precedence layer that supplied a field value.
type FieldOrigin string

// Field origin constants, lowest to highest precedence.
const (
	OriginRaw        FieldOrigin = "raw"
	OriginRule       FieldOrigin = "rule"
	OriginCorrection FieldOrigin = "correction"
)

// FieldAudit records which layer supplied one field of an effective
// view, and the id of the overlay when it was not the raw event.
type FieldAudit struct {
	Origin    FieldOrigin `json:"origin"`
	OverlayID string      `json:"overlay_id,omitempty"`
}

// EffectiveAudit holds the per-field provenance of an effective view.
type EffectiveAudit struct {
	Amount   FieldAudit `json:"amount"`
	Category FieldAudit `json:"category"`
	Note     FieldAudit `json:"note"`
}

// EffectiveView is the read-time result of layering the active
// correction over the best matching rule over the raw event. It is a
// pure projection: never stored, never independently mutated.
type EffectiveView struct {
	Event    RawEvent       `json:"event"`
	Category string         `json:"category,omitempty"`
	Note     string         `json:"note"`
	Audit    EffectiveAudit `json:"audit"`
	Amount   int64          `json:"amount"`
}
