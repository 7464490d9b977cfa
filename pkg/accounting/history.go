package accounting

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// ExpirationMode is the 4-tuple ExpirationPolicy.GetParameters embeds
// verbatim in each cycle's history entry. Go code builds and reads it as a
// struct; the wire form is the documented 4-element JSON array.
type ExpirationMode struct {
	Mode                  string
	OverrideLeaseDuration *int64
	CutoffDate            *int64
	SubjectSharetypes     []string
}

// MarshalJSON encodes the 4-tuple as a JSON array, matching spec §6's
// documented wire shape.
func (e ExpirationMode) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]any{e.Mode, e.OverrideLeaseDuration, e.CutoffDate, e.SubjectSharetypes})
}

// UnmarshalJSON decodes the 4-element array form back into an ExpirationMode.
func (e *ExpirationMode) UnmarshalJSON(data []byte) error {
	var tuple [4]json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("accounting: decode configured-expiration-mode: %w", err)
	}
	if err := json.Unmarshal(tuple[0], &e.Mode); err != nil {
		return fmt.Errorf("accounting: decode expiration mode: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &e.OverrideLeaseDuration); err != nil {
		return fmt.Errorf("accounting: decode override lease duration: %w", err)
	}
	if err := json.Unmarshal(tuple[2], &e.CutoffDate); err != nil {
		return fmt.Errorf("accounting: decode cutoff date: %w", err)
	}
	if err := json.Unmarshal(tuple[3], &e.SubjectSharetypes); err != nil {
		return fmt.Errorf("accounting: decode subject sharetypes: %w", err)
	}
	return nil
}

// JSONSchema describes ExpirationMode's wire shape to invopop/jsonschema as
// the 4-element tuple MarshalJSON actually produces, since reflection alone
// would otherwise document the Go struct shape instead.
func (ExpirationMode) JSONSchema() *jsonschema.Schema {
	nullable := func(s *jsonschema.Schema) *jsonschema.Schema {
		return &jsonschema.Schema{AnyOf: []*jsonschema.Schema{s, {Type: "null"}}}
	}
	return tupleSchema(
		"configured-expiration-mode",
		&jsonschema.Schema{Type: "string", Enum: []any{"age", "cutoff-date"}},
		nullable(&jsonschema.Schema{Type: "integer"}),
		nullable(&jsonschema.Schema{Type: "integer"}),
		nullable(&jsonschema.Schema{Type: "array", Items: &jsonschema.Schema{Type: "string"}}),
	)
}

// tupleSchema builds a fixed-length JSON array schema from its item schemas,
// the shape spec §6 uses for both configured-expiration-mode and each
// lease-age-histogram entry.
func tupleSchema(title string, items ...*jsonschema.Schema) *jsonschema.Schema {
	prefix := make([]*jsonschema.Schema, len(items))
	copy(prefix, items)
	return &jsonschema.Schema{
		Title:       title,
		Type:        "array",
		MinItems:    &[]uint64{uint64(len(items))}[0],
		MaxItems:    &[]uint64{uint64(len(items))}[0],
		PrefixItems: prefix,
	}
}

// HistoryEntry is the JSON payload persisted once per completed cycle via
// LeaseDB.AddHistoryEntry, matching the wire shape in spec §6.
type HistoryEntry struct {
	CycleStartFinishTimes  [2]int64                 `json:"cycle-start-finish-times"`
	ExpirationEnabled      bool                     `json:"expiration-enabled"`
	ConfiguredExpiration   ExpirationMode           `json:"configured-expiration-mode"`
	LeaseAgeHistogram      []HistogramBin           `json:"lease-age-histogram"`
	LeasesPerShareHistogram map[string]int64        `json:"leases-per-share-histogram"`
	CorruptShares          [][2]any                 `json:"corrupt-shares"`
	SpaceRecovered         SpaceRecovered           `json:"space-recovered"`
}

// JSONSchema generates the documented schema for HistoryEntry from the Go
// struct itself, keeping the wire contract and the code in sync rather than
// maintaining a hand-written schema document alongside it.
func JSONSchema() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
	}
	return reflector.Reflect(&HistoryEntry{})
}
