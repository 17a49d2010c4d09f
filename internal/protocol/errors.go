package protocol

const (
	// Transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrWorldBusy       = "E_WORLD_BUSY"

	// Spawn refusals.
	ReasonOutOfBounds = "OUT_OF_BOUNDS"
	ReasonColumnFull  = "COLUMN_FULL"
	ReasonCapReached  = "CAP_REACHED"
	ReasonCellBusy    = "CELL_BUSY"
	ReasonRateLimited = "RATE_LIMITED"

	// Body rejected after landing attempts kept conflicting.
	ReasonConflict = "CONFLICT"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrWorldBusy:       {},
	ReasonOutOfBounds:  {},
	ReasonColumnFull:   {},
	ReasonCapReached:   {},
	ReasonCellBusy:     {},
	ReasonRateLimited:  {},
	ReasonConflict:     {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
