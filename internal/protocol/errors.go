package protocol

// Move result codes. The traffic interceptor returns exactly the codes of
// the move primitive it wraps, plus ErrNoPath when a swap consumed the turn.
const (
	MoveOK = "OK"

	ErrNoPath        = "E_NO_PATH"
	ErrNotFound      = "E_NOT_FOUND"
	ErrTired         = "E_TIRED"
	ErrBusy          = "E_BUSY"
	ErrInvalidTarget = "E_INVALID_TARGET"
)

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrStale           = "E_STALE"

	// World routing/state.
	ErrWorldBusy = "E_WORLD_BUSY"

	// Rule/action layer.
	ErrBadRequest = "E_BAD_REQUEST"
	ErrConflict   = "E_CONFLICT"
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	MoveOK:             {},
	ErrNoPath:          {},
	ErrNotFound:        {},
	ErrTired:           {},
	ErrBusy:            {},
	ErrInvalidTarget:   {},
	ErrProtoBadRequest: {},
	ErrStale:           {},
	ErrWorldBusy:       {},
	ErrBadRequest:      {},
	ErrConflict:        {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
