package ledger

import "errors"

var (
	// ErrRoundActive is returned when a new round is created while another
	// round is still open.
	ErrRoundActive = errors.New("a round is already active")
	// ErrNoActiveRound is returned when a contribution arrives and no round
	// is open.
	ErrNoActiveRound = errors.New("no active round")
	// ErrRoundNotFound is returned when the referenced round id was never
	// allocated.
	ErrRoundNotFound = errors.New("round not found")
	// ErrRoundClosed is returned when a contribution arrives after the round
	// deadline, or when a round is finalized twice.
	ErrRoundClosed = errors.New("round closed")
	// ErrNotOwner is returned when someone other than the round owner tries
	// to finalize it.
	ErrNotOwner = errors.New("caller is not the round owner")
	// ErrInvalidConfig is returned when round creation parameters are out of
	// range.
	ErrInvalidConfig = errors.New("invalid round configuration")
	// ErrContributionNotFound is returned when a principal has no recorded
	// contribution in the referenced round.
	ErrContributionNotFound = errors.New("contribution not found")
	// ErrNotGranted is returned when a principal requests the plaintext of a
	// handle it holds no decryption grant on.
	ErrNotGranted = errors.New("no decryption grant on handle")
)
