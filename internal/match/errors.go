package match

import "errors"

// Failure reasons are distinct sentinels because callers branch on them:
// an unauthorized caller gets a rejection, a stale turn triggers a board
// resync, a conflict is retried internally before it ever surfaces.
var (
	ErrNotFound     = errors.New("match not found")
	ErrUnauthorized = errors.New("capability does not control a human seat")
	ErrInvalidTurn  = errors.New("not this seat's turn")
	ErrGameOver     = errors.New("match already ended")
	ErrIllegalMove  = errors.New("illegal move")
	ErrConflict     = errors.New("match modified concurrently")
)
