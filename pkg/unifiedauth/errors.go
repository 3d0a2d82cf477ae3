package unifiedauth

import "errors"

var (
	// ErrConnectionInProgress rejects a Connect that overlaps another.
	ErrConnectionInProgress = errors.New("connection already in progress")
	// ErrAlreadyConnected rejects a Connect for a different wallet family
	// while one is active; disconnect first.
	ErrAlreadyConnected = errors.New("another wallet is already connected")
	// ErrConnectionAborted is returned by a Connect interrupted by Disconnect.
	ErrConnectionAborted = errors.New("connection aborted by disconnect")
)
