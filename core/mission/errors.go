package mission

import "errors"

var (
	// ErrEmptyMission is returned when a builder has nothing to upload.
	ErrEmptyMission = errors.New("mission has no waypoints")
	// ErrInvalidCoordinate reports a latitude or longitude out of range.
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	// ErrUnknownEndAction reports an end action other than RTL, LAND or NONE.
	ErrUnknownEndAction = errors.New("unknown end action")
	// ErrBadFormat reports a malformed mission file.
	ErrBadFormat = errors.New("malformed mission file")
)
