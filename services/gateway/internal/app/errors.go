package app

import "errors"

var (
	// ErrInvalidInput wraps request validation failures; the message is safe to return.
	ErrInvalidInput       = errors.New("invalid input")
	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrProductNotFound    = errors.New("product not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrInvalidStatus      = errors.New("invalid status")
	// ErrRoomRequired is returned when an admin clears history without naming a room.
	ErrRoomRequired = errors.New("room required")
	// ErrRoomForbidden is returned when a customer targets a room that is not theirs.
	ErrRoomForbidden = errors.New("room not allowed")
	// ErrNoAdmin means no administrator exists yet (seeding needs one).
	ErrNoAdmin = errors.New("no admin user")
)
