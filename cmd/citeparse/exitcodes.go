package main

// Exit codes.
const (
	ExitSuccess      = 0 // Success
	ExitError        = 1 // Any other failure (arguments, network, output)
	ExitInvalidInput = 2 // Input unreadable or without any reference
	ExitModelError   = 3 // Model file missing, corrupt or incompatible
)
