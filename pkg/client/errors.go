package client

import "fmt"

// ServerError is an error response from the server.
type ServerError struct {
	Command string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: server error: %s", e.Command, e.Message)
}
