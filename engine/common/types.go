package common

import (
	"github.com/google/uuid"
)

// CLIENTID_LENGTH is the length of Client IDs
const CLIENTID_LENGTH = 36

// ClientID identifies one client connection for its whole lifetime
type ClientID string

// GenClientID generates a new Client ID
func GenClientID() ClientID {
	return ClientID(uuid.NewString())
}

// IsNil returns if ClientID is nil
func (id ClientID) IsNil() bool {
	return id == ""
}
