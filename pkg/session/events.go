package session

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/sigweihq/memespin/pkg/transport"
)

// Event is a session lifecycle event. The set of variants is closed:
// Connecting, Connected, AccountsChanged, Disconnected and Failed.
type Event interface {
	isEvent()
}

// Connecting is emitted when a connect attempt starts
type Connecting struct{}

// Connected is emitted once a transport is established
type Connected struct {
	Transport transport.Kind
	Address   common.Address
}

// AccountsChanged is emitted when the wallet switches to another account
type AccountsChanged struct {
	Address common.Address
}

// Disconnected is emitted after every reset of the session
type Disconnected struct{}

// Failed is emitted when every transport failed
type Failed struct {
	Err error
}

func (Connecting) isEvent()      {}
func (Connected) isEvent()       {}
func (AccountsChanged) isEvent() {}
func (Disconnected) isEvent()    {}
func (Failed) isEvent()          {}

type listener struct {
	id int
	fn func(Event)
}
