package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Address identifies a peer device.
type Address struct {
	Name     string `json:"name"`
	DeviceID uint32 `json:"device_id"`
}

// NewAddress returns the address of device on name.
func NewAddress(name string, device uint32) Address {
	return Address{Name: name, DeviceID: device}
}

// String returns the canonical "name.device" form used as a storage key.
func (a Address) String() string { return a.Name + "." + strconv.FormatUint(uint64(a.DeviceID), 10) }

// IsZero reports whether a carries no name.
func (a Address) IsZero() bool { return a.Name == "" }

// ParseAddress parses the "name.device" form produced by String. A missing
// device suffix selects device 1.
func ParseAddress(s string) (Address, error) {
	i := strings.LastIndexByte(s, '.')
	if i < 0 {
		if s == "" {
			return Address{}, fmt.Errorf("empty address")
		}
		return Address{Name: s, DeviceID: 1}, nil
	}
	dev, err := strconv.ParseUint(s[i+1:], 10, 32)
	if err != nil || i == 0 {
		return Address{}, fmt.Errorf("invalid address %q", s)
	}
	return Address{Name: s[:i], DeviceID: uint32(dev)}, nil
}

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// Direction tells the identity store which way a handshake is going.
type Direction uint32

const (
	DirectionSending Direction = iota
	DirectionReceiving
)

// String returns the direction name.
func (d Direction) String() string {
	if d == DirectionReceiving {
		return "receiving"
	}
	return "sending"
}
