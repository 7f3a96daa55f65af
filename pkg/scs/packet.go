// Package scs implements the serial communication standard shared by
// the robot's three subsystem controllers: fixed 4-byte packets over
// duplex serial channels, with no delimiter and no checksum.
package scs

import (
	"fmt"
	"io"
)

// Phase is the top-level mission mode carried in every packet.
type Phase uint8

// Mission phases.
const (
	PhaseIdle Phase = iota
	PhaseCal
	PhaseMaze
	PhaseSos
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseCal:
		return "CAL"
	case PhaseMaze:
		return "MAZE"
	case PhaseSos:
		return "SOS"
	}
	return fmt.Sprintf("PHASE(%d)", uint8(p))
}

// Role identifies which subsystem a packet concerns.
type Role uint8

// Subsystem roles.
const (
	// RoleHub is the wireless hub relaying to the remote dashboard.
	RoleHub Role = iota
	// RoleNav is this node: state and navigation control.
	RoleNav
	// RoleMotor is the motor driver and power subsystem.
	RoleMotor
	// RoleSense is the color/angle sensor subsystem.
	RoleSense
)

// String implements fmt.Stringer.
func (r Role) String() string {
	switch r {
	case RoleHub:
		return "HUB"
	case RoleNav:
		return "NAV"
	case RoleMotor:
		return "MOTOR"
	case RoleSense:
		return "SENSE"
	}
	return fmt.Sprintf("ROLE(%d)", uint8(r))
}

// PacketSize is the fixed wire size of every packet.
const PacketSize = 4

// MaxSub is the largest substate value encodable in the control byte.
const MaxSub = 15

// Packet is one protocol message. The control byte packs
// (phase<<6)|(role<<4)|sub; Dat1/Dat0 carry the 16-bit payload big
// endian, Dec is the general-purpose byte.
type Packet struct {
	Phase Phase
	Role  Role
	Sub   uint8
	Dat1  byte
	Dat0  byte
	Dec   byte
}

// ControlByte packs phase, role and substate into the wire control byte.
func ControlByte(phase Phase, role Role, sub uint8) byte {
	return byte(phase&0x03)<<6 | byte(role&0x03)<<4 | sub&0x0f
}

// DecodeControl unpacks a control byte.
func DecodeControl(b byte) (Phase, Role, uint8) {
	return Phase(b >> 6 & 0x03), Role(b >> 4 & 0x03), b & 0x0f
}

// PacketFrom decodes a packet from a 4-byte window.
func PacketFrom(b []byte) Packet {
	phase, role, sub := DecodeControl(b[0])
	return Packet{
		Phase: phase,
		Role:  role,
		Sub:   sub,
		Dat1:  b[1],
		Dat0:  b[2],
		Dec:   b[3],
	}
}

// Bytes returns the encoded wire bytes.
func (p Packet) Bytes() []byte {
	return []byte{ControlByte(p.Phase, p.Role, p.Sub), p.Dat1, p.Dat0, p.Dec}
}

// WriteTo writes the encoded packet. The write is a single call so a
// packet is never interleaved with another writer on the same lock.
func (p Packet) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(p.Bytes())
	return int64(n), err
}

// Word returns Dat1/Dat0 as a 16-bit big-endian value.
func (p Packet) Word() uint16 {
	return uint16(p.Dat1)<<8 | uint16(p.Dat0)
}

// SetWord stores a 16-bit value into Dat1/Dat0.
func (p *Packet) SetWord(v uint16) {
	p.Dat1, p.Dat0 = byte(v>>8), byte(v)
}

// Is reports whether the packet carries the given phase, role and
// substate.
func (p Packet) Is(phase Phase, role Role, sub uint8) bool {
	return p.Phase == phase && p.Role == role && p.Sub == sub
}

// String implements fmt.Stringer.
func (p Packet) String() string {
	return fmt.Sprintf("[%s:%s:%d] dat1=%d dat0=%d dec=%d",
		p.Phase, p.Role, p.Sub, p.Dat1, p.Dat0, p.Dec)
}
