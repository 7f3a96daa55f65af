// Package telemetry mirrors the node's state to the remote dashboard
// over MQTT and accepts the dashboard's trigger commands. It is the
// core-side surface of the dashboard collaborator: snapshots go out,
// one-shot triggers come in.
package telemetry

import (
	"github.com/fxamacker/cbor/v2"
)

// Snapshot is one observation of the node, CBOR-encoded on the wire.
type Snapshot struct {
	Phase        string    `cbor:"phase"`
	ExpectRole   string    `cbor:"expect_role"`
	ExpectSub    uint8     `cbor:"expect_sub"`
	ExpectDesc   string    `cbor:"expect_desc"`
	EngineState  string    `cbor:"engine_state"`
	Colors       [3]string `cbor:"colors"`
	AngleDeg     uint8     `cbor:"angle_deg"`
	SpeedLeft    uint8     `cbor:"speed_left"`
	SpeedRight   uint8     `cbor:"speed_right"`
	DistanceMM   uint16    `cbor:"distance_mm"`
	RotationDeg  uint16    `cbor:"rotation_deg"`
	RotationDir  string    `cbor:"rotation_dir"`
	MazeComplete bool      `cbor:"maze_complete"`
	Unexpected   uint64    `cbor:"unexpected_packets"`
	InvalidRot   uint64    `cbor:"invalid_rotations"`
}

// Encode marshals the snapshot.
func (s Snapshot) Encode() ([]byte, error) {
	return cbor.Marshal(s)
}

// DecodeSnapshot unmarshals a snapshot payload.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	err := cbor.Unmarshal(data, &s)
	return s, err
}
