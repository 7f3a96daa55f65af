package navcon

import "github.com/golang/glog"

// LineKind classifies a detected line.
type LineKind uint8

// Line kinds.
const (
	KindNone LineKind = iota
	// KindNavigable is a crossable path line.
	KindNavigable
	// KindWall is a wall line the robot must turn away from.
	KindWall
)

// String implements fmt.Stringer.
func (k LineKind) String() string {
	switch k {
	case KindNavigable:
		return "NAVIGABLE"
	case KindWall:
		return "WALL"
	}
	return "NONE"
}

func kindOf(c Color) LineKind {
	switch {
	case c.Navigable():
		return KindNavigable
	case c.Wall():
		return KindWall
	}
	return KindNone
}

// Detection is one line sighting being acted on. Before Active is set
// a single-edge sighting may be in the tracking stage, waiting for the
// center sensor to confirm or for enough travel to infer a steep line.
type Detection struct {
	Active bool
	Color  Color
	Sensor Sensor
	Kind   LineKind
	Angle  Incidence

	// TargetDeg is the remaining angle the planner is working down.
	// For an inferred detection it starts just above the steep
	// threshold and is reduced one steering step at a time.
	TargetDeg uint16

	// Tracking stage, before activation.
	tracking        bool
	startDistanceMM uint16
}

// Reset clears the detection including any tracking in progress.
func (d *Detection) Reset() {
	*d = Detection{}
}

func (d *Detection) activate(color Color, sensor Sensor, angle Incidence) {
	d.Color = color
	d.Sensor = sensor
	d.Kind = kindOf(color)
	d.Angle = angle
	if deg, ok := angle.Deg(); ok {
		d.TargetDeg = uint16(deg)
	} else {
		d.TargetDeg = steepThresholdDeg + 1
	}
	d.Active = true
	d.tracking = false
	glog.V(1).Infof("navcon: detection %s %s on %s angle=%s", d.Kind, d.Color, d.Sensor, d.Angle)
}

// detect runs line detection against the current telemetry. It may
// activate e.detection and, for emergencies, push the engine straight
// into StateStopping.
func (e *Engine) detect() {
	d := &e.detection
	t := e.Telemetry
	if d.Active {
		return
	}

	// A tracking edge sighting resolves before any new rule applies:
	// center confirmation yields a measured angle, enough travel
	// without confirmation infers a steep line.
	if d.tracking {
		if t.Colors.Center() != White {
			d.activate(d.Color, d.Sensor, Measured(t.AngleDeg))
			return
		}
		if t.DistanceMM-d.startDistanceMM >= e.Calib.SensorSpacingMM {
			d.activate(d.Color, d.Sensor, Inferred())
			return
		}
	}

	rule := Resolve(t.Colors)
	switch rule.Action {
	case ActionIgnoreAll:
		return

	case ActionEmergencyStop:
		glog.Warningf("navcon: emergency stop, %s %s", rule.Note, t.Colors)
		d.activate(t.Colors.Center(), SensorCenter, Measured(0))
		e.state = StateStopping
		e.beginCorrection()

	case ActionFollowS2:
		// Immediate center response needs a fresh reading; a pair with
		// an edge sensor responds regardless and records which side
		// the line came in from.
		sensor := SensorCenter
		if t.Colors.Left() != White {
			sensor = SensorLeft
		} else if t.Colors.Right() != White {
			sensor = SensorRight
		}
		if sensor == SensorCenter && t.Colors.Center() == t.PrevColors.Center() {
			return
		}
		d.activate(t.Colors.Center(), sensor, Measured(t.AngleDeg))

	case ActionFollowS1, ActionFollowS3:
		sensor := SensorLeft
		other := t.Colors.Right()
		if rule.Action == ActionFollowS3 {
			sensor = SensorRight
			other = t.Colors.Left()
		}
		if other != White {
			// Wall on the far edge: no time to track, act on the
			// current angle now.
			d.activate(t.Colors.At(sensor), sensor, Measured(t.AngleDeg))
			return
		}
		if !d.tracking {
			d.tracking = true
			d.Color = t.Colors.At(sensor)
			d.Sensor = sensor
			d.startDistanceMM = t.DistanceMM
			glog.V(2).Infof("navcon: tracking %s on %s from %dmm", d.Color, d.Sensor, d.startDistanceMM)
		}

	case ActionFollowStrongest:
		color, sensor := strongestReading(t.Colors)
		d.activate(color, sensor, Measured(t.AngleDeg))

	case ActionAverageAngle:
		deg := t.AngleDeg
		if countColor(t.Colors, t.Colors.At(rule.Primary)) > 1 {
			// A wide sighting reads shallower than the raw angle.
			deg /= 2
		}
		d.activate(t.Colors.At(rule.Primary), rule.Primary, Measured(deg))

	case ActionBackupFirst:
		d.activate(t.Colors.At(rule.Primary), rule.Primary, Measured(t.AngleDeg))
		d.Kind = KindWall
		e.state = StateStopping
		e.beginCorrection()
	}
}

// strongestReading picks the most significant sighting: path colors
// over wall colors, red over green, black over blue.
func strongestReading(c Colors) (Color, Sensor) {
	rank := func(col Color) int {
		switch col {
		case Red:
			return 4
		case Green:
			return 3
		case Black:
			return 2
		case Blue:
			return 1
		}
		return 0
	}
	best, sensor := White, SensorCenter
	for i, col := range c {
		if rank(col) > rank(best) {
			best = col
			sensor = Sensor(i + 1)
		}
	}
	return best, sensor
}

func countColor(c Colors, target Color) int {
	if target == White {
		return 0
	}
	n := 0
	for _, col := range c {
		if col == target {
			n++
		}
	}
	return n
}
