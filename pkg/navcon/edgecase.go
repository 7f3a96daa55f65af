package navcon

// Priority classifies how urgently an edge-case rule must be handled.
type Priority uint8

// Rule priorities, most urgent first.
const (
	PriorityEmergency Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
	PriorityIgnore
)

// String implements fmt.Stringer.
func (p Priority) String() string {
	switch p {
	case PriorityEmergency:
		return "EMERGENCY"
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityLow:
		return "LOW"
	case PriorityIgnore:
		return "IGNORE"
	}
	return "UNKNOWN"
}

// Action is what a matched rule tells the engine to do with the
// current reading.
type Action uint8

// Rule actions.
const (
	ActionFollowS1 Action = iota + 1
	ActionFollowS2
	ActionFollowS3
	ActionFollowStrongest
	ActionAverageAngle
	ActionEmergencyStop
	ActionIgnoreAll
	ActionBackupFirst
)

// String implements fmt.Stringer.
func (a Action) String() string {
	switch a {
	case ActionFollowS1:
		return "FOLLOW_S1"
	case ActionFollowS2:
		return "FOLLOW_S2"
	case ActionFollowS3:
		return "FOLLOW_S3"
	case ActionFollowStrongest:
		return "FOLLOW_STRONGEST"
	case ActionAverageAngle:
		return "AVERAGE_ANGLE"
	case ActionEmergencyStop:
		return "EMERGENCY_STOP"
	case ActionIgnoreAll:
		return "IGNORE_ALL"
	case ActionBackupFirst:
		return "BACKUP_FIRST"
	}
	return "UNKNOWN"
}

// Rule maps one 3-sensor color combination to a priority and action.
// S1/S2/S3 may be exact colors, AnyColor, or SameAsCenter (S1/S3 only).
type Rule struct {
	S1, S2, S3 Color
	Priority   Priority
	Action     Action
	Primary    Sensor
	Note       string
}

// Match reports whether the rule covers the reading.
func (r Rule) Match(c Colors) bool {
	return matchField(r.S1, c[0], c[1]) &&
		matchField(r.S2, c[1], c[1]) &&
		matchField(r.S3, c[2], c[1])
}

func matchField(want, got, center Color) bool {
	switch want {
	case AnyColor:
		return true
	case SameAsCenter:
		return got == center
	}
	return want == got
}

// Rules is the edge-case table, scanned in order with first match
// winning. The ORDER is part of the navigation behavior, not an
// implementation detail: the center-priority wildcards shadow the later
// pair rules whenever the center sensor sees color, and the terminal
// catch-all guarantees Resolve always answers.
var Rules = []Rule{
	// Emergency: mutually conflicting line colors at once.
	{Red, Green, Black, PriorityEmergency, ActionEmergencyStop, SensorCenter, "RED-GREEN-BLACK conflict"},
	{Green, Red, Blue, PriorityEmergency, ActionEmergencyStop, SensorCenter, "GREEN-RED-BLUE conflict"},
	{Red, Blue, Green, PriorityEmergency, ActionEmergencyStop, SensorCenter, "RED-BLUE-GREEN conflict"},
	{Black, Red, Green, PriorityEmergency, ActionEmergencyStop, SensorCenter, "BLACK-RED-GREEN conflict"},

	// Emergency: all sensors the same non-background color.
	{Red, Red, Red, PriorityEmergency, ActionEmergencyStop, SensorCenter, "all RED"},
	{Green, Green, Green, PriorityEmergency, ActionEmergencyStop, SensorCenter, "all GREEN"},
	{Blue, Blue, Blue, PriorityEmergency, ActionEmergencyStop, SensorCenter, "all BLUE"},
	{Black, Black, Black, PriorityEmergency, ActionEmergencyStop, SensorCenter, "all BLACK"},

	// Center sensor takes precedence whenever it sees color.
	{AnyColor, Red, AnyColor, PriorityHigh, ActionFollowS2, SensorCenter, "S2 RED priority"},
	{AnyColor, Green, AnyColor, PriorityHigh, ActionFollowS2, SensorCenter, "S2 GREEN priority"},
	{AnyColor, Black, AnyColor, PriorityHigh, ActionFollowS2, SensorCenter, "S2 BLACK priority"},
	{AnyColor, Blue, AnyColor, PriorityHigh, ActionFollowS2, SensorCenter, "S2 BLUE priority"},

	// Wall on one edge, path line on the other: follow the path.
	{Black, White, Green, PriorityHigh, ActionFollowS3, SensorRight, "avoid BLACK wall, follow GREEN"},
	{Green, White, Black, PriorityHigh, ActionFollowS1, SensorLeft, "follow GREEN, avoid BLACK wall"},
	{Blue, White, Green, PriorityHigh, ActionFollowS3, SensorRight, "avoid BLUE wall, follow GREEN"},
	{Green, White, Blue, PriorityHigh, ActionFollowS1, SensorLeft, "follow GREEN, avoid BLUE wall"},
	{Black, White, Red, PriorityHigh, ActionFollowS3, SensorRight, "avoid BLACK wall, follow RED"},
	{Red, White, Black, PriorityHigh, ActionFollowS1, SensorLeft, "follow RED, avoid BLACK wall"},
	{Blue, White, Red, PriorityHigh, ActionFollowS3, SensorRight, "avoid BLUE wall, follow RED"},
	{Red, White, Blue, PriorityHigh, ActionFollowS1, SensorLeft, "follow RED, avoid BLUE wall"},

	// Adjacent pair of the same path color.
	{Red, Red, White, PriorityMedium, ActionAverageAngle, SensorLeft, "S1-S2 RED line"},
	{Green, Green, White, PriorityMedium, ActionAverageAngle, SensorLeft, "S1-S2 GREEN line"},
	{White, Red, Red, PriorityMedium, ActionAverageAngle, SensorRight, "S2-S3 RED line"},
	{White, Green, Green, PriorityMedium, ActionAverageAngle, SensorRight, "S2-S3 GREEN line"},

	// Adjacent pair of the same wall color.
	{Black, Black, White, PriorityMedium, ActionFollowStrongest, SensorLeft, "S1-S2 BLACK wall"},
	{Blue, Blue, White, PriorityMedium, ActionFollowStrongest, SensorLeft, "S1-S2 BLUE wall"},
	{White, Black, Black, PriorityMedium, ActionFollowStrongest, SensorRight, "S2-S3 BLACK wall"},
	{White, Blue, Blue, PriorityMedium, ActionFollowStrongest, SensorRight, "S2-S3 BLUE wall"},

	// Single edge sensor: start distance tracking toward confirmation.
	{Red, White, White, PriorityMedium, ActionFollowS1, SensorLeft, "S1 RED edge"},
	{Green, White, White, PriorityMedium, ActionFollowS1, SensorLeft, "S1 GREEN edge"},
	{Black, White, White, PriorityMedium, ActionFollowS1, SensorLeft, "S1 BLACK edge"},
	{Blue, White, White, PriorityMedium, ActionFollowS1, SensorLeft, "S1 BLUE edge"},
	{White, White, Red, PriorityMedium, ActionFollowS3, SensorRight, "S3 RED edge"},
	{White, White, Green, PriorityMedium, ActionFollowS3, SensorRight, "S3 GREEN edge"},
	{White, White, Black, PriorityMedium, ActionFollowS3, SensorRight, "S3 BLACK edge"},
	{White, White, Blue, PriorityMedium, ActionFollowS3, SensorRight, "S3 BLUE edge"},

	// Walls on both edges: hold the corridor.
	{Black, White, Blue, PriorityMedium, ActionIgnoreAll, SensorCenter, "between walls"},
	{Blue, White, Black, PriorityMedium, ActionIgnoreAll, SensorCenter, "between walls"},

	// All background.
	{White, White, White, PriorityLow, ActionIgnoreAll, SensorCenter, "all background"},

	// Terminal catch-all: drive forward.
	{AnyColor, AnyColor, AnyColor, PriorityIgnore, ActionIgnoreAll, SensorCenter, "default forward"},
}

// Resolve returns the first rule matching the reading. The terminal
// catch-all guarantees a match.
func Resolve(c Colors) Rule {
	for _, r := range Rules {
		if r.Match(c) {
			return r
		}
	}
	return Rules[len(Rules)-1]
}
