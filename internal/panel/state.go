package panel

import (
	"fmt"
	"strings"
)

// State is the lifecycle state of a panel.
type State int

const (
	Unprepared State = iota
	Prepared
)

func (s State) String() string {
	switch s {
	case Unprepared:
		return "unprepared"
	case Prepared:
		return "prepared"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Orientation is the physical mounting rotation of the panel.
type Orientation int

const (
	OrientationUnknown Orientation = iota
	OrientationNormal
	OrientationBottomUp
	OrientationLeftUp
	OrientationRightUp
)

func (o Orientation) String() string {
	switch o {
	case OrientationNormal:
		return "normal"
	case OrientationBottomUp:
		return "upside_down"
	case OrientationLeftUp:
		return "left_up"
	case OrientationRightUp:
		return "right_up"
	default:
		return "unknown"
	}
}

// MarshalText lets Orientation appear by name in JSON responses.
func (o Orientation) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Orientation) UnmarshalText(text []byte) error {
	v, err := ParseOrientation(string(text))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// ParseOrientation accepts the names returned by Orientation.String.
// An empty string yields OrientationUnknown.
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unknown":
		return OrientationUnknown, nil
	case "normal":
		return OrientationNormal, nil
	case "upside_down", "bottom_up":
		return OrientationBottomUp, nil
	case "left_up":
		return OrientationLeftUp, nil
	case "right_up":
		return OrientationRightUp, nil
	default:
		return OrientationUnknown, fmt.Errorf("panel: unknown orientation %q", s)
	}
}

// OrientationFromRotation maps a clockwise mounting rotation in degrees.
func OrientationFromRotation(deg int) (Orientation, error) {
	switch deg {
	case 0:
		return OrientationNormal, nil
	case 90:
		return OrientationRightUp, nil
	case 180:
		return OrientationBottomUp, nil
	case 270:
		return OrientationLeftUp, nil
	default:
		return OrientationUnknown, fmt.Errorf("panel: invalid rotation %d", deg)
	}
}
