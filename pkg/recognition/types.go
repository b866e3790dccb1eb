package recognition

import (
	"encoding/json"
	"fmt"
)

// Mode selects how a prediction is obtained and verified.
type Mode int

const (
	FreeMatch Mode = iota
	NamedUserCheck
	EnrollmentCrossCheck
)

var modeNames = map[Mode]string{
	FreeMatch:            "free_match",
	NamedUserCheck:       "named_user_check",
	EnrollmentCrossCheck: "enrollment_cross_check",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode parses the String form of a Mode.
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("recognition: unknown mode %q", s)
}

func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Mode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Status is the state of a recognition attempt.
type Status int

const (
	StatusPending Status = iota
	StatusResolved
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusResolved:
		return "resolved"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for _, v := range []Status{StatusPending, StatusResolved, StatusError} {
		if v.String() == name {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("recognition: unknown status %q", name)
}

// Outcome classifies a resolved attempt.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeMatch
	OutcomeNoMatch
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMatch:
		return "match"
	case OutcomeNoMatch:
		return "no-match"
	}
	return ""
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

func (o *Outcome) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for _, v := range []Outcome{OutcomeNone, OutcomeMatch, OutcomeNoMatch} {
		if v.String() == name {
			*o = v
			return nil
		}
	}
	return fmt.Errorf("recognition: unknown outcome %q", name)
}
