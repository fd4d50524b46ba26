package eventlog

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed marks a line that failed structural decoding: not valid JSON,
// or valid JSON without an "Event" discriminator. Malformed lines are a
// per-line condition — callers count them and continue.
var ErrMalformed = errors.New("eventlog: malformed record")

// Decode converts one event-log line into its typed variant.
//
// Decoding is stateless and side-effect free. Lines of a recognized kind
// that the analysis does not consume return Ignored; lines that fail
// structural decoding return an error wrapping ErrMalformed. Decode never
// fails on unknown event kinds — new listener types appear with every Spark
// release and must not break old analyzers.
func Decode(line []byte) (Event, error) {
	var envelope struct {
		Event string `json:"Event"`
	}
	if err := json.Unmarshal(line, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if envelope.Event == "" {
		return nil, fmt.Errorf("%w: missing Event discriminator", ErrMalformed)
	}

	switch Type(envelope.Event) {
	case TypeLogStart:
		return decodeAs[LogStart](line)
	case TypeApplicationStart:
		return decodeAs[ApplicationStart](line)
	case TypeApplicationEnd:
		return decodeAs[ApplicationEnd](line)
	case TypeEnvironmentUpdate:
		return decodeAs[EnvironmentUpdate](line)
	case TypeJobStart:
		return decodeAs[JobStart](line)
	case TypeJobEnd:
		return decodeAs[JobEnd](line)
	case TypeStageSubmitted:
		return decodeAs[StageSubmitted](line)
	case TypeStageCompleted:
		return decodeAs[StageCompleted](line)
	case TypeTaskStart:
		return decodeAs[TaskStart](line)
	case TypeTaskEnd:
		return decodeAs[TaskEnd](line)
	case TypeExecutorAdded:
		return decodeAs[ExecutorAdded](line)
	case TypeExecutorRemoved:
		return decodeAs[ExecutorRemoved](line)
	case TypeBlockManagerAdded:
		return decodeAs[BlockManagerAdded](line)
	default:
		return Ignored{Type: envelope.Event}, nil
	}
}

// decodeAs unmarshals line into a concrete event variant. The envelope has
// already validated the discriminator, so a failure here means the line's
// body does not match its declared kind.
func decodeAs[E Event](line []byte) (Event, error) {
	var ev E
	if err := json.Unmarshal(line, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return ev, nil
}
