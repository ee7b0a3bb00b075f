package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Crawl milestones.
const (
	StageJobStart    Stage = "JOB_START"
	StageFetchStart  Stage = "FETCH_START"
	StageFetchDone   Stage = "FETCH_DONE"
	StageJobDone     Stage = "JOB_DONE"
	StageJobCanceled Stage = "JOB_CANCELED"
	StageJobError    Stage = "JOB_ERROR"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Status classes used as metric labels. StatusNone marks fetches that never
// produced a response.
const (
	Status2xx  StatusClass = "2xx"
	Status3xx  StatusClass = "3xx"
	Status4xx  StatusClass = "4xx"
	Status5xx  StatusClass = "5xx"
	StatusNone StatusClass = "none"
)

// Event is one crawl milestone.
type Event struct {
	JobID string
	TS    time.Time
	Stage Stage
	// Host scopes fetch events; it is the page hostname.
	Host  string
	URL   string
	Depth int
	// StatusCode is zero when the fetch failed before a response.
	StatusCode  int
	FailureKind string
	Bytes       int64
	Dur         time.Duration
	// Note carries low-volume context such as an error message.
	Note string
}

// Validate rejects events that sinks cannot attribute.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobDone, StageJobCanceled, StageJobError:
	case StageFetchStart, StageFetchDone:
		if e.Host == "" {
			return fmt.Errorf("%s requires host", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Class groups the event status code.
func (e Event) Class() StatusClass {
	return ClassifyStatus(e.StatusCode)
}

// ClassifyStatus groups HTTP status codes.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusNone
	}
}
