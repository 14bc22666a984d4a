package crm

import "fmt"

type ErrorKind int

const (
	Transient ErrorKind = iota + 1
	Permanent
)

func (k ErrorKind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// RemoteCreateError reports a product the CRM did not create. Status is the
// last HTTP status seen, zero when the request never got a response.
type RemoteCreateError struct {
	Kind     ErrorKind
	Status   int
	Attempts int
	Err      error
}

func (e *RemoteCreateError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("crm create product (%s, status=%d, attempts=%d): %v", e.Kind, e.Status, e.Attempts, e.Err)
	}
	return fmt.Sprintf("crm create product (%s, attempts=%d): %v", e.Kind, e.Attempts, e.Err)
}

func (e *RemoteCreateError) Unwrap() error { return e.Err }

func (e *RemoteCreateError) Temporary() bool { return e.Kind == Transient }
