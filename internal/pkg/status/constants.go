package status

//Status represents transcription job status at the provider
type Status int

const (
	// Queued - job accepted, not started
	Queued Status = iota + 1
	// Processing step
	Processing
	// Completed - final step, transcript ready
	Completed
	// Error - final step, provider failed
	Error
)

var (
	statusName = map[Status]string{Queued: "queued", Processing: "processing",
		Completed: "completed", Error: "error"}
	nameStatus = map[string]Status{"queued": Queued, "processing": Processing,
		"completed": Completed, "error": Error}
)

func (st Status) String() string {
	return statusName[st]
}

// From returns status obj from string
func From(st string) Status {
	return nameStatus[st]
}

// IsFinal returns true for statuses after which no polling is needed
func (st Status) IsFinal() bool {
	return st == Completed || st == Error
}
