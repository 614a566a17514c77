package domain

// Action is the routing outcome for one question.
type Action string

const (
	// ActionCorpus means the stored answer was confident enough to return.
	ActionCorpus Action = "corpus"
	// ActionGenerated means the generative fallback produced the answer.
	ActionGenerated Action = "generated"
	// ActionRefused means the fallback declined an off-topic question.
	ActionRefused Action = "refused"
)

// Reply is the generative fallback outcome for one question.
type Reply struct {
	Text    string
	Refused bool
}

// Decision is the transient result of routing one question. It exists only
// for the duration of a request and is never persisted.
type Decision struct {
	Action          Action
	Answer          string
	MatchedQuestion string  // set only for ActionCorpus
	Score           float64 // best similarity found, 0 when the corpus was empty
}
