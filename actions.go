package recorderd

// Actions recorded through a Recorder. Each marks one step of a job's path
// from the publisher to the submission reply.

type JobReceived struct {
	Connection int
	Job        string
}

type JobDispatched struct {
	Connection int
	Job        string
	Worker     int
	Nonce      uint64
}

type JobRejected struct {
	Connection int
	Reason     string
}

type NonceFound struct {
	Connection int
	Job        string
	Worker     int
	Nonce      uint64
}

type NonceSubmitted struct {
	Connection int
	Job        string
	Packed     []uint8
}

type SubmissionReply struct {
	Connection int
	Job        string
	Reply      string
}

type WorkerStopped struct {
	Connection int
	Worker     int
	Reason     string
}
