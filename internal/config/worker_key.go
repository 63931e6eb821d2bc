package config

type WorkerKeyStruct struct {
	PersistProgressQueue   string
	PersistViolationsQueue string
	PersistResultsQueue    string
	PersistOrderQueue      string
}

var WorkerKey = &WorkerKeyStruct{
	PersistProgressQueue:   "persist_progress_queue",
	PersistViolationsQueue: "persist_violations_queue",
	PersistResultsQueue:    "persist_results_queue",
	PersistOrderQueue:      "persist_order_queue",
}
