package config

type WorkerKeyStruct struct {
	PersistEventsQueue        string
	PersistNotificationsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistEventsQueue:        "persist_attempt_events_queue",
	PersistNotificationsQueue: "persist_notifications_queue",
}
