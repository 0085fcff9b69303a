package core

var (
	_ AlertPublisher = LogAlertPublisher{}
	_ AlertPublisher = MultiAlertPublisher{}
)
