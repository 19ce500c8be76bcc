package cli

var (
	SyncFilterForTest             = syncFilter
	NewConfigChangeHandlerForTest = newConfigChangeHandler
)
