package ports

// Notifier delivers transient, dismissible messages to the operator.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}
