package policies

// Metrics receives business counters from the application layer.
type Metrics interface {
	CommandHandled(command, result string)
	PaymentNotification(outcome string)
	ReservationsExpired(n int)
}

type NopMetrics struct{}

func (NopMetrics) CommandHandled(string, string) {}
func (NopMetrics) PaymentNotification(string)    {}
func (NopMetrics) ReservationsExpired(int)       {}
