// Package metrics exposes Prometheus instrumentation for the booking
// pipeline and the reminder dispatch loop.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics counts booking pipeline outcomes and reminder dispatches.
type BookingMetrics struct {
	bookingOutcomes *prometheus.CounterVec
	reminderSends   *prometheus.CounterVec
	availability    prometheus.Counter
}

// NewBookingMetrics registers booking metrics on the given registerer,
// falling back to the default one.
func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dentalops",
			Subsystem: "booking",
			Name:      "outcomes_total",
			Help:      "Booking pipeline outcomes by result kind",
		}, []string{"outcome"}),
		reminderSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dentalops",
			Subsystem: "reminders",
			Name:      "dispatch_total",
			Help:      "Reminder dispatch attempts by channel and status",
		}, []string{"channel", "status"}),
		availability: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dentalops",
			Subsystem: "booking",
			Name:      "availability_requests_total",
			Help:      "Availability resolution requests",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingOutcomes, m.reminderSends, m.availability)
	return m
}

// ObserveBooking records a booking pipeline outcome ("success" or a
// rejection kind).
func (m *BookingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveReminder records a reminder dispatch attempt.
func (m *BookingMetrics) ObserveReminder(channel, status string) {
	if m == nil {
		return
	}
	m.reminderSends.WithLabelValues(channel, status).Inc()
}

// ObserveAvailability records an availability resolution.
func (m *BookingMetrics) ObserveAvailability() {
	if m == nil {
		return
	}
	m.availability.Inc()
}
