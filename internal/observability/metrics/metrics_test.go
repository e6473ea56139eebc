package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveBookingCountsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveBooking("success")
	m.ObserveBooking("success")
	m.ObserveBooking("slot_unavailable")

	families, err := reg.Gather()
	require.NoError(t, err)

	assert.Equal(t, 2.0, counterValue(t, families, "dentalops_booking_outcomes_total", "outcome", "success"))
	assert.Equal(t, 1.0, counterValue(t, families, "dentalops_booking_outcomes_total", "outcome", "slot_unavailable"))
}

func TestObserveReminder(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveReminder("email", "sent")
	m.ObserveReminder("email", "failed")
	m.ObserveReminder("email", "sent")

	families, err := reg.Gather()
	require.NoError(t, err)

	total := 0.0
	for _, f := range families {
		if f.GetName() == "dentalops_reminders_dispatch_total" {
			for _, metric := range f.GetMetric() {
				total += metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 3.0, total)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *BookingMetrics
	assert.NotPanics(t, func() {
		m.ObserveBooking("success")
		m.ObserveReminder("email", "sent")
		m.ObserveAvailability()
	})
}

func counterValue(t *testing.T, families []*dto.MetricFamily, name, labelName, labelValue string) float64 {
	t.Helper()
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == labelName && label.GetValue() == labelValue {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	t.Fatalf("no counter %s{%s=%q}", name, labelName, labelValue)
	return 0
}
