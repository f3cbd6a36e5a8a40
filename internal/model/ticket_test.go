package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOccasionalTicket_PaymentCycle(t *testing.T) {
	entry := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	ticket := OccasionalTicket{EntryTime: entry}
	assert.False(t, ticket.IsPaid())

	paidAt := entry.Add(90 * time.Minute)
	ticket.MarkPaid(decimal.RequireFromString("4.50"), paidAt, 15*time.Minute)
	require.True(t, ticket.IsPaid())
	assert.Equal(t, paidAt.Add(15*time.Minute), *ticket.ExitDeadline)
	assert.True(t, ticket.WithinGracePeriod(paidAt.Add(15*time.Minute)))
	assert.False(t, ticket.WithinGracePeriod(paidAt.Add(15*time.Minute+time.Second)))

	ticket.ResetPayment()
	assert.False(t, ticket.IsPaid())
	assert.False(t, ticket.AmountDue.Valid)
	assert.Nil(t, ticket.ExitDeadline)
	assert.False(t, ticket.WithinGracePeriod(paidAt))

	exit := paidAt.Add(time.Minute)
	ticket.Close(exit)
	assert.True(t, ticket.IsClosed)
	assert.Equal(t, exit, *ticket.ExitTime)
}

func TestOccasionalTicket_ElapsedMinutes(t *testing.T) {
	entry := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	ticket := OccasionalTicket{EntryTime: entry}

	assert.Equal(t, 0, ticket.ElapsedMinutes(entry.Add(59*time.Second)))
	assert.Equal(t, 61, ticket.ElapsedMinutes(entry.Add(61*time.Minute+30*time.Second)))
	assert.Equal(t, 0, ticket.ElapsedMinutes(entry.Add(-time.Hour)))
}
