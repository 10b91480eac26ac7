package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/anonto42/lovesignal/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestIndexCommand(t *testing.T) {
	out, err := runCmd(t, "index", "--sent", "3", "--received", "1", "--policy", "ratio")
	require.NoError(t, err)
	assert.Equal(t, "ratio(3, 1) = 78\n", out)

	out, err = runCmd(t, "index", "--sent", "10")
	require.NoError(t, err)
	assert.Equal(t, "bounded(10, 0) = 10\n", out)

	_, err = runCmd(t, "index", "--policy", "nope")
	assert.ErrorContains(t, err, "unknown love index policy")
}

func TestSendRequiresFlags(t *testing.T) {
	_, err := runCmd(t, "send", "hello")
	assert.Error(t, err)
}

func TestPrintReport(t *testing.T) {
	var out bytes.Buffer
	printReport(&out, []models.CategoryCount{
		{Category: "praise", Sent: 2, Received: 1},
		{Category: "companionship"},
	})
	assert.Equal(t, ""+
		"CATEGORY       SENT  RECEIVED\n"+
		"praise         2     1\n"+
		"companionship  0     0\n", out.String())
}

func TestPrintLogView(t *testing.T) {
	at := time.Date(2024, 2, 14, 9, 30, 0, 0, time.UTC)
	var out bytes.Buffer
	printLogView(&out, models.LogView{
		SentCount:     1,
		ReceivedCount: 1,
		LoveIndex:     5,
		Entries: []models.LogEntry{
			{Signal: models.Signal{Type: "gift", Message: "flowers", Timestamp: at.Add(time.Hour)}, Direction: models.DirectionReceived, CounterpartUsername: "bob"},
			{Signal: models.Signal{Type: "praise", Message: "well done", Timestamp: at}, Direction: models.DirectionSent, CounterpartUsername: "bob"},
		},
	})
	assert.Equal(t, ""+
		"sent=1 received=1 index=5\n"+
		"2024-02-14 10:30:00  <- bob  gift    flowers\n"+
		"2024-02-14 09:30:00  -> bob  praise  well done\n", out.String())
}
