package corewp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordPollResult(t *testing.T) {
	var s Statistics

	s.recordPollResult(0, false)
	assert.EqualValues(t, 0, s.NPollEv.Load())

	s.recordPollResult(3, false)
	assert.EqualValues(t, 1, s.NPollEv.Load())
	assert.EqualValues(t, 1, s.NNonblockingPollEv.Load())
	assert.EqualValues(t, 3, s.EvqLength.Load())
	assert.EqualValues(t, 3, s.EvqMax.Load())
	assert.EqualValues(t, 1, s.NFds[2].Load())

	s.recordPollResult(1, true)
	assert.EqualValues(t, 1, s.NNonblockingPollEv.Load(), "blocking poll must not bump the nonblocking counter")
	assert.EqualValues(t, 3, s.EvqMax.Load(), "EvqMax must track the running maximum, not the latest sample")
}

func TestRecordQTimeSaturates(t *testing.T) {
	var s Statistics

	s.recordQTime(5)
	assert.EqualValues(t, 1, s.QTimes[5].Load())

	s.recordQTime(NQueueTimes + 100)
	assert.EqualValues(t, 1, s.QTimes[NQueueTimes].Load(), "qtime past the last bucket must saturate, not wrap")
	assert.EqualValues(t, NQueueTimes+100, s.MaxQTime.Load())
}

func TestRecordExecTimeSaturates(t *testing.T) {
	var s Statistics

	s.recordExecTime(NQueueTimes + 50)
	assert.EqualValues(t, 1, s.ExecTimes[NQueueTimes].Load())
	assert.EqualValues(t, NQueueTimes+50, s.MaxExecTime.Load())
}

func TestRecordAction(t *testing.T) {
	var s Statistics

	s.recordAction(ActionRead | ActionWrite)
	assert.EqualValues(t, 1, s.NRead.Load())
	assert.EqualValues(t, 1, s.NWrite.Load())
	assert.EqualValues(t, 0, s.NAccept.Load())

	s.recordAction(ActionError)
	assert.EqualValues(t, 1, s.NError.Load())
}

func TestReduceAggregatesAcrossWorkers(t *testing.T) {
	var a, b Statistics
	a.recordAction(ActionRead)
	a.recordPollResult(2, false)
	a.recordQTime(4)

	b.recordAction(ActionRead)
	b.recordPollResult(6, false)
	b.recordQTime(4)

	agg := reduce([]workerSnapshot{snapshot(&a), snapshot(&b)})

	assert.EqualValues(t, 2, agg.NRead, "NRead must sum across workers")
	assert.EqualValues(t, 6, agg.EvqMax, "EvqMax must be the max across workers")
	assert.EqualValues(t, 4, agg.EvqLength, "EvqLength must be the average across workers")
	assert.EqualValues(t, 1, agg.QTimes[4], "QTimes must be summed then averaged back to 1 each")
}

func TestReduceEmpty(t *testing.T) {
	agg := reduce(nil)
	assert.EqualValues(t, 0, agg.NRead)
}
