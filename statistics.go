// Copyright 2019 Andy Pan. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package corewp

import (
	"go.uber.org/atomic"
)

// MaxNFDs bounds the per-cycle fd-count histogram: buckets 1..MaxNFDs-1 plus
// one overflow bucket at index MaxNFDs-1.
const MaxNFDs = 64

// NQueueTimes bounds the QTimes/ExecTimes histograms: NQueueTimes+1 buckets,
// the last one an overflow/saturation bucket.
const NQueueTimes = 64

// Statistics holds one worker's counters, gauges, and histograms. All
// fields are atomic so cross-worker readers (GetStatistics, GetOneStatistic)
// can load them without coordinating with the owning worker, which is the
// only writer of its own Statistics.
type Statistics struct {
	NRead             atomic.Uint64
	NWrite            atomic.Uint64
	NError            atomic.Uint64
	NHup              atomic.Uint64
	NAccept           atomic.Uint64
	NPolls            atomic.Uint64
	NPollEv           atomic.Uint64
	NNonblockingPollEv atomic.Uint64
	BlockingPolls     atomic.Uint64

	EvqLength   atomic.Uint64
	EvqMax      atomic.Uint64
	MaxQTime    atomic.Uint64
	MaxExecTime atomic.Uint64

	NFds     [MaxNFDs]atomic.Uint64
	QTimes   [NQueueTimes + 1]atomic.Uint64
	ExecTimes [NQueueTimes + 1]atomic.Uint64
}

// recordPollResult folds one Polling() return into the counters covered by
// steps 2-3.
func (s *Statistics) recordPollResult(nfds int, blocking bool) {
	if nfds == 0 {
		return
	}
	s.EvqLength.Store(uint64(nfds))
	if uint64(nfds) > s.EvqMax.Load() {
		s.EvqMax.Store(uint64(nfds))
	}
	s.NPollEv.Inc()
	if !blocking {
		s.NNonblockingPollEv.Inc()
	}
	bucket := nfds - 1
	if bucket >= MaxNFDs {
		bucket = MaxNFDs - 1
	}
	if bucket < 0 {
		bucket = 0
	}
	s.NFds[bucket].Inc()
}

// recordQTime implements step 4a: saturating bucket, running max.
func (s *Statistics) recordQTime(qtime uint64) {
	bucket := qtime
	if bucket > NQueueTimes {
		bucket = NQueueTimes
	}
	s.QTimes[bucket].Inc()
	if qtime > s.MaxQTime.Load() {
		s.MaxQTime.Store(qtime)
	}
}

// recordExecTime uses the saturating bucket form, not a modulo one: a
// modulo bucket would fold a pathologically slow handler back into a fast
// bucket, which no statistics consumer wants.
func (s *Statistics) recordExecTime(exec uint64) {
	bucket := exec
	if bucket > NQueueTimes {
		bucket = NQueueTimes
	}
	s.ExecTimes[bucket].Inc()
	if exec > s.MaxExecTime.Load() {
		s.MaxExecTime.Store(exec)
	}
}

func (s *Statistics) recordAction(a Action) {
	if a&ActionAccept != 0 {
		s.NAccept.Inc()
	}
	if a&ActionRead != 0 {
		s.NRead.Inc()
	}
	if a&ActionWrite != 0 {
		s.NWrite.Inc()
	}
	if a&ActionHup != 0 {
		s.NHup.Inc()
	}
	if a&ActionError != 0 {
		s.NError.Inc()
	}
}

// AggregateStatistics is the reduced, pool-wide view GetStatistics returns.
// Field reducers: SUM for counters, AVG for EvqLength, MAX for
// EvqMax/MaxQTime/MaxExecTime, elementwise SUM for NFds, elementwise
// SUM-then-AVG for QTimes/ExecTimes.
type AggregateStatistics struct {
	NRead, NWrite, NError, NHup, NAccept               uint64
	NPolls, NPollEv, NNonblockingPollEv, BlockingPolls  uint64
	EvqLength                                          uint64 // average
	EvqMax, MaxQTime, MaxExecTime                       uint64
	NFds                                                [MaxNFDs]uint64
	QTimes, ExecTimes                                   [NQueueTimes + 1]uint64
}

// StatKind names a single reduced field for GetOneStatistic.
type StatKind int

const (
	StatNRead StatKind = iota
	StatNWrite
	StatNError
	StatNHup
	StatNAccept
	StatNPolls
	StatNPollEv
	StatNNonblockingPollEv
	StatBlockingPolls
	StatEvqLengthAvg
	StatEvqMax
	StatMaxQTime
	StatMaxExecTime
)
