// Copyright 2019 Andy Pan. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package corewp

import (
	"sync"

	"github.com/panlibin/corewp/internal/logging"
)

// workerSnapshot is one worker's Statistics, copied out via atomic loads so
// GetStatistics can reduce them without holding any lock.
type workerSnapshot struct {
	nRead, nWrite, nError, nHup, nAccept              uint64
	nPolls, nPollEv, nNonblockingPollEv, blockingPolls uint64
	evqLength, evqMax, maxQTime, maxExecTime           uint64
	nFds                                               [MaxNFDs]uint64
	qTimes, execTimes                                  [NQueueTimes + 1]uint64
}

func snapshot(s *Statistics) workerSnapshot {
	var snap workerSnapshot
	snap.nRead = s.NRead.Load()
	snap.nWrite = s.NWrite.Load()
	snap.nError = s.NError.Load()
	snap.nHup = s.NHup.Load()
	snap.nAccept = s.NAccept.Load()
	snap.nPolls = s.NPolls.Load()
	snap.nPollEv = s.NPollEv.Load()
	snap.nNonblockingPollEv = s.NNonblockingPollEv.Load()
	snap.blockingPolls = s.BlockingPolls.Load()
	snap.evqLength = s.EvqLength.Load()
	snap.evqMax = s.EvqMax.Load()
	snap.maxQTime = s.MaxQTime.Load()
	snap.maxExecTime = s.MaxExecTime.Load()
	for i := range s.NFds {
		snap.nFds[i] = s.NFds[i].Load()
	}
	for i := range s.QTimes {
		snap.qTimes[i] = s.QTimes[i].Load()
		snap.execTimes[i] = s.ExecTimes[i].Load()
	}
	return snap
}

// GetStatistics reduces every worker's Statistics into a pool-wide view.
// Above statsFanoutThreshold workers, snapshotting is fanned out across a
// bounded ants.Pool so the reduction itself scales with worker count
// without growing the caller's own goroutine footprint.
func GetStatistics() AggregateStatistics { return defaultPool.GetStatistics() }

// GetStatistics is the Pool method backing the package-level GetStatistics.
func (p *Pool) GetStatistics() AggregateStatistics {
	p.mu.RLock()
	workers := p.workers
	statsPool := p.statsPool
	p.mu.RUnlock()

	n := len(workers)
	if n == 0 {
		return AggregateStatistics{}
	}
	snaps := make([]workerSnapshot, n)

	if statsPool != nil {
		var wg sync.WaitGroup
		wg.Add(n)
		for i, w := range workers {
			i, w := i, w
			err := statsPool.Submit(func() {
				defer wg.Done()
				snaps[i] = snapshot(&w.Stats)
			})
			if err != nil {
				logging.Errorf("corewp: statistics fan-out submit failed, falling back inline: %v", err)
				snaps[i] = snapshot(&w.Stats)
				wg.Done()
			}
		}
		wg.Wait()
	} else {
		for i, w := range workers {
			snaps[i] = snapshot(&w.Stats)
		}
	}

	return reduce(snaps)
}

func reduce(snaps []workerSnapshot) AggregateStatistics {
	var agg AggregateStatistics
	n := uint64(len(snaps))
	if n == 0 {
		return agg
	}
	var evqSum uint64
	for _, s := range snaps {
		agg.NRead += s.nRead
		agg.NWrite += s.nWrite
		agg.NError += s.nError
		agg.NHup += s.nHup
		agg.NAccept += s.nAccept
		agg.NPolls += s.nPolls
		agg.NPollEv += s.nPollEv
		agg.NNonblockingPollEv += s.nNonblockingPollEv
		agg.BlockingPolls += s.blockingPolls

		evqSum += s.evqLength
		if s.evqMax > agg.EvqMax {
			agg.EvqMax = s.evqMax
		}
		if s.maxQTime > agg.MaxQTime {
			agg.MaxQTime = s.maxQTime
		}
		if s.maxExecTime > agg.MaxExecTime {
			agg.MaxExecTime = s.maxExecTime
		}
		for i := range s.nFds {
			agg.NFds[i] += s.nFds[i]
		}
		for i := range s.qTimes {
			agg.QTimes[i] += s.qTimes[i]
			agg.ExecTimes[i] += s.execTimes[i]
		}
	}
	agg.EvqLength = evqSum / n
	for i := range agg.QTimes {
		agg.QTimes[i] /= n
		agg.ExecTimes[i] /= n
	}
	return agg
}

// GetOneStatistic returns a single reduced field.
func GetOneStatistic(kind StatKind) uint64 { return defaultPool.GetOneStatistic(kind) }

// GetOneStatistic is the Pool method backing the package-level GetOneStatistic.
func (p *Pool) GetOneStatistic(kind StatKind) uint64 {
	agg := p.GetStatistics()
	switch kind {
	case StatNRead:
		return agg.NRead
	case StatNWrite:
		return agg.NWrite
	case StatNError:
		return agg.NError
	case StatNHup:
		return agg.NHup
	case StatNAccept:
		return agg.NAccept
	case StatNPolls:
		return agg.NPolls
	case StatNPollEv:
		return agg.NPollEv
	case StatNNonblockingPollEv:
		return agg.NNonblockingPollEv
	case StatBlockingPolls:
		return agg.BlockingPolls
	case StatEvqLengthAvg:
		return agg.EvqLength
	case StatEvqMax:
		return agg.EvqMax
	case StatMaxQTime:
		return agg.MaxQTime
	case StatMaxExecTime:
		return agg.MaxExecTime
	default:
		return 0
	}
}
