// Copyright 2019 Andy Pan. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package corewp

import "time"

// heartbeatEpoch anchors monotonicTick; only the delta between two reads is
// ever used, so the epoch itself is never observed by callers.
var heartbeatEpoch = time.Now()

// monotonicTick returns a coarse heartbeat counter: milliseconds since the
// package was loaded, used purely as a relative clock for the
// QTimes/ExecTimes histograms.
func monotonicTick() uint64 {
	return uint64(time.Since(heartbeatEpoch).Milliseconds())
}
