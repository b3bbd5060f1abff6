// Copyright 2019 Andy Pan. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package corewp

// Options carries the core's configuration inputs: ThreadCount is the
// worker count, NBPolls is the nonblocking-poll spin threshold before the
// loop falls back to a blocking poll, PollSleep is the maximum blocking
// timeout in milliseconds. Options never reads files, flags, or environment
// variables itself — that is an external collaborator's concern, out of the
// core's scope — callers build one with defaultOptions() and the With*
// functions below, following the familiar loadOptions(opts ...Option) shape.
type Options struct {
	ThreadCount int
	NBPolls     int
	PollSleep   int

	IdleSessionHook IdleSessionHook
	ZombieHook      ZombieHook
	Module          ModuleLifecycle
}

// Option mutates an Options value; functional-option constructors below are
// the only supported way to build one; see "Configuration inputs".
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		ThreadCount:     1,
		NBPolls:         64,
		PollSleep:       100,
		IdleSessionHook: func(int) {},
		ZombieHook:      func(int) {},
		Module:          noopModule{},
	}
}

func loadOptions(opts ...Option) *Options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithThreadCount sets the worker count.
func WithThreadCount(n int) Option {
	return func(o *Options) { o.ThreadCount = n }
}

// WithNBPolls sets the nonblocking-poll spin threshold.
func WithNBPolls(n int) Option {
	return func(o *Options) { o.NBPolls = n }
}

// WithPollSleep sets the maximum blocking-poll timeout in milliseconds.
func WithPollSleep(ms int) Option {
	return func(o *Options) { o.PollSleep = ms }
}

// WithIdleSessionHook sets the per-cycle idle-session hook.
func WithIdleSessionHook(h IdleSessionHook) Option {
	return func(o *Options) { o.IdleSessionHook = h }
}

// WithZombieHook sets the per-cycle zombie-collection hook.
func WithZombieHook(h ZombieHook) Option {
	return func(o *Options) { o.ZombieHook = h }
}

// WithModuleLifecycle sets the per-thread module init/finish hook.
func WithModuleLifecycle(m ModuleLifecycle) Option {
	return func(o *Options) { o.Module = m }
}
