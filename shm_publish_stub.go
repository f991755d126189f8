//go:build !unix

package main

// Shared-memory frame publishing needs mmap; elsewhere it is a no-op.
type framePublisher struct{}

func newFramePublisher(name string, fftSize int) *framePublisher { return &framePublisher{} }

func (p *framePublisher) Publish(frame []byte) {}

func (p *framePublisher) Close() {}
