//go:build !linux

package sched

func CurrentThreadID() int { return 0 }

func Nice(int) (int, error) { return 0, ErrUnsupported }

func SetNice(int, int) error { return ErrUnsupported }
