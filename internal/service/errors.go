package service

import "errors"

var (
	// ErrJobNotFound covers both a missing record and a record the caller is
	// not allowed to know exists.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAccessForbidden is returned when the job exists and the caller may
	// know it does, but is not its owner.
	ErrJobAccessForbidden = errors.New("access to job is forbidden")

	// ErrJobNotReady is returned when a result is requested before the job
	// reached the completed status.
	ErrJobNotReady = errors.New("job has not completed")

	// ErrJobResultMissing signals an integrity fault: the job is completed
	// but its output file is gone from storage.
	ErrJobResultMissing = errors.New("translated file is missing")
)
