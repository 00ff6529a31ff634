//go:build !unix

package rowstore

// no cross-process locking on this platform
type fileLock struct{}

func lockFile(path string) (*fileLock, error) {
	return &fileLock{}, nil
}

func (l *fileLock) unlock() error {
	return nil
}
